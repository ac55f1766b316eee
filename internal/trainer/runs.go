package trainer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/db/models"
	"github.com/cozy-creator/xray-classifier/internal/db/repository"
)

// runRecorder mirrors a training run into the run registry. Like the
// publisher it only logs failures.
type runRecorder struct {
	repo   repository.ITrainingRunRepository
	logger *zap.Logger
	run    *models.TrainingRun
}

func newRunRecorder(repo repository.ITrainingRunRepository, logger *zap.Logger, id uuid.UUID, cfg config.TrainConfig) *runRecorder {
	return &runRecorder{
		repo:   repo,
		logger: logger,
		run: &models.TrainingRun{
			ID:           id,
			Status:       models.RunStatusProgress,
			DataDir:      cfg.DataDir,
			ArtifactPath: cfg.ArtifactPath,
			Epochs:       cfg.Epochs,
			BatchSize:    cfg.BatchSize,
			LearningRate: cfg.LearningRate,
			Seed:         cfg.Seed,
			StartedAt:    time.Now().UTC(),
		},
	}
}

func (r *runRecorder) start(ctx context.Context, labels []string, datasetHash string) {
	if r.repo == nil {
		return
	}
	r.run.Labels = labels
	r.run.DatasetHash = datasetHash
	if _, err := r.repo.Create(ctx, r.run); err != nil {
		r.logger.Warn("failed to record training run", zap.Error(err))
		r.repo = nil
	}
}

func (r *runRecorder) epoch(ctx context.Context, m artifact.EpochMetrics) {
	r.run.EpochsDone = m.Epoch
	r.run.History = append(r.run.History, models.EpochRecord{
		Epoch:       m.Epoch,
		Loss:        m.Loss,
		Accuracy:    m.Accuracy,
		ValLoss:     m.ValLoss,
		ValAccuracy: m.ValAccuracy,
	})
	r.update(ctx)
}

func (r *runRecorder) finish(ctx context.Context, status models.RunStatus, artifactID string, err error) {
	r.run.Status = status
	r.run.ArtifactID = artifactID
	r.run.FinishedAt = bun.NullTime{Time: time.Now().UTC()}
	if err != nil {
		r.run.Error = err.Error()
	}
	r.update(ctx)
}

func (r *runRecorder) update(ctx context.Context) {
	if r.repo == nil {
		return
	}
	// the run outcome must be stored even when ctx was canceled
	ctx = context.WithoutCancel(ctx)
	if _, err := r.repo.UpdateByID(ctx, r.run.ID.String(), r.run); err != nil {
		r.logger.Warn("failed to update training run", zap.String("run_id", r.run.ID.String()), zap.Error(err))
	}
}
