// Package trainer fits the chest X-ray classifier on a directory of
// labelled images and persists the result as an artifact.
package trainer

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/augment"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/dataset"
	"github.com/cozy-creator/xray-classifier/internal/db/models"
	"github.com/cozy-creator/xray-classifier/internal/db/repository"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/mq"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
)

// Seed offsets keep the shuffle and augmentation streams independent of
// weight initialization while still derived from the one configured seed.
const (
	shuffleSeedOffset = 1
	augmentSeedOffset = 2
)

type Trainer struct {
	cfg      config.TrainConfig
	logger   *zap.Logger
	progress Progress
	runs     repository.ITrainingRunRepository
	queue    mq.MQ
	topic    string
}

type Option func(*Trainer)

func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithProgress(p Progress) Option {
	return func(t *Trainer) {
		if p != nil {
			t.progress = p
		}
	}
}

// WithRunStore records every run in the registry.
func WithRunStore(repo repository.ITrainingRunRepository) Option {
	return func(t *Trainer) { t.runs = repo }
}

// WithPublisher emits lifecycle events to topic on queue.
func WithPublisher(queue mq.MQ, topic string) Option {
	return func(t *Trainer) {
		t.queue = queue
		t.topic = topic
	}
}

func New(cfg config.TrainConfig, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:      cfg,
		logger:   zap.NewNop(),
		progress: nopProgress{},
		topic:    config.DefaultEventsTopic,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Result is what a successful Train returns.
type Result struct {
	Artifact *artifact.Artifact
	Path     string
	History  []artifact.EpochMetrics
}

// TrainModel trains with the built-in defaults and writes the artifact to
// the default path.
func TrainModel(ctx context.Context) (*Result, error) {
	return New(config.Default().Train).Train(ctx)
}

// Train runs the whole pipeline: scan, split, decode, fit, save. Nothing is
// written to the artifact path unless every epoch completes.
func (t *Trainer) Train(ctx context.Context) (res *Result, err error) {
	cfg := t.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interp, err := imageutil.ParseInterpolation(cfg.Interpolation)
	if err != nil {
		return nil, errdefs.InvalidConfig("interpolation", cfg.Interpolation, "nearest, bilinear, bicubic or lanczos3")
	}

	ds, err := dataset.Scan(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	log := t.logger.With(zap.String("run_id", runID.String()))
	pub := &publisher{queue: t.queue, topic: t.topic, logger: log}
	rec := newRunRecorder(t.runs, log, runID, cfg)
	digest := ds.Fingerprint()

	log.Info("starting training",
		zap.String("data_dir", cfg.DataDir),
		zap.Strings("classes", ds.Classes),
		zap.Int("samples", len(ds.Samples)),
		zap.Int("epochs", cfg.Epochs),
	)
	rec.start(ctx, ds.Classes, digest)
	pub.publish(ctx, Event{Type: EventStarted, RunID: runID.String(), Epochs: cfg.Epochs, Labels: ds.Classes})

	defer func() {
		t.progress.Finish(err)
		if err == nil {
			return
		}
		status := models.RunStatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = models.RunStatusCanceled
		}
		log.Error("training failed", zap.Error(err))
		rec.finish(ctx, status, "", err)
		pub.publish(context.WithoutCancel(ctx), Event{Type: EventFailed, RunID: runID.String(), Error: err.Error()})
	}()

	trainSamples, valSamples := ds.Split(cfg.ValidationSplit, cfg.Seed)
	log.Info("split dataset", zap.Int("train", len(trainSamples)), zap.Int("validation", len(valSamples)))

	loader := dataset.NewLoader(cfg.ImageWidth, cfg.ImageHeight, interp, cfg.Workers,
		dataset.WithLogger(log),
		dataset.WithProgress(t.decodedProgress(len(trainSamples)+len(valSamples))),
	)
	trainImages, err := loader.Load(ctx, trainSamples)
	if err != nil {
		return nil, err
	}
	valImages, err := loader.Load(ctx, valSamples)
	if err != nil {
		return nil, err
	}

	model, err := BuildNetwork(cfg.ImageHeight, cfg.ImageWidth, ds.NumClasses(), cfg.Seed)
	if err != nil {
		return nil, err
	}
	log.Debug("built network", zap.Int("params", model.CountParams()))

	history, err := t.fit(ctx, log, model, trainImages, dataset.Labels(trainSamples), valImages, dataset.Labels(valSamples), rec, pub, runID)
	if err != nil {
		return nil, err
	}

	a := artifact.New(model, ds.Classes)
	a.Interpolation = cfg.Interpolation
	a.History = history
	a.Dataset = artifact.DatasetInfo{
		Root:        cfg.DataDir,
		Files:       len(ds.Samples),
		Digest:      digest,
		TrainCount:  len(trainSamples),
		ValCount:    len(valSamples),
		ClassCounts: dataset.ClassCounts(ds.Samples, ds.NumClasses()),
	}
	a.Training = artifact.TrainingInfo{
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		LearningRate:    cfg.LearningRate,
		Seed:            cfg.Seed,
		ValidationSplit: cfg.ValidationSplit,
		ShuffleBuffer:   cfg.ShuffleBuffer,
		FlipHorizontal:  cfg.Augment.FlipHorizontal,
		Rotation:        cfg.Augment.Rotation,
		Zoom:            cfg.Augment.Zoom,
		DurationMs:      time.Since(rec.run.StartedAt).Milliseconds(),
	}

	if err := artifact.Save(cfg.ArtifactPath, a); err != nil {
		return nil, err
	}

	log.Info("saved artifact", zap.String("path", cfg.ArtifactPath), zap.String("artifact_id", a.ID))
	rec.finish(ctx, models.RunStatusCompleted, a.ID, nil)
	pub.publish(ctx, Event{Type: EventFinished, RunID: runID.String(), ArtifactPath: cfg.ArtifactPath, ArtifactID: a.ID})

	return &Result{Artifact: a, Path: cfg.ArtifactPath, History: history}, nil
}

func (t *Trainer) decodedProgress(total int) func(done, _ int) {
	var offset int
	return func(done, n int) {
		t.progress.Decoded(offset+done, total)
		if done == n {
			offset += n
		}
	}
}

func (t *Trainer) fit(
	ctx context.Context,
	log *zap.Logger,
	model *nn.Sequential,
	trainImages []*image.RGBA, trainLabels []int,
	valImages []*image.RGBA, valLabels []int,
	rec *runRecorder,
	pub *publisher,
	runID uuid.UUID,
) ([]artifact.EpochMetrics, error) {
	cfg := t.cfg
	opt := nn.NewAdam(cfg.LearningRate)
	shuffleRng := rand.New(rand.NewSource(cfg.Seed + shuffleSeedOffset))

	var aug *augment.Augmenter
	if a := augment.New(cfg.Augment, cfg.Seed+augmentSeedOffset); a.Enabled() {
		aug = a
	}

	batchesPerEpoch := (len(trainImages) + cfg.BatchSize - 1) / cfg.BatchSize
	t.progress.Start(cfg.Epochs, batchesPerEpoch)

	history := make([]artifact.EpochMetrics, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		started := time.Now()
		order := dataset.ShuffleOrder(len(trainImages), cfg.ShuffleBuffer, shuffleRng)
		batcher := dataset.NewBatcher(trainImages, trainLabels, order, cfg.BatchSize, aug)

		var lossSum float64
		var correct, seen int
		for b := 0; b < batcher.Len(); b++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			batch := batcher.Batch(b)
			step, err := model.TrainStep(batch.X, batch.Labels, opt)
			if err != nil {
				return nil, &errdefs.TrainingFailedError{Epoch: epoch, Batch: b + 1, Err: err}
			}

			lossSum += step.Loss * float64(step.Size)
			correct += step.Correct
			seen += step.Size
			t.progress.Batch(epoch, b+1, lossSum/float64(seen), float64(correct)/float64(seen))
		}

		m := artifact.EpochMetrics{
			Epoch:    epoch,
			Loss:     lossSum / float64(seen),
			Accuracy: float64(correct) / float64(seen),
		}

		if len(valImages) > 0 {
			valLoss, valAcc, err := evaluate(ctx, model, valImages, valLabels, cfg.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return nil, &errdefs.TrainingFailedError{Epoch: epoch, Err: err}
			}
			m.HasValidation = true
			m.ValLoss, m.ValAccuracy = valLoss, valAcc
		}
		m.DurationMs = time.Since(started).Milliseconds()

		history = append(history, m)
		t.progress.Epoch(m)
		log.Info("epoch finished",
			zap.Int("epoch", epoch),
			zap.Float64("loss", m.Loss),
			zap.Float64("accuracy", m.Accuracy),
			zap.Float64("val_loss", m.ValLoss),
			zap.Float64("val_accuracy", m.ValAccuracy),
		)
		rec.epoch(ctx, m)
		metrics := m
		pub.publish(ctx, Event{Type: EventEpoch, RunID: runID.String(), Epochs: cfg.Epochs, Metrics: &metrics})
	}

	return history, nil
}

// evaluate returns the sample-weighted loss and the accuracy of model over
// images, without augmentation or dropout.
func evaluate(ctx context.Context, model *nn.Sequential, images []*image.RGBA, labels []int, batchSize int) (float64, float64, error) {
	batcher := dataset.NewBatcher(images, labels, dataset.Sequential(len(images)), batchSize, nil)

	var lossSum float64
	var correct, seen int
	for b := 0; b < batcher.Len(); b++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		batch := batcher.Batch(b)
		res, err := model.Evaluate(batch.X, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		lossSum += res.Loss * float64(res.Size)
		correct += res.Correct
		seen += res.Size
	}
	return lossSum / float64(seen), float64(correct) / float64(seen), nil
}
