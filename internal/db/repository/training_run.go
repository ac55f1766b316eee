package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/xray-classifier/internal/db/models"
	"github.com/uptrace/bun"
)

type ITrainingRunRepository interface {
	Repository[models.TrainingRun]
	WithTx(tx *bun.Tx) ITrainingRunRepository
	WithDB(db *bun.DB) ITrainingRunRepository
	List(ctx context.Context, limit int) ([]models.TrainingRun, error)
}

type TrainingRunRepository struct {
	db bun.IDB
}

func NewTrainingRunRepository(db *bun.DB) ITrainingRunRepository {
	return &TrainingRunRepository{db: db}
}

func (r *TrainingRunRepository) Create(ctx context.Context, run *models.TrainingRun) (*models.TrainingRun, error) {
	if run == nil {
		return nil, fmt.Errorf("training run model is nil")
	}

	if _, err := r.db.NewInsert().Model(run).Exec(ctx); err != nil {
		return nil, err
	}

	return run, nil
}

func (r *TrainingRunRepository) GetByID(ctx context.Context, id string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	if err := r.db.NewSelect().Model(&run).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &run, nil
}

func (r *TrainingRunRepository) UpdateByID(ctx context.Context, id string, run *models.TrainingRun) (*models.TrainingRun, error) {
	if run == nil {
		return nil, fmt.Errorf("training run model is nil")
	}

	if _, err := r.db.NewUpdate().Model(run).ExcludeColumn("id").Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return run, nil
}

func (r *TrainingRunRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.TrainingRun{}).Where("id = ?", id).Exec(ctx)
	return err
}

// List returns the most recent runs first. A non-positive limit returns all.
func (r *TrainingRunRepository) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	var runs []models.TrainingRun
	q := r.db.NewSelect().Model(&runs).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return runs, nil
}

func (r *TrainingRunRepository) WithTx(tx *bun.Tx) ITrainingRunRepository {
	return &TrainingRunRepository{db: tx}
}

func (r *TrainingRunRepository) WithDB(db *bun.DB) ITrainingRunRepository {
	return &TrainingRunRepository{db: db}
}
