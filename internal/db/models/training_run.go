package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RunStatus string

const (
	RunStatusProgress  RunStatus = "IN_PROGRESS"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCanceled  RunStatus = "CANCELED"
)

type EpochRecord struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

type TrainingRun struct {
	bun.BaseModel `bun:"table:training_runs"`

	ID           uuid.UUID     `bun:",pk"`
	Status       RunStatus     `bun:",notnull"`
	DataDir      string        `bun:",notnull"`
	ArtifactPath string        `bun:",notnull"`
	ArtifactID   string        `bun:",nullzero"`
	DatasetHash  string        `bun:",nullzero"`
	Labels       []string      `bun:",type:jsonb"`
	Epochs       int           `bun:",notnull"`
	EpochsDone   int           `bun:",notnull"`
	BatchSize    int           `bun:",notnull"`
	LearningRate float64       `bun:",notnull"`
	Seed         int64         `bun:",notnull"`
	History      []EpochRecord `bun:",type:jsonb"`
	Error        string        `bun:",nullzero"`
	StartedAt    time.Time     `bun:",notnull"`
	FinishedAt   bun.NullTime  `bun:",nullzero"`
}
