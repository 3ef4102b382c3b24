package storage

import (
	"context"

	"github.com/mpjuers/transmission/internal/model"
)

// Store defines persistence for training runs and their posterior results.
type Store interface {
	Init(ctx context.Context) error
	SaveTrainingRun(ctx context.Context, run model.TrainingRun) error
	GetTrainingRun(ctx context.Context, runID string) (model.TrainingRun, bool, error)
	// LatestTrainingRun returns the most recently saved run.
	LatestTrainingRun(ctx context.Context) (model.TrainingRun, bool, error)
	// ListTrainingRuns returns runs newest first, at most limit of them;
	// limit <= 0 returns all.
	ListTrainingRuns(ctx context.Context, limit int) ([]model.TrainingRun, error)
	SavePosterior(ctx context.Context, record model.PosteriorRecord) error
	GetPosterior(ctx context.Context, runID string) (model.PosteriorRecord, bool, error)
}
