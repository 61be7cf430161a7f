package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/washclub/api/internal/domain"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
)

const workerCollection = "workers"

type workerStatsDocument struct {
	TotalOrdersCompleted int64   `firestore:"totalOrdersCompleted"`
	AverageRating        float64 `firestore:"averageRating"`
	TotalRatings         int64   `firestore:"totalRatings"`
}

type workerDocument struct {
	Name  string              `firestore:"name"`
	Stats workerStatsDocument `firestore:"stats"`
}

// WorkerRepository persists wash worker records in Firestore.
type WorkerRepository struct {
	base *pfirestore.BaseRepository[workerDocument]
}

// NewWorkerRepository constructs a Firestore-backed worker repository.
func NewWorkerRepository(provider *pfirestore.Provider) (*WorkerRepository, error) {
	if provider == nil {
		return nil, errors.New("worker repository requires firestore provider")
	}
	return &WorkerRepository{
		base: pfirestore.NewBaseRepository[workerDocument](provider, workerCollection),
	}, nil
}

// Get loads the worker by identifier.
func (r *WorkerRepository) Get(ctx context.Context, workerID string) (domain.Worker, error) {
	if strings.TrimSpace(workerID) == "" {
		return domain.Worker{}, errors.New("worker id is required")
	}
	doc, err := r.base.Get(ctx, workerID)
	if err != nil {
		return domain.Worker{}, err
	}
	return domain.Worker{
		ID:   doc.ID,
		Name: doc.Data.Name,
		Stats: domain.WorkerStats{
			TotalOrdersCompleted: doc.Data.Stats.TotalOrdersCompleted,
			AverageRating:        doc.Data.Stats.AverageRating,
			TotalRatings:         doc.Data.Stats.TotalRatings,
		},
	}, nil
}

// IncrementCompleted adds one to the worker's completion counter. This is a
// standalone best-effort counter, not part of the customer ledger unit.
func (r *WorkerRepository) IncrementCompleted(ctx context.Context, workerID string) error {
	if strings.TrimSpace(workerID) == "" {
		return errors.New("worker id is required")
	}
	return r.base.Update(ctx, workerID, []firestore.Update{
		{Path: "stats.totalOrdersCompleted", Value: firestore.Increment(1)},
	})
}

// SetRatingStats stores a freshly recomputed rating average and count.
func (r *WorkerRepository) SetRatingStats(ctx context.Context, workerID string, average float64, total int64) error {
	if strings.TrimSpace(workerID) == "" {
		return errors.New("worker id is required")
	}
	return r.base.Update(ctx, workerID, []firestore.Update{
		{Path: "stats.averageRating", Value: average},
		{Path: "stats.totalRatings", Value: total},
	})
}
