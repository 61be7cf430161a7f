package firestore

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	domain "github.com/washclub/api/internal/domain"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
)

const alertCollection = "lowRatingAlerts"

type alertDocument struct {
	OrderID    string    `firestore:"orderId"`
	WorkerID   string    `firestore:"workerId"`
	CustomerID string    `firestore:"customerId"`
	Stars      int       `firestore:"stars"`
	Comment    string    `firestore:"comment,omitempty"`
	Resolved   bool      `firestore:"resolved"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// AlertRepository persists low-rating alerts for manual follow-up.
type AlertRepository struct {
	base *pfirestore.BaseRepository[alertDocument]
}

// NewAlertRepository constructs a Firestore-backed alert repository.
func NewAlertRepository(provider *pfirestore.Provider) (*AlertRepository, error) {
	if provider == nil {
		return nil, errors.New("alert repository requires firestore provider")
	}
	return &AlertRepository{
		base: pfirestore.NewBaseRepository[alertDocument](provider, alertCollection),
	}, nil
}

// Append stores the alert under a fresh ULID.
func (r *AlertRepository) Append(ctx context.Context, alert domain.LowRatingAlert) error {
	id := alert.ID
	if id == "" {
		id = ulid.MustNew(ulid.Timestamp(alert.CreatedAt), rand.Reader).String()
	}
	return r.base.Create(ctx, id, alertDocument{
		OrderID:    alert.OrderID,
		WorkerID:   alert.WorkerID,
		CustomerID: alert.CustomerID,
		Stars:      alert.Stars,
		Comment:    alert.Comment,
		Resolved:   false,
		CreatedAt:  alert.CreatedAt.UTC(),
	})
}

// ListUnresolved returns alerts that still need operator attention, oldest first.
func (r *AlertRepository) ListUnresolved(ctx context.Context) ([]domain.LowRatingAlert, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("resolved", "==", false).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.LowRatingAlert, 0, len(docs))
	for _, doc := range docs {
		alerts = append(alerts, domain.LowRatingAlert{
			ID:         doc.ID,
			OrderID:    doc.Data.OrderID,
			WorkerID:   doc.Data.WorkerID,
			CustomerID: doc.Data.CustomerID,
			Stars:      doc.Data.Stars,
			Comment:    doc.Data.Comment,
			Resolved:   doc.Data.Resolved,
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	return alerts, nil
}

// Resolve marks the alert as handled.
func (r *AlertRepository) Resolve(ctx context.Context, alertID string) error {
	if strings.TrimSpace(alertID) == "" {
		return errors.New("alert id is required")
	}
	return r.base.Update(ctx, alertID, []firestore.Update{
		{Path: "resolved", Value: true},
	})
}
