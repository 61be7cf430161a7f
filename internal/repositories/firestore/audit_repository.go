package firestore

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/washclub/api/internal/domain"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
)

const auditCollection = "cancellationAudits"

type auditDocument struct {
	OrderID       string    `firestore:"orderId"`
	CustomerID    string    `firestore:"customerId"`
	CancelledBy   string    `firestore:"cancelledBy"`
	CancelReason  string    `firestore:"cancelReason"`
	WasRedemption bool      `firestore:"wasRedemption"`
	Service       string    `firestore:"service"`
	RecordedAt    time.Time `firestore:"recordedAt"`
}

// AuditLogRepository appends cancellation audit records to Firestore.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{
		base: pfirestore.NewBaseRepository[auditDocument](provider, auditCollection),
	}, nil
}

// Append stores the audit record under a fresh ULID so entries sort by time.
func (r *AuditLogRepository) Append(ctx context.Context, record domain.CancellationAudit) error {
	id := record.ID
	if id == "" {
		id = ulid.MustNew(ulid.Timestamp(record.RecordedAt), rand.Reader).String()
	}
	return r.base.Create(ctx, id, auditDocument{
		OrderID:       record.OrderID,
		CustomerID:    record.CustomerID,
		CancelledBy:   record.CancelledBy,
		CancelReason:  record.CancelReason,
		WasRedemption: record.WasRedemption,
		Service:       record.Service,
		RecordedAt:    record.RecordedAt.UTC(),
	})
}
