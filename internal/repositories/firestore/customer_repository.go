package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/washclub/api/internal/domain"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
	"github.com/washclub/api/internal/repositories"
)

const customerCollection = "customers"

type customerStatsDocument struct {
	TotalOrders         int64      `firestore:"totalOrders"`
	CompletedOrders     int64      `firestore:"completedOrders"`
	CancelledOrders     int64      `firestore:"cancelledOrders"`
	FreeWashesAvailable int64      `firestore:"freeWashesAvailable"`
	LastVisit           *time.Time `firestore:"lastVisit,omitempty"`
}

type customerDocument struct {
	Name         string                `firestore:"name"`
	Phone        string                `firestore:"phone,omitempty"`
	DeviceTokens []string              `firestore:"deviceTokens,omitempty"`
	Stats        customerStatsDocument `firestore:"stats"`
	CreatedAt    time.Time             `firestore:"createdAt"`
}

// CustomerRepository persists loyalty accounts in Firestore. Ledger mutations
// run inside Firestore transactions so concurrent transitions against the
// same customer serialize instead of losing updates.
type CustomerRepository struct {
	base     *pfirestore.BaseRepository[customerDocument]
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customerCollection),
		provider: provider,
	}, nil
}

// Get loads the customer by plate-style identifier.
func (r *CustomerRepository) Get(ctx context.Context, customerID string) (domain.Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return domain.Customer{}, errors.New("customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return toDomainCustomer(doc.ID, doc.Data), nil
}

// Create inserts a new customer record, failing on duplicates.
func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) error {
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer id is required")
	}
	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return r.base.Create(ctx, customer.ID, customerDocument{
		Name:         customer.Name,
		Phone:        customer.Phone,
		DeviceTokens: customer.DeviceTokens,
		Stats:        fromDomainStats(customer.Stats),
		CreatedAt:    createdAt,
	})
}

// ApplyStatsMutation applies the named delta set to exactly one customer
// record as a single atomic unit. A free-wash decrement that would take the
// balance below zero aborts the transaction with a conflict error and
// nothing is applied. When EarnFreeWashEvery is set, the earning check runs
// against the post-increment completed count inside the same transaction.
func (r *CustomerRepository) ApplyStatsMutation(ctx context.Context, customerID string, mutation repositories.StatsMutation) (repositories.StatsMutationResult, error) {
	if strings.TrimSpace(customerID) == "" {
		return repositories.StatsMutationResult{}, errors.New("customer id is required")
	}

	var committed customerStatsDocument
	var earned bool

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, customerID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return pfirestore.NewNotFoundError(
				fmt.Sprintf("stats mutation %s", mutation.Name),
				fmt.Errorf("customer %s not found", customerID),
			)
		}
		if err != nil {
			return err
		}

		var doc customerDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode customer %s: %w", customerID, err)
		}

		earned = false
		stats := doc.Stats
		stats.TotalOrders += mutation.IncTotalOrders
		stats.CompletedOrders += mutation.IncCompletedOrders
		stats.CancelledOrders += mutation.IncCancelledOrders
		stats.FreeWashesAvailable += mutation.IncFreeWashes
		if domain.ShouldGetFreeWash(stats.CompletedOrders, mutation.EarnFreeWashEvery) && mutation.IncCompletedOrders > 0 {
			stats.FreeWashesAvailable++
			earned = true
		}
		if stats.FreeWashesAvailable < 0 {
			return pfirestore.NewConflictError(
				fmt.Sprintf("stats mutation %s", mutation.Name),
				fmt.Errorf("customer %s free wash balance would go negative", customerID),
			)
		}
		if mutation.SetLastVisit != nil {
			visit := mutation.SetLastVisit.UTC()
			stats.LastVisit = &visit
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "stats", Value: stats},
		}); err != nil {
			return err
		}
		committed = stats
		return nil
	})
	if err != nil {
		return repositories.StatsMutationResult{}, err
	}

	return repositories.StatsMutationResult{Stats: toDomainStats(committed), EarnedFreeWash: earned}, nil
}

// ListInactiveSince returns customers whose last visit is older than cutoff.
func (r *CustomerRepository) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.Customer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("stats.lastVisit", "<", cutoff.UTC())
	})
	if err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		customers = append(customers, toDomainCustomer(doc.ID, doc.Data))
	}
	return customers, nil
}

// ListWithDeviceTokens returns every customer that has at least one
// registered device token.
func (r *CustomerRepository) ListWithDeviceTokens(ctx context.Context) ([]domain.Customer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("deviceTokens", "!=", []string{})
	})
	if err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Data.DeviceTokens) == 0 {
			continue
		}
		customers = append(customers, toDomainCustomer(doc.ID, doc.Data))
	}
	return customers, nil
}

// RemoveDeviceTokens drops the given stale tokens from the customer record.
func (r *CustomerRepository) RemoveDeviceTokens(ctx context.Context, customerID string, tokens []string) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.New("customer id is required")
	}
	if len(tokens) == 0 {
		return nil
	}
	values := make([]any, 0, len(tokens))
	for _, token := range tokens {
		values = append(values, token)
	}
	return r.base.Update(ctx, customerID, []firestore.Update{
		{Path: "deviceTokens", Value: firestore.ArrayRemove(values...)},
	})
}

func toDomainCustomer(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:           id,
		Name:         doc.Name,
		Phone:        doc.Phone,
		DeviceTokens: doc.DeviceTokens,
		Stats:        toDomainStats(doc.Stats),
		CreatedAt:    doc.CreatedAt,
	}
}

func toDomainStats(doc customerStatsDocument) domain.CustomerStats {
	return domain.CustomerStats{
		TotalOrders:         doc.TotalOrders,
		CompletedOrders:     doc.CompletedOrders,
		CancelledOrders:     doc.CancelledOrders,
		FreeWashesAvailable: doc.FreeWashesAvailable,
		LastVisit:           doc.LastVisit,
	}
}

func fromDomainStats(stats domain.CustomerStats) customerStatsDocument {
	return customerStatsDocument{
		TotalOrders:         stats.TotalOrders,
		CompletedOrders:     stats.CompletedOrders,
		CancelledOrders:     stats.CancelledOrders,
		FreeWashesAvailable: stats.FreeWashesAvailable,
		LastVisit:           stats.LastVisit,
	}
}
