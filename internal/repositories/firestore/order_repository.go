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

const orderCollection = "orders"

type ratingDocument struct {
	Stars   int    `firestore:"stars"`
	Comment string `firestore:"comment,omitempty"`
}

type serviceDocument struct {
	ID    string `firestore:"id"`
	Name  string `firestore:"name"`
	Price int64  `firestore:"price"`
}

type orderDocument struct {
	CustomerID    string          `firestore:"customerId"`
	WorkerID      string          `firestore:"workerId,omitempty"`
	Status        string          `firestore:"status"`
	IsRedemption  bool            `firestore:"isRedemption"`
	PaymentMethod string          `firestore:"paymentMethod"`
	Service       serviceDocument `firestore:"service"`
	Rating        *ratingDocument `firestore:"rating,omitempty"`
	CreatedAt     time.Time       `firestore:"createdAt"`
	CompletedAt   *time.Time      `firestore:"completedAt,omitempty"`
	CancelledAt   *time.Time      `firestore:"cancelledAt,omitempty"`
	CancelReason  string          `firestore:"cancelReason,omitempty"`
	CancelledBy   string          `firestore:"cancelledBy,omitempty"`

	CreationError     string `firestore:"creationError,omitempty"`
	CompletionError   string `firestore:"completionError,omitempty"`
	CancellationError string `firestore:"cancellationError,omitempty"`
}

// OrderRepository persists wash orders in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// Get loads the order by identifier.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// Create inserts a new order document, failing on duplicate identifiers.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	return r.base.Create(ctx, order.ID, fromDomainOrder(order))
}

// UpdateStatus transitions the order between the two given statuses inside a
// transaction; a stored status that no longer matches aborts with a conflict
// so redelivered or out-of-order writes cannot double-apply.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time, by string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return pfirestore.NewNotFoundError("order status update", fmt.Errorf("order %s not found", orderID))
		}
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status != string(from) {
			return pfirestore.NewConflictError("order status update",
				fmt.Errorf("order %s is %s, expected %s", orderID, doc.Status, from))
		}

		updates := []firestore.Update{{Path: "status", Value: string(to)}}
		switch to {
		case domain.OrderStatusCompleted:
			updates = append(updates, firestore.Update{Path: "completedAt", Value: at.UTC()})
		case domain.OrderStatusCancelled:
			updates = append(updates,
				firestore.Update{Path: "cancelledAt", Value: at.UTC()},
				firestore.Update{Path: "cancelledBy", Value: by},
			)
		}
		return tx.Update(ref, updates)
	})
}

// ForceCancel cancels the order regardless of its current status. Used by the
// create transition to reject orders that fail admission checks.
func (r *OrderRepository) ForceCancel(ctx context.Context, orderID, reason, by string, clearRedemption bool, at time.Time) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(domain.OrderStatusCancelled)},
		{Path: "cancelledAt", Value: at.UTC()},
		{Path: "cancelReason", Value: reason},
		{Path: "cancelledBy", Value: by},
	}
	if clearRedemption {
		updates = append(updates,
			firestore.Update{Path: "isRedemption", Value: false},
		)
	}
	return r.base.Update(ctx, orderID, updates)
}

// AttachRating stores the rating on a completed order. Ratings are immutable
// once set.
func (r *OrderRepository) AttachRating(ctx context.Context, orderID string, rating domain.Rating) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return pfirestore.NewNotFoundError("attach rating", fmt.Errorf("order %s not found", orderID))
		}
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status != string(domain.OrderStatusCompleted) {
			return pfirestore.NewConflictError("attach rating",
				fmt.Errorf("order %s is %s, ratings attach to completed orders only", orderID, doc.Status))
		}
		if doc.Rating != nil && doc.Rating.Stars > 0 {
			return pfirestore.NewConflictError("attach rating",
				fmt.Errorf("order %s already has a rating", orderID))
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "rating", Value: ratingDocument{Stars: rating.Stars, Comment: rating.Comment}},
		})
	})
}

// Annotate records a non-fatal processing error on the order document so an
// operator can find and reconcile it.
func (r *OrderRepository) Annotate(ctx context.Context, orderID string, field repositories.OrderAnnotation, message string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}
	return r.base.Update(ctx, orderID, []firestore.Update{
		{Path: string(field), Value: message},
	})
}

// CountActiveForCustomer counts the customer's orders in pending or
// in_progress, excluding excludeOrderID.
func (r *OrderRepository) CountActiveForCustomer(ctx context.Context, customerID, excludeOrderID string) (int64, error) {
	if strings.TrimSpace(customerID) == "" {
		return 0, errors.New("customer id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).
			Where("status", "in", []string{
				string(domain.OrderStatusPending),
				string(domain.OrderStatusInProgress),
			})
	})
	if err != nil {
		return 0, err
	}
	var count int64
	for _, doc := range docs {
		if doc.ID == excludeOrderID {
			continue
		}
		count++
	}
	return count, nil
}

// ListRatedCompletedByWorker returns the worker's completed orders carrying a
// rating, used to recompute the average from scratch.
func (r *OrderRepository) ListRatedCompletedByWorker(ctx context.Context, workerID string) ([]domain.Order, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, errors.New("worker id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("workerId", "==", workerID).
			Where("status", "==", string(domain.OrderStatusCompleted))
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := toDomainOrder(doc.ID, doc.Data)
		if order.HasRating() {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// ListCreatedInRange returns orders created within [from, to).
func (r *OrderRepository) ListCreatedInRange(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).
			Where("createdAt", "<", to.UTC()).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:            id,
		CustomerID:    doc.CustomerID,
		WorkerID:      doc.WorkerID,
		Status:        domain.OrderStatus(doc.Status),
		IsRedemption:  doc.IsRedemption,
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Service: domain.ServiceInfo{
			ID:    doc.Service.ID,
			Name:  doc.Service.Name,
			Price: doc.Service.Price,
		},
		CreatedAt:         doc.CreatedAt,
		CompletedAt:       doc.CompletedAt,
		CancelledAt:       doc.CancelledAt,
		CancelReason:      doc.CancelReason,
		CancelledBy:       doc.CancelledBy,
		CreationError:     doc.CreationError,
		CompletionError:   doc.CompletionError,
		CancellationError: doc.CancellationError,
	}
	if doc.Rating != nil {
		order.Rating = &domain.Rating{Stars: doc.Rating.Stars, Comment: doc.Rating.Comment}
	}
	return order
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		CustomerID:    order.CustomerID,
		WorkerID:      order.WorkerID,
		Status:        string(order.Status),
		IsRedemption:  order.IsRedemption,
		PaymentMethod: string(order.PaymentMethod),
		Service: serviceDocument{
			ID:    order.Service.ID,
			Name:  order.Service.Name,
			Price: order.Service.Price,
		},
		CreatedAt:         order.CreatedAt,
		CompletedAt:       order.CompletedAt,
		CancelledAt:       order.CancelledAt,
		CancelReason:      order.CancelReason,
		CancelledBy:       order.CancelledBy,
		CreationError:     order.CreationError,
		CompletionError:   order.CompletionError,
		CancellationError: order.CancellationError,
	}
	if order.Rating != nil {
		doc.Rating = &ratingDocument{Stars: order.Rating.Stars, Comment: order.Rating.Comment}
	}
	return doc
}
