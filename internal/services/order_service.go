package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals a request rejected at the service boundary.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound signals a lookup for a missing order.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition signals a status write the state machine forbids.
	ErrOrderInvalidTransition = errors.New("order: invalid transition")
	// ErrCustomerNotFound signals a lookup for a missing customer.
	ErrCustomerNotFound = errors.New("customer: not found")
)

// allowedTransitions is the full order state machine. Terminal states have
// no outgoing edges.
var allowedTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusInProgress: {
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
}

func transitionAllowed(from, to domain.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles collaborators for the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Customers repositories.CustomerRepository
	Settings  repositories.SettingsRepository
	Clock     func() time.Time
}

type orderService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	settings  repositories.SettingsRepository
	clock     func() time.Time
}

// NewOrderService constructs the synchronous order surface.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("order service: settings repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &orderService{
		orders:    deps.Orders,
		customers: deps.Customers,
		settings:  deps.Settings,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// CreateOrder validates the intake request and writes the pending order.
// Loyalty consequences (active-order rejection, credit deduction, totals)
// are applied asynchronously when the creation event arrives.
func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (domain.Order, error) {
	if strings.TrimSpace(input.CustomerID) == "" {
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(input.ServiceID) == "" {
		return domain.Order{}, fmt.Errorf("%w: service id is required", ErrOrderInvalidInput)
	}
	if input.ServicePrice < 0 {
		return domain.Order{}, fmt.Errorf("%w: service price must not be negative", ErrOrderInvalidInput)
	}
	switch input.Payment {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer, domain.PaymentMethodRedeemed:
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, input.Payment)
	}
	// The redemption flag and the redeemed payment method travel together.
	if input.IsRedemption != (input.Payment == domain.PaymentMethodRedeemed) {
		return domain.Order{}, fmt.Errorf("%w: redemption orders must use the redeemed payment method", ErrOrderInvalidInput)
	}

	if _, err := s.customers.Get(ctx, input.CustomerID); err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, input.CustomerID)
		}
		return domain.Order{}, fmt.Errorf("load customer %s: %w", input.CustomerID, err)
	}

	now := s.clock()
	order := domain.Order{
		ID:            newOrderID(now),
		CustomerID:    input.CustomerID,
		WorkerID:      input.WorkerID,
		Status:        domain.OrderStatusPending,
		IsRedemption:  input.IsRedemption,
		PaymentMethod: input.Payment,
		Service: domain.ServiceInfo{
			ID:    input.ServiceID,
			Name:  input.ServiceName,
			Price: input.ServicePrice,
		},
		CreatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order %s: %w", order.ID, err)
	}
	return order, nil
}

// GetOrder loads one order by identifier.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}

// UpdateStatus moves the order along an allowed edge. The repository retries
// the write as a compare-and-set against the order's current status, so a
// concurrent transition surfaces here as an invalid-transition error rather
// than silently overwriting.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, by string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	switch to {
	case domain.OrderStatusInProgress, domain.OrderStatusCompleted, domain.OrderStatusCancelled:
	default:
		return fmt.Errorf("%w: cannot transition to %q", ErrOrderInvalidInput, to)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitionAllowed(order.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, to)
	}

	err = s.orders.UpdateStatus(ctx, orderID, order.Status, to, s.clock(), by)
	switch {
	case err == nil:
		return nil
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: order %s changed concurrently", ErrOrderInvalidTransition, orderID)
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	default:
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
}

// AttachRating stores customer feedback on a completed order.
func (s *orderService) AttachRating(ctx context.Context, orderID string, rating domain.Rating) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if rating.Stars < 1 || rating.Stars > 5 {
		return fmt.Errorf("%w: stars must be between 1 and 5", ErrOrderInvalidInput)
	}

	err := s.orders.AttachRating(ctx, orderID, rating)
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderInvalidTransition, err)
	default:
		return fmt.Errorf("attach rating to order %s: %w", orderID, err)
	}
}

// GetCustomer returns the customer together with the derived distance to the
// next free wash.
func (s *orderService) GetCustomer(ctx context.Context, customerID string) (CustomerView, error) {
	if strings.TrimSpace(customerID) == "" {
		return CustomerView{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CustomerView{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
		}
		return CustomerView{}, fmt.Errorf("load customer %s: %w", customerID, err)
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		settings = domain.DefaultAppSettings()
	}
	return CustomerView{
		Customer:        customer,
		WashesUntilFree: domain.WashesUntilFree(customer.Stats.CompletedOrders, settings.WashesRequiredForFree),
	}, nil
}

func newOrderID(now time.Time) string {
	return "ord_" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
