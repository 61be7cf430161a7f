package services

import (
	"context"
	"time"

	domain "github.com/washclub/api/internal/domain"
)

// NotificationDispatcher delivers push notifications to customers. Delivery
// is best-effort: implementations drop stale device tokens on
// invalid-recipient errors instead of failing the caller.
type NotificationDispatcher interface {
	Send(ctx context.Context, customerID, title, body string, data map[string]string) error
	SendToMany(ctx context.Context, customerIDs []string, title, body string, data map[string]string) error
	SendBroadcast(ctx context.Context, title, body string, data map[string]string) error
	SendConditional(ctx context.Context, predicate func(domain.Customer) bool, title, body string, data map[string]string) error
}

// LifecycleService reacts to order change notifications. Delivery is
// at-least-once and possibly out of order; handlers must be idempotent.
type LifecycleService interface {
	HandleChange(ctx context.Context, change domain.OrderChange) error
}

// CreateOrderInput carries validated order intake parameters.
type CreateOrderInput struct {
	CustomerID   string
	WorkerID     string
	ServiceID    string
	ServiceName  string
	ServicePrice int64
	IsRedemption bool
	Payment      domain.PaymentMethod
}

// OrderService exposes the synchronous order surface: intake, status writes,
// rating attachment, and customer lookup. Loyalty consequences of these
// writes are applied asynchronously by the LifecycleService.
type OrderService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, by string) error
	AttachRating(ctx context.Context, orderID string, rating domain.Rating) error
	GetCustomer(ctx context.Context, customerID string) (CustomerView, error)
}

// CustomerView is a customer read model with the derived washes-until-free
// reporting field.
type CustomerView struct {
	Customer        domain.Customer
	WashesUntilFree int64
}

// ReportSummary is the read-only aggregation over a date range.
type ReportSummary struct {
	TotalOrders        int64
	CompletedOrders    int64
	CancelledOrders    int64
	InProgressOrders   int64
	Revenue            int64
	FreeWashesRedeemed int64
	AverageServiceTime int64
	MostPopularService string
	TopWorker          string
	AverageRating      float64
	TotalRatings       int64
}

// ReportService aggregates order statistics. Pure function of the order set
// in range; no side effects.
type ReportService interface {
	Aggregate(ctx context.Context, from, to time.Time) (ReportSummary, error)
}

// ReminderService nudges customers that have not visited recently. The
// schedule itself is owned by an external collaborator.
type ReminderService interface {
	RemindInactiveCustomers(ctx context.Context, now time.Time) (int, error)
}

// AlertService exposes low-rating alerts for operator follow-up.
type AlertService interface {
	ListUnresolved(ctx context.Context) ([]domain.LowRatingAlert, error)
	Resolve(ctx context.Context, alertID string) error
}
