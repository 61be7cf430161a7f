package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle states of a wash order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created and is waiting for a worker.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusInProgress indicates a worker is currently washing the vehicle.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted indicates the wash finished successfully. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before completion. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentMethod enumerates how an order is paid for.
type PaymentMethod string

const (
	// PaymentMethodCash indicates payment in cash at the wash.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCard indicates card payment.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodTransfer indicates bank transfer payment.
	PaymentMethodTransfer PaymentMethod = "transfer"
	// PaymentMethodRedeemed indicates the order consumes an earned free-wash credit.
	PaymentMethodRedeemed PaymentMethod = "redeemed"
)

// Rating captures customer feedback attached to a completed order.
type Rating struct {
	Stars   int
	Comment string
}

// ServiceInfo describes the wash service variant purchased with an order.
type ServiceInfo struct {
	ID    string
	Name  string
	Price int64
}

// Order represents one wash request owned by the persistence layer.
//
// Invariant: IsRedemption is true exactly when PaymentMethod is
// PaymentMethodRedeemed. CompletedAt/CancelledAt are immutable once set.
type Order struct {
	ID            string
	CustomerID    string
	WorkerID      string
	Status        OrderStatus
	IsRedemption  bool
	PaymentMethod PaymentMethod
	Service       ServiceInfo
	Rating        *Rating
	CreatedAt     time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  string
	CancelledBy   string

	// Non-fatal processing annotations recorded by lifecycle handlers when an
	// atomic mutation could not be applied. Operators reconcile these manually.
	CreationError     string
	CompletionError   string
	CancellationError string
}

// HasRating reports whether a rating with at least one star is attached.
func (o *Order) HasRating() bool {
	return o != nil && o.Rating != nil && o.Rating.Stars > 0
}

// CustomerStats is the loyalty ledger for one customer.
//
// CompletedOrders counts paid, non-redemption completions only.
// FreeWashesAvailable never goes negative.
type CustomerStats struct {
	TotalOrders         int64
	CompletedOrders     int64
	CancelledOrders     int64
	FreeWashesAvailable int64
	LastVisit           *time.Time
}

// Customer is one loyalty account, keyed by a plate-style identifier.
type Customer struct {
	ID           string
	Name         string
	Phone        string
	DeviceTokens []string
	Stats        CustomerStats
	CreatedAt    time.Time
}

// WorkerStats aggregates a worker's completion and rating history.
// AverageRating is recomputed from the full set of rated completions,
// never incrementally averaged, so it cannot drift.
type WorkerStats struct {
	TotalOrdersCompleted int64
	AverageRating        float64
	TotalRatings         int64
}

// Worker is a wash worker record.
type Worker struct {
	ID    string
	Name  string
	Stats WorkerStats
}

// NotificationSettings holds the per-deployment notification toggles.
type NotificationSettings struct {
	OrderCompleted    bool
	FreeWashAvailable bool
	ReminderAfterDays int
}

// AppSettings is the immutable configuration snapshot read by lifecycle
// handlers. A WashesRequiredForFree of zero disables credit earning.
type AppSettings struct {
	WashesRequiredForFree int64
	Notifications         NotificationSettings
}

// DefaultAppSettings returns the documented fallback snapshot used when no
// settings document exists.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		WashesRequiredForFree: 6,
		Notifications: NotificationSettings{
			OrderCompleted:    true,
			FreeWashAvailable: true,
			ReminderAfterDays: 7,
		},
	}
}

// ChangeKind distinguishes creation events from update events on the order
// change feed.
type ChangeKind string

const (
	// ChangeKindCreated signals a freshly created order document.
	ChangeKindCreated ChangeKind = "created"
	// ChangeKindUpdated signals a write to an existing order document.
	ChangeKindUpdated ChangeKind = "updated"
)

// OrderChange is one at-least-once delivered document change notification.
// Before is nil for creation events.
type OrderChange struct {
	Kind   ChangeKind
	Before *Order
	After  *Order
}

// CancellationAudit is the durable record appended for every cancellation,
// independent of whether the ledger mutation succeeded.
type CancellationAudit struct {
	ID            string
	OrderID       string
	CustomerID    string
	CancelledBy   string
	CancelReason  string
	WasRedemption bool
	Service       string
	RecordedAt    time.Time
}

// LowRatingAlert is a durable record for manual follow-up on ratings below
// three stars. Not a notification.
type LowRatingAlert struct {
	ID         string
	OrderID    string
	WorkerID   string
	CustomerID string
	Stars      int
	Comment    string
	Resolved   bool
	CreatedAt  time.Time
}
