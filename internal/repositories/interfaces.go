package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/washclub/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err represents a conflicting or aborted mutation.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// StatsMutation is a named, all-or-nothing set of deltas against one
// customer's loyalty ledger. Either every field applies or none do.
// IncFreeWashes may be negative; a decrement that would take the balance
// below zero aborts the whole mutation with a conflict error.
//
// EarnFreeWashEvery, when positive, grants one free wash inside the same
// atomic unit if the post-increment completed count is a positive multiple
// of it. The earning decision must happen inside the transaction so a
// concurrent completion cannot observe a stale count.
type StatsMutation struct {
	Name               string
	IncTotalOrders     int64
	IncCompletedOrders int64
	IncCancelledOrders int64
	IncFreeWashes      int64
	EarnFreeWashEvery  int64
	SetLastVisit       *time.Time
}

// StatsMutationResult reports the committed ledger state after a mutation.
type StatsMutationResult struct {
	Stats          domain.CustomerStats
	EarnedFreeWash bool
}

// OrderAnnotation identifies which non-fatal processing-error field to record
// on an order document.
type OrderAnnotation string

const (
	// AnnotationCreation marks a failure during the create transition.
	AnnotationCreation OrderAnnotation = "creationError"
	// AnnotationCompletion marks a failure during the complete transition.
	AnnotationCompletion OrderAnnotation = "completionError"
	// AnnotationCancellation marks a failure during the cancel transition.
	AnnotationCancellation OrderAnnotation = "cancellationError"
)

// CustomerRepository persists loyalty accounts and applies atomic ledger mutations.
type CustomerRepository interface {
	Get(ctx context.Context, customerID string) (domain.Customer, error)
	Create(ctx context.Context, customer domain.Customer) error
	// ApplyStatsMutation applies the mutation atomically and returns the
	// committed stats. Concurrent mutations against the same customer
	// serialize; the later observes the former's committed result.
	ApplyStatsMutation(ctx context.Context, customerID string, mutation StatsMutation) (StatsMutationResult, error)
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.Customer, error)
	ListWithDeviceTokens(ctx context.Context) ([]domain.Customer, error)
	RemoveDeviceTokens(ctx context.Context, customerID string, tokens []string) error
}

// OrderRepository persists wash orders.
type OrderRepository interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Create(ctx context.Context, order domain.Order) error
	// UpdateStatus transitions the order from one status to another,
	// failing with a conflict when the stored status no longer matches.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time, by string) error
	// ForceCancel cancels the order regardless of current status, recording
	// the reason and actor; clearRedemption also resets the redemption flag.
	ForceCancel(ctx context.Context, orderID, reason, by string, clearRedemption bool, at time.Time) error
	AttachRating(ctx context.Context, orderID string, rating domain.Rating) error
	// Annotate records a non-fatal processing error on the order document.
	Annotate(ctx context.Context, orderID string, field OrderAnnotation, message string) error
	// CountActiveForCustomer counts the customer's pending or in_progress
	// orders, excluding excludeOrderID so the order under admission does not
	// count against itself.
	CountActiveForCustomer(ctx context.Context, customerID, excludeOrderID string) (int64, error)
	ListRatedCompletedByWorker(ctx context.Context, workerID string) ([]domain.Order, error)
	ListCreatedInRange(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// WorkerRepository persists worker records and their aggregate stats.
type WorkerRepository interface {
	Get(ctx context.Context, workerID string) (domain.Worker, error)
	IncrementCompleted(ctx context.Context, workerID string) error
	SetRatingStats(ctx context.Context, workerID string, average float64, total int64) error
}

// SettingsRepository provides the immutable settings snapshot per handler
// invocation. Absence of the settings document yields the documented default.
type SettingsRepository interface {
	Snapshot(ctx context.Context) (domain.AppSettings, error)
}

// AuditLogRepository appends durable cancellation audit records.
type AuditLogRepository interface {
	Append(ctx context.Context, record domain.CancellationAudit) error
}

// AlertRepository persists low-rating alerts for manual follow-up.
type AlertRepository interface {
	Append(ctx context.Context, alert domain.LowRatingAlert) error
	ListUnresolved(ctx context.Context) ([]domain.LowRatingAlert, error)
	Resolve(ctx context.Context, alertID string) error
}
