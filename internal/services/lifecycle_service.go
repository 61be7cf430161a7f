package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/observability"
	"github.com/washclub/api/internal/repositories"
)

const (
	cancelReasonActiveOrder = "active order exists"
	cancelReasonNoFreeWash  = "no free washes available"
	systemActor             = "system"

	mutationOrderCreated   = "order_created"
	mutationRedemptionHold = "redemption_hold"
	mutationOrderCompleted = "order_completed"
	mutationOrderCancelled = "order_cancelled"
)

var (
	// ErrLifecycleInvalidInput signals a malformed change notification.
	ErrLifecycleInvalidInput = errors.New("lifecycle: invalid input")
)

// LifecycleServiceDeps bundles collaborators for the lifecycle service.
type LifecycleServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Workers     repositories.WorkerRepository
	Settings    repositories.SettingsRepository
	AuditLogs   repositories.AuditLogRepository
	Alerts      repositories.AlertRepository
	Notifier    NotificationDispatcher
	Clock       func() time.Time
	ServiceName string
}

type lifecycleService struct {
	orders      repositories.OrderRepository
	customers   repositories.CustomerRepository
	workers     repositories.WorkerRepository
	settings    repositories.SettingsRepository
	auditLogs   repositories.AuditLogRepository
	alerts      repositories.AlertRepository
	notifier    NotificationDispatcher
	clock       func() time.Time
	serviceName string
}

// NewLifecycleService constructs the order lifecycle state machine.
func NewLifecycleService(deps LifecycleServiceDeps) (LifecycleService, error) {
	if deps.Orders == nil {
		return nil, errors.New("lifecycle service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("lifecycle service: customer repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("lifecycle service: settings repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "wash-api"
	}

	return &lifecycleService{
		orders:      deps.Orders,
		customers:   deps.Customers,
		workers:     deps.Workers,
		settings:    deps.Settings,
		auditLogs:   deps.AuditLogs,
		alerts:      deps.Alerts,
		notifier:    deps.Notifier,
		clock:       func() time.Time { return clock().UTC() },
		serviceName: serviceName,
	}, nil
}

// HandleChange routes one change notification through the transition guard
// and the matching handler. A returned error means the delivery should be
// retried; a nil return means the event is handled, even when side effects
// were recorded as annotations instead of applied.
func (s *lifecycleService) HandleChange(ctx context.Context, change domain.OrderChange) error {
	if change.After == nil {
		return fmt.Errorf("%w: change carries no after snapshot", ErrLifecycleInvalidInput)
	}

	// The settings snapshot is read once per invocation and passed down, so
	// a concurrent settings edit cannot split one handler's decisions.
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("settings snapshot unavailable, using defaults",
			zap.Error(err))
		settings = domain.DefaultAppSettings()
	}

	if change.Kind == domain.ChangeKindCreated || change.Before == nil {
		return s.handleCreated(ctx, *change.After)
	}

	var errs []error
	if CompletionFired(change.Before, change.After) {
		errs = append(errs, s.handleCompleted(ctx, *change.After, settings))
	}
	if CancellationFired(change.Before, change.After) {
		errs = append(errs, s.handleCancelled(ctx, *change.After))
	}
	if RatingAdded(change.Before, change.After) {
		errs = append(errs, s.handleRatingAdded(ctx, *change.After))
	}
	return errors.Join(errs...)
}

// handleCreated runs the admission sequence for a new order: the active
// order check, redemption verification with optimistic credit deduction,
// then the unconditional totals update. Failures after the first mutation
// never roll back already-applied steps; they are recorded on the order.
func (s *lifecycleService) handleCreated(ctx context.Context, order domain.Order) error {
	logger := observability.FromContext(ctx).With(
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
	)
	now := s.clock()

	active, err := s.orders.CountActiveForCustomer(ctx, order.CustomerID, order.ID)
	if err != nil {
		// Nothing has been applied yet, so redelivery is safe.
		if repositories.IsUnavailable(err) {
			return err
		}
		s.annotate(ctx, order.ID, repositories.AnnotationCreation, err)
		return nil
	}
	if active > 0 {
		logger.Info("order rejected, customer already has an active order")
		if err := s.orders.ForceCancel(ctx, order.ID, cancelReasonActiveOrder, systemActor, false, now); err != nil {
			s.annotate(ctx, order.ID, repositories.AnnotationCreation, err)
		}
		return nil
	}

	if order.IsRedemption {
		_, err := s.customers.ApplyStatsMutation(ctx, order.CustomerID, repositories.StatsMutation{
			Name:          mutationRedemptionHold,
			IncFreeWashes: -1,
		})
		switch {
		case err == nil:
			logger.Info("free wash credit deducted for redemption")
		case repositories.IsConflict(err):
			// No credit available: the order proceeds as cancelled and the
			// redemption flag is cleared so nothing is restored later.
			logger.Info("redemption rejected, no free washes available")
			if err := s.orders.ForceCancel(ctx, order.ID, cancelReasonNoFreeWash, systemActor, true, now); err != nil {
				s.annotate(ctx, order.ID, repositories.AnnotationCreation, err)
			}
		case repositories.IsUnavailable(err):
			return err
		default:
			s.annotate(ctx, order.ID, repositories.AnnotationCreation, err)
		}
	}

	if _, err := s.customers.ApplyStatsMutation(ctx, order.CustomerID, repositories.StatsMutation{
		Name:           mutationOrderCreated,
		IncTotalOrders: 1,
		SetLastVisit:   &now,
	}); err != nil {
		s.annotate(ctx, order.ID, repositories.AnnotationCreation, err)
	}
	return nil
}

// handleCompleted applies the completion ledger mutation, then drives the
// post-commit action list. Credit earning happens inside the atomic
// mutation; everything after the commit is individually best-effort.
func (s *lifecycleService) handleCompleted(ctx context.Context, order domain.Order, settings domain.AppSettings) error {
	logger := observability.FromContext(ctx).With(
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
	)
	now := s.clock()

	isRedeeming := order.PaymentMethod == domain.PaymentMethodRedeemed

	mutation := repositories.StatsMutation{
		Name:         mutationOrderCompleted,
		SetLastVisit: &now,
	}
	if !isRedeeming {
		mutation.IncCompletedOrders = 1
		mutation.EarnFreeWashEvery = settings.WashesRequiredForFree
	}

	result, err := s.customers.ApplyStatsMutation(ctx, order.CustomerID, mutation)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return err
		}
		s.annotate(ctx, order.ID, repositories.AnnotationCompletion, err)
		return nil
	}

	logger.Info("completion committed",
		zap.Bool("redemption", isRedeeming),
		zap.Int64("completed_orders", result.Stats.CompletedOrders),
		zap.Bool("earned_free_wash", result.EarnedFreeWash),
	)

	actions := s.completionActions(order, settings, result)
	for _, action := range actions {
		if err := action.run(ctx); err != nil {
			logger.Warn("post-commit action failed", zap.String("action", action.name), zap.Error(err))
		}
	}
	return nil
}

type postCommitAction struct {
	name string
	run  func(ctx context.Context) error
}

func (s *lifecycleService) completionActions(order domain.Order, settings domain.AppSettings, result repositories.StatsMutationResult) []postCommitAction {
	var actions []postCommitAction

	if s.notifier != nil && settings.Notifications.OrderCompleted {
		actions = append(actions, postCommitAction{
			name: "notify_order_completed",
			run: func(ctx context.Context) error {
				return s.notifier.Send(ctx, order.CustomerID,
					"Your wash is done",
					"Thanks for visiting! Your vehicle is ready for pickup.",
					map[string]string{"orderId": order.ID, "type": "order_completed"},
				)
			},
		})
	}

	if s.notifier != nil && result.EarnedFreeWash && settings.Notifications.FreeWashAvailable {
		actions = append(actions, postCommitAction{
			name: "notify_free_wash_earned",
			run: func(ctx context.Context) error {
				return s.notifier.Send(ctx, order.CustomerID,
					"You earned a free wash!",
					fmt.Sprintf("Visit %d washes and this one is on us. Redeem it on your next order.", settings.WashesRequiredForFree),
					map[string]string{"orderId": order.ID, "type": "free_wash_earned"},
				)
			},
		})
	}

	if s.workers != nil && order.WorkerID != "" {
		actions = append(actions, postCommitAction{
			name: "increment_worker_completed",
			run: func(ctx context.Context) error {
				err := s.workers.IncrementCompleted(ctx, order.WorkerID)
				if repositories.IsNotFound(err) {
					observability.FromContext(ctx).Warn("worker record missing",
						zap.String("worker_id", order.WorkerID))
					return nil
				}
				return err
			},
		})
	}

	return actions
}

// handleCancelled restores a redeemed credit when applicable and appends the
// audit record. The audit write is independent of the mutation's success.
func (s *lifecycleService) handleCancelled(ctx context.Context, order domain.Order) error {
	logger := observability.FromContext(ctx).With(
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
	)
	now := s.clock()

	if s.auditLogs != nil {
		audit := domain.CancellationAudit{
			OrderID:       order.ID,
			CustomerID:    order.CustomerID,
			CancelledBy:   order.CancelledBy,
			CancelReason:  order.CancelReason,
			WasRedemption: order.IsRedemption,
			Service:       s.serviceName,
			RecordedAt:    now,
		}
		if err := s.auditLogs.Append(ctx, audit); err != nil {
			logger.Warn("cancellation audit append failed", zap.Error(err))
		}
	}

	mutation := repositories.StatsMutation{
		Name:               mutationOrderCancelled,
		IncCancelledOrders: 1,
	}
	if order.IsRedemption {
		// Restore the credit deducted optimistically at creation time.
		mutation.IncFreeWashes = 1
	}

	if _, err := s.customers.ApplyStatsMutation(ctx, order.CustomerID, mutation); err != nil {
		if repositories.IsUnavailable(err) {
			return err
		}
		s.annotate(ctx, order.ID, repositories.AnnotationCancellation, err)
		return nil
	}

	logger.Info("cancellation committed", zap.Bool("credit_restored", order.IsRedemption))
	return nil
}

// handleRatingAdded recomputes the worker's average from the full rated
// order set and files a low-rating alert when warranted. Both sides are
// best-effort relative to the triggering transition.
func (s *lifecycleService) handleRatingAdded(ctx context.Context, order domain.Order) error {
	logger := observability.FromContext(ctx).With(
		zap.String("order_id", order.ID),
		zap.String("worker_id", order.WorkerID),
	)

	if s.workers != nil && order.WorkerID != "" {
		rated, err := s.orders.ListRatedCompletedByWorker(ctx, order.WorkerID)
		if err != nil {
			logger.Warn("rated order scan failed", zap.Error(err))
		} else {
			ratings := make([]domain.Rating, 0, len(rated))
			for _, o := range rated {
				if o.Rating != nil {
					ratings = append(ratings, *o.Rating)
				}
			}
			average := domain.AverageRating(ratings)
			if err := s.workers.SetRatingStats(ctx, order.WorkerID, average, int64(len(ratings))); err != nil {
				if repositories.IsNotFound(err) {
					logger.Warn("worker record missing for rating update")
				} else {
					logger.Warn("worker rating update failed", zap.Error(err))
				}
			}
		}
	}

	if s.alerts != nil && order.Rating != nil && order.Rating.Stars < 3 {
		alert := domain.LowRatingAlert{
			OrderID:    order.ID,
			WorkerID:   order.WorkerID,
			CustomerID: order.CustomerID,
			Stars:      order.Rating.Stars,
			Comment:    order.Rating.Comment,
			CreatedAt:  s.clock(),
		}
		if err := s.alerts.Append(ctx, alert); err != nil {
			logger.Warn("low rating alert append failed", zap.Error(err))
		}
	}
	return nil
}

// annotate records a non-fatal processing error on the order document. The
// annotation itself is best-effort; a failed annotation is only logged.
func (s *lifecycleService) annotate(ctx context.Context, orderID string, field repositories.OrderAnnotation, cause error) {
	logger := observability.FromContext(ctx).With(
		zap.String("order_id", orderID),
		zap.String("annotation", string(field)),
	)
	logger.Warn("transition side effects not applied", zap.Error(cause))
	if err := s.orders.Annotate(ctx, orderID, field, cause.Error()); err != nil {
		logger.Error("order annotation failed", zap.Error(err))
	}
}
