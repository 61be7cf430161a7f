package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/repositories"
)

// categorisedError is a test double for repository error classification.
type categorisedError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *categorisedError) Error() string       { return e.msg }
func (e *categorisedError) IsNotFound() bool    { return e.notFound }
func (e *categorisedError) IsConflict() bool    { return e.conflict }
func (e *categorisedError) IsUnavailable() bool { return e.unavailable }

func conflictErr(msg string) error    { return &categorisedError{msg: msg, conflict: true} }
func notFoundErr(msg string) error    { return &categorisedError{msg: msg, notFound: true} }
func unavailableErr(msg string) error { return &categorisedError{msg: msg, unavailable: true} }

type appliedMutation struct {
	CustomerID string
	Mutation   repositories.StatsMutation
}

type stubCustomerRepo struct {
	mu       sync.Mutex
	applied  []appliedMutation
	applyFn  func(customerID string, mutation repositories.StatsMutation) (repositories.StatsMutationResult, error)
	getFn    func(customerID string) (domain.Customer, error)
	inactive []domain.Customer
	tokened  []domain.Customer
	removed  map[string][]string
}

func (s *stubCustomerRepo) Get(_ context.Context, customerID string) (domain.Customer, error) {
	if s.getFn != nil {
		return s.getFn(customerID)
	}
	return domain.Customer{ID: customerID}, nil
}

func (s *stubCustomerRepo) Create(context.Context, domain.Customer) error { return nil }

func (s *stubCustomerRepo) ApplyStatsMutation(_ context.Context, customerID string, mutation repositories.StatsMutation) (repositories.StatsMutationResult, error) {
	s.mu.Lock()
	s.applied = append(s.applied, appliedMutation{CustomerID: customerID, Mutation: mutation})
	s.mu.Unlock()
	if s.applyFn != nil {
		return s.applyFn(customerID, mutation)
	}
	return repositories.StatsMutationResult{}, nil
}

func (s *stubCustomerRepo) ListInactiveSince(context.Context, time.Time) ([]domain.Customer, error) {
	return s.inactive, nil
}

func (s *stubCustomerRepo) ListWithDeviceTokens(context.Context) ([]domain.Customer, error) {
	return s.tokened, nil
}

func (s *stubCustomerRepo) RemoveDeviceTokens(_ context.Context, customerID string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed == nil {
		s.removed = make(map[string][]string)
	}
	s.removed[customerID] = append(s.removed[customerID], tokens...)
	return nil
}

func (s *stubCustomerRepo) mutations() []appliedMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appliedMutation(nil), s.applied...)
}

type forceCancelCall struct {
	OrderID         string
	Reason          string
	By              string
	ClearRedemption bool
}

type annotateCall struct {
	OrderID string
	Field   repositories.OrderAnnotation
	Message string
}

type stubOrderRepo struct {
	mu            sync.Mutex
	orders        map[string]domain.Order
	created       []domain.Order
	forceCancels  []forceCancelCall
	annotations   []annotateCall
	statusUpdates []string
	ratings       map[string]domain.Rating

	activeCount   int64
	activeErr     error
	createErr     error
	updateErr     error
	ratingErr     error
	forceErr      error
	ratedByWorker []domain.Order
	ratedErr      error
	inRange       []domain.Order
	inRangeErr    error
}

func (s *stubOrderRepo) Get(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order not found")
	}
	return order, nil
}

func (s *stubOrderRepo) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, order)
	if s.orders == nil {
		s.orders = make(map[string]domain.Order)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, orderID string, from, to domain.OrderStatus, _ time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statusUpdates = append(s.statusUpdates, orderID+":"+string(from)+"->"+string(to))
	return nil
}

func (s *stubOrderRepo) ForceCancel(_ context.Context, orderID, reason, by string, clearRedemption bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceErr != nil {
		return s.forceErr
	}
	s.forceCancels = append(s.forceCancels, forceCancelCall{
		OrderID: orderID, Reason: reason, By: by, ClearRedemption: clearRedemption,
	})
	return nil
}

func (s *stubOrderRepo) AttachRating(_ context.Context, orderID string, rating domain.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ratingErr != nil {
		return s.ratingErr
	}
	if s.ratings == nil {
		s.ratings = make(map[string]domain.Rating)
	}
	s.ratings[orderID] = rating
	return nil
}

func (s *stubOrderRepo) Annotate(_ context.Context, orderID string, field repositories.OrderAnnotation, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations = append(s.annotations, annotateCall{OrderID: orderID, Field: field, Message: message})
	return nil
}

func (s *stubOrderRepo) CountActiveForCustomer(context.Context, string, string) (int64, error) {
	if s.activeErr != nil {
		return 0, s.activeErr
	}
	return s.activeCount, nil
}

func (s *stubOrderRepo) ListRatedCompletedByWorker(context.Context, string) ([]domain.Order, error) {
	if s.ratedErr != nil {
		return nil, s.ratedErr
	}
	return s.ratedByWorker, nil
}

func (s *stubOrderRepo) ListCreatedInRange(context.Context, time.Time, time.Time) ([]domain.Order, error) {
	if s.inRangeErr != nil {
		return nil, s.inRangeErr
	}
	return s.inRange, nil
}

func (s *stubOrderRepo) forceCancelCalls() []forceCancelCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]forceCancelCall(nil), s.forceCancels...)
}

func (s *stubOrderRepo) annotateCalls() []annotateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]annotateCall(nil), s.annotations...)
}

type ratingStatsCall struct {
	WorkerID string
	Average  float64
	Total    int64
}

type stubWorkerRepo struct {
	mu           sync.Mutex
	incremented  []string
	ratingStats  []ratingStatsCall
	incrementErr error
	ratingErr    error
}

func (s *stubWorkerRepo) Get(_ context.Context, workerID string) (domain.Worker, error) {
	return domain.Worker{ID: workerID}, nil
}

func (s *stubWorkerRepo) IncrementCompleted(_ context.Context, workerID string) error {
	if s.incrementErr != nil {
		return s.incrementErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incremented = append(s.incremented, workerID)
	return nil
}

func (s *stubWorkerRepo) SetRatingStats(_ context.Context, workerID string, average float64, total int64) error {
	if s.ratingErr != nil {
		return s.ratingErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratingStats = append(s.ratingStats, ratingStatsCall{WorkerID: workerID, Average: average, Total: total})
	return nil
}

type stubSettingsRepo struct {
	settings domain.AppSettings
	err      error
}

func (s *stubSettingsRepo) Snapshot(context.Context) (domain.AppSettings, error) {
	if s.err != nil {
		return domain.AppSettings{}, s.err
	}
	return s.settings, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	records []domain.CancellationAudit
	err     error
}

func (s *stubAuditRepo) Append(_ context.Context, record domain.CancellationAudit) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *stubAuditRepo) appended() []domain.CancellationAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CancellationAudit(nil), s.records...)
}

type stubAlertRepo struct {
	mu         sync.Mutex
	alerts     []domain.LowRatingAlert
	unresolved []domain.LowRatingAlert
	resolved   []string
	appendErr  error
	resolveErr error
}

func (s *stubAlertRepo) Append(_ context.Context, alert domain.LowRatingAlert) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *stubAlertRepo) ListUnresolved(context.Context) ([]domain.LowRatingAlert, error) {
	return s.unresolved, nil
}

func (s *stubAlertRepo) Resolve(_ context.Context, alertID string) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, alertID)
	return nil
}

type sentNotification struct {
	CustomerID string
	Title      string
	Body       string
	Data       map[string]string
}

type stubNotifier struct {
	mu        sync.Mutex
	sent      []sentNotification
	broadcast []sentNotification
	err       error
}

func (s *stubNotifier) Send(_ context.Context, customerID, title, body string, data map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{CustomerID: customerID, Title: title, Body: body, Data: data})
	return nil
}

func (s *stubNotifier) SendToMany(ctx context.Context, customerIDs []string, title, body string, data map[string]string) error {
	var errs []error
	for _, id := range customerIDs {
		errs = append(errs, s.Send(ctx, id, title, body, data))
	}
	return errors.Join(errs...)
}

func (s *stubNotifier) SendBroadcast(_ context.Context, title, body string, data map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, sentNotification{Title: title, Body: body, Data: data})
	return nil
}

func (s *stubNotifier) SendConditional(context.Context, func(domain.Customer) bool, string, string, map[string]string) error {
	return nil
}

func (s *stubNotifier) sentTo() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentNotification(nil), s.sent...)
}
