package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/repositories"
)

var fixedNow = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

type lifecycleFixture struct {
	service   LifecycleService
	orders    *stubOrderRepo
	customers *stubCustomerRepo
	workers   *stubWorkerRepo
	settings  *stubSettingsRepo
	audits    *stubAuditRepo
	alerts    *stubAlertRepo
	notifier  *stubNotifier
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		orders:    &stubOrderRepo{},
		customers: &stubCustomerRepo{},
		workers:   &stubWorkerRepo{},
		settings:  &stubSettingsRepo{settings: domain.DefaultAppSettings()},
		audits:    &stubAuditRepo{},
		alerts:    &stubAlertRepo{},
		notifier:  &stubNotifier{},
	}
	service, err := NewLifecycleService(LifecycleServiceDeps{
		Orders:    f.orders,
		Customers: f.customers,
		Workers:   f.workers,
		Settings:  f.settings,
		AuditLogs: f.audits,
		Alerts:    f.alerts,
		Notifier:  f.notifier,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}
	f.service = service
	return f
}

func pendingOrder(id string) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerID:    "cust_1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCash,
		CreatedAt:     fixedNow,
	}
}

func createdChange(order domain.Order) domain.OrderChange {
	return domain.OrderChange{Kind: domain.ChangeKindCreated, After: &order}
}

func updatedChange(before, after domain.Order) domain.OrderChange {
	return domain.OrderChange{Kind: domain.ChangeKindUpdated, Before: &before, After: &after}
}

func TestHandleChangeRejectsMissingAfter(t *testing.T) {
	f := newLifecycleFixture(t)
	err := f.service.HandleChange(context.Background(), domain.OrderChange{Kind: domain.ChangeKindUpdated})
	if err == nil {
		t.Fatal("expected error for change without after snapshot")
	}
}

func TestCreatedOrderIncrementsTotals(t *testing.T) {
	f := newLifecycleFixture(t)

	if err := f.service.HandleChange(context.Background(), createdChange(pendingOrder("ord_1"))); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	muts := f.customers.mutations()
	if len(muts) != 1 {
		t.Fatalf("expected 1 mutation, got %d", len(muts))
	}
	m := muts[0].Mutation
	if m.Name != "order_created" || m.IncTotalOrders != 1 {
		t.Fatalf("unexpected mutation %+v", m)
	}
	if m.SetLastVisit == nil || !m.SetLastVisit.Equal(fixedNow) {
		t.Fatalf("expected last visit %v, got %v", fixedNow, m.SetLastVisit)
	}
}

func TestCreatedOrderRejectedWhenCustomerHasActiveOrder(t *testing.T) {
	f := newLifecycleFixture(t)
	f.orders.activeCount = 1

	if err := f.service.HandleChange(context.Background(), createdChange(pendingOrder("ord_2"))); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	cancels := f.orders.forceCancelCalls()
	if len(cancels) != 1 {
		t.Fatalf("expected 1 force cancel, got %d", len(cancels))
	}
	if cancels[0].Reason != "active order exists" || cancels[0].By != "system" {
		t.Fatalf("unexpected cancel %+v", cancels[0])
	}
	if cancels[0].ClearRedemption {
		t.Fatal("active order rejection must not clear the redemption flag")
	}
	if len(f.customers.mutations()) != 0 {
		t.Fatal("rejected order must not touch the ledger")
	}
}

func TestCreatedRedemptionDeductsCredit(t *testing.T) {
	f := newLifecycleFixture(t)
	order := pendingOrder("ord_3")
	order.IsRedemption = true
	order.PaymentMethod = domain.PaymentMethodRedeemed

	if err := f.service.HandleChange(context.Background(), createdChange(order)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	muts := f.customers.mutations()
	if len(muts) != 2 {
		t.Fatalf("expected hold + created mutations, got %d", len(muts))
	}
	if muts[0].Mutation.Name != "redemption_hold" || muts[0].Mutation.IncFreeWashes != -1 {
		t.Fatalf("unexpected hold mutation %+v", muts[0].Mutation)
	}
	if muts[1].Mutation.Name != "order_created" {
		t.Fatalf("unexpected second mutation %+v", muts[1].Mutation)
	}
}

func TestCreatedRedemptionWithoutCreditCancelsAndClearsFlag(t *testing.T) {
	f := newLifecycleFixture(t)
	f.customers.applyFn = func(_ string, m repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		if m.Name == "redemption_hold" {
			return repositories.StatsMutationResult{}, conflictErr("balance would go negative")
		}
		return repositories.StatsMutationResult{}, nil
	}
	order := pendingOrder("ord_4")
	order.IsRedemption = true
	order.PaymentMethod = domain.PaymentMethodRedeemed

	if err := f.service.HandleChange(context.Background(), createdChange(order)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	cancels := f.orders.forceCancelCalls()
	if len(cancels) != 1 {
		t.Fatalf("expected 1 force cancel, got %d", len(cancels))
	}
	if cancels[0].Reason != "no free washes available" || !cancels[0].ClearRedemption {
		t.Fatalf("unexpected cancel %+v", cancels[0])
	}
	// The totals mutation still runs after the rejected hold.
	muts := f.customers.mutations()
	if muts[len(muts)-1].Mutation.Name != "order_created" {
		t.Fatal("expected totals mutation after rejected hold")
	}
}

func TestCreatedOrderBackendOutagePropagates(t *testing.T) {
	f := newLifecycleFixture(t)
	f.orders.activeErr = unavailableErr("firestore down")

	err := f.service.HandleChange(context.Background(), createdChange(pendingOrder("ord_5")))
	if err == nil {
		t.Fatal("expected error so the delivery is retried")
	}
	if len(f.orders.annotateCalls()) != 0 {
		t.Fatal("retryable failures must not annotate the order")
	}
}

func TestCompletionAppliesLedgerAndNotifies(t *testing.T) {
	f := newLifecycleFixture(t)
	f.customers.applyFn = func(string, repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		return repositories.StatsMutationResult{
			Stats:          domain.CustomerStats{CompletedOrders: 6, FreeWashesAvailable: 1},
			EarnedFreeWash: true,
		}, nil
	}
	before := pendingOrder("ord_6")
	before.WorkerID = "wrk_1"
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	muts := f.customers.mutations()
	if len(muts) != 1 {
		t.Fatalf("expected 1 mutation, got %d", len(muts))
	}
	m := muts[0].Mutation
	if m.Name != "order_completed" || m.IncCompletedOrders != 1 || m.EarnFreeWashEvery != 6 {
		t.Fatalf("unexpected mutation %+v", m)
	}

	sent := f.notifier.sentTo()
	if len(sent) != 2 {
		t.Fatalf("expected completion + free wash notifications, got %d", len(sent))
	}
	if sent[0].Data["type"] != "order_completed" || sent[1].Data["type"] != "free_wash_earned" {
		t.Fatalf("unexpected notification order: %+v", sent)
	}
	if len(f.workers.incremented) != 1 || f.workers.incremented[0] != "wrk_1" {
		t.Fatalf("expected worker increment, got %v", f.workers.incremented)
	}
}

func TestCompletionOfRedemptionDoesNotCount(t *testing.T) {
	f := newLifecycleFixture(t)
	before := pendingOrder("ord_7")
	before.IsRedemption = true
	before.PaymentMethod = domain.PaymentMethodRedeemed
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	m := f.customers.mutations()[0].Mutation
	if m.IncCompletedOrders != 0 || m.EarnFreeWashEvery != 0 {
		t.Fatalf("redemption completion must not count or earn, got %+v", m)
	}
	if m.SetLastVisit == nil {
		t.Fatal("redemption completion still advances last visit")
	}
}

func TestCompletionRedeliveryDoesNotFire(t *testing.T) {
	f := newLifecycleFixture(t)
	done := pendingOrder("ord_8")
	done.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(done, done)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(f.customers.mutations()) != 0 {
		t.Fatal("redelivered completion must not mutate the ledger")
	}
}

func TestCompletionNotificationsRespectToggles(t *testing.T) {
	f := newLifecycleFixture(t)
	f.settings.settings.Notifications.OrderCompleted = false
	f.settings.settings.Notifications.FreeWashAvailable = false
	f.customers.applyFn = func(string, repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		return repositories.StatsMutationResult{EarnedFreeWash: true}, nil
	}
	before := pendingOrder("ord_9")
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(f.notifier.sentTo()) != 0 {
		t.Fatal("disabled toggles must suppress notifications")
	}
}

func TestCompletionConflictAnnotatesAndAcks(t *testing.T) {
	f := newLifecycleFixture(t)
	f.customers.applyFn = func(string, repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		return repositories.StatsMutationResult{}, notFoundErr("customer missing")
	}
	before := pendingOrder("ord_10")
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("annotated failures must be acked, got %v", err)
	}

	calls := f.orders.annotateCalls()
	if len(calls) != 1 || calls[0].Field != repositories.AnnotationCompletion {
		t.Fatalf("expected completion annotation, got %+v", calls)
	}
	if len(f.notifier.sentTo()) != 0 {
		t.Fatal("failed mutation must not notify")
	}
}

func TestCompletionOutagePropagatesForRetry(t *testing.T) {
	f := newLifecycleFixture(t)
	f.customers.applyFn = func(string, repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		return repositories.StatsMutationResult{}, unavailableErr("firestore down")
	}
	before := pendingOrder("ord_11")
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err == nil {
		t.Fatal("expected error so the delivery is retried")
	}
	if len(f.orders.annotateCalls()) != 0 {
		t.Fatal("retryable failures must not annotate the order")
	}
}

func TestCancellationRestoresRedeemedCredit(t *testing.T) {
	f := newLifecycleFixture(t)
	before := pendingOrder("ord_12")
	before.IsRedemption = true
	before.PaymentMethod = domain.PaymentMethodRedeemed
	after := before
	after.Status = domain.OrderStatusCancelled
	after.CancelledBy = "cust_1"
	after.CancelReason = "changed my mind"

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	m := f.customers.mutations()[0].Mutation
	if m.Name != "order_cancelled" || m.IncCancelledOrders != 1 || m.IncFreeWashes != 1 {
		t.Fatalf("unexpected mutation %+v", m)
	}

	audits := f.audits.appended()
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audits))
	}
	if !audits[0].WasRedemption || audits[0].CancelReason != "changed my mind" {
		t.Fatalf("unexpected audit %+v", audits[0])
	}
}

func TestCancellationOfPaidOrderRestoresNothing(t *testing.T) {
	f := newLifecycleFixture(t)
	before := pendingOrder("ord_13")
	after := before
	after.Status = domain.OrderStatusCancelled

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if m := f.customers.mutations()[0].Mutation; m.IncFreeWashes != 0 {
		t.Fatalf("paid cancellation must not grant credit, got %+v", m)
	}
}

func TestCancellationAuditSurvivesMutationFailure(t *testing.T) {
	f := newLifecycleFixture(t)
	f.customers.applyFn = func(string, repositories.StatsMutation) (repositories.StatsMutationResult, error) {
		return repositories.StatsMutationResult{}, notFoundErr("customer missing")
	}
	before := pendingOrder("ord_14")
	after := before
	after.Status = domain.OrderStatusCancelled

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(f.audits.appended()) != 1 {
		t.Fatal("audit record must be appended even when the mutation fails")
	}
	calls := f.orders.annotateCalls()
	if len(calls) != 1 || calls[0].Field != repositories.AnnotationCancellation {
		t.Fatalf("expected cancellation annotation, got %+v", calls)
	}
}

func TestRatingAddedRecomputesWorkerAverage(t *testing.T) {
	f := newLifecycleFixture(t)
	f.orders.ratedByWorker = []domain.Order{
		{ID: "a", Rating: &domain.Rating{Stars: 5}},
		{ID: "b", Rating: &domain.Rating{Stars: 3}},
		{ID: "c", Rating: &domain.Rating{Stars: 4}},
	}
	before := pendingOrder("ord_15")
	before.Status = domain.OrderStatusCompleted
	before.WorkerID = "wrk_1"
	after := before
	after.Rating = &domain.Rating{Stars: 4}

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	if len(f.workers.ratingStats) != 1 {
		t.Fatalf("expected 1 rating stats write, got %d", len(f.workers.ratingStats))
	}
	got := f.workers.ratingStats[0]
	if got.WorkerID != "wrk_1" || got.Average != 4.0 || got.Total != 3 {
		t.Fatalf("unexpected rating stats %+v", got)
	}
}

func TestLowRatingFilesAlert(t *testing.T) {
	f := newLifecycleFixture(t)
	before := pendingOrder("ord_16")
	before.Status = domain.OrderStatusCompleted
	before.WorkerID = "wrk_2"
	after := before
	after.Rating = &domain.Rating{Stars: 2, Comment: "water spots"}

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	if len(f.alerts.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(f.alerts.alerts))
	}
	alert := f.alerts.alerts[0]
	if alert.Stars != 2 || alert.Comment != "water spots" || alert.OrderID != "ord_16" {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestThreeStarRatingFilesNoAlert(t *testing.T) {
	f := newLifecycleFixture(t)
	before := pendingOrder("ord_17")
	before.Status = domain.OrderStatusCompleted
	after := before
	after.Rating = &domain.Rating{Stars: 3}

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(f.alerts.alerts) != 0 {
		t.Fatal("three stars is not a low rating")
	}
}

func TestSettingsOutageFallsBackToDefaults(t *testing.T) {
	f := newLifecycleFixture(t)
	f.settings.err = unavailableErr("settings unavailable")
	before := pendingOrder("ord_18")
	after := before
	after.Status = domain.OrderStatusCompleted

	if err := f.service.HandleChange(context.Background(), updatedChange(before, after)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if m := f.customers.mutations()[0].Mutation; m.EarnFreeWashEvery != 6 {
		t.Fatalf("expected default threshold 6, got %+v", m)
	}
}
