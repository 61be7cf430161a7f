package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/services"
)

type stubOrderService struct {
	createFunc       func(ctx context.Context, input services.CreateOrderInput) (domain.Order, error)
	getFunc          func(ctx context.Context, orderID string) (domain.Order, error)
	updateStatusFunc func(ctx context.Context, orderID string, to domain.OrderStatus, by string) error
	attachRatingFunc func(ctx context.Context, orderID string, rating domain.Rating) error
	getCustomerFunc  func(ctx context.Context, customerID string) (services.CustomerView, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, input services.CreateOrderInput) (domain.Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, input)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return domain.Order{ID: orderID}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, by string) error {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, orderID, to, by)
	}
	return nil
}

func (s *stubOrderService) AttachRating(ctx context.Context, orderID string, rating domain.Rating) error {
	if s.attachRatingFunc != nil {
		return s.attachRatingFunc(ctx, orderID, rating)
	}
	return nil
}

func (s *stubOrderService) GetCustomer(ctx context.Context, customerID string) (services.CustomerView, error) {
	if s.getCustomerFunc != nil {
		return s.getCustomerFunc(ctx, customerID)
	}
	return services.CustomerView{Customer: domain.Customer{ID: customerID}}, nil
}

func TestOrderHandlersCreateSuccess(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	var captured services.CreateOrderInput
	service := &stubOrderService{
		createFunc: func(_ context.Context, input services.CreateOrderInput) (domain.Order, error) {
			captured = input
			return domain.Order{
				ID:            "ord_123",
				CustomerID:    input.CustomerID,
				Status:        domain.OrderStatusPending,
				PaymentMethod: input.Payment,
				Service:       domain.ServiceInfo{ID: input.ServiceID, Name: input.ServiceName, Price: input.ServicePrice},
				CreatedAt:     now,
			}, nil
		},
	}

	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"customer_id":" AB123CD ","service_id":"svc_basic","service_name":"Basic wash","service_price":2500,"payment_method":"cash"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.CustomerID != "AB123CD" {
		t.Fatalf("expected customer id trimmed, got %q", captured.CustomerID)
	}
	if captured.Payment != domain.PaymentMethodCash || captured.ServicePrice != 2500 {
		t.Fatalf("unexpected input %+v", captured)
	}

	var payload createOrderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Order.ID != "ord_123" || payload.Order.Status != "pending" {
		t.Fatalf("unexpected payload %+v", payload.Order)
	}
	if payload.Order.CreatedAt != formatTime(now) {
		t.Fatalf("expected created_at %s, got %s", formatTime(now), payload.Order.CreatedAt)
	}
}

func TestOrderHandlersCreateInvalidJSON(t *testing.T) {
	handler := NewOrderHandlers(&stubOrderService{})
	router := NewRouter(WithOrderRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{broken"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestOrderHandlersCreateValidationError(t *testing.T) {
	service := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderInput) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: bad input", services.ErrOrderInvalidInput)
		},
	}
	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"customer_id":"x"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestOrderHandlersGetNotFound(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, orderID)
		},
	}
	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestOrderHandlersUpdateStatusConflict(t *testing.T) {
	service := &stubOrderService{
		updateStatusFunc: func(context.Context, string, domain.OrderStatus, string) error {
			return fmt.Errorf("%w: completed -> cancelled", services.ErrOrderInvalidTransition)
		},
	}
	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"status":"cancelled","by":"wrk_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1/status", body)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestOrderHandlersUpdateStatusSuccess(t *testing.T) {
	var gotStatus domain.OrderStatus
	var gotBy string
	service := &stubOrderService{
		updateStatusFunc: func(_ context.Context, _ string, to domain.OrderStatus, by string) error {
			gotStatus, gotBy = to, by
			return nil
		},
		getFunc: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusInProgress}, nil
		},
	}
	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"status":"in_progress","by":"wrk_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1/status", body)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if gotStatus != domain.OrderStatusInProgress || gotBy != "wrk_1" {
		t.Fatalf("unexpected update %s by %s", gotStatus, gotBy)
	}
}

func TestOrderHandlersAttachRating(t *testing.T) {
	var gotRating domain.Rating
	service := &stubOrderService{
		attachRatingFunc: func(_ context.Context, _ string, rating domain.Rating) error {
			gotRating = rating
			return nil
		},
	}
	handler := NewOrderHandlers(service)
	router := NewRouter(WithOrderRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"stars":5,"comment":" spotless "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1/rating", body)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	if gotRating.Stars != 5 || gotRating.Comment != "spotless" {
		t.Fatalf("unexpected rating %+v", gotRating)
	}
}

func TestCustomerHandlersGet(t *testing.T) {
	lastVisit := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		getCustomerFunc: func(_ context.Context, customerID string) (services.CustomerView, error) {
			return services.CustomerView{
				Customer: domain.Customer{
					ID: customerID,
					Stats: domain.CustomerStats{
						TotalOrders:         10,
						CompletedOrders:     8,
						FreeWashesAvailable: 1,
						LastVisit:           &lastVisit,
					},
				},
				WashesUntilFree: 4,
			}, nil
		},
	}
	handler := NewCustomerHandlers(service)
	router := NewRouter(WithCustomerRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/AB123CD", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload customerPayload
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.ID != "AB123CD" || payload.WashesUntilFree != 4 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Stats.FreeWashesAvailable != 1 || payload.Stats.LastVisit != formatTime(lastVisit) {
		t.Fatalf("unexpected stats %+v", payload.Stats)
	}
}
