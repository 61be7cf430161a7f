package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/httpx"
	"github.com/washclub/api/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers exposes the synchronous order surface.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/rating", h.attachRating)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderInput{
		CustomerID:   strings.TrimSpace(req.CustomerID),
		WorkerID:     strings.TrimSpace(req.WorkerID),
		ServiceID:    strings.TrimSpace(req.ServiceID),
		ServiceName:  strings.TrimSpace(req.ServiceName),
		ServicePrice: req.ServicePrice,
		IsRedemption: req.IsRedemption,
		Payment:      domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusCreated, createOrderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, createOrderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	err := h.orders.UpdateStatus(ctx, orderID, domain.OrderStatus(strings.TrimSpace(req.Status)), strings.TrimSpace(req.By))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, createOrderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) attachRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req attachRatingRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	err := h.orders.AttachRating(ctx, chi.URLParam(r, "orderID"), domain.Rating{
		Stars:   req.Stars,
		Comment: strings.TrimSpace(req.Comment),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusNoContent, nil)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type createOrderRequest struct {
	CustomerID    string `json:"customer_id"`
	WorkerID      string `json:"worker_id"`
	ServiceID     string `json:"service_id"`
	ServiceName   string `json:"service_name"`
	ServicePrice  int64  `json:"service_price"`
	IsRedemption  bool   `json:"is_redemption"`
	PaymentMethod string `json:"payment_method"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	By     string `json:"by"`
}

type attachRatingRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

type createOrderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customer_id"`
	WorkerID      string         `json:"worker_id,omitempty"`
	Status        string         `json:"status"`
	IsRedemption  bool           `json:"is_redemption"`
	PaymentMethod string         `json:"payment_method"`
	Service       servicePayload `json:"service"`
	Rating        *ratingPayload `json:"rating,omitempty"`
	CreatedAt     string         `json:"created_at"`
	CompletedAt   string         `json:"completed_at,omitempty"`
	CancelledAt   string         `json:"cancelled_at,omitempty"`
	CancelReason  string         `json:"cancel_reason,omitempty"`
	CancelledBy   string         `json:"cancelled_by,omitempty"`
}

type servicePayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type ratingPayload struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		CustomerID:    order.CustomerID,
		WorkerID:      order.WorkerID,
		Status:        string(order.Status),
		IsRedemption:  order.IsRedemption,
		PaymentMethod: string(order.PaymentMethod),
		Service: servicePayload{
			ID:    order.Service.ID,
			Name:  order.Service.Name,
			Price: order.Service.Price,
		},
		CreatedAt:    formatTime(order.CreatedAt),
		CancelReason: order.CancelReason,
		CancelledBy:  order.CancelledBy,
	}
	if order.CompletedAt != nil {
		payload.CompletedAt = formatTime(*order.CompletedAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	if order.Rating != nil {
		payload.Rating = &ratingPayload{Stars: order.Rating.Stars, Comment: order.Rating.Comment}
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxOrderBodySize))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return errInvalidBody
	}
	return nil
}

var (
	errEmptyBody   = errors.New("request body is required")
	errInvalidBody = errors.New("invalid JSON payload")
)

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errEmptyBody) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
}
