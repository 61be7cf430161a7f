package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/httpx"
	"github.com/washclub/api/internal/services"
)

// CustomerHandlers exposes the customer loyalty read surface.
type CustomerHandlers struct {
	orders services.OrderService
}

// NewCustomerHandlers constructs a new CustomerHandlers instance.
func NewCustomerHandlers(orders services.OrderService) *CustomerHandlers {
	return &CustomerHandlers{orders: orders}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{customerID}", h.getCustomer)
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	view, err := h.orders.GetCustomer(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, buildCustomerPayload(view))
}

type customerPayload struct {
	ID              string       `json:"id"`
	Name            string       `json:"name,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Stats           statsPayload `json:"stats"`
	WashesUntilFree int64        `json:"washes_until_free"`
	CreatedAt       string       `json:"created_at,omitempty"`
}

type statsPayload struct {
	TotalOrders         int64  `json:"total_orders"`
	CompletedOrders     int64  `json:"completed_orders"`
	CancelledOrders     int64  `json:"cancelled_orders"`
	FreeWashesAvailable int64  `json:"free_washes_available"`
	LastVisit           string `json:"last_visit,omitempty"`
}

func buildCustomerPayload(view services.CustomerView) customerPayload {
	return customerPayload{
		ID:              view.Customer.ID,
		Name:            view.Customer.Name,
		Phone:           view.Customer.Phone,
		Stats:           buildStatsPayload(view.Customer.Stats),
		WashesUntilFree: view.WashesUntilFree,
		CreatedAt:       formatTime(view.Customer.CreatedAt),
	}
}

func buildStatsPayload(stats domain.CustomerStats) statsPayload {
	payload := statsPayload{
		TotalOrders:         stats.TotalOrders,
		CompletedOrders:     stats.CompletedOrders,
		CancelledOrders:     stats.CancelledOrders,
		FreeWashesAvailable: stats.FreeWashesAvailable,
	}
	if stats.LastVisit != nil {
		payload.LastVisit = formatTime(*stats.LastVisit)
	}
	return payload
}
