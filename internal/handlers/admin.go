package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/httpx"
	"github.com/washclub/api/internal/services"
)

// AdminHandlers exposes the operator surface: reports, low-rating alerts,
// and the manual reminder sweep trigger.
type AdminHandlers struct {
	reports   services.ReportService
	alerts    services.AlertService
	reminders services.ReminderService
	clock     func() time.Time
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(reports services.ReportService, alerts services.AlertService, reminders services.ReminderService) *AdminHandlers {
	return &AdminHandlers{
		reports:   reports,
		alerts:    alerts,
		reminders: reminders,
		clock:     time.Now,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reports/summary", h.reportSummary)
	r.Get("/alerts", h.listAlerts)
	r.Post("/alerts/{alertID}/resolve", h.resolveAlert)
	r.Post("/reminders", h.triggerReminders)
}

func (h *AdminHandlers) reportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("report_service_unavailable", "report service unavailable", http.StatusServiceUnavailable))
		return
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be an RFC 3339 date", http.StatusBadRequest))
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be an RFC 3339 date", http.StatusBadRequest))
		return
	}

	summary, err := h.reports.Aggregate(ctx, from, to)
	if err != nil {
		if errors.Is(err, services.ErrReportInvalidRange) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, buildSummaryPayload(summary))
}

func (h *AdminHandlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("alert_service_unavailable", "alert service unavailable", http.StatusServiceUnavailable))
		return
	}

	alerts, err := h.alerts.ListUnresolved(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
		return
	}

	payload := make([]alertPayload, 0, len(alerts))
	for _, alert := range alerts {
		payload = append(payload, buildAlertPayload(alert))
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"alerts": payload})
}

func (h *AdminHandlers) resolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("alert_service_unavailable", "alert service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.alerts.Resolve(ctx, chi.URLParam(r, "alertID")); err != nil {
		if errors.Is(err, services.ErrAlertNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("alert_not_found", err.Error(), http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *AdminHandlers) triggerReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reminders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reminder_service_unavailable", "reminder service unavailable", http.StatusServiceUnavailable))
		return
	}

	sent, err := h.reminders.RemindInactiveCustomers(ctx, h.clock().UTC())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"reminders_sent": sent})
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.New("missing parameter")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

type summaryPayload struct {
	TotalOrders        int64   `json:"total_orders"`
	CompletedOrders    int64   `json:"completed_orders"`
	CancelledOrders    int64   `json:"cancelled_orders"`
	InProgressOrders   int64   `json:"in_progress_orders"`
	Revenue            int64   `json:"revenue"`
	FreeWashesRedeemed int64   `json:"free_washes_redeemed"`
	AverageServiceTime int64   `json:"average_service_time_minutes"`
	MostPopularService string  `json:"most_popular_service,omitempty"`
	TopWorker          string  `json:"top_worker,omitempty"`
	AverageRating      float64 `json:"average_rating"`
	TotalRatings       int64   `json:"total_ratings"`
}

func buildSummaryPayload(summary services.ReportSummary) summaryPayload {
	return summaryPayload{
		TotalOrders:        summary.TotalOrders,
		CompletedOrders:    summary.CompletedOrders,
		CancelledOrders:    summary.CancelledOrders,
		InProgressOrders:   summary.InProgressOrders,
		Revenue:            summary.Revenue,
		FreeWashesRedeemed: summary.FreeWashesRedeemed,
		AverageServiceTime: summary.AverageServiceTime,
		MostPopularService: summary.MostPopularService,
		TopWorker:          summary.TopWorker,
		AverageRating:      summary.AverageRating,
		TotalRatings:       summary.TotalRatings,
	}
}

type alertPayload struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	WorkerID   string `json:"worker_id,omitempty"`
	CustomerID string `json:"customer_id"`
	Stars      int    `json:"stars"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func buildAlertPayload(alert domain.LowRatingAlert) alertPayload {
	return alertPayload{
		ID:         alert.ID,
		OrderID:    alert.OrderID,
		WorkerID:   alert.WorkerID,
		CustomerID: alert.CustomerID,
		Stars:      alert.Stars,
		Comment:    alert.Comment,
		CreatedAt:  formatTime(alert.CreatedAt),
	}
}
