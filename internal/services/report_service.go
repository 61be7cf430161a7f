package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/repositories"
)

// ErrReportInvalidRange signals a malformed aggregation window.
var ErrReportInvalidRange = errors.New("report: invalid range")

// ReportServiceDeps bundles collaborators for the report service.
type ReportServiceDeps struct {
	Orders repositories.OrderRepository
}

type reportService struct {
	orders repositories.OrderRepository
}

// NewReportService constructs the read-only aggregation service.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}
	return &reportService{orders: deps.Orders}, nil
}

// Aggregate folds the orders created in [from, to) into one summary. The
// result is a pure function of the order set; nothing is written.
func (s *reportService) Aggregate(ctx context.Context, from, to time.Time) (ReportSummary, error) {
	if from.IsZero() || to.IsZero() {
		return ReportSummary{}, fmt.Errorf("%w: both bounds are required", ErrReportInvalidRange)
	}
	if !from.Before(to) {
		return ReportSummary{}, fmt.Errorf("%w: from must precede to", ErrReportInvalidRange)
	}

	orders, err := s.orders.ListCreatedInRange(ctx, from, to)
	if err != nil {
		return ReportSummary{}, fmt.Errorf("list orders in range: %w", err)
	}

	summary := ReportSummary{
		TotalOrders:        int64(len(orders)),
		Revenue:            domain.Revenue(orders),
		AverageServiceTime: domain.AverageServiceTime(orders),
		MostPopularService: domain.MostPopularService(orders),
		TopWorker:          domain.TopWorker(orders),
	}

	var ratings []domain.Rating
	for _, order := range orders {
		switch order.Status {
		case domain.OrderStatusCompleted:
			summary.CompletedOrders++
			if order.IsRedemption {
				summary.FreeWashesRedeemed++
			}
			if order.HasRating() {
				ratings = append(ratings, *order.Rating)
			}
		case domain.OrderStatusCancelled:
			summary.CancelledOrders++
		case domain.OrderStatusInProgress:
			summary.InProgressOrders++
		}
	}
	summary.AverageRating = domain.AverageRating(ratings)
	summary.TotalRatings = int64(len(ratings))
	return summary, nil
}
