package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/repositories"
)

// ErrAlertNotFound signals a resolve call against a missing alert.
var ErrAlertNotFound = errors.New("alert: not found")

// AlertServiceDeps bundles collaborators for the alert service.
type AlertServiceDeps struct {
	Alerts repositories.AlertRepository
}

type alertService struct {
	alerts repositories.AlertRepository
}

// NewAlertService constructs the low-rating alert surface.
func NewAlertService(deps AlertServiceDeps) (AlertService, error) {
	if deps.Alerts == nil {
		return nil, errors.New("alert service: alert repository is required")
	}
	return &alertService{alerts: deps.Alerts}, nil
}

// ListUnresolved returns open alerts oldest first.
func (s *alertService) ListUnresolved(ctx context.Context) ([]domain.LowRatingAlert, error) {
	alerts, err := s.alerts.ListUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved alerts: %w", err)
	}
	return alerts, nil
}

// Resolve marks an alert as handled.
func (s *alertService) Resolve(ctx context.Context, alertID string) error {
	if strings.TrimSpace(alertID) == "" {
		return fmt.Errorf("%w: alert id is required", ErrAlertNotFound)
	}
	if err := s.alerts.Resolve(ctx, alertID); err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
		}
		return fmt.Errorf("resolve alert %s: %w", alertID, err)
	}
	return nil
}
