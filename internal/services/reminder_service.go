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

// ReminderServiceDeps bundles collaborators for the reminder sweep.
type ReminderServiceDeps struct {
	Customers repositories.CustomerRepository
	Settings  repositories.SettingsRepository
	Notifier  NotificationDispatcher
}

type reminderService struct {
	customers repositories.CustomerRepository
	settings  repositories.SettingsRepository
	notifier  NotificationDispatcher
}

// NewReminderService constructs the inactivity reminder sweep.
func NewReminderService(deps ReminderServiceDeps) (ReminderService, error) {
	if deps.Customers == nil {
		return nil, errors.New("reminder service: customer repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("reminder service: settings repository is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("reminder service: notifier is required")
	}
	return &reminderService{
		customers: deps.Customers,
		settings:  deps.Settings,
		notifier:  deps.Notifier,
	}, nil
}

// RemindInactiveCustomers nudges every customer whose last visit is older
// than the configured window. Individual delivery failures are logged and do
// not abort the sweep; the returned count covers successful sends only.
func (s *reminderService) RemindInactiveCustomers(ctx context.Context, now time.Time) (int, error) {
	logger := observability.FromContext(ctx)

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		logger.Warn("settings snapshot unavailable, using defaults", zap.Error(err))
		settings = domain.DefaultAppSettings()
	}
	days := settings.Notifications.ReminderAfterDays
	if days <= 0 {
		logger.Info("inactivity reminders disabled")
		return 0, nil
	}

	cutoff := now.UTC().AddDate(0, 0, -days)
	customers, err := s.customers.ListInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list inactive customers: %w", err)
	}

	var sent int
	for _, customer := range customers {
		if len(customer.DeviceTokens) == 0 {
			continue
		}
		err := s.notifier.Send(ctx, customer.ID,
			"We miss you!",
			fmt.Sprintf("It has been a while since your last wash. Stop by any time, you are %d washes away from a free one.",
				domain.WashesUntilFree(customer.Stats.CompletedOrders, settings.WashesRequiredForFree)),
			map[string]string{"type": "inactivity_reminder"},
		)
		if err != nil {
			logger.Warn("reminder delivery failed",
				zap.String("customer_id", customer.ID), zap.Error(err))
			continue
		}
		sent++
	}
	logger.Info("inactivity reminder sweep finished",
		zap.Int("candidates", len(customers)), zap.Int("sent", sent))
	return sent, nil
}
