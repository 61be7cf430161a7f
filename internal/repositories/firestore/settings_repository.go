package firestore

import (
	"context"
	"errors"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/config"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
	"github.com/washclub/api/internal/repositories"
)

const (
	settingsCollection = "settings"
	settingsDocumentID = "app"
)

type notificationSettingsDocument struct {
	OrderCompleted    bool `firestore:"orderCompleted"`
	FreeWashAvailable bool `firestore:"freeWashAvailable"`
	ReminderAfterDays int  `firestore:"reminderAfterDays"`
}

type settingsDocument struct {
	WashesRequiredForFree int64                        `firestore:"washesRequiredForFree"`
	Notifications         notificationSettingsDocument `firestore:"notifications"`
}

// SettingsRepository reads the process-wide settings document. The snapshot
// is read fresh per handler invocation and never mutated by the core.
type SettingsRepository struct {
	base     *pfirestore.BaseRepository[settingsDocument]
	fallback domain.AppSettings
}

// NewSettingsRepository constructs a Firestore-backed settings provider. The
// loyalty config supplies the snapshot returned when no settings document
// exists.
func NewSettingsRepository(provider *pfirestore.Provider, cfg config.LoyaltyConfig) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}

	fallback := domain.DefaultAppSettings()
	if cfg.DefaultWashesRequired > 0 {
		fallback.WashesRequiredForFree = cfg.DefaultWashesRequired
	}
	if cfg.DefaultReminderAfterDays > 0 {
		fallback.Notifications.ReminderAfterDays = cfg.DefaultReminderAfterDays
	}

	return &SettingsRepository{
		base:     pfirestore.NewBaseRepository[settingsDocument](provider, settingsCollection),
		fallback: fallback,
	}, nil
}

// Snapshot returns the current settings, or the configured fallback snapshot
// when the settings document does not exist.
func (r *SettingsRepository) Snapshot(ctx context.Context) (domain.AppSettings, error) {
	doc, err := r.base.Get(ctx, settingsDocumentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return r.fallback, nil
		}
		return domain.AppSettings{}, err
	}
	return domain.AppSettings{
		WashesRequiredForFree: doc.Data.WashesRequiredForFree,
		Notifications: domain.NotificationSettings{
			OrderCompleted:    doc.Data.Notifications.OrderCompleted,
			FreeWashAvailable: doc.Data.Notifications.FreeWashAvailable,
			ReminderAfterDays: doc.Data.Notifications.ReminderAfterDays,
		},
	}, nil
}
