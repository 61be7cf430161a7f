package messaging

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/config"
	"github.com/washclub/api/internal/platform/observability"
	"github.com/washclub/api/internal/repositories"
	"github.com/washclub/api/internal/services"
)

// multicastSender is the slice of the FCM client the dispatcher depends on.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// isUnregistered is swappable because the SDK's error type cannot be
// constructed outside its internal package.
var isUnregistered = messaging.IsUnregistered

// FCMDispatcher delivers push notifications through Firebase Cloud
// Messaging. Tokens rejected as unregistered are pruned from the customer
// record so the next send does not retry them.
type FCMDispatcher struct {
	sender    multicastSender
	customers repositories.CustomerRepository
}

// FCMDispatcherDeps bundles collaborators for the dispatcher.
type FCMDispatcherDeps struct {
	Sender    multicastSender
	Customers repositories.CustomerRepository
}

// NewFCMDispatcher constructs a dispatcher from pre-built collaborators.
func NewFCMDispatcher(deps FCMDispatcherDeps) (*FCMDispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.New("fcm dispatcher: sender is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("fcm dispatcher: customer repository is required")
	}
	return &FCMDispatcher{sender: deps.Sender, customers: deps.Customers}, nil
}

// NewFCMClient initialises the Firebase Admin SDK messaging client.
func NewFCMClient(ctx context.Context, cfg config.FirebaseConfig) (*messaging.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise messaging client: %w", err)
	}
	return client, nil
}

var _ services.NotificationDispatcher = (*FCMDispatcher)(nil)

// Send delivers one notification to all of the customer's devices. A
// customer without registered devices is a no-op, not an error.
func (d *FCMDispatcher) Send(ctx context.Context, customerID, title, body string, data map[string]string) error {
	customer, err := d.customers.Get(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", customerID, err)
	}
	return d.sendToCustomer(ctx, customer, title, body, data)
}

// SendToMany delivers the notification to each listed customer. Failures are
// collected rather than short-circuiting.
func (d *FCMDispatcher) SendToMany(ctx context.Context, customerIDs []string, title, body string, data map[string]string) error {
	var errs []error
	for _, customerID := range customerIDs {
		if err := d.Send(ctx, customerID, title, body, data); err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", customerID, err))
		}
	}
	return errors.Join(errs...)
}

// SendBroadcast delivers the notification to every customer with at least
// one registered device.
func (d *FCMDispatcher) SendBroadcast(ctx context.Context, title, body string, data map[string]string) error {
	return d.SendConditional(ctx, func(domain.Customer) bool { return true }, title, body, data)
}

// SendConditional delivers the notification to every customer matching the
// predicate.
func (d *FCMDispatcher) SendConditional(ctx context.Context, predicate func(domain.Customer) bool, title, body string, data map[string]string) error {
	customers, err := d.customers.ListWithDeviceTokens(ctx)
	if err != nil {
		return fmt.Errorf("list customers with device tokens: %w", err)
	}

	var errs []error
	for _, customer := range customers {
		if !predicate(customer) {
			continue
		}
		if err := d.sendToCustomer(ctx, customer, title, body, data); err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", customer.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *FCMDispatcher) sendToCustomer(ctx context.Context, customer domain.Customer, title, body string, data map[string]string) error {
	if len(customer.DeviceTokens) == 0 {
		return nil
	}
	logger := observability.FromContext(ctx).With(zap.String("customer_id", customer.ID))

	response, err := d.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: customer.DeviceTokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("send multicast: %w", err)
	}

	var stale []string
	for i, result := range response.Responses {
		if result.Error == nil {
			continue
		}
		if isUnregistered(result.Error) && i < len(customer.DeviceTokens) {
			stale = append(stale, customer.DeviceTokens[i])
			continue
		}
		logger.Warn("push delivery failed for one device", zap.Error(result.Error))
	}

	if len(stale) > 0 {
		if err := d.customers.RemoveDeviceTokens(ctx, customer.ID, stale); err != nil {
			logger.Warn("stale token pruning failed",
				zap.Int("tokens", len(stale)), zap.Error(err))
		} else {
			logger.Info("pruned unregistered device tokens", zap.Int("tokens", len(stale)))
		}
	}

	if response.SuccessCount == 0 && len(customer.DeviceTokens) > 0 {
		return fmt.Errorf("no device accepted the notification for customer %s", customer.ID)
	}
	return nil
}
