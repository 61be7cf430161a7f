package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/washclub/api/internal/domain"
	"github.com/washclub/api/internal/platform/observability"
	"github.com/washclub/api/internal/services"
)

// receiver is the slice of the Pub/Sub subscription the consumer depends on.
type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer pulls order change notifications off the subscription and feeds
// them to the lifecycle service. Delivery is at-least-once: a handler error
// nacks the message for redelivery, everything else acks.
type Consumer struct {
	subscription receiver
	lifecycle    services.LifecycleService
	logger       *zap.Logger
}

// ConsumerDeps bundles collaborators for the consumer.
type ConsumerDeps struct {
	Subscription receiver
	Lifecycle    services.LifecycleService
	Logger       *zap.Logger
}

// NewConsumer constructs the order change-event consumer.
func NewConsumer(deps ConsumerDeps) (*Consumer, error) {
	if deps.Subscription == nil {
		return nil, errors.New("event consumer: subscription is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("event consumer: lifecycle service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		subscription: deps.Subscription,
		lifecycle:    deps.Lifecycle,
		logger:       logger,
	}, nil
}

// Run blocks receiving messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = observability.WithLogger(ctx, c.logger.With(zap.String("message_id", msg.ID)))
		if err := c.process(ctx, msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive order events: %w", err)
	}
	return nil
}

// process decodes and dispatches one delivery. A nil return acks the
// message. Malformed payloads are acked after logging: a poison message must
// not redeliver forever.
func (c *Consumer) process(ctx context.Context, data []byte) error {
	logger := observability.FromContext(ctx)

	var envelope changeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Error("discarding undecodable order event", zap.Error(err))
		return nil
	}
	change, err := envelope.toDomain()
	if err != nil {
		logger.Error("discarding malformed order event", zap.Error(err))
		return nil
	}

	if err := c.lifecycle.HandleChange(ctx, change); err != nil {
		logger.Warn("order event handling failed, requeueing", zap.Error(err))
		return err
	}
	return nil
}

// changeEnvelope is the wire form of one order change notification.
type changeEnvelope struct {
	Kind   string        `json:"kind"`
	Before *orderPayload `json:"before,omitempty"`
	After  *orderPayload `json:"after,omitempty"`
}

type orderPayload struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customerId"`
	WorkerID      string          `json:"workerId,omitempty"`
	Status        string          `json:"status"`
	IsRedemption  bool            `json:"isRedemption"`
	PaymentMethod string          `json:"paymentMethod"`
	Service       servicePayload  `json:"service"`
	Rating        *ratingPayload  `json:"rating,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
	CancelReason  string          `json:"cancelReason,omitempty"`
	CancelledBy   string          `json:"cancelledBy,omitempty"`
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

func (e changeEnvelope) toDomain() (domain.OrderChange, error) {
	var kind domain.ChangeKind
	switch e.Kind {
	case string(domain.ChangeKindCreated):
		kind = domain.ChangeKindCreated
	case string(domain.ChangeKindUpdated):
		kind = domain.ChangeKindUpdated
	default:
		return domain.OrderChange{}, fmt.Errorf("unknown change kind %q", e.Kind)
	}
	if e.After == nil {
		return domain.OrderChange{}, errors.New("change carries no after snapshot")
	}
	if kind == domain.ChangeKindUpdated && e.Before == nil {
		return domain.OrderChange{}, errors.New("updated change carries no before snapshot")
	}

	change := domain.OrderChange{Kind: kind, After: e.After.toDomain()}
	if e.Before != nil {
		change.Before = e.Before.toDomain()
	}
	return change, nil
}

func (p *orderPayload) toDomain() *domain.Order {
	order := &domain.Order{
		ID:            p.ID,
		CustomerID:    p.CustomerID,
		WorkerID:      p.WorkerID,
		Status:        domain.OrderStatus(p.Status),
		IsRedemption:  p.IsRedemption,
		PaymentMethod: domain.PaymentMethod(p.PaymentMethod),
		Service: domain.ServiceInfo{
			ID:    p.Service.ID,
			Name:  p.Service.Name,
			Price: p.Service.Price,
		},
		CreatedAt:    p.CreatedAt,
		CompletedAt:  p.CompletedAt,
		CancelledAt:  p.CancelledAt,
		CancelReason: p.CancelReason,
		CancelledBy:  p.CancelledBy,
	}
	if p.Rating != nil {
		order.Rating = &domain.Rating{Stars: p.Rating.Stars, Comment: p.Rating.Comment}
	}
	return order
}
