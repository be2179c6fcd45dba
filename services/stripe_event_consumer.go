package services

import (
	"context"
	"encoding/json"
	"errors"

	aws_pkg "github.com/dev-maui0806/e-siremart-backend/pkg/aws"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"go.uber.org/zap"
)

// QueuePoller is satisfied by aws_pkg.SQSConsumer.
type QueuePoller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// StripeEventParser decodes an authenticated Stripe event.
type StripeEventParser interface {
	ParseEvent(raw []byte) (*providers.WebhookEvent, error)
}

// StripeEventConsumer reconciles Stripe events delivered through an
// EventBridge rule into an SQS queue.
type StripeEventConsumer struct {
	poller QueuePoller
	parser StripeEventParser
	orders OrderService
	logger *zap.Logger
}

func NewStripeEventConsumer(poller QueuePoller, parser StripeEventParser, orders OrderService, logger *zap.Logger) *StripeEventConsumer {
	return &StripeEventConsumer{poller: poller, parser: parser, orders: orders, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *StripeEventConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting Stripe event queue consumer")
	if err := c.poller.StartPolling(ctx, c.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Stripe event polling stopped", zap.Error(err))
	}
}

// HandleMessage returns an error only for failures worth redelivering.
// Malformed messages are logged and acknowledged.
func (c *StripeEventConsumer) HandleMessage(ctx context.Context, body string) error {
	raw := unwrapEnvelope([]byte(body))

	evt, err := c.parser.ParseEvent(raw)
	if err != nil {
		c.logger.Warn("Dropping undecodable Stripe event", zap.Error(err))
		return nil
	}

	result, svcErr := c.orders.ReconcileProviderEvent(ctx, providers.ProviderStripe, evt)
	if svcErr != nil {
		switch svcErr.Kind {
		case KindInternal, KindProviderError, KindConflict:
			return svcErr
		}
		c.logger.Warn("Stripe event rejected",
			zap.String("event_id", evt.ID),
			zap.String("kind", string(svcErr.Kind)),
			zap.String("error", svcErr.Message),
		)
		return nil
	}
	c.logger.Info("Stripe event processed",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.RawType),
		zap.String("outcome", string(result.Outcome)),
	)
	return nil
}

// unwrapEnvelope strips an SNS envelope and then an EventBridge envelope,
// whichever are present.
func unwrapEnvelope(body []byte) []byte {
	var sns struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(body, &sns); err == nil && sns.Message != "" {
		body = []byte(sns.Message)
	}
	var bridge struct {
		DetailType string          `json:"detail-type"`
		Detail     json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &bridge); err == nil && len(bridge.Detail) > 0 {
		return bridge.Detail
	}
	return body
}
