package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dev-maui0806/e-siremart-backend/models"
	aws_pkg "github.com/dev-maui0806/e-siremart-backend/pkg/aws"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher writes a keyed domain event to the order event stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, v any) error
}

// EventNotifier fans committed order changes out to SNS notifications and
// the Kafka order event stream. Every dispatch runs in its own goroutine
// with a bounded timeout; failures are logged and dropped.
type EventNotifier struct {
	sns       aws_pkg.SNSPublisher
	topicArn  string
	events    EventPublisher
	directory repository.DirectoryRepository
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewEventNotifier(
	sns aws_pkg.SNSPublisher,
	topicArn string,
	events EventPublisher,
	directory repository.DirectoryRepository,
	logger *zap.Logger,
) *EventNotifier {
	return &EventNotifier{
		sns:       sns,
		topicArn:  topicArn,
		events:    events,
		directory: directory,
		timeout:   5 * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// Wait blocks until in-flight dispatches finish. Used on shutdown.
func (n *EventNotifier) Wait() {
	n.wg.Wait()
}

func (n *EventNotifier) OrdersPlaced(ctx context.Context, orders []models.Order) {
	for i := range orders {
		order := orders[i]
		n.dispatch(ctx, "order_created", func(ctx context.Context) error {
			evtErr := n.publishEvent(ctx, orderEvent(models.EventOrderCreated, &order, "", n.now()))

			ownerID, err := n.shopOwner(ctx, order.ShopID)
			if err != nil {
				return errors.Join(evtErr, err)
			}
			productID := ""
			if len(order.Items) > 0 {
				productID = order.Items[0].ProductID.String()
			}
			return errors.Join(evtErr, n.notify(ctx, models.Notification{
				Type:      "order_placed",
				UserID:    ownerID,
				ProductID: productID,
				OwnerID:   ownerID,
				Message:   fmt.Sprintf("New order %s for %s", order.ID, order.TotalPrice.StringFixed(2)),
				Status:    "unread",
				Timestamp: n.now(),
			}))
		})
	}
}

func (n *EventNotifier) StatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus) {
	snapshot := *order
	n.dispatch(ctx, "order_status_changed", func(ctx context.Context) error {
		errs := []error{
			n.publishEvent(ctx, orderEvent(models.EventOrderStatusChanged, &snapshot, from, n.now())),
			n.notify(ctx, models.Notification{
				Type:      "order_status",
				UserID:    snapshot.CustomerID.String(),
				Message:   fmt.Sprintf("Your order %s is now %s", snapshot.ID, snapshot.Status),
				Status:    "unread",
				Timestamp: n.now(),
			}),
		}
		if snapshot.Status == models.OrderStatusShipped && snapshot.DeliveryPersonID != nil {
			errs = append(errs, n.notify(ctx, models.Notification{
				Type:      "delivery_assigned",
				UserID:    snapshot.DeliveryPersonID.String(),
				Message:   fmt.Sprintf("Order %s has been assigned to you", snapshot.ID),
				Status:    "unread",
				Timestamp: n.now(),
			}))
		}
		return errors.Join(errs...)
	})
}

func (n *EventNotifier) ReconciliationAlert(ctx context.Context, alert models.ReconciliationAlert) {
	n.dispatch(ctx, "reconciliation_alert", func(ctx context.Context) error {
		var errs []error
		if n.events != nil {
			errs = append(errs, n.events.PublishEvent(ctx, alert.OrderID, alert))
		}
		if n.sns != nil && n.topicArn != "" {
			body, err := json.Marshal(alert)
			if err != nil {
				return err
			}
			errs = append(errs, n.sns.Publish(ctx, n.topicArn, body))
		}
		return errors.Join(errs...)
	})
}

func (n *EventNotifier) dispatch(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			n.logger.Warn("Notification dispatch failed", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

func (n *EventNotifier) publishEvent(ctx context.Context, evt models.OrderEvent) error {
	if n.events == nil {
		return nil
	}
	return n.events.PublishEvent(ctx, evt.OrderID, evt)
}

func (n *EventNotifier) notify(ctx context.Context, msg models.Notification) error {
	if n.sns == nil || n.topicArn == "" {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.sns.Publish(ctx, n.topicArn, body)
}

func (n *EventNotifier) shopOwner(ctx context.Context, shopID uuid.UUID) (string, error) {
	if n.directory == nil {
		return "", nil
	}
	shop, err := n.directory.FindShopByID(ctx, shopID)
	if err != nil {
		return "", fmt.Errorf("resolve owner of shop %s: %w", shopID, err)
	}
	return shop.OwnerID.String(), nil
}

func orderEvent(kind string, o *models.Order, from models.OrderStatus, at time.Time) models.OrderEvent {
	evt := models.OrderEvent{
		Type:       kind,
		OrderID:    o.ID.String(),
		CustomerID: o.CustomerID.String(),
		ShopID:     o.ShopID.String(),
		FromStatus: from,
		Status:     o.Status,
		TotalPrice: o.TotalPrice.StringFixed(2),
		Timestamp:  at,
	}
	if o.ProviderOrderID != nil {
		evt.ProviderOrderID = *o.ProviderOrderID
	}
	return evt
}
