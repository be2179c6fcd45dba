package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderService is the order lifecycle engine. It is the only writer of
// order state.
type OrderService interface {
	CreateFromCheckout(ctx context.Context, p models.Principal, idempotencyKey string, address *models.Address) ([]models.Order, *ServiceError)
	CreateCheckoutSession(ctx context.Context, p models.Principal, address *models.Address) (*providers.ProviderRef, *ServiceError)
	CreatePayableOrders(ctx context.Context, p models.Principal, address *models.Address) ([]providers.ProviderRef, *ServiceError)

	ReconcilePayableCompletion(ctx context.Context, c Confirmation) (*ReconcileResult, *ServiceError)
	ReconcilePaymentConfirmation(ctx context.Context, p models.Principal, providerOrderID, providerPaymentID, signature string) (*ReconcileResult, *ServiceError)
	ReconcileCheckoutSuccess(ctx context.Context, sessionID string) (*ReconcileResult, *ServiceError)
	ReconcileWebhookEvent(ctx context.Context, provider string, rawBody []byte, signatureHeader string) (*ReconcileResult, *ServiceError)
	ReconcileProviderEvent(ctx context.Context, provider string, evt *providers.WebhookEvent) (*ReconcileResult, *ServiceError)

	Transition(ctx context.Context, p models.Principal, orderID uuid.UUID, requested models.OrderStatus) (*models.Order, *ServiceError)
	TransitionByProviderOrder(ctx context.Context, p models.Principal, providerOrderID string, requested models.OrderStatus) ([]models.Order, *ServiceError)
	AssignDelivery(ctx context.Context, p models.Principal, orderID uuid.UUID, deliveryPersonEmail string) (*models.Order, *ServiceError)

	ListOrders(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, int64, *ServiceError)
	GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, *ServiceError)
	CountOrders(ctx context.Context, p models.Principal) (map[models.OrderStatus]int64, *ServiceError)
	OrderHistory(ctx context.Context, p models.Principal, customerID uuid.UUID, page, limit int) ([]models.Order, int64, *ServiceError)
	DeleteOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) *ServiceError
	SubmitFeedback(ctx context.Context, p models.Principal, orderID uuid.UUID, feedback string) (*models.Order, *ServiceError)
}

// Notifier receives committed order changes. Implementations must not block
// the caller.
type Notifier interface {
	OrdersPlaced(ctx context.Context, orders []models.Order)
	StatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus)
	ReconciliationAlert(ctx context.Context, alert models.ReconciliationAlert)
}

// MetricsRecorder is satisfied by the CloudWatch metrics client.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

type OrderServiceConfig struct {
	Currency       string
	IdempotencyTTL time.Duration
}

type orderServiceImpl struct {
	uow      repository.UnitOfWork
	gateways providers.Registry
	idem     repository.IdempotencyStore
	notifier Notifier
	metrics  MetricsRecorder
	cfg      OrderServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService wires the engine. idem, notifier and metrics may be nil.
func NewOrderService(
	uow repository.UnitOfWork,
	gateways providers.Registry,
	idem repository.IdempotencyStore,
	notifier Notifier,
	metrics MetricsRecorder,
	cfg OrderServiceConfig,
	logger *zap.Logger,
) OrderService {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &orderServiceImpl{
		uow:      uow,
		gateways: gateways,
		idem:     idem,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

const (
	metricOrdersCreated    = "OrdersCreated"
	metricPaymentSucceeded = "PaymentSucceeded"
	metricPaymentFailed    = "PaymentFailed"
	metricRefunds          = "RefundsIssued"
	metricReconcileAlerts  = "ReconciliationAlerts"

	idemPending = "pending"
)

// CreateFromCheckout places one order per shop in the cart and clears the
// cart in the same transaction. A repeated idempotency key returns the
// orders created by the first attempt.
func (s *orderServiceImpl) CreateFromCheckout(ctx context.Context, p models.Principal, idempotencyKey string, address *models.Address) ([]models.Order, *ServiceError) {
	customerID := p.UserID()

	idemKey := ""
	if idempotencyKey != "" && s.idem != nil {
		idemKey = fmt.Sprintf("checkout:%s:%s", customerID, idempotencyKey)
		if orders, svcErr, done := s.replayCheckout(ctx, idemKey); done {
			return orders, svcErr
		}
		claimed, err := s.idem.Claim(ctx, idemKey, idemPending, s.cfg.IdempotencyTTL)
		if err != nil {
			s.logger.Warn("Idempotency store unavailable, continuing without it", zap.Error(err))
			idemKey = ""
		} else if !claimed {
			return nil, newError(KindConflict, "Checkout with this idempotency key is already in progress", nil)
		}
	}

	var orders []models.Order
	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		snapshot, svcErr := NewCartSnapshotService(r.Carts).ValidateAndSnapshot(ctx, customerID)
		if svcErr != nil {
			return svcErr
		}
		for _, group := range snapshot.GroupByShop() {
			order := group.NewOrder(customerID)
			order.AddressData = address
			if err := r.Orders.Create(ctx, order); err != nil {
				return err
			}
			orders = append(orders, *order)
		}
		return r.Carts.Clear(ctx, customerID)
	})
	if err != nil {
		if idemKey != "" {
			if relErr := s.idem.Release(ctx, idemKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
		return nil, s.toServiceError(err, "Failed to place order")
	}

	if idemKey != "" {
		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID.String())
		}
		if err := s.idem.Set(ctx, idemKey, strings.Join(ids, ","), s.cfg.IdempotencyTTL); err != nil {
			// A key left pending would block every retry until it expires.
			s.logger.Error("Failed to record idempotency key, releasing it",
				zap.String("customer_id", customerID.String()),
				zap.Strings("order_ids", ids),
				zap.Error(err),
			)
			if relErr := s.idem.Release(ctx, idemKey); relErr != nil {
				s.logger.Error("Failed to release idempotency key", zap.Strings("order_ids", ids), zap.Error(relErr))
			}
		}
	}

	s.logger.Info("Orders placed from cart",
		zap.String("customer_id", customerID.String()),
		zap.Int("orders", len(orders)),
	)
	s.count(metricOrdersCreated, map[string]string{"Flow": "direct"})
	if s.notifier != nil {
		s.notifier.OrdersPlaced(ctx, orders)
	}
	return orders, nil
}

// replayCheckout returns done=true when the key already has an outcome.
func (s *orderServiceImpl) replayCheckout(ctx context.Context, idemKey string) ([]models.Order, *ServiceError, bool) {
	v, ok, err := s.idem.Get(ctx, idemKey)
	if err != nil || !ok {
		return nil, nil, false
	}
	if v == idemPending {
		return nil, newError(KindConflict, "Checkout with this idempotency key is already in progress", nil), true
	}
	var ids []uuid.UUID
	for _, raw := range strings.Split(v, ",") {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil, false
		}
		ids = append(ids, id)
	}
	orders, err := s.uow.Repos().Orders.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load orders"), true
	}
	s.logger.Info("Checkout replayed from idempotency key", zap.Int("orders", len(orders)))
	return orders, nil, true
}

// CreateCheckoutSession opens one redirect payable for the whole cart. No
// order exists until the payable is confirmed.
func (s *orderServiceImpl) CreateCheckoutSession(ctx context.Context, p models.Principal, address *models.Address) (*providers.ProviderRef, *ServiceError) {
	gw, svcErr := s.gateway(providers.ProviderStripe)
	if svcErr != nil {
		return nil, svcErr
	}
	if svcErr := validateAddress(address); svcErr != nil {
		return nil, svcErr
	}

	customerID := p.UserID()
	snapshot, svcErr := NewCartSnapshotService(s.uow.Repos().Carts).ValidateAndSnapshot(ctx, customerID)
	if svcErr != nil {
		return nil, svcErr
	}

	lineItems := make([]providers.LineItem, 0, len(snapshot.Items))
	for _, l := range snapshot.Items {
		lineItems = append(lineItems, providers.LineItem{
			Name:            l.Name,
			UnitAmountMinor: providers.ToMinorUnits(l.UnitPrice),
			Quantity:        int64(l.Quantity),
		})
	}
	amount := providers.ToMinorUnits(snapshot.TotalPrice)

	ref, err := gw.CreatePayable(ctx, providers.PayableRequest{
		AmountMinor: amount,
		Currency:    s.cfg.Currency,
		Receipt:     customerID.String(),
		LineItems:   lineItems,
		Metadata:    map[string]string{"customer_id": customerID.String()},
	})
	if err != nil {
		s.logger.Error("Failed to create checkout session", zap.String("customer_id", customerID.String()), zap.Error(err))
		return nil, newError(KindProviderError, "Failed to create checkout session", err)
	}

	payable := &models.Payable{
		ProviderRef: ref.ID,
		Provider:    providers.ProviderStripe,
		CustomerID:  customerID,
		AmountMinor: amount,
		Currency:    s.cfg.Currency,
		Status:      models.PayableStatusPending,
		Snapshot:    snapshot,
		AddressData: address,
	}
	if err := s.uow.Repos().Payables.Create(ctx, payable); err != nil {
		s.logger.Error("Checkout session created but not recorded",
			zap.String("provider_order_id", ref.ID),
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
		return nil, newError(KindInternal, "Failed to record checkout session", err)
	}

	s.logger.Info("Checkout session created",
		zap.String("provider_order_id", ref.ID),
		zap.String("customer_id", customerID.String()),
		zap.Int64("amount_minor", amount),
	)
	return ref, nil
}

// CreatePayableOrders requests one provider order per shop concurrently and
// persists nothing unless every request succeeded.
func (s *orderServiceImpl) CreatePayableOrders(ctx context.Context, p models.Principal, address *models.Address) ([]providers.ProviderRef, *ServiceError) {
	gw, svcErr := s.gateway(providers.ProviderRazorpay)
	if svcErr != nil {
		return nil, svcErr
	}
	if svcErr := validateAddress(address); svcErr != nil {
		return nil, svcErr
	}

	customerID := p.UserID()
	snapshot, svcErr := NewCartSnapshotService(s.uow.Repos().Carts).ValidateAndSnapshot(ctx, customerID)
	if svcErr != nil {
		return nil, svcErr
	}
	groups := snapshot.GroupByShop()

	refs := make([]*providers.ProviderRef, len(groups))
	stamp := s.now().UnixNano()
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			ref, err := gw.CreatePayable(gctx, providers.PayableRequest{
				AmountMinor: providers.ToMinorUnits(group.TotalPrice),
				Currency:    s.cfg.Currency,
				Receipt:     fmt.Sprintf("receipt_%d_%d", stamp, i),
				Metadata: map[string]string{
					"customer_id": customerID.String(),
					"shop_id":     group.ShopID.String(),
				},
			})
			if err != nil {
				return fmt.Errorf("shop %s: %w", group.ShopID, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var created []string
		for _, r := range refs {
			if r != nil {
				created = append(created, r.ID)
			}
		}
		s.logger.Error("Provider order creation failed, checkout aborted",
			zap.String("customer_id", customerID.String()),
			zap.Strings("abandoned_provider_order_ids", created),
			zap.Error(err),
		)
		return nil, newError(KindProviderError, "Failed to create payment orders", err)
	}

	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		for i, group := range groups {
			ref := refs[i]
			shopID := group.ShopID
			order := group.NewOrder(customerID)
			order.Provider = providers.ProviderRazorpay
			order.ProviderOrderID = &ref.ID
			order.AddressData = address
			if err := r.Orders.Create(ctx, order); err != nil {
				return err
			}
			if err := r.Payables.Create(ctx, &models.Payable{
				ProviderRef: ref.ID,
				Provider:    providers.ProviderRazorpay,
				CustomerID:  customerID,
				ShopID:      &shopID,
				AmountMinor: ref.AmountMinor,
				Currency:    ref.Currency,
				Status:      models.PayableStatusPending,
				Snapshot:    snapshot.Filter(shopID),
				AddressData: address,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.toServiceError(err, "Failed to record payment orders")
	}

	out := make([]providers.ProviderRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, *r)
	}
	s.logger.Info("Payment orders created",
		zap.String("customer_id", customerID.String()),
		zap.Int("shops", len(out)),
	)
	return out, nil
}

func (s *orderServiceImpl) gateway(name string) (providers.PaymentGateway, *ServiceError) {
	gw, ok := s.gateways.Get(name)
	if !ok {
		return nil, newError(KindProviderError, fmt.Sprintf("Payment provider %s is not configured", name), nil)
	}
	return gw, nil
}

func validateAddress(a *models.Address) *ServiceError {
	if a == nil || strings.TrimSpace(a.Address) == "" {
		return newError(KindValidation, "Delivery address is required", nil)
	}
	if a.Lat < -90 || a.Lat > 90 || a.Lng < -180 || a.Lng > 180 {
		return newError(KindValidation, "Delivery coordinates are out of range", nil)
	}
	return nil
}

// toServiceError keeps ServiceErrors raised inside a transaction and maps
// repository failures onto kinds.
func (s *orderServiceImpl) toServiceError(err error, message string) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, "Order not found", err)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrStaleWrite):
		return newError(KindConflict, "Order was modified concurrently", err)
	}
	s.logger.Error(message, zap.Error(err))
	return newError(KindInternal, message, err)
}

func (s *orderServiceImpl) count(metric string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(ctx, metric, dims)
	}()
}
