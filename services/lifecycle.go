package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxFeedbackLength = 2000

func (s *orderServiceImpl) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.uow.Repos().Orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "Order not found", err)
	}
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load order")
	}
	return order, nil
}

// Transition moves an order along the state machine. Shipping is only
// reachable through AssignDelivery.
func (s *orderServiceImpl) Transition(ctx context.Context, p models.Principal, orderID uuid.UUID, requested models.OrderStatus) (*models.Order, *ServiceError) {
	p, svcErr := s.resolveActor(ctx, p)
	if svcErr != nil {
		return nil, svcErr
	}
	order, svcErr := s.loadOrder(ctx, orderID)
	if svcErr != nil {
		return nil, svcErr
	}
	return s.transition(ctx, p, order, requested)
}

func (s *orderServiceImpl) transition(ctx context.Context, p models.Principal, order *models.Order, requested models.OrderStatus) (*models.Order, *ServiceError) {
	from := order.Status
	rule, ok := lookupTransition(from, requested)
	if !ok {
		return nil, newError(KindInvalidTransition, fmt.Sprintf("Cannot change order from %s to %s", from, requested), nil)
	}
	if requested == models.OrderStatusShipped {
		return nil, newError(KindValidation, "Orders are shipped by assigning a delivery person", nil)
	}
	if !rule(p, order) {
		return nil, newError(KindForbidden, "Not allowed to change this order", nil)
	}

	needsRefund := order.IsPaid() &&
		(requested == models.OrderStatusCancelled || requested == models.OrderStatusRefundCompleted)
	if needsRefund {
		return s.refundAndCommit(ctx, order, requested)
	}

	order.Status = requested
	order.Touch(s.now())
	if err := s.uow.Repos().Orders.UpdateGuarded(ctx, order, from); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, newError(KindConflict, "Order status changed concurrently", err)
		}
		return nil, s.toServiceError(err, "Failed to update order")
	}
	s.afterStatusChange(ctx, order, from)
	return order, nil
}

// refundAndCommit returns the money first and only then records the new
// status. The refund amount always comes from the stored order.
func (s *orderServiceImpl) refundAndCommit(ctx context.Context, order *models.Order, requested models.OrderStatus) (*models.Order, *ServiceError) {
	from := order.Status
	gw, svcErr := s.gateway(order.Provider)
	if svcErr != nil {
		return nil, svcErr
	}

	lockKey := ""
	if s.idem != nil {
		lockKey = "refund:" + order.ID.String()
		claimed, err := s.idem.Claim(ctx, lockKey, idemPending, s.cfg.IdempotencyTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency store unavailable for refund lock", zap.Error(err))
			lockKey = ""
		case !claimed:
			return nil, newError(KindConflict, "A refund for this order is already in progress", nil)
		}
	}
	release := func() {
		if lockKey == "" {
			return
		}
		if err := s.idem.Release(ctx, lockKey); err != nil {
			s.logger.Warn("Failed to release refund lock", zap.Error(err))
		}
	}

	amount := providers.ToMinorUnits(order.TotalPrice)
	paymentID := order.PaymentDetails.ProviderPaymentID
	reason := "order cancelled"
	if requested == models.OrderStatusRefundCompleted {
		reason = "refund approved"
	}

	refund, err := gw.Refund(ctx, paymentID, amount, reason, order.ID.String())
	if err != nil {
		release()
		s.logger.Error("Provider refund failed, order unchanged",
			zap.String("order_id", order.ID.String()),
			zap.String("provider", order.Provider),
			zap.Error(err),
		)
		return nil, newError(KindProviderError, "Refund failed at payment provider", err)
	}
	s.count(metricRefunds, map[string]string{"Provider": order.Provider})

	details := *order.PaymentDetails
	details.PaymentStatus = models.PaymentStatusRefunded
	details.RefundID = refund.ID
	order.PaymentDetails = &details
	order.Status = requested
	order.Touch(s.now())

	if err := s.uow.Repos().Orders.UpdateGuarded(ctx, order, from); err != nil {
		s.logger.Error("Refund issued but order update failed",
			zap.String("order_id", order.ID.String()),
			zap.String("provider", order.Provider),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		s.count(metricReconcileAlerts, map[string]string{"Provider": order.Provider})
		if s.notifier != nil {
			s.notifier.ReconciliationAlert(ctx, models.ReconciliationAlert{
				Type:              models.EventReconciliationAlert,
				OrderID:           order.ID.String(),
				Provider:          order.Provider,
				ProviderPaymentID: paymentID,
				RefundID:          refund.ID,
				AmountMinor:       amount,
				Reason:            fmt.Sprintf("refund succeeded but status %s was not recorded", requested),
				Timestamp:         s.now(),
			})
		}
		return nil, newError(KindReconciliationRequired, "Refund issued but order could not be updated", err)
	}
	release()

	s.logger.Info("Order refunded",
		zap.String("order_id", order.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount_minor", amount),
	)
	s.afterStatusChange(ctx, order, from)
	return order, nil
}

func (s *orderServiceImpl) afterStatusChange(ctx context.Context, order *models.Order, from models.OrderStatus) {
	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
	)
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, order, from)
	}
}

// TransitionByProviderOrder applies a transition to the caller's orders that
// share a provider order id.
func (s *orderServiceImpl) TransitionByProviderOrder(ctx context.Context, p models.Principal, providerOrderID string, requested models.OrderStatus) ([]models.Order, *ServiceError) {
	if providerOrderID == "" {
		return nil, newError(KindValidation, "Provider order id is required", nil)
	}
	p, svcErr := s.resolveActor(ctx, p)
	if svcErr != nil {
		return nil, svcErr
	}
	orders, err := s.uow.Repos().Orders.FindByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load orders")
	}

	var out []models.Order
	for i := range orders {
		order := &orders[i]
		if !isAdmin(p) && !canView(p, order) {
			continue
		}
		updated, svcErr := s.transition(ctx, p, order, requested)
		if svcErr != nil {
			return nil, svcErr
		}
		out = append(out, *updated)
	}
	if len(out) == 0 {
		return nil, newError(KindNotFound, "Order not found", nil)
	}
	return out, nil
}

// AssignDelivery ships an order: it resolves the acting owner's shop and the
// delivery person, then sets both the assignment and Shipped in one write.
func (s *orderServiceImpl) AssignDelivery(ctx context.Context, p models.Principal, orderID uuid.UUID, deliveryPersonEmail string) (*models.Order, *ServiceError) {
	email := strings.TrimSpace(deliveryPersonEmail)
	if email == "" {
		return nil, newError(KindValidation, "Delivery person email is required", nil)
	}
	if _, ok := p.(models.ShopOwner); !ok && !isAdmin(p) {
		return nil, newError(KindForbidden, "Only shop owners can ship orders", nil)
	}

	// The shop always comes from the directory here, even if the token names one.
	actor := p
	if owner, ok := p.(models.ShopOwner); ok {
		var svcErr *ServiceError
		if actor, svcErr = s.resolveActor(ctx, models.ShopOwner{ID: owner.ID}); svcErr != nil {
			return nil, svcErr
		}
	}

	courier, err := s.uow.Repos().Directory.FindUserByEmail(ctx, email, models.RoleDeliveryPerson)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "Delivery person not found", err)
	}
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load delivery person")
	}

	order, svcErr := s.loadOrder(ctx, orderID)
	if svcErr != nil {
		return nil, svcErr
	}
	from := order.Status
	rule, ok := lookupTransition(from, models.OrderStatusShipped)
	if !ok {
		return nil, newError(KindInvalidTransition, fmt.Sprintf("Cannot ship an order in status %s", from), nil)
	}
	if !rule(actor, order) {
		return nil, newError(KindForbidden, "Order does not belong to your shop", nil)
	}

	courierID := courier.ID
	order.DeliveryPersonID = &courierID
	order.Status = models.OrderStatusShipped
	order.Touch(s.now())
	if err := s.uow.Repos().Orders.UpdateGuarded(ctx, order, from); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, newError(KindConflict, "Order status changed concurrently", err)
		}
		return nil, s.toServiceError(err, "Failed to ship order")
	}
	s.afterStatusChange(ctx, order, from)
	return order, nil
}

// resolveActor fills in the shop of a shop owner whose token carries none.
// Other principals are returned as they are.
func (s *orderServiceImpl) resolveActor(ctx context.Context, p models.Principal) (models.Principal, *ServiceError) {
	owner, ok := p.(models.ShopOwner)
	if !ok || owner.ShopID != uuid.Nil {
		return p, nil
	}
	shop, err := s.uow.Repos().Directory.FindShopByOwner(ctx, owner.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "Shop not found", err)
	}
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load shop")
	}
	return models.ShopOwner{ID: owner.ID, ShopID: shop.ID}, nil
}

// scope resolves the orders a principal is allowed to list.
func (s *orderServiceImpl) scope(ctx context.Context, p models.Principal) (repository.OrderFilter, *ServiceError) {
	var f repository.OrderFilter
	p, svcErr := s.resolveActor(ctx, p)
	if svcErr != nil {
		return f, svcErr
	}
	switch v := p.(type) {
	case models.Admin:
	case models.ShopOwner:
		shopID := v.ShopID
		f.ShopID = &shopID
	case models.DeliveryPerson:
		id := v.ID
		f.DeliveryPersonID = &id
	default:
		id := p.UserID()
		f.CustomerID = &id
	}
	return f, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, int64, *ServiceError) {
	f, svcErr := s.scope(ctx, p)
	if svcErr != nil {
		return nil, 0, svcErr
	}
	orders, total, err := s.uow.Repos().Orders.List(ctx, f, page, limit)
	if err != nil {
		return nil, 0, s.toServiceError(err, "Failed to list orders")
	}
	return orders, total, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, *ServiceError) {
	p, svcErr := s.resolveActor(ctx, p)
	if svcErr != nil {
		return nil, svcErr
	}
	order, svcErr := s.loadOrder(ctx, orderID)
	if svcErr != nil {
		return nil, svcErr
	}
	if !canView(p, order) {
		return nil, newError(KindForbidden, "Not allowed to view this order", nil)
	}
	return order, nil
}

func (s *orderServiceImpl) CountOrders(ctx context.Context, p models.Principal) (map[models.OrderStatus]int64, *ServiceError) {
	f, svcErr := s.scope(ctx, p)
	if svcErr != nil {
		return nil, svcErr
	}
	counts, err := s.uow.Repos().Orders.CountByStatus(ctx, f)
	if err != nil {
		return nil, s.toServiceError(err, "Failed to count orders")
	}
	return counts, nil
}

func (s *orderServiceImpl) OrderHistory(ctx context.Context, p models.Principal, customerID uuid.UUID, page, limit int) ([]models.Order, int64, *ServiceError) {
	if p.UserID() != customerID && !isAdmin(p) {
		return nil, 0, newError(KindForbidden, "Not allowed to view this order history", nil)
	}
	orders, total, err := s.uow.Repos().Orders.List(ctx, repository.OrderFilter{CustomerID: &customerID}, page, limit)
	if err != nil {
		return nil, 0, s.toServiceError(err, "Failed to load order history")
	}
	return orders, total, nil
}

// DeleteOrder removes an order that can no longer move or that was never
// paid.
func (s *orderServiceImpl) DeleteOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) *ServiceError {
	order, svcErr := s.loadOrder(ctx, orderID)
	if svcErr != nil {
		return svcErr
	}
	if !owningCustomer(p, order) && !isAdmin(p) {
		return newError(KindForbidden, "Not allowed to delete this order", nil)
	}
	deletable := order.Status.IsTerminal() ||
		(order.Status == models.OrderStatusCreated && !order.IsPaid())
	if !deletable {
		return newError(KindInvalidTransition, fmt.Sprintf("Cannot delete an order in status %s", order.Status), nil)
	}
	if err := s.uow.Repos().Orders.Delete(ctx, order.ID); err != nil {
		return s.toServiceError(err, "Failed to delete order")
	}
	s.logger.Info("Order deleted", zap.String("order_id", order.ID.String()))
	return nil
}

func (s *orderServiceImpl) SubmitFeedback(ctx context.Context, p models.Principal, orderID uuid.UUID, feedback string) (*models.Order, *ServiceError) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" || len(feedback) > maxFeedbackLength {
		return nil, newError(KindValidation, fmt.Sprintf("Feedback must be 1 to %d characters", maxFeedbackLength), nil)
	}
	order, svcErr := s.loadOrder(ctx, orderID)
	if svcErr != nil {
		return nil, svcErr
	}
	if !owningCustomer(p, order) {
		return nil, newError(KindForbidden, "Not allowed to review this order", nil)
	}
	if order.Status != models.OrderStatusDelivered && order.Status != models.OrderStatusCompleted {
		return nil, newError(KindInvalidTransition, "Feedback is accepted once the order is delivered", nil)
	}
	order.Feedback = feedback
	order.Touch(s.now())
	if err := s.uow.Repos().Orders.UpdateGuarded(ctx, order, order.Status); err != nil {
		return nil, s.toServiceError(err, "Failed to save feedback")
	}
	return order, nil
}
