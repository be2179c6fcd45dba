package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeIgnored          Outcome = "ignored"
)

// Confirmation is an authenticated statement that a payable was paid.
type Confirmation struct {
	Provider          string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	// AmountMinor is the amount the provider reports; zero skips the check.
	AmountMinor int64
	Currency    string
}

type ReconcileResult struct {
	Outcome Outcome        `json:"outcome"`
	Orders  []models.Order `json:"orders,omitempty"`
}

// ReconcilePayableCompletion is the single path that turns a paid payable
// into paid orders. It locks the payable row, so concurrent confirmations of
// the same payable serialize and all but the first report AlreadyProcessed.
func (s *orderServiceImpl) ReconcilePayableCompletion(ctx context.Context, c Confirmation) (*ReconcileResult, *ServiceError) {
	result := &ReconcileResult{}
	now := s.now()
	// orders that were closed before the money arrived
	var late []models.Order

	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		payable, err := r.Payables.LockByProviderRef(ctx, c.ProviderOrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "Payment reference not found", err)
		}
		if err != nil {
			return err
		}
		if payable.Provider != c.Provider {
			return newError(KindNotFound, "Payment reference not found", nil)
		}

		if payable.Status == models.PayableStatusCompleted {
			orders, err := r.Orders.FindByProviderOrderID(ctx, payable.ProviderRef)
			if err != nil {
				return err
			}
			result.Outcome = OutcomeAlreadyProcessed
			result.Orders = orders
			return nil
		}

		if c.AmountMinor != 0 && c.AmountMinor != payable.AmountMinor {
			return newError(KindPaymentVerificationFailed,
				fmt.Sprintf("Paid amount %d does not match expected %d", c.AmountMinor, payable.AmountMinor), nil)
		}

		details := func(o *models.Order) *models.PaymentDetails {
			currency := c.Currency
			if currency == "" {
				currency = payable.Currency
			}
			return &models.PaymentDetails{
				ProviderPaymentID: c.ProviderPaymentID,
				ProviderOrderID:   payable.ProviderRef,
				ProviderSignature: c.Signature,
				Amount:            providers.ToMinorUnits(o.TotalPrice),
				Currency:          currency,
				PaymentStatus:     models.PaymentStatusPaid,
			}
		}

		existing, err := r.Orders.FindByProviderOrderID(ctx, payable.ProviderRef)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			ref := payable.ProviderRef
			for _, group := range payable.Snapshot.GroupByShop() {
				order := group.NewOrder(payable.CustomerID)
				order.Provider = payable.Provider
				order.ProviderOrderID = &ref
				order.AddressData = payable.AddressData
				order.PaymentDetails = details(order)
				created, err := r.Orders.CreateIfAbsent(ctx, order)
				if err != nil {
					return err
				}
				if created {
					result.Orders = append(result.Orders, *order)
				}
			}
		} else {
			for i := range existing {
				order := &existing[i]
				if order.PaymentDetails == nil {
					order.PaymentDetails = details(order)
					order.Touch(now)
					if err := r.Orders.UpdateGuarded(ctx, order, order.Status); err != nil {
						return err
					}
					if rejectsPayment(order.Status) {
						late = append(late, *order)
						continue
					}
				}
				result.Orders = append(result.Orders, *order)
			}
		}

		if err := r.Payables.MarkCompleted(ctx, payable.ID, now); err != nil {
			return err
		}
		result.Outcome = OutcomeProcessed
		return r.Carts.Clear(ctx, payable.CustomerID)
	})
	if err != nil {
		return nil, s.toServiceError(err, "Failed to reconcile payment")
	}

	fields := []zap.Field{
		zap.String("provider", c.Provider),
		zap.String("provider_order_id", c.ProviderOrderID),
		zap.String("outcome", string(result.Outcome)),
	}
	if result.Outcome == OutcomeAlreadyProcessed {
		s.logger.Info("Payment confirmation already processed", fields...)
		return result, nil
	}

	s.logger.Info("Payment reconciled", append(fields, zap.Int("orders", len(result.Orders)))...)
	s.count(metricPaymentSucceeded, map[string]string{"Provider": c.Provider})
	for i := range late {
		s.refundLatePayment(ctx, &late[i])
	}
	if len(result.Orders) > 0 {
		s.count(metricOrdersCreated, map[string]string{"Flow": c.Provider})
		if s.notifier != nil {
			s.notifier.OrdersPlaced(ctx, result.Orders)
		}
	}
	return result, nil
}

// rejectsPayment reports whether an order in status st must not keep money
// that arrives for it.
func rejectsPayment(st models.OrderStatus) bool {
	return st == models.OrderStatusCancelled || st == models.OrderStatusRefundCompleted
}

// refundLatePayment returns a payment that landed on an order the customer
// had already cancelled. The status is left as it is. When the refund cannot
// be issued or recorded an operator is alerted instead.
func (s *orderServiceImpl) refundLatePayment(ctx context.Context, order *models.Order) {
	paymentID := order.PaymentDetails.ProviderPaymentID
	amount := order.PaymentDetails.Amount
	alert := func(refundID, reason string, err error) {
		s.logger.Error("Payment received for closed order needs manual refund",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
			zap.String("provider", order.Provider),
			zap.String("provider_payment_id", paymentID),
			zap.String("refund_id", refundID),
			zap.Error(err),
		)
		s.count(metricReconcileAlerts, map[string]string{"Provider": order.Provider})
		if s.notifier != nil {
			s.notifier.ReconciliationAlert(ctx, models.ReconciliationAlert{
				Type:              models.EventReconciliationAlert,
				OrderID:           order.ID.String(),
				Provider:          order.Provider,
				ProviderPaymentID: paymentID,
				RefundID:          refundID,
				AmountMinor:       amount,
				Reason:            reason,
				Timestamp:         s.now(),
			})
		}
	}

	gw, svcErr := s.gateway(order.Provider)
	if svcErr != nil {
		alert("", "payment received for "+string(order.Status)+" order and no gateway to refund it", svcErr)
		return
	}
	refund, err := gw.Refund(ctx, paymentID, amount, "payment after cancellation", order.ID.String())
	if err != nil {
		alert("", "payment received for "+string(order.Status)+" order and refund failed", err)
		return
	}
	s.count(metricRefunds, map[string]string{"Provider": order.Provider})

	details := *order.PaymentDetails
	details.PaymentStatus = models.PaymentStatusRefunded
	details.RefundID = refund.ID
	order.PaymentDetails = &details
	order.Touch(s.now())
	if err := s.uow.Repos().Orders.UpdateGuarded(ctx, order, order.Status); err != nil {
		alert(refund.ID, "late payment refunded but refund was not recorded", err)
		return
	}
	s.logger.Warn("Refunded payment received for closed order",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount_minor", amount),
	)
}

// ReconcilePaymentConfirmation handles the signature-based flow, where the
// client posts back what the provider's checkout returned.
func (s *orderServiceImpl) ReconcilePaymentConfirmation(ctx context.Context, p models.Principal, providerOrderID, providerPaymentID, signature string) (*ReconcileResult, *ServiceError) {
	if providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return nil, newError(KindValidation, "Order id, payment id and signature are required", nil)
	}

	payable, err := s.uow.Repos().Payables.FindByProviderRef(ctx, providerOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "Payment reference not found", err)
	}
	if err != nil {
		return nil, s.toServiceError(err, "Failed to load payment reference")
	}
	if payable.CustomerID != p.UserID() && !isAdmin(p) {
		return nil, newError(KindForbidden, "Payment belongs to another customer", nil)
	}

	gw, svcErr := s.gateway(payable.Provider)
	if svcErr != nil {
		return nil, svcErr
	}
	if !gw.VerifySignature(providerOrderID, providerPaymentID, signature) {
		s.logger.Warn("Payment signature verification failed",
			zap.String("provider", payable.Provider),
			zap.String("provider_order_id", providerOrderID),
			zap.String("customer_id", payable.CustomerID.String()),
		)
		s.count(metricPaymentFailed, map[string]string{"Provider": payable.Provider, "Reason": "signature"})
		return nil, newError(KindPaymentVerificationFailed, "Payment verification failed", nil)
	}

	return s.ReconcilePayableCompletion(ctx, Confirmation{
		Provider:          payable.Provider,
		ProviderOrderID:   providerOrderID,
		ProviderPaymentID: providerPaymentID,
		Signature:         signature,
	})
}

// ReconcileCheckoutSuccess handles the redirect after a hosted checkout. The
// session is re-read from the provider; nothing in the redirect is trusted.
func (s *orderServiceImpl) ReconcileCheckoutSuccess(ctx context.Context, sessionID string) (*ReconcileResult, *ServiceError) {
	if sessionID == "" {
		return nil, newError(KindValidation, "session_id is required", nil)
	}
	gw, svcErr := s.gateway(providers.ProviderStripe)
	if svcErr != nil {
		return nil, svcErr
	}

	st, err := gw.RetrievePayable(ctx, sessionID)
	if err != nil {
		s.logger.Error("Failed to retrieve checkout session", zap.String("provider_order_id", sessionID), zap.Error(err))
		return nil, newError(KindProviderError, "Failed to retrieve checkout session", err)
	}
	if !st.Paid {
		s.count(metricPaymentFailed, map[string]string{"Provider": providers.ProviderStripe, "Reason": "unpaid"})
		return nil, newError(KindPaymentVerificationFailed, "Payment has not been completed", nil)
	}

	return s.ReconcilePayableCompletion(ctx, Confirmation{
		Provider:          providers.ProviderStripe,
		ProviderOrderID:   st.ID,
		ProviderPaymentID: st.ProviderPaymentID,
		AmountMinor:       st.AmountMinor,
		Currency:          st.Currency,
	})
}

// ReconcileWebhookEvent authenticates a raw webhook body and reconciles
// completion events. Other event types are acknowledged and ignored.
func (s *orderServiceImpl) ReconcileWebhookEvent(ctx context.Context, provider string, rawBody []byte, signatureHeader string) (*ReconcileResult, *ServiceError) {
	gw, svcErr := s.gateway(provider)
	if svcErr != nil {
		return nil, svcErr
	}

	evt, err := gw.VerifyWebhook(rawBody, signatureHeader)
	if errors.Is(err, providers.ErrInvalidSignature) {
		s.logger.Warn("Webhook signature verification failed", zap.String("provider", provider))
		s.count(metricPaymentFailed, map[string]string{"Provider": provider, "Reason": "webhook_signature"})
		return nil, newError(KindPaymentVerificationFailed, "Invalid webhook signature", err)
	}
	if err != nil {
		return nil, newError(KindValidation, "Malformed webhook payload", err)
	}
	return s.ReconcileProviderEvent(ctx, provider, evt)
}

// ReconcileProviderEvent reconciles an already-authenticated event, from a
// webhook or from the event queue.
func (s *orderServiceImpl) ReconcileProviderEvent(ctx context.Context, provider string, evt *providers.WebhookEvent) (*ReconcileResult, *ServiceError) {
	if evt.Type != providers.EventPayableCompleted {
		s.logger.Debug("Ignoring provider event", zap.String("provider", provider), zap.String("event_type", evt.RawType))
		return &ReconcileResult{Outcome: OutcomeIgnored}, nil
	}

	dedupeKey := ""
	if s.idem != nil && evt.ID != "" {
		dedupeKey = fmt.Sprintf("event:%s:%s", provider, evt.ID)
		claimed, err := s.idem.Claim(ctx, dedupeKey, "1", s.cfg.IdempotencyTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency store unavailable, relying on payable lock", zap.Error(err))
			dedupeKey = ""
		case !claimed:
			return &ReconcileResult{Outcome: OutcomeAlreadyProcessed}, nil
		}
	}

	result, svcErr := s.ReconcilePayableCompletion(ctx, Confirmation{
		Provider:          provider,
		ProviderOrderID:   evt.ProviderOrderID,
		ProviderPaymentID: evt.ProviderPaymentID,
		AmountMinor:       evt.AmountMinor,
		Currency:          evt.Currency,
	})
	if svcErr != nil {
		if dedupeKey != "" {
			if err := s.idem.Release(ctx, dedupeKey); err != nil {
				s.logger.Warn("Failed to release event key", zap.Error(err))
			}
		}
		if svcErr.Kind == KindNotFound {
			s.logger.Warn("Provider event for unknown payable",
				zap.String("provider", provider),
				zap.String("provider_order_id", evt.ProviderOrderID),
			)
			return &ReconcileResult{Outcome: OutcomeIgnored}, nil
		}
		return nil, svcErr
	}
	return result, nil
}
