package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/webhook"
)

// StripeGateway implements the redirect-based flow: checkout sessions,
// signed webhooks and refunds against the session's payment intent.
type StripeGateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string

	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newRefund  func(*stripe.RefundParams) (*stripe.Refund, error)
}

// NewStripeGateway configures the global Stripe key. successURL must contain
// the {CHECKOUT_SESSION_ID} placeholder so the redirect can be reconciled.
func NewStripeGateway(secretKey, webhookSecret, successURL, cancelURL string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		newSession:    session.New,
		getSession:    session.Get,
		newRefund:     refund.New,
	}
}

func (g *StripeGateway) Name() string { return ProviderStripe }

func (g *StripeGateway) CreatePayable(ctx context.Context, req PayableRequest) (*ProviderRef, error) {
	currency := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(g.successURL),
		CancelURL:          stripe.String(g.cancelURL),
		Metadata:           req.Metadata,
	}
	if req.Receipt != "" {
		params.ClientReferenceID = stripe.String(req.Receipt)
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.UnitAmountMinor),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	params.Context = ctx

	sess, err := g.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &ProviderRef{
		Provider:    ProviderStripe,
		ID:          sess.ID,
		RedirectURL: sess.URL,
		AmountMinor: sess.AmountTotal,
		Currency:    currency,
	}, nil
}

func (g *StripeGateway) RetrievePayable(ctx context.Context, providerOrderID string) (*PayableStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.getSession(providerOrderID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve checkout session %s: %w", providerOrderID, err)
	}
	return sessionStatus(sess), nil
}

// VerifySignature is not part of the Stripe flow; confirmations are
// authenticated by webhook signature or by re-fetching the session.
func (g *StripeGateway) VerifySignature(_, _, _ string) bool {
	return false
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return stripeEvent(event)
}

// ParseEvent decodes an already-authenticated Stripe event, e.g. one
// delivered through EventBridge.
func (g *StripeGateway) ParseEvent(raw []byte) (*WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("stripe: decode event: %w", err)
	}
	return stripeEvent(event)
}

func stripeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{ID: event.ID, RawType: string(event.Type), Type: EventIgnored}
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if event.Data == nil {
			return nil, fmt.Errorf("stripe: event %s has no data", event.ID)
		}
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		st := sessionStatus(&sess)
		out.ProviderOrderID = st.ID
		out.ProviderPaymentID = st.ProviderPaymentID
		out.AmountMinor = st.AmountMinor
		out.Currency = st.Currency
		if st.Paid {
			out.Type = EventPayableCompleted
		}
	}
	return out, nil
}

func sessionStatus(sess *stripe.CheckoutSession) *PayableStatus {
	st := &PayableStatus{
		ID:          sess.ID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountMinor: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Metadata:    sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		st.ProviderPaymentID = sess.PaymentIntent.ID
	}
	return st
}

func (g *StripeGateway) Refund(ctx context.Context, providerPaymentID string, amountMinor int64, reason, idempotencyKey string) (*RefundRef, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("stripe: refund %s: idempotency key is required", providerPaymentID)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerPaymentID),
		Amount:        stripe.Int64(amountMinor),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("reason", reason)
	params.AddMetadata("order_id", idempotencyKey)
	params.SetIdempotencyKey("refund-" + idempotencyKey)

	r, err := g.newRefund(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: refund %s: %w", providerPaymentID, err)
	}
	return &RefundRef{ID: r.ID, Status: string(r.Status)}, nil
}
