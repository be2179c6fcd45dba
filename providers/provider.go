package providers

import (
	"context"
	"errors"
)

const (
	ProviderStripe   = "stripe"
	ProviderRazorpay = "razorpay"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails authentication.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNotSupported is returned for capabilities a provider does not offer.
	ErrNotSupported = errors.New("operation not supported by provider")
)

// LineItem is a priced line in minor currency units.
type LineItem struct {
	Name            string
	UnitAmountMinor int64
	Quantity        int64
}

// PayableRequest describes an amount owed. All amounts are minor units.
type PayableRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	LineItems   []LineItem
	Metadata    map[string]string
}

// ProviderRef is what the client needs to complete the payment.
type ProviderRef struct {
	Provider    string `json:"provider"`
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url,omitempty"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	KeyID       string `json:"key_id,omitempty"`
}

// PayableStatus is the provider's view of a payable.
type PayableStatus struct {
	ID                string
	Paid              bool
	ProviderPaymentID string
	AmountMinor       int64
	Currency          string
	Metadata          map[string]string
}

const (
	EventPayableCompleted = "payable.completed"
	EventIgnored          = "ignored"
)

// WebhookEvent is an authenticated provider event reduced to what
// reconciliation needs.
type WebhookEvent struct {
	ID                string
	Type              string
	RawType           string
	ProviderOrderID   string
	ProviderPaymentID string
	AmountMinor       int64
	Currency          string
}

type RefundRef struct {
	ID     string
	Status string
}

// PaymentGateway is the uniform capability surface of a payment provider.
type PaymentGateway interface {
	Name() string
	CreatePayable(ctx context.Context, req PayableRequest) (*ProviderRef, error)
	RetrievePayable(ctx context.Context, providerOrderID string) (*PayableStatus, error)
	VerifySignature(providerOrderID, providerPaymentID, signature string) bool
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
	// Refund returns money for one order. idempotencyKey identifies that
	// order; several orders may share one providerPaymentID.
	Refund(ctx context.Context, providerPaymentID string, amountMinor int64, reason, idempotencyKey string) (*RefundRef, error)
}

// Registry resolves gateways by provider name.
type Registry map[string]PaymentGateway

func NewRegistry(gateways ...PaymentGateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		if g != nil {
			r[g.Name()] = g
		}
	}
	return r
}

func (r Registry) Get(name string) (PaymentGateway, bool) {
	g, ok := r[name]
	return g, ok
}
