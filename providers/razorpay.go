package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPayments interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway implements the signature-based flow: the client pays a
// provider order and posts back (order_id, payment_id, signature).
type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	orders        razorpayOrders
	payments      razorpayPayments
}

func NewRazorpayGateway(keyID, keySecret, webhookSecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		orders:        client.Order,
		payments:      client.Payment,
	}
}

func (g *RazorpayGateway) Name() string { return ProviderRazorpay }

func (g *RazorpayGateway) CreatePayable(_ context.Context, req PayableRequest) (*ProviderRef, error) {
	notes := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		notes[k] = v
	}
	currency := strings.ToUpper(req.Currency)
	body, err := g.orders.Create(map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay: create order: response without id")
	}
	return &ProviderRef{
		Provider:    ProviderRazorpay,
		ID:          id,
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		KeyID:       g.keyID,
	}, nil
}

func (g *RazorpayGateway) RetrievePayable(_ context.Context, providerOrderID string) (*PayableStatus, error) {
	body, err := g.orders.Fetch(providerOrderID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: fetch order %s: %w", providerOrderID, err)
	}
	status, _ := body["status"].(string)
	currency, _ := body["currency"].(string)
	return &PayableStatus{
		ID:          providerOrderID,
		Paid:        status == "paid",
		AmountMinor: int64(number(body["amount_paid"])),
		Currency:    currency,
	}, nil
}

// VerifySignature checks HMAC-SHA256(key_secret, order_id|payment_id).
func (g *RazorpayGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	return VerifyHMAC(g.keySecret, []byte(providerOrderID+"|"+providerPaymentID), signature)
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// VerifyWebhook authenticates X-Razorpay-Signature, an HMAC of the raw body
// keyed with the webhook secret.
func (g *RazorpayGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if !VerifyHMAC(g.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}
	var evt razorpayWebhook
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("razorpay: decode webhook: %w", err)
	}
	pay := evt.Payload.Payment.Entity
	out := &WebhookEvent{
		ID:                pay.ID,
		RawType:           evt.Event,
		Type:              EventIgnored,
		ProviderOrderID:   pay.OrderID,
		ProviderPaymentID: pay.ID,
		AmountMinor:       pay.Amount,
		Currency:          pay.Currency,
	}
	if evt.Event == "order.paid" && pay.OrderID != "" {
		out.Type = EventPayableCompleted
	}
	return out, nil
}

// Refund tags the refund with idempotencyKey as its receipt.
func (g *RazorpayGateway) Refund(_ context.Context, providerPaymentID string, amountMinor int64, reason, idempotencyKey string) (*RefundRef, error) {
	body, err := g.payments.Refund(providerPaymentID, int(amountMinor), map[string]interface{}{
		"receipt": idempotencyKey,
		"notes":   map[string]interface{}{"reason": reason, "order_id": idempotencyKey},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: refund %s: %w", providerPaymentID, err)
	}
	id, _ := body["id"].(string)
	status, _ := body["status"].(string)
	return &RefundRef{ID: id, Status: status}, nil
}

func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
