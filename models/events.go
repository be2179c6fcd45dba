package models

import "time"

const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventReconciliationAlert = "reconciliation.alert"
)

// OrderEvent is published on the order events topic.
type OrderEvent struct {
	Type            string      `json:"type"`
	OrderID         string      `json:"order_id"`
	CustomerID      string      `json:"customer_id"`
	ShopID          string      `json:"shop_id"`
	FromStatus      OrderStatus `json:"from_status,omitempty"`
	Status          OrderStatus `json:"status"`
	TotalPrice      string      `json:"total_price"`
	ProviderOrderID string      `json:"provider_order_id,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Notification matches the notification record the storefront renders.
type Notification struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconciliationAlert is raised when the provider and local state diverge,
// e.g. a refund went through but the order could not be updated.
type ReconciliationAlert struct {
	Type              string    `json:"type"`
	OrderID           string    `json:"order_id"`
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	RefundID          string    `json:"refund_id,omitempty"`
	AmountMinor       int64     `json:"amount_minor"`
	Reason            string    `json:"reason"`
	Timestamp         time.Time `json:"timestamp"`
}
