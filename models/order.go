package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "Created"
	OrderStatusShipped         OrderStatus = "Shipped"
	OrderStatusDelivered       OrderStatus = "Delivered"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusCompleted       OrderStatus = "Completed"
	OrderStatusRefundRequested OrderStatus = "Refund Requested"
	OrderStatusRefundDenied    OrderStatus = "Refund Denied"
	OrderStatusRefundCompleted OrderStatus = "Refund Completed"
)

var orderStatuses = map[OrderStatus]bool{
	OrderStatusCreated:         true,
	OrderStatusShipped:         true,
	OrderStatusDelivered:       true,
	OrderStatusCancelled:       true,
	OrderStatusCompleted:       true,
	OrderStatusRefundRequested: true,
	OrderStatusRefundDenied:    true,
	OrderStatusRefundCompleted: true,
}

// ParseOrderStatus accepts the stored display value ("Refund Requested") as
// well as the compact form ("RefundRequested") clients sometimes send.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	if orderStatuses[OrderStatus(s)] {
		return OrderStatus(s), true
	}
	for st := range orderStatuses {
		if compact(string(st)) == s {
			return st, true
		}
	}
	return "", false
}

func compact(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusDelivered, OrderStatusCompleted,
		OrderStatusRefundDenied, OrderStatusRefundCompleted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

// PaymentDetails is attached once the provider confirmed the payment.
type PaymentDetails struct {
	ProviderPaymentID string        `json:"provider_payment_id"`
	ProviderOrderID   string        `json:"provider_order_id"`
	ProviderSignature string        `json:"provider_signature,omitempty"`
	Amount            int64         `json:"amount"` // minor units charged for this order
	Currency          string        `json:"currency"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	RefundID          string        `json:"refund_id,omitempty"`
}

// Address is the delivery location captured at checkout.
type Address struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	ShopID           uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_orders_provider_shop,priority:2" json:"shop_id"`
	DeliveryPersonID *uuid.UUID      `gorm:"type:uuid;index" json:"delivery_person_id,omitempty"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	TotalPrice       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	Status           OrderStatus     `gorm:"type:varchar(32);not null;default:'Created'" json:"status"`
	Provider         string          `gorm:"type:varchar(16)" json:"provider,omitempty"`
	ProviderOrderID  *string         `gorm:"type:varchar(255);uniqueIndex:idx_orders_provider_shop,priority:1" json:"provider_order_id,omitempty"`
	PaymentDetails   *PaymentDetails `gorm:"type:jsonb;serializer:json" json:"payment_details,omitempty"`
	AddressData      *Address        `gorm:"type:jsonb;serializer:json" json:"address_data,omitempty"`
	Feedback         string          `gorm:"type:text" json:"feedback,omitempty"`
	Extras           map[string]any  `gorm:"type:jsonb;serializer:json" json:"extras,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;<-:create" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	Quantity  int             `gorm:"not null;check:quantity >= 1" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
}

// LineTotal is UnitPrice * Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal sums the line totals of the frozen items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// IsPaid reports whether a confirmed, unrefunded provider payment is attached.
func (o *Order) IsPaid() bool {
	return o.PaymentDetails != nil && o.PaymentDetails.PaymentStatus == PaymentStatusPaid
}

// Touch refreshes UpdatedAt; every mutation path calls it before saving.
func (o *Order) Touch(now time.Time) {
	o.UpdatedAt = now
}
