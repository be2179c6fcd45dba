package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayableStatus string

const (
	PayableStatusPending   PayableStatus = "pending"
	PayableStatusCompleted PayableStatus = "completed"
)

// Payable mirrors a provider-side checkout session (Stripe) or order
// (Razorpay). ProviderRef is the correlation key for async confirmations.
type Payable struct {
	ID          uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderRef string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"provider_ref"`
	Provider    string        `gorm:"type:varchar(16);not null" json:"provider"`
	CustomerID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"customer_id"`
	ShopID      *uuid.UUID    `gorm:"type:uuid" json:"shop_id,omitempty"`
	AmountMinor int64         `gorm:"not null" json:"amount_minor"`
	Currency    string        `gorm:"type:varchar(8);not null" json:"currency"`
	Status      PayableStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Snapshot    Snapshot      `gorm:"type:jsonb;serializer:json" json:"snapshot"`
	AddressData *Address      `gorm:"type:jsonb;serializer:json" json:"address_data,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// SnapshotLine is one frozen cart line.
type SnapshotLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	ShopID    uuid.UUID       `json:"shop_id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Snapshot is an immutable copy of cart contents and prices. TotalPrice is
// always derived from the lines, never taken from client input.
type Snapshot struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Items      []SnapshotLine  `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ShopGroup is the slice of a snapshot that belongs to one shop.
type ShopGroup struct {
	ShopID     uuid.UUID
	OwnerID    uuid.UUID
	Items      []SnapshotLine
	TotalPrice decimal.Decimal
}

func NewSnapshot(customerID uuid.UUID, lines []SnapshotLine) Snapshot {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return Snapshot{CustomerID: customerID, Items: lines, TotalPrice: total}
}

func (s Snapshot) IsEmpty() bool { return len(s.Items) == 0 }

// GroupByShop splits the snapshot per shop. Groups are ordered by shop id so
// repeated checkouts of the same cart fan out identically.
func (s Snapshot) GroupByShop() []ShopGroup {
	var groups []ShopGroup
	index := make(map[uuid.UUID]int)
	for _, line := range s.Items {
		i, ok := index[line.ShopID]
		if !ok {
			i = len(groups)
			index[line.ShopID] = i
			groups = append(groups, ShopGroup{ShopID: line.ShopID, OwnerID: line.OwnerID, TotalPrice: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, line)
		groups[i].TotalPrice = groups[i].TotalPrice.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].ShopID.String() < groups[b].ShopID.String()
	})
	return groups
}

// Filter returns the snapshot restricted to one shop.
func (s Snapshot) Filter(shopID uuid.UUID) Snapshot {
	var lines []SnapshotLine
	for _, l := range s.Items {
		if l.ShopID == shopID {
			lines = append(lines, l)
		}
	}
	return NewSnapshot(s.CustomerID, lines)
}

// NewOrder freezes a shop group into an order in the Created state.
func (g ShopGroup) NewOrder(customerID uuid.UUID) *Order {
	items := make([]OrderItem, 0, len(g.Items))
	for _, l := range g.Items {
		items = append(items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		ShopID:     g.ShopID,
		Items:      items,
		TotalPrice: g.TotalPrice,
		Status:     OrderStatusCreated,
	}
}
