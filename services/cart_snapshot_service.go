package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/google/uuid"
)

// CartSnapshotService turns a customer's live cart into an immutable,
// stock-checked snapshot. It never mutates the cart.
type CartSnapshotService struct {
	carts repository.CartRepository
}

func NewCartSnapshotService(carts repository.CartRepository) *CartSnapshotService {
	return &CartSnapshotService{carts: carts}
}

// ValidateAndSnapshot fails with KindEmptyCart for a missing or empty cart and
// with KindInsufficientStock when any line asks for more than is available.
func (s *CartSnapshotService) ValidateAndSnapshot(ctx context.Context, customerID uuid.UUID) (models.Snapshot, *ServiceError) {
	cart, err := s.carts.FindByUserID(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Snapshot{}, newError(KindEmptyCart, "Cart is empty", nil)
	}
	if err != nil {
		return models.Snapshot{}, newError(KindInternal, "Failed to load cart", err)
	}
	if len(cart.Items) == 0 {
		return models.Snapshot{}, newError(KindEmptyCart, "Cart is empty", nil)
	}

	lines := make([]models.SnapshotLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		p := item.Product
		if p == nil {
			return models.Snapshot{}, newError(KindNotFound, fmt.Sprintf("Product %s not found", item.ProductID), nil)
		}
		if item.Quantity < 1 {
			return models.Snapshot{}, newError(KindValidation, fmt.Sprintf("Invalid quantity for %s", p.Name), nil)
		}
		if p.Price.IsNegative() {
			return models.Snapshot{}, newError(KindValidation, fmt.Sprintf("Invalid price for %s", p.Name), nil)
		}
		if item.Quantity > p.Quantity {
			return models.Snapshot{}, newError(KindInsufficientStock,
				fmt.Sprintf("Insufficient stock for %s: requested %d, available %d", p.Name, item.Quantity, p.Quantity), nil)
		}
		lines = append(lines, models.SnapshotLine{
			ProductID: p.ID,
			ShopID:    p.ShopID,
			OwnerID:   p.OwnerID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		})
	}
	return models.NewSnapshot(customerID, lines), nil
}
