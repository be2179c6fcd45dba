package repository

import (
	"context"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartRepository interface {
	// FindByUserID loads the cart with every line's product resolved.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	// Clear removes every line from the user's cart. Clearing an empty or
	// missing cart is not an error.
	Clear(ctx context.Context, userID uuid.UUID) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error; err != nil {
		return nil, translate(err)
	}
	return &cart, nil
}

func (r *GormCartRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id IN (?)", r.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)).
		Delete(&models.CartItem{}).Error
}
