package repository

import (
	"context"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectoryRepository resolves users and shops referenced by orders.
type DirectoryRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string, role models.Role) (*models.User, error)
	FindShopByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error)
	FindShopByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

type GormDirectoryRepository struct {
	db *gorm.DB
}

func NewGormDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &GormDirectoryRepository{db: db}
}

func (r *GormDirectoryRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormDirectoryRepository) FindUserByEmail(ctx context.Context, email string, role models.Role) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?) AND role = ?", email, role).
		First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormDirectoryRepository) FindShopByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error) {
	var s models.Shop
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *GormDirectoryRepository) FindShopByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var s models.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}
