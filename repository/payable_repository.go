package repository

import (
	"context"
	"time"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayableRepository interface {
	Create(ctx context.Context, payable *models.Payable) error
	FindByProviderRef(ctx context.Context, providerRef string) (*models.Payable, error)
	// LockByProviderRef reads the payable with SELECT ... FOR UPDATE. Only
	// meaningful inside UnitOfWork.Do.
	LockByProviderRef(ctx context.Context, providerRef string) (*models.Payable, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type GormPayableRepository struct {
	db *gorm.DB
}

func NewGormPayableRepository(db *gorm.DB) PayableRepository {
	return &GormPayableRepository{db: db}
}

func (r *GormPayableRepository) Create(ctx context.Context, payable *models.Payable) error {
	return translate(r.db.WithContext(ctx).Create(payable).Error)
}

func (r *GormPayableRepository) FindByProviderRef(ctx context.Context, providerRef string) (*models.Payable, error) {
	var p models.Payable
	if err := r.db.WithContext(ctx).
		Where("provider_ref = ?", providerRef).
		First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormPayableRepository) LockByProviderRef(ctx context.Context, providerRef string) (*models.Payable, error) {
	var p models.Payable
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_ref = ?", providerRef).
		First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormPayableRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payable{}).
		Where("id = ? AND status = ?", id, models.PayableStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PayableStatusCompleted,
			"completed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
