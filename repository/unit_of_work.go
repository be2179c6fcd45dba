package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the repositories that share one database handle,
// either the pool or an open transaction.
type Repositories struct {
	Orders    OrderRepository
	Carts     CartRepository
	Payables  PayableRepository
	Directory DirectoryRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Orders:    NewGormOrderRepository(db),
		Carts:     NewGormCartRepository(db),
		Payables:  NewGormPayableRepository(db),
		Directory: NewGormDirectoryRepository(db),
	}
}

// UnitOfWork runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
	Repos() Repositories
}

type GormUnitOfWork struct {
	db    *gorm.DB
	repos Repositories
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db, repos: NewRepositories(db)}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Repos returns repositories outside any transaction, for reads.
func (u *GormUnitOfWork) Repos() Repositories {
	return u.repos
}
