package productvalidation

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/db/models"
)

// Repository persists the catalog lookups and validation records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ProductExists(ctx context.Context, code string) (bool, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	ValidationExists(ctx context.Context, orderID, transactionID string) (bool, error)
	FindValidation(ctx context.Context, orderID, transactionID string) (*models.Validation, error)
	CreateValidation(ctx context.Context, validation *models.Validation) error
	UpdateValidation(ctx context.Context, validation *models.Validation) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a validation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ProductExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) ValidationExists(ctx context.Context, orderID, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Validation{}).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindValidation(ctx context.Context, orderID, transactionID string) (*models.Validation, error) {
	var validation models.Validation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		First(&validation).Error
	if err != nil {
		return nil, err
	}
	return &validation, nil
}

func (r *repository) CreateValidation(ctx context.Context, validation *models.Validation) error {
	return r.db.WithContext(ctx).Create(validation).Error
}

func (r *repository) UpdateValidation(ctx context.Context, validation *models.Validation) error {
	return r.db.WithContext(ctx).
		Model(validation).
		Update("success", validation.Success).Error
}
