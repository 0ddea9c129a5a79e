package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/models"
)

// Repository persists stock levels and the per-order movements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProductCode(ctx context.Context, code string) (*models.Inventory, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Inventory, error)
	Create(ctx context.Context, inv *models.Inventory) error
	UpdateAvailable(ctx context.Context, inv *models.Inventory) error
	MovementsExist(ctx context.Context, orderID, transactionID string) (bool, error)
	FindMovements(ctx context.Context, orderID, transactionID string) ([]models.OrderInventory, error)
	CreateMovement(ctx context.Context, movement *models.OrderInventory) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// locked takes a row lock on Postgres; SQLite serialises writers already.
func (r *repository) locked(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == db.DriverPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *repository) FindByProductCode(ctx context.Context, code string) (*models.Inventory, error) {
	var inv models.Inventory
	if err := r.locked(ctx).Where("product_code = ?", code).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Inventory, error) {
	var inv models.Inventory
	if err := r.locked(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Create(ctx context.Context, inv *models.Inventory) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repository) UpdateAvailable(ctx context.Context, inv *models.Inventory) error {
	return r.db.WithContext(ctx).
		Model(inv).
		Update("available", inv.Available).Error
}

func (r *repository) MovementsExist(ctx context.Context, orderID, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderInventory{}).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindMovements(ctx context.Context, orderID, transactionID string) ([]models.OrderInventory, error) {
	var movements []models.OrderInventory
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.OrderInventory) error {
	return r.db.WithContext(ctx).Create(movement).Error
}
