package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Inventory holds the available stock of one product.
type Inventory struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductCode string    `gorm:"column:product_code;not null"`
	Available   int       `gorm:"column:available;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Inventory) TableName() string { return "inventories" }

func (i *Inventory) BeforeCreate(*gorm.DB) error {
	i.ID = ensureID(i.ID)
	return nil
}

// OrderInventory records one stock movement made for an order so that it can
// be undone by restoring OldQuantity.
type OrderInventory struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	InventoryID   uuid.UUID `gorm:"column:inventory_id;type:uuid;not null"`
	OrderID       string    `gorm:"column:order_id;not null"`
	TransactionID string    `gorm:"column:transaction_id;not null"`
	ProductCode   string    `gorm:"column:product_code;not null"`
	OldQuantity   int       `gorm:"column:old_quantity;not null"`
	OrderQuantity int       `gorm:"column:order_quantity;not null"`
	NewQuantity   int       `gorm:"column:new_quantity;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderInventory) TableName() string { return "order_inventories" }

func (o *OrderInventory) BeforeCreate(*gorm.DB) error {
	o.ID = ensureID(o.ID)
	return nil
}
