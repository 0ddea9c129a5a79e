package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/enums"
)

// Payment is the compensation record of the payment step.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       string              `gorm:"column:order_id;not null"`
	TransactionID string              `gorm:"column:transaction_id;not null"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	TotalItems    int                 `gorm:"column:total_items;not null;default:0"`
	Status        enums.PaymentStatus `gorm:"column:status;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	p.ID = ensureID(p.ID)
	return nil
}
