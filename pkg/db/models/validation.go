package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Validation is the compensation record of the product validation step.
// Success flips from false to true on the forward step and back on rollback.
type Validation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       string    `gorm:"column:order_id;not null"`
	TransactionID string    `gorm:"column:transaction_id;not null"`
	Success       bool      `gorm:"column:success;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Validation) TableName() string { return "validations" }

func (v *Validation) BeforeCreate(*gorm.DB) error {
	v.ID = ensureID(v.ID)
	return nil
}
