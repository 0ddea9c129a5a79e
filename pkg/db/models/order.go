package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an order accepted by the order API. Products holds the JSON
// encoded line items.
type Order struct {
	ID            string          `gorm:"column:id;primaryKey"`
	TransactionID string          `gorm:"column:transaction_id;not null"`
	Products      string          `gorm:"column:products;type:jsonb;not null"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	TotalItems    int             `gorm:"column:total_items;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Order) TableName() string { return "orders" }

// SagaEvent is the final event of a saga as delivered on notify-ending.
type SagaEvent struct {
	ID            string    `gorm:"column:id;primaryKey"`
	OrderID       string    `gorm:"column:order_id;not null"`
	TransactionID string    `gorm:"column:transaction_id;not null"`
	Source        string    `gorm:"column:source;not null"`
	Status        string    `gorm:"column:status;not null"`
	Payload       string    `gorm:"column:payload;type:jsonb;not null"`
	History       string    `gorm:"column:history;type:jsonb;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SagaEvent) TableName() string { return "saga_events" }
