package orders

import (
	"time"

	"github.com/angelmondragon/order-saga/pkg/saga"
)

// ProductInput is one requested order line.
type ProductInput struct {
	ProductCode string  `json:"productCode" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitValue   float64 `json:"unitValue" validate:"gte=0"`
}

// CreateOrderInput is the body of POST /api/orders.
type CreateOrderInput struct {
	Products []ProductInput `json:"products" validate:"required,min=1,dive"`
}

// OrderDTO is an accepted order.
type OrderDTO struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transactionId"`
	Products      []saga.Product `json:"products"`
	TotalAmount   float64        `json:"totalAmount"`
	TotalItems    int            `json:"totalItems"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// EventFilter selects the latest final event of an order or a transaction.
type EventFilter struct {
	OrderID       string
	TransactionID string
}

// EventDTO is the final state of a saga as recorded by the order service.
type EventDTO struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transactionId"`
	OrderID       string         `json:"orderId"`
	Source        string         `json:"source"`
	Status        string         `json:"status"`
	Payload       saga.Order     `json:"payload"`
	History       []saga.History `json:"eventHistory"`
	CreatedAt     time.Time      `json:"createdAt"`
}
