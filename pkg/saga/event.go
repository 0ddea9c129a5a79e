// Package saga holds the event envelope that travels between the saga
// services, its wire codec and the transition table that routes it.
package saga

import (
	"time"

	"github.com/angelmondragon/order-saga/pkg/enums"
)

// Product is a single order line.
type Product struct {
	ProductCode string  `json:"productCode" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	UnitValue   float64 `json:"unitValue" validate:"gte=0"`
}

// Order is the order snapshot carried as the event payload. Totals are
// filled in by the participants as the saga advances.
type Order struct {
	ID          string    `json:"id,omitempty"`
	Products    []Product `json:"products" validate:"dive"`
	TotalAmount float64   `json:"totalAmount" validate:"gte=0"`
	TotalItems  int       `json:"totalItems" validate:"gte=0"`
}

// History is one immutable entry of the saga audit trail.
type History struct {
	Source    enums.EventSource `json:"source" validate:"required,oneof=ORCHESTRATOR PRODUCT_VALIDATION PAYMENT INVENTORY"`
	Status    enums.SagaStatus  `json:"status" validate:"required,oneof=SUCCESS FAIL ROLLBACK_PENDING"`
	Message   string            `json:"message" validate:"required"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Event is the saga envelope. It is handled as a value: every hop derives a
// new Event instead of mutating the one it received.
type Event struct {
	ID            string            `json:"id" validate:"required"`
	TransactionID string            `json:"transactionId" validate:"required"`
	OrderID       string            `json:"orderId" validate:"required"`
	Source        enums.EventSource `json:"source" validate:"required,oneof=ORCHESTRATOR PRODUCT_VALIDATION PAYMENT INVENTORY"`
	Status        enums.SagaStatus  `json:"status" validate:"required,oneof=SUCCESS FAIL ROLLBACK_PENDING"`
	Payload       Order             `json:"payload"`
	History       []History         `json:"history" validate:"dive"`
}

// AddHistory returns a copy of the event with entry appended. The entry
// timestamp is clamped to the previous one so the trail never goes back in
// time, even when hosts disagree on the clock.
func (e Event) AddHistory(entry History) Event {
	next := e.Clone()
	if last, ok := e.LastHistory(); ok && entry.CreatedAt.Before(last.CreatedAt) {
		entry.CreatedAt = last.CreatedAt
	}
	next.History = append(next.History, entry)
	return next
}

// Advance records the outcome of the current hop: it reassigns source and
// status and appends the matching history entry.
func (e Event) Advance(source enums.EventSource, status enums.SagaStatus, message string, at time.Time) Event {
	next := e.AddHistory(History{
		Source:    source,
		Status:    status,
		Message:   message,
		CreatedAt: at.UTC(),
	})
	next.Source = source
	next.Status = status
	return next
}

// WithPayload returns a copy of the event carrying payload.
func (e Event) WithPayload(payload Order) Event {
	next := e.Clone()
	next.Payload = payload.clone()
	return next
}

// LastHistory returns the most recent history entry.
func (e Event) LastHistory() (History, bool) {
	if len(e.History) == 0 {
		return History{}, false
	}
	return e.History[len(e.History)-1], true
}

// Clone returns a deep copy so callers never share the history backing array.
func (e Event) Clone() Event {
	next := e
	next.Payload = e.Payload.clone()
	next.History = make([]History, len(e.History), len(e.History)+1)
	copy(next.History, e.History)
	return next
}

func (o Order) clone() Order {
	next := o
	next.Products = make([]Product, len(o.Products))
	copy(next.Products, o.Products)
	return next
}
