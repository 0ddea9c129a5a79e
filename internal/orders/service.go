// Package orders accepts orders, starts their saga and keeps the final event
// of every saga for querying.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

// Service is the order API surface.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	NotifyEnding(ctx context.Context, event saga.Event) error
	ListEvents(ctx context.Context) ([]EventDTO, error)
	FindEvent(ctx context.Context, filter EventFilter) (*EventDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// emitter queues a bus message inside the caller's transaction.
type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, topic saga.Topic, event saga.Event) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order service. Start events go through outbox, so an
// order and its start event commit together.
func NewService(repo Repository, tx txRunner, outbox emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// CreateOrder stores the order and queues its start event in the same
// transaction. Every call opens a new transaction id, so a resubmitted order
// runs a fresh saga.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if len(input.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Product list is empty!")
	}
	now := s.now().UTC()
	products := make([]saga.Product, 0, len(input.Products))
	amount := decimal.Zero
	items := 0
	for _, p := range input.Products {
		products = append(products, saga.Product{
			ProductCode: strings.TrimSpace(p.ProductCode),
			Quantity:    p.Quantity,
			UnitValue:   p.UnitValue,
		})
		amount = amount.Add(decimal.NewFromFloat(p.UnitValue).Mul(decimal.NewFromInt(int64(p.Quantity))))
		items += p.Quantity
	}
	amount = amount.Round(2)

	encoded, err := json.Marshal(products)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode products")
	}
	order := &models.Order{
		ID:            uuid.NewString(),
		TransactionID: fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()),
		Products:      string(encoded),
		TotalAmount:   amount,
		TotalItems:    items,
		CreatedAt:     now,
	}
	start := saga.Event{
		ID:            uuid.NewString(),
		TransactionID: order.TransactionID,
		OrderID:       order.ID,
		Source:        enums.SourceOrchestrator,
		Status:        enums.SagaStatusSuccess,
		Payload:       saga.Order{ID: order.ID, Products: products},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.outbox.Emit(ctx, tx, saga.TopicStartSaga, start); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start saga")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithSaga(ctx, order.ID, order.TransactionID), "order created, saga start queued")
	return &OrderDTO{
		ID:            order.ID,
		TransactionID: order.TransactionID,
		Products:      products,
		TotalAmount:   amount.InexactFloat64(),
		TotalItems:    items,
		CreatedAt:     now,
	}, nil
}

// NotifyEnding records the final event of a saga. A redelivered event is
// recorded once.
func (s *service) NotifyEnding(ctx context.Context, event saga.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	history, err := json.Marshal(event.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	created, err := s.repo.SaveEvent(ctx, &models.SagaEvent{
		ID:            event.ID,
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		Source:        event.Source.String(),
		Status:        event.Status.String(),
		Payload:       string(payload),
		History:       string(history),
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save final event: %w", err)
	}

	ctx = s.logg.WithSaga(ctx, event.OrderID, event.TransactionID)
	if !created {
		s.logg.Warn(ctx, "final event already recorded")
		return nil
	}
	s.logg.Info(ctx, fmt.Sprintf("Order %s with saga notified! transactionId: %s", event.OrderID, event.TransactionID))
	return nil
}

func (s *service) ListEvents(ctx context.Context) ([]EventDTO, error) {
	rows, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	out := make([]EventDTO, 0, len(rows))
	for i := range rows {
		dto, err := toEventDTO(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

// FindEvent returns the latest final event for the order id, or for the
// transaction id when no order id is given.
func (s *service) FindEvent(ctx context.Context, filter EventFilter) (*EventDTO, error) {
	orderID := strings.TrimSpace(filter.OrderID)
	transactionID := strings.TrimSpace(filter.TransactionID)

	var (
		row      *models.SagaEvent
		err      error
		notFound string
	)
	switch {
	case orderID != "":
		row, err = s.repo.LatestEventByOrderID(ctx, orderID)
		notFound = "Event not found by orderId."
	case transactionID != "":
		row, err = s.repo.LatestEventByTransactionID(ctx, transactionID)
		notFound = "Event not found by transactionId."
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "OrderId or TransactionId must be informed.")
	}
	if db.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find event")
	}
	return toEventDTO(row)
}

func toEventDTO(row *models.SagaEvent) (*EventDTO, error) {
	dto := &EventDTO{
		ID:            row.ID,
		TransactionID: row.TransactionID,
		OrderID:       row.OrderID,
		Source:        row.Source,
		Status:        row.Status,
		CreatedAt:     row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Payload), &dto.Payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode event payload")
	}
	if err := json.Unmarshal([]byte(row.History), &dto.History); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode event history")
	}
	return dto, nil
}
