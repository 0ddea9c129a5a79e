package orders

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/order-saga/pkg/db/models"
)

// Repository persists orders and the final saga events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	// SaveEvent inserts the event unless one with the same id exists and
	// reports whether a row was written.
	SaveEvent(ctx context.Context, event *models.SagaEvent) (bool, error)
	ListEvents(ctx context.Context) ([]models.SagaEvent, error)
	LatestEventByOrderID(ctx context.Context, orderID string) (*models.SagaEvent, error)
	LatestEventByTransactionID(ctx context.Context, transactionID string) (*models.SagaEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SaveEvent(ctx context.Context, event *models.SagaEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListEvents(ctx context.Context) ([]models.SagaEvent, error) {
	var events []models.SagaEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

func (r *repository) LatestEventByOrderID(ctx context.Context, orderID string) (*models.SagaEvent, error) {
	return r.latest(ctx, "order_id = ?", orderID)
}

func (r *repository) LatestEventByTransactionID(ctx context.Context, transactionID string) (*models.SagaEvent, error) {
	return r.latest(ctx, "transaction_id = ?", transactionID)
}

func (r *repository) latest(ctx context.Context, where string, arg string) (*models.SagaEvent, error) {
	var event models.SagaEvent
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("created_at DESC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
