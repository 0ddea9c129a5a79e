// Package outbox commits bus messages in the same transaction as the rows
// that produce them and relays them to the bus once committed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event for topic inside tx. Nothing reaches the bus unless tx
// commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, topic saga.Topic, event saga.Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	data, err := saga.Encode(event)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", topic, err)
	}
	now := s.now().UTC()
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    event.ID,
		OccurredAt: now,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	row := models.OutboxEvent{
		ID:         uuid.NewString(),
		Topic:      topic.String(),
		MessageKey: event.OrderID,
		Payload:    string(payload),
		CreatedAt:  now,
	}
	if err := s.repo.Insert(tx.WithContext(ctx), row); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"outbox_id": row.ID,
			"topic":     row.Topic,
			"event_id":  event.ID,
		}), "outbox event queued")
	}
	return nil
}
