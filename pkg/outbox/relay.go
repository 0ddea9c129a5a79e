package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type RelayParams struct {
	DB           txRunner
	Repository   *Repository
	Publisher    bus.Publisher
	Logger       *logger.Logger
	BatchSize    int
	PollInterval time.Duration
}

// Relay moves committed outbox rows to the bus. A row whose publish fails
// keeps its place and is tried again on the next poll.
type Relay struct {
	db           txRunner
	repo         *Repository
	publisher    bus.Publisher
	logg         *logger.Logger
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

func NewRelay(params RelayParams) (*Relay, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	interval := params.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Relay{
		db:           params.DB,
		repo:         params.Repository,
		publisher:    params.Publisher,
		logg:         params.Logger,
		batchSize:    batch,
		pollInterval: interval,
		now:          time.Now,
	}, nil
}

// Run polls until ctx is cancelled. A full batch is followed by another poll
// straight away; otherwise the relay waits one poll interval.
func (r *Relay) Run(ctx context.Context) error {
	ctx = r.logg.WithField(ctx, "component", "outbox-relay")
	r.logg.Info(ctx, "outbox relay started")
	for {
		if ctx.Err() != nil {
			r.logg.Info(ctx, "outbox relay stopped")
			return nil
		}

		published, err := r.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			r.logg.Error(ctx, "outbox relay batch error", err)
		}
		if err == nil && published == r.batchSize {
			continue
		}

		timer := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// ProcessBatch publishes one batch of unpublished rows and returns how many
// reached the bus.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch unpublished: %w", err)
		}
		for _, row := range rows {
			fields := map[string]any{
				"outbox_id":     row.ID,
				"topic":         row.Topic,
				"attempt_count": row.AttemptCount,
			}
			if err := r.publish(ctx, row); err != nil {
				warnCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", err.Error())
				r.logg.Warn(warnCtx, "outbox publish failed")
				if markErr := r.repo.MarkFailedTx(tx, row.ID, err); markErr != nil {
					return fmt.Errorf("mark failure %s: %w", row.ID, markErr)
				}
				continue
			}
			if err := r.repo.MarkPublishedTx(tx, row.ID, r.now().UTC()); err != nil {
				return fmt.Errorf("mark published %s: %w", row.ID, err)
			}
			published++
			r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		}
		return nil
	})
	return published, err
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent) error {
	var envelope PayloadEnvelope
	if err := json.Unmarshal([]byte(row.Payload), &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version != EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return r.publisher.Publish(publishCtx, bus.Message{
		Topic: row.Topic,
		Key:   row.MessageKey,
		Data:  envelope.Data,
	})
}
