// Package orchestrator drives a saga through the participant chain. It keeps
// no state of its own: every decision is a lookup in the transition table
// for the event it just received.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/enums"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

const (
	msgStarted         = "Saga started!"
	msgFinishedSuccess = "Saga finished successfully!"
	msgFinishedFail    = "Saga finished with errors!"
)

// Service implements the orchestrator operations.
type Service struct {
	table     *saga.Table
	publisher bus.Publisher
	logg      *logger.Logger
	metrics   *metrics.SagaMetrics
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for history entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records terminal outcomes on m.
func WithMetrics(m *metrics.SagaMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService builds the orchestrator.
func NewService(table *saga.Table, publisher bus.Publisher, logg *logger.Logger, opts ...Option) (*Service, error) {
	if table == nil {
		return nil, fmt.Errorf("transition table required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Service{
		table:     table,
		publisher: publisher,
		logg:      logg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartSaga stamps a new order as started and hands it to the first
// participant.
func (s *Service) StartSaga(ctx context.Context, event saga.Event) error {
	next := event.Advance(enums.SourceOrchestrator, enums.SagaStatusSuccess, msgStarted, s.now())
	topic, err := s.table.NextFor(next)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "state", enums.SagaStateStarted.String()), msgStarted)
	return s.forward(ctx, topic, next)
}

// ContinueSaga routes a participant outcome. The event is republished as
// received; the participant already recorded its hop.
func (s *Service) ContinueSaga(ctx context.Context, event saga.Event) error {
	topic, err := s.table.NextFor(event)
	if err != nil {
		return err
	}
	state, _ := s.table.StateFor(topic)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"state":  state.String(),
		"source": event.Source.String(),
		"status": event.Status.String(),
	}), fmt.Sprintf("saga continuing to %s", topic))
	return s.forward(ctx, topic, event)
}

// FinishSagaSuccess closes a saga every participant completed.
func (s *Service) FinishSagaSuccess(ctx context.Context, event saga.Event) error {
	return s.finish(ctx, event, enums.SagaStatusSuccess, msgFinishedSuccess)
}

// FinishSagaFail closes a saga that has been compensated.
func (s *Service) FinishSagaFail(ctx context.Context, event saga.Event) error {
	return s.finish(ctx, event, enums.SagaStatusFail, msgFinishedFail)
}

func (s *Service) finish(ctx context.Context, event saga.Event, status enums.SagaStatus, message string) error {
	next := event.Advance(enums.SourceOrchestrator, status, message, s.now())
	state := enums.SagaStateSuccess
	if status != enums.SagaStatusSuccess {
		state = enums.SagaStateFail
	}
	s.logg.Info(s.logg.WithField(ctx, "state", state.String()), message)
	if err := s.forward(ctx, saga.TopicNotifyEnding, next); err != nil {
		return err
	}
	s.metrics.IncFinished(state.String())
	return nil
}

func (s *Service) forward(ctx context.Context, topic saga.Topic, event saga.Event) error {
	if err := bus.PublishEvent(ctx, s.publisher, topic, event); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}
