package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

const (
	operationForward  = "forward"
	operationRollback = "rollback"
)

// Runner turns a Step result into the event reported to the orchestrator. It
// owns the source/status assignment, the history entry and the single publish
// of every hop.
type Runner struct {
	step      Step
	publisher bus.Publisher
	logg      *logger.Logger
	metrics   *metrics.SagaMetrics
	now       func() time.Time
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithClock overrides the time source used for history entries.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMetrics records step outcomes on m.
func WithMetrics(m *metrics.SagaMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner wires a step to the publisher the outcomes go to.
func NewRunner(step Step, publisher bus.Publisher, logg *logger.Logger, opts ...RunnerOption) (*Runner, error) {
	if step == nil {
		return nil, fmt.Errorf("participant step required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Runner{
		step:      step,
		publisher: publisher,
		logg:      logg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Source is the participant the runner reports for.
func (r *Runner) Source() enums.EventSource {
	return r.step.Source()
}

// Forward executes the step and reports SUCCESS, or ROLLBACK_PENDING when the
// step did not take effect.
func (r *Runner) Forward(ctx context.Context, event saga.Event) error {
	res := r.run(ctx, operationForward, r.step.Execute, event)
	msgs := r.step.Messages()

	status, message := enums.SagaStatusSuccess, msgs.Success
	if !res.OK() {
		status, message = enums.SagaStatusRollbackPending, msgs.failure(res.Cause())
	}
	return r.report(ctx, operationForward, event, res, status, message)
}

// Rollback compensates the step. The outcome is always FAIL since the saga is
// unwinding either way; the message tells whether the restoration happened.
func (r *Runner) Rollback(ctx context.Context, event saga.Event) error {
	res := r.run(ctx, operationRollback, r.step.Compensate, event)
	msgs := r.step.Messages()

	message := msgs.Rollback
	if !res.OK() {
		message = msgs.rollbackFailed(res.Cause())
	}
	return r.report(ctx, operationRollback, event, res, enums.SagaStatusFail, message)
}

func (r *Runner) run(ctx context.Context, operation string, fn func(context.Context, saga.Event) Result, event saga.Event) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("%v", rec))
			r.logg.Error(ctx, fmt.Sprintf("participant %s panicked", operation), err)
			res = Failed(err)
		}
	}()
	// steps get a copy; the reported event derives from the original
	return fn(ctx, event.Clone())
}

func (r *Runner) report(ctx context.Context, operation string, event saga.Event, res Result, status enums.SagaStatus, message string) error {
	next := event
	if payload, ok := res.Payload(); ok {
		next = next.WithPayload(payload)
	}
	next = next.Advance(r.step.Source(), status, message, r.now())

	ctx = r.logg.WithFields(ctx, map[string]any{
		"operation": operation,
		"status":    status.String(),
	})
	if res.OK() {
		r.logg.Info(ctx, message)
	} else {
		r.logg.Warn(r.logg.WithField(ctx, "cause", res.Cause().Error()), message)
	}
	r.metrics.IncStep(r.step.Source().String(), operation, status.String())

	if err := bus.PublishEvent(ctx, r.publisher, saga.TopicOrchestrator, next); err != nil {
		return fmt.Errorf("reporting %s %s: %w", r.step.Source(), operation, err)
	}
	return nil
}
