package participant_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/bus/memory"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStep struct {
	execute    func(saga.Event) participant.Result
	compensate func(saga.Event) participant.Result
	executed   int
	restored   int
}

func (f *fakeStep) Source() enums.EventSource { return enums.SourcePayment }

func (f *fakeStep) Messages() participant.Messages {
	return participant.Messages{
		Success:        "Payment realized successfully!",
		Failure:        "Fail to realize payment",
		Rollback:       "Rollback executed for payment!",
		RollbackFailed: "Rollback not executed for payment",
	}
}

func (f *fakeStep) Execute(_ context.Context, event saga.Event) participant.Result {
	f.executed++
	if f.execute == nil {
		return participant.Succeeded()
	}
	return f.execute(event)
}

func (f *fakeStep) Compensate(_ context.Context, event saga.Event) participant.Result {
	f.restored++
	if f.compensate == nil {
		return participant.Succeeded()
	}
	return f.compensate(event)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "participant-test", Output: io.Discard})
}

func sampleEvent() saga.Event {
	return saga.Event{
		ID:            "evt-1",
		TransactionID: "tx-1",
		OrderID:       "order-1",
		Source:        enums.SourceProductValidation,
		Status:        enums.SagaStatusSuccess,
		Payload: saga.Order{
			Products: []saga.Product{{ProductCode: "COMIC_BOOKS", Quantity: 2, UnitValue: 15.5}},
		},
		History: []saga.History{
			{Source: enums.SourceOrchestrator, Status: enums.SagaStatusSuccess, Message: "Saga started!", CreatedAt: fixedNow.Add(-time.Minute)},
		},
	}
}

func newRunner(t *testing.T, step participant.Step, b *memory.Bus) *participant.Runner {
	t.Helper()
	runner, err := participant.NewRunner(step, b, testLogger(), participant.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return runner
}

func reported(t *testing.T, b *memory.Bus) saga.Event {
	t.Helper()
	msgs := b.Published(saga.TopicOrchestrator.String())
	require.Len(t, msgs, 1, "exactly one outcome must be published")
	event, err := saga.Decode(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "order-1", msgs[0].Key)
	return event
}

func TestRunnerForwardSuccess(t *testing.T) {
	b := memory.New()
	step := &fakeStep{}
	require.NoError(t, newRunner(t, step, b).Forward(context.Background(), sampleEvent()))

	event := reported(t, b)
	assert.Equal(t, 1, step.executed)
	assert.Equal(t, enums.SourcePayment, event.Source)
	assert.Equal(t, enums.SagaStatusSuccess, event.Status)
	require.Len(t, event.History, 2)
	last, _ := event.LastHistory()
	assert.Equal(t, "Payment realized successfully!", last.Message)
	assert.Equal(t, enums.SourcePayment, last.Source)
	assert.True(t, last.CreatedAt.Equal(fixedNow))
}

func TestRunnerForwardFailureReportsRollbackPending(t *testing.T) {
	b := memory.New()
	step := &fakeStep{execute: func(saga.Event) participant.Result {
		return participant.Failed(pkgerrors.New(pkgerrors.CodeValidation, "The minimum amount available is 0.1"))
	}}
	require.NoError(t, newRunner(t, step, b).Forward(context.Background(), sampleEvent()))

	event := reported(t, b)
	assert.Equal(t, enums.SagaStatusRollbackPending, event.Status)
	last, _ := event.LastHistory()
	assert.Equal(t, "Fail to realize payment: The minimum amount available is 0.1", last.Message)
	assert.Equal(t, enums.SagaStatusRollbackPending, last.Status)
}

func TestRunnerForwardCarriesPayloadOnFailure(t *testing.T) {
	b := memory.New()
	step := &fakeStep{execute: func(event saga.Event) participant.Result {
		payload := event.Payload
		payload.TotalAmount = 0.05
		payload.TotalItems = 1
		return participant.FailedWith(errors.New("too cheap"), payload)
	}}
	require.NoError(t, newRunner(t, step, b).Forward(context.Background(), sampleEvent()))

	event := reported(t, b)
	assert.Equal(t, 0.05, event.Payload.TotalAmount)
	assert.Equal(t, 1, event.Payload.TotalItems)
	last, _ := event.LastHistory()
	assert.Equal(t, "Fail to realize payment: too cheap", last.Message)
}

func TestRunnerForwardRecoversPanics(t *testing.T) {
	b := memory.New()
	step := &fakeStep{execute: func(saga.Event) participant.Result {
		panic("boom")
	}}
	require.NoError(t, newRunner(t, step, b).Forward(context.Background(), sampleEvent()))

	event := reported(t, b)
	assert.Equal(t, enums.SagaStatusRollbackPending, event.Status)
	last, _ := event.LastHistory()
	assert.Equal(t, "Fail to realize payment: boom", last.Message)
}

func TestRunnerStepCannotAlterReportedHistory(t *testing.T) {
	b := memory.New()
	step := &fakeStep{execute: func(event saga.Event) participant.Result {
		event.History[0].Message = "tampered"
		return participant.Succeeded()
	}}
	require.NoError(t, newRunner(t, step, b).Forward(context.Background(), sampleEvent()))

	event := reported(t, b)
	assert.Equal(t, "Saga started!", event.History[0].Message)
}

func TestRunnerRollbackAlwaysReportsFail(t *testing.T) {
	cases := map[string]struct {
		result  participant.Result
		message string
	}{
		"restored": {
			result:  participant.Succeeded(),
			message: "Rollback executed for payment!",
		},
		"not restored": {
			result:  participant.Failed(pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found by orderId and transactionId")),
			message: "Rollback not executed for payment: Payment not found by orderId and transactionId",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b := memory.New()
			step := &fakeStep{compensate: func(saga.Event) participant.Result { return tc.result }}
			require.NoError(t, newRunner(t, step, b).Rollback(context.Background(), sampleEvent()))

			event := reported(t, b)
			assert.Equal(t, 1, step.restored)
			assert.Equal(t, 0, step.executed)
			assert.Equal(t, enums.SagaStatusFail, event.Status)
			last, _ := event.LastHistory()
			assert.Equal(t, tc.message, last.Message)
		})
	}
}

func TestRunnerPublishFailureIsReturned(t *testing.T) {
	b := memory.New()
	b.FailPublish(saga.TopicOrchestrator.String(), errors.New("broker down"))

	err := newRunner(t, &fakeStep{}, b).Forward(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewRunnerValidatesDependencies(t *testing.T) {
	_, err := participant.NewRunner(nil, memory.New(), testLogger())
	require.Error(t, err)
	_, err = participant.NewRunner(&fakeStep{}, nil, testLogger())
	require.Error(t, err)
	_, err = participant.NewRunner(&fakeStep{}, memory.New(), nil)
	require.Error(t, err)
}

func TestFailedWithoutCauseStillFails(t *testing.T) {
	res := participant.Failed(nil)
	assert.False(t, res.OK())
	assert.Error(t, res.Cause())
}

var _ bus.Publisher = (*memory.Bus)(nil)
