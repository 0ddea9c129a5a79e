package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/pkg/bus/memory"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/dbtest"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
}

func startEvent(orderID string) saga.Event {
	return saga.Event{
		ID:            "evt-" + orderID,
		TransactionID: "tx-" + orderID,
		OrderID:       orderID,
		Source:        enums.SourceOrchestrator,
		Status:        enums.SagaStatusSuccess,
		Payload: saga.Order{
			Products: []saga.Product{{ProductCode: "BOOKS", Quantity: 1, UnitValue: 10}},
		},
	}
}

type fixture struct {
	client *db.Client
	bus    *memory.Bus
	svc    *Service
	relay  *Relay
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.New(t)
	b := memory.New()
	repo := NewRepository(client.DB())
	relay, err := NewRelay(RelayParams{
		DB:           client,
		Repository:   repo,
		Publisher:    b,
		Logger:       testLogger(),
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	svc := NewService(repo, testLogger())
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return fixture{client: client, bus: b, svc: svc, relay: relay}
}

func (f fixture) emit(t *testing.T, event saga.Event) {
	t.Helper()
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.svc.Emit(context.Background(), tx, saga.TopicStartSaga, event)
	})
	require.NoError(t, err)
}

func (f fixture) rows(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestEmitQueuesEnvelopeWithoutPublishing(t *testing.T) {
	f := newFixture(t)
	event := startEvent("order-1")
	f.emit(t, event)

	assert.Empty(t, f.bus.Published(saga.TopicStartSaga.String()))
	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, saga.TopicStartSaga.String(), rows[0].Topic)
	assert.Equal(t, "order-1", rows[0].MessageKey)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal([]byte(rows[0].Payload), &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.Equal(t, event.ID, envelope.EventID)
	decoded, err := saga.Decode(envelope.Data)
	require.NoError(t, err)
	assert.Equal(t, event.TransactionID, decoded.TransactionID)
}

func TestEmitIsDiscardedWithItsTransaction(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("order insert failed")

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, f.svc.Emit(context.Background(), tx, saga.TopicStartSaga, startEvent("order-1")))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, f.rows(t))
}

func TestEmitRequiresTransaction(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.svc.Emit(context.Background(), nil, saga.TopicStartSaga, startEvent("order-1")))
}

func TestProcessBatchPublishesOnce(t *testing.T) {
	f := newFixture(t)
	f.emit(t, startEvent("order-1"))
	f.emit(t, startEvent("order-2"))

	n, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs := f.bus.Published(saga.TopicStartSaga.String())
	require.Len(t, msgs, 2)
	assert.Equal(t, "order-1", msgs[0].Key)
	assert.Equal(t, "order-2", msgs[1].Key)
	first, err := saga.Decode(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "tx-order-1", first.TransactionID)

	for _, row := range f.rows(t) {
		assert.NotNil(t, row.PublishedAt)
		assert.Equal(t, 1, row.AttemptCount)
	}

	n, err = f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.bus.Published(saga.TopicStartSaga.String()), 2)
}

func TestProcessBatchKeepsFailedRowsForNextPoll(t *testing.T) {
	f := newFixture(t)
	f.emit(t, startEvent("order-1"))
	f.bus.FailPublish(saga.TopicStartSaga.String(), errors.New("broker down"))

	n, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "broker down")

	f.bus.FailPublish(saga.TopicStartSaga.String(), nil)
	n, err = f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.bus.Published(saga.TopicStartSaga.String()), 1)
	assert.Equal(t, 2, f.rows(t)[0].AttemptCount)
}

func TestProcessBatchSkipsUnknownEnvelopeVersion(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.DB().Create(&models.OutboxEvent{
		ID:         "row-1",
		Topic:      saga.TopicStartSaga.String(),
		MessageKey: "order-1",
		Payload:    `{"version":9,"eventId":"evt-1","data":{}}`,
		CreatedAt:  time.Now().UTC(),
	}).Error)

	n, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.bus.Published(saga.TopicStartSaga.String()))
	require.NotNil(t, f.rows(t)[0].LastError)
	assert.Contains(t, *f.rows(t)[0].LastError, "unsupported envelope version 9")
}

func TestRunRelaysUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.emit(t, startEvent("order-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.bus.Published(saga.TopicStartSaga.String())) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())

	_, err := NewRelay(RelayParams{Repository: repo, Publisher: memory.New(), Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewRelay(RelayParams{DB: client, Publisher: memory.New(), Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewRelay(RelayParams{DB: client, Repository: repo, Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewRelay(RelayParams{DB: client, Repository: repo, Publisher: memory.New()})
	assert.Error(t, err)
}
