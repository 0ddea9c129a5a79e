package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/order-saga/internal/inventory"
	"github.com/angelmondragon/order-saga/internal/orchestrator"
	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/internal/payments"
	"github.com/angelmondragon/order-saga/internal/productvalidation"
	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/bus/memory"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/dbtest"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	"github.com/angelmondragon/order-saga/pkg/idempotency"
	"github.com/angelmondragon/order-saga/pkg/redis"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

type harness struct {
	bus       *memory.Bus
	db        *db.Client
	inventory *inventory.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	client := dbtest.New(t)
	b := memory.New()
	lg := testLogger()
	table := saga.DefaultTable()
	clock := func() time.Time { return fixedNow }

	mr := miniredis.RunT(t)
	rc, err := redis.New(ctx, config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	dedupe, err := idempotency.NewManager(rc, time.Hour)
	require.NoError(t, err)

	orch := newService(t, table, b)
	oc, err := orchestrator.NewConsumer(orch, b, dedupe, lg, nil)
	require.NoError(t, err)
	b.Register(bus.Topics(orchestrator.Topics...), oc.Handle)

	validation, err := productvalidation.NewService(productvalidation.NewRepository(client.DB()), client)
	require.NoError(t, err)
	payment, err := payments.NewService(payments.NewRepository(client.DB()), client, decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	stock, err := inventory.NewService(inventory.NewRepository(client.DB()), client)
	require.NoError(t, err)

	for _, step := range []participant.Step{validation, payment, stock} {
		runner, err := participant.NewRunner(step, b, lg, participant.WithClock(clock))
		require.NoError(t, err)
		consumer, err := participant.NewConsumer(runner, table, b, lg, nil)
		require.NoError(t, err)
		b.Register(consumer.Topics(), consumer.Handle)
	}

	return &harness{bus: b, db: client, inventory: stock}
}

func (h *harness) run(t *testing.T, products ...saga.Product) saga.Event {
	t.Helper()
	ctx := context.Background()
	event := newOrderEvent()
	event.Payload.Products = products
	require.NoError(t, bus.PublishEvent(ctx, h.bus, saga.TopicStartSaga, event))
	require.NoError(t, h.bus.Drain(ctx))
	return onlyEvent(t, h.bus, saga.TopicNotifyEnding)
}

type hop struct {
	source enums.EventSource
	status enums.SagaStatus
}

func hops(event saga.Event) []hop {
	out := make([]hop, 0, len(event.History))
	for _, h := range event.History {
		out = append(out, hop{h.Source, h.Status})
	}
	return out
}

func (h *harness) stock(t *testing.T, code string) int {
	t.Helper()
	n, err := h.inventory.Available(context.Background(), code)
	require.NoError(t, err)
	return n
}

func TestSagaCompletes(t *testing.T) {
	h := newHarness(t)

	final := h.run(t,
		saga.Product{ProductCode: "COMIC_BOOKS", Quantity: 2, UnitValue: 15.5},
		saga.Product{ProductCode: "MUSIC", Quantity: 1, UnitValue: 9},
	)

	assert.Equal(t, enums.SourceOrchestrator, final.Source)
	assert.Equal(t, enums.SagaStatusSuccess, final.Status)
	assert.Equal(t, []hop{
		{enums.SourceOrchestrator, enums.SagaStatusSuccess},
		{enums.SourceProductValidation, enums.SagaStatusSuccess},
		{enums.SourcePayment, enums.SagaStatusSuccess},
		{enums.SourceInventory, enums.SagaStatusSuccess},
		{enums.SourceOrchestrator, enums.SagaStatusSuccess},
	}, hops(final))
	last, _ := final.LastHistory()
	assert.Equal(t, "Saga finished successfully!", last.Message)
	assert.InDelta(t, 40.0, final.Payload.TotalAmount, 1e-9)
	assert.Equal(t, 3, final.Payload.TotalItems)

	assert.Equal(t, 8, h.stock(t, "COMIC_BOOKS"))
	assert.Equal(t, 8, h.stock(t, "MUSIC"))

	// finish-success carries the 4 step entries; FinishSagaSuccess appends
	// the closing entry, so notify-ending sees 5 (see DESIGN.md, History lengths).
	finished := h.bus.Published(saga.TopicFinishSuccess.String())
	require.Len(t, finished, 1)
	atFinish, err := saga.Decode(finished[0].Data)
	require.NoError(t, err)
	assert.Len(t, atFinish.History, 4)
}

func TestSagaOutOfStockCompensatesUpstream(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, saga.Product{ProductCode: "BOOKS", Quantity: 5, UnitValue: 10})

	assert.Equal(t, enums.SagaStatusFail, final.Status)
	assert.Equal(t, []hop{
		{enums.SourceOrchestrator, enums.SagaStatusSuccess},
		{enums.SourceProductValidation, enums.SagaStatusSuccess},
		{enums.SourcePayment, enums.SagaStatusSuccess},
		{enums.SourceInventory, enums.SagaStatusRollbackPending},
		{enums.SourcePayment, enums.SagaStatusFail},
		{enums.SourceProductValidation, enums.SagaStatusFail},
		{enums.SourceOrchestrator, enums.SagaStatusFail},
	}, hops(final))
	assert.Equal(t, "Fail to update inventory: Product is out of stock!", final.History[3].Message)
	assert.Equal(t, "Rollback executed for payment!", final.History[4].Message)
	assert.Equal(t, "Rollback executed on product validation!", final.History[5].Message)

	assert.Equal(t, 2, h.stock(t, "BOOKS"))

	var payment models.Payment
	require.NoError(t, h.db.DB().Where("order_id = ?", "order-1").First(&payment).Error)
	assert.Equal(t, enums.PaymentStatusRefund, payment.Status)

	var validation models.Validation
	require.NoError(t, h.db.DB().Where("order_id = ?", "order-1").First(&validation).Error)
	assert.False(t, validation.Success)
}

func TestSagaPaymentBelowMinimum(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, saga.Product{ProductCode: "COMIC_BOOKS", Quantity: 1, UnitValue: 0.05})

	assert.Equal(t, enums.SagaStatusFail, final.Status)
	assert.Equal(t, []hop{
		{enums.SourceOrchestrator, enums.SagaStatusSuccess},
		{enums.SourceProductValidation, enums.SagaStatusSuccess},
		{enums.SourcePayment, enums.SagaStatusRollbackPending},
		{enums.SourceProductValidation, enums.SagaStatusFail},
		{enums.SourceOrchestrator, enums.SagaStatusFail},
	}, hops(final))
	assert.Equal(t, "Fail to realize payment: The minimum amount available is 0.1", final.History[2].Message)
	assert.InDelta(t, 0.05, final.Payload.TotalAmount, 1e-9)

	var count int64
	require.NoError(t, h.db.DB().Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 10, h.stock(t, "COMIC_BOOKS"))
}

func TestSagaUnknownProductFailsImmediately(t *testing.T) {
	h := newHarness(t)

	final := h.run(t, saga.Product{ProductCode: "VINYL", Quantity: 1, UnitValue: 10})

	assert.Equal(t, []hop{
		{enums.SourceOrchestrator, enums.SagaStatusSuccess},
		{enums.SourceProductValidation, enums.SagaStatusRollbackPending},
		{enums.SourceOrchestrator, enums.SagaStatusFail},
	}, hops(final))
	assert.Empty(t, h.bus.Published(saga.TopicPaymentSuccess.String()))
}

func TestRedeliveredHopIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.run(t, saga.Product{ProductCode: "MOVIES", Quantity: 1, UnitValue: 20})

	for _, msg := range h.bus.Published(saga.TopicOrchestrator.String()) {
		h.bus.Redeliver(msg)
	}
	h.bus.Redeliver(h.bus.Published(saga.TopicStartSaga.String())[0])
	require.NoError(t, h.bus.Drain(context.Background()))

	assert.Len(t, h.bus.Published(saga.TopicNotifyEnding.String()), 1)
	assert.Len(t, h.bus.Published(saga.TopicInventorySuccess.String()), 1)
	assert.Equal(t, 4, h.stock(t, "MOVIES"))
}

func TestRedeliveredForwardTriggerKeepsOneOutcome(t *testing.T) {
	h := newHarness(t)
	first := h.run(t, saga.Product{ProductCode: "MOVIES", Quantity: 1, UnitValue: 20})
	require.Equal(t, enums.SagaStatusSuccess, first.Status)

	triggers := h.bus.Published(saga.TopicPaymentSuccess.String())
	require.Len(t, triggers, 1)
	h.bus.Redeliver(triggers[0])
	require.NoError(t, h.bus.Drain(context.Background()))

	// the duplicate guard reported a second outcome for the payment hop
	outcomes := h.bus.Published(saga.TopicOrchestrator.String())
	last, err := saga.Decode(outcomes[len(outcomes)-1].Data)
	require.NoError(t, err)
	assert.Equal(t, enums.SourcePayment, last.Source)
	assert.Equal(t, enums.SagaStatusRollbackPending, last.Status)

	assert.Len(t, h.bus.Published(saga.TopicNotifyEnding.String()), 1)
	assert.Empty(t, h.bus.Published(saga.TopicProductValidationFail.String()))
	assert.Empty(t, h.bus.Published(saga.TopicFinishFail.String()))
	assert.Equal(t, 4, h.stock(t, "MOVIES"))

	var payment models.Payment
	require.NoError(t, h.db.DB().Where("order_id = ?", "order-1").First(&payment).Error)
	assert.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	var validation models.Validation
	require.NoError(t, h.db.DB().Where("order_id = ?", "order-1").First(&validation).Error)
	assert.True(t, validation.Success)
}

func TestMalformedEventStopsOrchestrator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.bus.Publish(ctx, bus.Message{Topic: saga.TopicOrchestrator.String(), Data: []byte(`{"id":1}`)}))

	err := h.bus.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, saga.ErrMalformedEvent)
}
