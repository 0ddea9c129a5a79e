package productvalidation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/order-saga/internal/productvalidation"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/dbtest"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

func newService(t *testing.T) (*productvalidation.Service, *db.Client) {
	t.Helper()
	client := dbtest.New(t)
	svc, err := productvalidation.NewService(productvalidation.NewRepository(client.DB()), client)
	require.NoError(t, err)
	return svc, client
}

func orderEvent(products ...saga.Product) saga.Event {
	return saga.Event{
		ID:            "evt-1",
		TransactionID: "tx-1",
		OrderID:       "order-1",
		Source:        enums.SourceOrchestrator,
		Status:        enums.SagaStatusSuccess,
		Payload:       saga.Order{Products: products},
	}
}

func validations(t *testing.T, client *db.Client) []models.Validation {
	t.Helper()
	var rows []models.Validation
	require.NoError(t, client.DB().Find(&rows).Error)
	return rows
}

func TestExecuteRecordsValidation(t *testing.T) {
	svc, client := newService(t)

	res := svc.Execute(context.Background(), orderEvent(
		saga.Product{ProductCode: "COMIC_BOOKS", Quantity: 1, UnitValue: 15.5},
		saga.Product{ProductCode: "BOOKS", Quantity: 2, UnitValue: 9.9},
	))
	require.True(t, res.OK(), "unexpected failure: %v", res.Cause())

	rows := validations(t, client)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.Equal(t, "order-1", rows[0].OrderID)
	assert.Equal(t, "tx-1", rows[0].TransactionID)
}

func TestExecuteFailsWithoutMutation(t *testing.T) {
	cases := map[string]struct {
		event saga.Event
		code  pkgerrors.Code
	}{
		"unknown product": {
			event: orderEvent(saga.Product{ProductCode: "VINYL", Quantity: 1, UnitValue: 10}),
			code:  pkgerrors.CodeNotFound,
		},
		"empty product list": {
			event: orderEvent(),
			code:  pkgerrors.CodeValidation,
		},
		"missing transaction": {
			event: func() saga.Event {
				e := orderEvent(saga.Product{ProductCode: "BOOKS", Quantity: 1, UnitValue: 10})
				e.TransactionID = ""
				return e
			}(),
			code: pkgerrors.CodeValidation,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, client := newService(t)
			res := svc.Execute(context.Background(), tc.event)
			require.False(t, res.OK())
			assert.True(t, pkgerrors.IsCode(res.Cause(), tc.code), "got %v", res.Cause())
			assert.Empty(t, validations(t, client))
		})
	}
}

func TestExecuteRejectsDuplicateTransaction(t *testing.T) {
	svc, client := newService(t)
	event := orderEvent(saga.Product{ProductCode: "MUSIC", Quantity: 1, UnitValue: 12})

	require.True(t, svc.Execute(context.Background(), event).OK())
	res := svc.Execute(context.Background(), event)
	require.False(t, res.OK())
	assert.True(t, pkgerrors.IsCode(res.Cause(), pkgerrors.CodeIdempotency))
	assert.Len(t, validations(t, client), 1)
}

func TestCompensateRestoresValidation(t *testing.T) {
	svc, client := newService(t)
	event := orderEvent(saga.Product{ProductCode: "MOVIES", Quantity: 1, UnitValue: 20})
	require.True(t, svc.Execute(context.Background(), event).OK())

	require.True(t, svc.Compensate(context.Background(), event).OK())
	rows := validations(t, client)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
}

func TestCompensateWithoutRecordFails(t *testing.T) {
	svc, _ := newService(t)
	res := svc.Compensate(context.Background(), orderEvent(saga.Product{ProductCode: "MOVIES", Quantity: 1}))
	require.False(t, res.OK())
	assert.True(t, pkgerrors.IsCode(res.Cause(), pkgerrors.CodeNotFound))
	assert.Equal(t, "Validation not found by orderId and transactionId", pkgerrors.Reason(res.Cause()))
}

func TestAddProduct(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddProduct(ctx, "VINYL"))
	err := svc.AddProduct(ctx, "VINYL")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	res := svc.Execute(ctx, orderEvent(saga.Product{ProductCode: "VINYL", Quantity: 1, UnitValue: 30}))
	assert.True(t, res.OK())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	client := dbtest.New(t)
	_, err := productvalidation.NewService(nil, client)
	require.Error(t, err)
	_, err = productvalidation.NewService(productvalidation.NewRepository(client.DB()), nil)
	require.Error(t, err)
}
