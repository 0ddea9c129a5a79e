package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/order-saga/api/responses"
	"github.com/angelmondragon/order-saga/api/validators"
	"github.com/angelmondragon/order-saga/internal/orders"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

// OrdersCreate accepts an order and starts its saga.
func OrdersCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var input orders.CreateOrderInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.CreateOrder(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// EventsList returns every recorded saga outcome, newest first.
func EventsList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		events, err := svc.ListEvents(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}

// EventsFilter returns the latest saga outcome for ?orderId= or ?transactionId=.
func EventsFilter(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		query := r.URL.Query()
		event, err := svc.FindEvent(ctx, orders.EventFilter{
			OrderID:       strings.TrimSpace(query.Get("orderId")),
			TransactionID: strings.TrimSpace(query.Get("transactionId")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}
