package participant

import (
	"github.com/angelmondragon/order-saga/pkg/saga"
)

// Result is the outcome of a forward step or a compensation. A zero Result is
// a success without payload changes.
type Result struct {
	cause   error
	payload *saga.Order
}

// Succeeded reports a step that took effect.
func Succeeded() Result {
	return Result{}
}

// SucceededWith reports a step that took effect and updated the order snapshot.
func SucceededWith(payload saga.Order) Result {
	return Result{payload: &payload}
}

// Failed reports a step that did not take effect. cause must not be nil.
func Failed(cause error) Result {
	if cause == nil {
		cause = errUnknownCause
	}
	return Result{cause: cause}
}

// FailedWith reports a failed step that still updated the order snapshot,
// e.g. payment totals computed before the minimum amount check.
func FailedWith(cause error, payload saga.Order) Result {
	r := Failed(cause)
	r.payload = &payload
	return r
}

// OK reports whether the step succeeded.
func (r Result) OK() bool {
	return r.cause == nil
}

// Cause returns the failure reason, nil on success.
func (r Result) Cause() error {
	return r.cause
}

// Payload returns the updated order snapshot, if the step produced one.
func (r Result) Payload() (saga.Order, bool) {
	if r.payload == nil {
		return saga.Order{}, false
	}
	return *r.payload, true
}
