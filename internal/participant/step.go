// Package participant implements the contract every saga participant follows:
// guard against replays, apply or undo the local mutation and report exactly
// one outcome back to the orchestrator.
package participant

import (
	"context"
	"errors"

	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

var errUnknownCause = errors.New("step failed without a cause")

// Step is the local business logic of a participant. Implementations only
// decide and persist; reporting is done by the Runner.
type Step interface {
	Source() enums.EventSource
	Messages() Messages
	// Execute applies the forward mutation. A failed Result must leave the
	// underlying resource untouched.
	Execute(ctx context.Context, event saga.Event) Result
	// Compensate restores the resource from the compensation record written
	// by Execute for the same (orderId, transactionId).
	Compensate(ctx context.Context, event saga.Event) Result
}

// Messages are the history texts a participant reports.
type Messages struct {
	Success        string
	Failure        string
	Rollback       string
	RollbackFailed string
}

func (m Messages) failure(cause error) string {
	return m.Failure + ": " + pkgerrors.Reason(cause)
}

func (m Messages) rollbackFailed(cause error) string {
	return m.RollbackFailed + ": " + pkgerrors.Reason(cause)
}

// DuplicateTransaction is the failure a guard reports when a compensation
// record already exists for the (orderId, transactionId) pair.
func DuplicateTransaction() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeIdempotency, "there's another transactionId for this order")
}

// ValidateIdentity checks the identifiers every guard relies on.
func ValidateIdentity(event saga.Event) error {
	if event.OrderID == "" || event.TransactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "OrderID and TransactionID must be informed!")
	}
	return nil
}
