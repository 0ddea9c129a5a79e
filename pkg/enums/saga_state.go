package enums

// SagaState is the orchestrator-level view of a saga instance.
type SagaState string

const (
	SagaStateStarted                  SagaState = "STARTED"
	SagaStateProductValidationPending SagaState = "PRODUCT_VALIDATION_PENDING"
	SagaStatePaymentPending           SagaState = "PAYMENT_PENDING"
	SagaStateInventoryPending         SagaState = "INVENTORY_PENDING"
	SagaStateSuccess                  SagaState = "SUCCESS"
	SagaStateFail                     SagaState = "FAIL"
	SagaStateNotified                 SagaState = "NOTIFIED"
)

// String implements fmt.Stringer.
func (s SagaState) String() string {
	return string(s)
}

// IsTerminal reports whether the saga has reached a final outcome.
func (s SagaState) IsTerminal() bool {
	switch s {
	case SagaStateSuccess, SagaStateFail, SagaStateNotified:
		return true
	default:
		return false
	}
}
