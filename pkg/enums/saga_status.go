package enums

import "fmt"

// SagaStatus is the outcome of the last saga step.
type SagaStatus string

const (
	SagaStatusSuccess SagaStatus = "SUCCESS"
	SagaStatusFail    SagaStatus = "FAIL"
	// SagaStatusRollbackPending marks a step that failed before taking effect:
	// nothing to compensate locally, upstream still has to be compensated.
	SagaStatusRollbackPending SagaStatus = "ROLLBACK_PENDING"
)

var validSagaStatuses = []SagaStatus{
	SagaStatusSuccess,
	SagaStatusFail,
	SagaStatusRollbackPending,
}

// SagaStatuses returns every known status in declaration order.
func SagaStatuses() []SagaStatus {
	out := make([]SagaStatus, len(validSagaStatuses))
	copy(out, validSagaStatuses)
	return out
}

// String implements fmt.Stringer.
func (s SagaStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SagaStatus.
func (s SagaStatus) IsValid() bool {
	for _, candidate := range validSagaStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFailure reports whether the status walks the saga backwards.
func (s SagaStatus) IsFailure() bool {
	return s == SagaStatusFail || s == SagaStatusRollbackPending
}

// ParseSagaStatus converts raw input into a SagaStatus.
func ParseSagaStatus(value string) (SagaStatus, error) {
	for _, candidate := range validSagaStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid saga status %q", value)
}
