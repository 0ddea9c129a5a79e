package enums

import "fmt"

// EventSource identifies the component that last touched a saga event.
type EventSource string

const (
	SourceOrchestrator      EventSource = "ORCHESTRATOR"
	SourceProductValidation EventSource = "PRODUCT_VALIDATION"
	SourcePayment           EventSource = "PAYMENT"
	SourceInventory         EventSource = "INVENTORY"
)

var validEventSources = []EventSource{
	SourceOrchestrator,
	SourceProductValidation,
	SourcePayment,
	SourceInventory,
}

// EventSources returns every known source in declaration order.
func EventSources() []EventSource {
	out := make([]EventSource, len(validEventSources))
	copy(out, validEventSources)
	return out
}

// String implements fmt.Stringer.
func (s EventSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EventSource.
func (s EventSource) IsValid() bool {
	for _, candidate := range validEventSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEventSource converts raw input into an EventSource.
func ParseEventSource(value string) (EventSource, error) {
	for _, candidate := range validEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event source %q", value)
}
