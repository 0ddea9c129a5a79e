package outbox

import (
	"encoding/json"
	"time"
)

// EnvelopeVersion is the layout written by Emit.
const EnvelopeVersion = 1

// PayloadEnvelope is the stable payload structure stored in outbox_events.
// Data holds the encoded saga event exactly as it goes on the wire.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}
