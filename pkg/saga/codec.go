package saga

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedEvent reports a message that cannot be turned into an Event.
// It is a protocol defect and must never be swallowed.
var ErrMalformedEvent = errors.New("malformed saga event")

var (
	eventKeys   = []string{"id", "transactionId", "orderId", "source", "status", "payload", "history"}
	payloadKeys = []string{"products", "totalAmount", "totalItems"}
	productKeys = []string{"productCode", "quantity", "unitValue"}
	historyKeys = []string{"source", "status", "message", "createdAt"}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Encode serialises the event in its wire form.
func Encode(event Event) ([]byte, error) {
	wire := event.Clone()
	if wire.Payload.Products == nil {
		wire.Payload.Products = []Product{}
	}
	return json.Marshal(wire)
}

// Decode parses and validates a wire event. Unknown fields, missing fields
// and invalid values all yield an error wrapping ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	if err := checkShape(data); err != nil {
		return Event{}, err
	}

	var event Event
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(event); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrMalformedEvent, describe(err))
	}
	for i, entry := range event.History {
		if entry.CreatedAt.IsZero() {
			return Event{}, fmt.Errorf("%w: history[%d].createdAt is required", ErrMalformedEvent, i)
		}
	}
	return event, nil
}

func checkShape(data []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := requireKeys("event", root, eventKeys); err != nil {
		return err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(root["payload"], &payload); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
	}
	if err := requireKeys("payload", payload, payloadKeys); err != nil {
		return err
	}
	if err := requireEach("payload.products", payload["products"], productKeys); err != nil {
		return err
	}
	return requireEach("history", root["history"], historyKeys)
}

func requireEach(name string, raw json.RawMessage, keys []string) error {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
	}
	if items == nil {
		return fmt.Errorf("%w: %s must be an array", ErrMalformedEvent, name)
	}
	for i, item := range items {
		if err := requireKeys(fmt.Sprintf("%s[%d]", name, i), item, keys); err != nil {
			return err
		}
	}
	return nil
}

func requireKeys(name string, obj map[string]json.RawMessage, keys []string) error {
	if obj == nil {
		return fmt.Errorf("%w: %s must be an object", ErrMalformedEvent, name)
	}
	for _, key := range keys {
		value, ok := obj[key]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return fmt.Errorf("%w: %s.%s is required", ErrMalformedEvent, name, key)
		}
	}
	return nil
}

func describe(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
