package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a payload into an envelope.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Type: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope reads the event name and leaves the payload raw.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", domain.ErrInvalidPayload)
	}
	return env, nil
}

// Decode unmarshals and validates a payload.
func Decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
