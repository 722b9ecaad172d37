package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

func UnmarshalEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Unwrap memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// PeekEventType reads only event_type from an encoded envelope; "" when it is not one.
func PeekEventType(b []byte) string {
	var head struct {
		EventType string `json:"event_type"`
	}
	if json.Unmarshal(b, &head) != nil {
		return ""
	}
	return head.EventType
}
