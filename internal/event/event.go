package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned when a message is not a JSON object with exactly one key.
var ErrDecode = errors.New("expected JSON object with single key")

// Event is one compositor event.
type Event struct {
	// Name is the object's only key, e.g. "WindowFocusChanged".
	Name string
	// Payload is the compact JSON encoding of the whole object.
	Payload []byte
}

// Decode parses a raw JSON message into an Event.
func Decode(raw []byte) (Event, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(obj) != 1 {
		return Event{}, fmt.Errorf("%w: got %d keys in %s", ErrDecode, len(obj), truncate(raw))
	}

	var name string
	for k := range obj {
		name = k
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return Event{Name: name, Payload: payload.Bytes()}, nil
}

const maxQuoted = 256

func truncate(raw []byte) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > maxQuoted {
		return s[:maxQuoted] + "..."
	}
	return s
}
