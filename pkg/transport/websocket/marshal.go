package websocket

import (
	"encoding/json"
	"fmt"
)

// marshalEvent serializes an outbound protocol event. Raw byte payloads are
// passed through untouched so callers can forward pre-encoded frames.
func marshalEvent(event any) ([]byte, error) {
	switch v := event.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("websocket: marshal event: %w", err)
	}
	return data, nil
}
