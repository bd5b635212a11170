package session

import (
	"encoding/json"
	"fmt"
)

// StreamMode selects the granularity of stream events.
type StreamMode string

// StreamModeValues emits the full conversation state on every update.
const StreamModeValues StreamMode = "values"

// Stream event tags.
const (
	EventValues   = "values"
	EventMetadata = "metadata"
	EventError    = "error"
	EventEnd      = "end"
)

// StreamEvent is one incremental update of an in-flight turn.
type StreamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Values decodes the full-state snapshot carried by a values event. ok is
// false for other event tags and for snapshots without a message list.
func (e StreamEvent) Values() (Values, bool, error) {
	if e.Event != EventValues || len(e.Data) == 0 {
		return Values{}, false, nil
	}

	var snapshot struct {
		Messages *[]Message `json:"messages"`
	}
	if err := json.Unmarshal(e.Data, &snapshot); err != nil {
		return Values{}, false, fmt.Errorf("decode values event: %w", err)
	}
	if snapshot.Messages == nil {
		return Values{}, false, nil
	}
	return Values{Messages: *snapshot.Messages}, true, nil
}

// ValuesEvent builds a values event from a snapshot.
func ValuesEvent(values Values) (StreamEvent, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return StreamEvent{}, fmt.Errorf("encode values event: %w", err)
	}
	return StreamEvent{Event: EventValues, Data: data}, nil
}
