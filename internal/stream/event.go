package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// payloadField is the single stream entry field carrying the event JSON.
const payloadField = "payload"

// Event announces that an enrollment request was accepted and persisted
// PENDING. The record id is the processing key; the rest of the payload
// travels along for observability, but workers re-read the record from
// the database as the source of truth.
type Event struct {
	RecordID    string    `json:"record_id"`
	StudentID   string    `json:"student_id"`
	PeriodID    string    `json:"period_id"`
	SectionIDs  []string  `json:"section_ids"`
	Online      bool      `json:"online"`
	RequestedAt time.Time `json:"requested_at"`
}

// Encode serialises the event for the stream payload field.
func (e Event) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode enrollment event: %w", err)
	}
	return string(raw), nil
}

// Decode parses a stream payload. An event without a record id is
// malformed regardless of whether the JSON parsed.
func Decode(raw string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("decode enrollment event: %w", err)
	}
	if event.RecordID == "" {
		return Event{}, fmt.Errorf("decode enrollment event: missing record_id")
	}
	return event, nil
}
