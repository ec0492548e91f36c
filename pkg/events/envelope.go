// Package events publishes saga lifecycle events to a message transport.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersionV1 is the initial lifecycle event schema.
const SchemaVersionV1 = "v1"

// Lifecycle event types.
const (
	EventCommitted = "committed"
	EventCompleted = "completed"
	EventAborted   = "aborted"
)

// Envelope is the JSON document published for every lifecycle event.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	SchemaVersion string         `json:"schema_version"`
	Saga          string         `json:"saga"`
	UID           string         `json:"uid"`
	Step          string         `json:"step,omitempty"`
	Error         string         `json:"error,omitempty"`
	Results       map[string]any `json:"results,omitempty"`
	Sequence      int64          `json:"sequence"`
}

// BuildEnvelopeInput is used to construct a new envelope.
type BuildEnvelopeInput struct {
	EventType string
	Saga      string
	UID       string
	Step      string
	Err       error
	Results   map[string]any
	Sequence  int64
}

// BuildEnvelope creates an envelope with a generated event identity.
func BuildEnvelope(input BuildEnvelopeInput) (Envelope, error) {
	if input.EventType == "" {
		return Envelope{}, fmt.Errorf("events: event type is required")
	}
	if input.Saga == "" {
		return Envelope{}, fmt.Errorf("events: saga name is required")
	}
	if input.UID == "" {
		return Envelope{}, fmt.Errorf("events: saga uid is required")
	}
	if input.Sequence <= 0 {
		return Envelope{}, fmt.Errorf("events: sequence must be > 0")
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     input.EventType,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersionV1,
		Saga:          input.Saga,
		UID:           input.UID,
		Step:          input.Step,
		Results:       input.Results,
		Sequence:      input.Sequence,
	}
	if input.Err != nil {
		env.Error = input.Err.Error()
	}
	return env, nil
}

// DecodeEnvelope parses and checks a published envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: invalid envelope json: %w", err)
	}
	if env.SchemaVersion != SchemaVersionV1 {
		return Envelope{}, fmt.Errorf("events: unsupported schema version %q", env.SchemaVersion)
	}
	if env.EventID == "" || env.UID == "" {
		return Envelope{}, fmt.Errorf("events: envelope missing identity")
	}
	return env, nil
}
