package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds carried on the record_events queue.
const (
	KindRecordAdded    = "record_added"
	KindRecordsDeleted = "records_deleted"
)

// Envelope wraps every published event with a kind tag, a unique event
// ID and a timestamp. The payload is decoded per kind.
type Envelope struct {
	Kind      string          `json:"kind"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RecordAddedEvent announces one newly inserted record. Only the
// identifier travels on the wire; consumers fetch the full record from
// the store so the queue never carries stale field values.
type RecordAddedEvent struct {
	ID int64 `json:"id"`
}

// RecordsDeletedEvent announces a set of deleted record identifiers.
type RecordsDeletedEvent struct {
	IDs []int64 `json:"ids"`
}

func newEnvelope(kind string, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		Kind:      kind,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}, nil
}

// ToJSON serializes the envelope for publishing.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON deserializes a consumed delivery body.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &e, nil
}

// RecordAdded decodes the payload of a record_added envelope.
func (e *Envelope) RecordAdded() (*RecordAddedEvent, error) {
	if e.Kind != KindRecordAdded {
		return nil, fmt.Errorf("envelope kind %q is not %s", e.Kind, KindRecordAdded)
	}
	var ev RecordAddedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal record_added payload: %w", err)
	}
	return &ev, nil
}

// RecordsDeleted decodes the payload of a records_deleted envelope.
func (e *Envelope) RecordsDeleted() (*RecordsDeletedEvent, error) {
	if e.Kind != KindRecordsDeleted {
		return nil, fmt.Errorf("envelope kind %q is not %s", e.Kind, KindRecordsDeleted)
	}
	var ev RecordsDeletedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal records_deleted payload: %w", err)
	}
	return &ev, nil
}
