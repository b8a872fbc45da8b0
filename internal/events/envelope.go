package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of an event on the bus and in the outbox.
type Envelope struct {
	EventID        uuid.UUID       `json:"eventId"`
	EventType      string          `json:"eventType"`
	EventVersion   int             `json:"eventVersion"`
	AggregateID    uuid.UUID       `json:"aggregateId"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	ClinicID       uuid.UUID       `json:"clinicId"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Payload        json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// Seal validates evt and wraps it in an envelope.
func Seal[E Event](evt E, opts ...EnvelopeOption) (Envelope, error) {
	valid, err := New(evt)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(valid)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", valid.EventType(), err)
	}
	meta := valid.Metadata()
	env := Envelope{
		EventID:        uuid.New(),
		EventType:      valid.EventType(),
		EventVersion:   valid.EventVersion(),
		AggregateID:    valid.AggregateID(),
		OrganizationID: meta.OrganizationID,
		ClinicID:       meta.ClinicID,
		OccurredAt:     meta.OccurredAt,
		Payload:        payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Topic tag used as a Kafka header, e.g. "appointment.booked.v1".
func (e Envelope) VersionedType() string {
	return fmt.Sprintf("%s.v%d", e.EventType, e.EventVersion)
}
