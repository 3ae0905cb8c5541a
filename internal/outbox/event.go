// Package outbox records domain events in the same transaction as the state
// change that caused them. A relay publishes them to Kafka afterwards.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	id "donorlink/pkg/domain"
)

// Event types emitted by the blood request module.
const (
	AggregateBloodRequest = "blood_request"

	EventRequestCreated       = "request_created"
	EventContactStatusChanged = "donor_status_updated"
	EventRequestCompleted     = "request_completed"
)

// Event is one outbox row. ProcessedAt is set once the relay has published it.
type Event struct {
	ID            id.EventID
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewEvent marshals payload as JSON into a fresh, unprocessed event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            id.NewEventID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       body,
		CreatedAt:     now,
	}, nil
}
