package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is a domain event staged for asynchronous publication.
// Attempts counts failed publishes so far; the store fills it in on claim.
type EventRecord struct {
	ID         string
	Name       string
	Aggregate  string
	OccurredAt time.Time
	Payload    []byte
	Headers    map[string]string
	Attempts   int
}

// Recorder stages events alongside the state change that produced them.
type Recorder interface {
	Add(ctx context.Context, record EventRecord) error
}

// NewRecord marshals data into a staged event.
func NewRecord(name, aggregate string, occurredAt time.Time, data any) (EventRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:         uuid.NewString(),
		Name:       name,
		Aggregate:  aggregate,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}, nil
}
