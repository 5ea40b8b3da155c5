package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "plateful/internal/app/outbox"
)

type outboxEntry struct {
	record   appoutbox.EventRecord
	attempts int
	retryAt  time.Time
	claimed  string
	lastErr  string
}

// Outbox stages events in memory and hands them to the publisher worker one
// at a time.
type Outbox struct {
	mu      sync.Mutex
	pending []*outboxEntry
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, &outboxEntry{record: record})
	return nil
}

// Claim hands the oldest publishable event to a worker, or nil when none is
// due.
func (o *Outbox) Claim(ctx context.Context, workerID string) (*appoutbox.EventRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for _, entry := range o.pending {
		if entry.claimed != "" {
			continue
		}
		if !entry.retryAt.IsZero() && entry.retryAt.After(now) {
			continue
		}
		entry.claimed = workerID
		record := entry.record
		record.Attempts = entry.attempts
		return &record, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, entry := range o.pending {
		if entry.record.ID == id {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, entry := range o.pending {
		if entry.record.ID == id {
			entry.claimed = ""
			entry.attempts++
			entry.retryAt = retryAt
			entry.lastErr = reason
			return nil
		}
	}
	return nil
}

// PendingCount reports how many events await publication. Test helper.
func (o *Outbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ appoutbox.Recorder = (*Outbox)(nil)
