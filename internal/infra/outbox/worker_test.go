package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	appoutbox "plateful/internal/app/outbox"
	"plateful/internal/infra/storage/memory"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type capturingProducer struct {
	sent []published
	err  error
}

func (p *capturingProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func stageEvent(t *testing.T, queue *memory.Outbox, name, aggregate string) appoutbox.EventRecord {
	t.Helper()
	record, err := appoutbox.NewRecord(name, aggregate, time.Now(), map[string]any{"aggregate": aggregate})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := queue.Add(context.Background(), record); err != nil {
		t.Fatalf("add: %v", err)
	}
	return record
}

func TestProcessOncePublishesClaimedEvent(t *testing.T) {
	queue := memory.NewOutbox()
	producer := &capturingProducer{}
	worker := &Worker{Queue: queue, Producer: producer, ID: "w-1"}

	stageEvent(t, queue, "chat.message_sent", "conv-1")

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("want 1 publish, got %d", len(producer.sent))
	}
	got := producer.sent[0]
	if got.topic != "chat.events.v1" {
		t.Fatalf("wrong topic %q", got.topic)
	}
	if got.key != "conv-1" {
		t.Fatalf("wrong key %q", got.key)
	}
	if got.headers["content-type"] != "application/cloudevents+json" {
		t.Fatalf("wrong content type %q", got.headers["content-type"])
	}

	var envelope map[string]any
	if err := json.Unmarshal(got.payload, &envelope); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if envelope["type"] != "chat.message_sent.v1" {
		t.Fatalf("wrong event type %v", envelope["type"])
	}
	if envelope["source"] != "app://plateful" {
		t.Fatalf("wrong source %v", envelope["source"])
	}
	if queue.PendingCount() != 0 {
		t.Fatalf("published event still staged, %d pending", queue.PendingCount())
	}
}

func TestProcessOnceAppliesTopicPrefix(t *testing.T) {
	queue := memory.NewOutbox()
	producer := &capturingProducer{}
	worker := &Worker{Queue: queue, Producer: producer, TopicPrefix: "staging."}

	stageEvent(t, queue, "listing.created", "l-1")

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if got := producer.sent[0].topic; got != "staging.listing.events.v1" {
		t.Fatalf("wrong topic %q", got)
	}
}

func TestProcessOnceRetriesOnPublishFailure(t *testing.T) {
	queue := memory.NewOutbox()
	producer := &capturingProducer{err: errors.New("broker down")}
	worker := &Worker{Queue: queue, Producer: producer, Backoff: []time.Duration{time.Millisecond}}

	stageEvent(t, queue, "chat.message_sent", "conv-1")

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("publish failure must not stop the worker: %v", err)
	}
	if queue.PendingCount() != 1 {
		t.Fatalf("failed event must stay staged, %d pending", queue.PendingCount())
	}

	producer.err = nil
	time.Sleep(5 * time.Millisecond)
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if queue.PendingCount() != 0 {
		t.Fatalf("retried event not drained, %d pending", queue.PendingCount())
	}
}

func TestRetryBackoffEscalatesWithAttempts(t *testing.T) {
	queue := memory.NewOutbox()
	producer := &capturingProducer{err: errors.New("broker down")}
	worker := &Worker{Queue: queue, Producer: producer, Backoff: []time.Duration{time.Millisecond, time.Hour}}

	stageEvent(t, queue, "chat.message_sent", "conv-1")

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	// Second failure lands on the hour-long rung, so the event is not due.
	producer.err = nil
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if len(producer.sent) != 0 {
		t.Fatalf("event published before its backoff elapsed")
	}
	if queue.PendingCount() != 1 {
		t.Fatalf("event must stay staged during backoff, %d pending", queue.PendingCount())
	}
}

func TestProcessOnceEmptyQueueIsNoOp(t *testing.T) {
	worker := &Worker{Queue: memory.NewOutbox(), Producer: &capturingProducer{}}
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("empty queue: %v", err)
	}
}

func TestWorkerRequiresDependencies(t *testing.T) {
	worker := &Worker{}
	if err := worker.ProcessOnce(context.Background()); !errors.Is(err, ErrWorkerNotConfigured) {
		t.Fatalf("want ErrWorkerNotConfigured, got %v", err)
	}
}
