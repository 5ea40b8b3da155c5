package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "plateful/internal/domain/chat"
)

// stallingMessages parks MarkRead until the gate opens, signalling entry so
// tests can observe the view mid-round-trip.
type stallingMessages struct {
	domainchat.MessageRepository
	entered chan struct{}
	gate    chan struct{}
}

func (r *stallingMessages) MarkRead(ctx context.Context, id domainchat.MessageID) error {
	r.entered <- struct{}{}
	<-r.gate
	return r.MessageRepository.MarkRead(ctx, id)
}

func TestOpenViewLoadsSnapshot(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	f.send(t, conversation.ID, buyerID, "one")
	f.send(t, conversation.ID, sellerID, "two")

	view, err := f.service.OpenView(context.Background(), conversation.ID, sellerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	messages := view.Messages()
	if len(messages) != 2 {
		t.Fatalf("want 2 messages, got %d", len(messages))
	}
	if messages[0].Text != "one" || messages[1].Text != "two" {
		t.Fatalf("snapshot out of order: %q, %q", messages[0].Text, messages[1].Text)
	}
	if !messages[0].Read {
		t.Fatal("opening the view must mark the peer's message read")
	}
}

func TestOpenViewDeliversLaterSends(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	var appended []domainchat.Message
	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID,
		func(message domainchat.Message) { appended = append(appended, message) })
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	sent := f.send(t, conversation.ID, sellerID, "fresh out the oven")

	messages := view.Messages()
	if len(messages) != 1 {
		t.Fatalf("want 1 message, got %d", len(messages))
	}
	if messages[0].ID != sent.ID {
		t.Fatalf("wrong message delivered: %q", messages[0].ID)
	}
	if !messages[0].Read {
		t.Fatal("delivered peer message must be marked read for the open viewer")
	}
	if f.messages.Unread(sent.ID) {
		t.Fatal("read state not persisted")
	}
	if len(appended) != 1 || appended[0].ID != sent.ID {
		t.Fatalf("append callback got %d messages", len(appended))
	}
}

func TestOpenViewLeavesOwnSendsUnread(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	sent := f.send(t, conversation.ID, buyerID, "is it still there?")
	messages := view.Messages()
	if len(messages) != 1 || messages[0].Read {
		t.Fatal("sender's own message must stay unread")
	}
	if !f.messages.Unread(sent.ID) {
		t.Fatal("own message flipped read in the store")
	}
}

func TestViewDeduplicatesRedelivery(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	sent := f.send(t, conversation.ID, sellerID, "once")
	if err := f.feed.PublishInsert(context.Background(), *sent); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if got := len(view.Messages()); got != 1 {
		t.Fatalf("duplicate delivery not collapsed, got %d messages", got)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	if got := f.feed.SubscriberCount(conversation.ID); got != 1 {
		t.Fatalf("want 1 subscriber, got %d", got)
	}

	view.Close()
	if got := f.feed.SubscriberCount(conversation.ID); got != 0 {
		t.Fatalf("disposer did not release the subscription, %d left", got)
	}

	f.send(t, conversation.ID, sellerID, "too late")
	if got := len(view.Messages()); got != 0 {
		t.Fatalf("closed view received %d messages", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	view.Close()
	view.Close()
	if got := f.feed.SubscriberCount(conversation.ID); got != 0 {
		t.Fatalf("want 0 subscribers, got %d", got)
	}
}

func TestSlowMarkReadDoesNotBlockView(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	stalled := &stallingMessages{
		MessageRepository: f.messages,
		entered:           make(chan struct{}, 1),
		gate:              make(chan struct{}),
	}
	f.service.Messages = stalled

	view, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	sendErr := make(chan error, 1)
	go func() {
		_, err := f.service.SendMessage(context.Background(), conversation.ID, sellerID, "slow path")
		sendErr <- err
	}()

	select {
	case <-stalled.entered:
	case <-time.After(time.Second):
		t.Fatal("insert never reached the store")
	}

	// The store round-trip is parked; the view must stay responsive.
	snapshot := make(chan []domainchat.Message, 1)
	go func() { snapshot <- view.Messages() }()
	select {
	case messages := <-snapshot:
		if len(messages) != 0 {
			t.Fatalf("message applied before the store call finished, got %d", len(messages))
		}
	case <-time.After(time.Second):
		t.Fatal("Messages blocked behind a store round-trip")
	}

	close(stalled.gate)
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}
	messages := view.Messages()
	if len(messages) != 1 || !messages[0].Read {
		t.Fatalf("stalled insert not applied as read, got %d messages", len(messages))
	}
}

func TestOpenViewReleasesSubscriptionOnLoadFailure(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	_, err := f.service.OpenView(context.Background(), conversation.ID, otherID, nil)
	if !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
	if got := f.feed.SubscriberCount(conversation.ID); got != 0 {
		t.Fatalf("failed open leaked %d subscriptions", got)
	}
}

func TestOpenViewRequiresFeed(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	f.service.Feed = nil
	if _, err := f.service.OpenView(context.Background(), conversation.ID, buyerID, nil); err == nil {
		t.Fatal("want error without a feed")
	}
}
