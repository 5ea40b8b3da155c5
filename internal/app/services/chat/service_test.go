package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/pubsub"
	"plateful/internal/infra/storage/memory"
)

const (
	sellerID = domainuser.ID("seller-1")
	buyerID  = domainuser.ID("buyer-1")
	otherID  = domainuser.ID("buyer-2")
)

type fixture struct {
	service  *Service
	messages *memory.MessageRepository
	feed     *pubsub.Memory
	listing  domainlisting.ListingID
	clock    *stepClock
}

// stepClock advances one second per call so every message gets a distinct
// creation time.
type stepClock struct {
	current time.Time
}

func (c *stepClock) now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &stepClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}

	listings := memory.NewListingRepository()
	item, err := domainlisting.NewListing(domainlisting.CreateParams{
		ID:         "listing-1",
		Owner:      sellerID,
		Title:      "Day-old bagels",
		PriceCents: 0,
		Category:   domainlisting.CategoryBakery,
		Pickup:     domainlisting.Address{Line1: "1 Oven St", City: "Bristol"},
		Now:        clock.now(),
	})
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := item.Activate(clock.now()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := listings.Save(context.Background(), item); err != nil {
		t.Fatalf("save listing: %v", err)
	}

	messages := memory.NewMessageRepository()
	feed := pubsub.NewMemory()
	return &fixture{
		service: &Service{
			Conversations: memory.NewConversationRepository(),
			Messages:      messages,
			Listings:      listings,
			Feed:          feed,
			Now:           clock.now,
		},
		messages: messages,
		feed:     feed,
		listing:  item.ID,
		clock:    clock,
	}
}

func (f *fixture) openConversation(t *testing.T) *domainchat.Conversation {
	t.Helper()
	conversation, err := f.service.GetOrCreateConversation(context.Background(), f.listing, buyerID)
	if err != nil {
		t.Fatalf("get or create conversation: %v", err)
	}
	return conversation
}

func (f *fixture) send(t *testing.T, id domainchat.ConversationID, sender domainuser.ID, text string) *domainchat.Message {
	t.Helper()
	message, err := f.service.SendMessage(context.Background(), id, sender, text)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	return message
}

func TestGetOrCreateConversationReturnsSameThread(t *testing.T) {
	f := newFixture(t)
	first := f.openConversation(t)
	second := f.openConversation(t)
	if first.ID != second.ID {
		t.Fatalf("expected one thread, got %q and %q", first.ID, second.ID)
	}
	if first.Buyer != buyerID || first.Seller != sellerID {
		t.Fatalf("participants wrong: %+v", first)
	}
}

func TestGetOrCreateConversationPerBuyer(t *testing.T) {
	f := newFixture(t)
	first := f.openConversation(t)
	second, err := f.service.GetOrCreateConversation(context.Background(), f.listing, otherID)
	if err != nil {
		t.Fatalf("get or create conversation: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("distinct buyers must get distinct threads")
	}
}

func TestGetOrCreateConversationRejectsOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.GetOrCreateConversation(context.Background(), f.listing, sellerID)
	if !errors.Is(err, domainchat.ErrSelfConversation) {
		t.Fatalf("want ErrSelfConversation, got %v", err)
	}
}

func TestGetOrCreateConversationUnknownListing(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.GetOrCreateConversation(context.Background(), "missing", buyerID)
	if !errors.Is(err, domainlisting.ErrNotFound) {
		t.Fatalf("want listing not found, got %v", err)
	}
}

func TestSendMessageTrimsText(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	message := f.send(t, conversation.ID, buyerID, "  still available?  ")
	if message.Text != "still available?" {
		t.Fatalf("text not trimmed: %q", message.Text)
	}
	if message.Read {
		t.Fatal("new message must start unread")
	}
}

// countingConversations counts store lookups so tests can assert rejected
// input never reaches the repository.
type countingConversations struct {
	domainchat.ConversationRepository
	byID int
}

func (c *countingConversations) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	c.byID++
	return c.ConversationRepository.ByID(ctx, id)
}

func TestSendWhitespaceOnlyRejected(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)

	counter := &countingConversations{ConversationRepository: f.service.Conversations}
	f.service.Conversations = counter

	_, err := f.service.SendMessage(context.Background(), conversation.ID, buyerID, "   \n\t ")
	if !errors.Is(err, domainchat.ErrEmptyMessage) {
		t.Fatalf("want ErrEmptyMessage, got %v", err)
	}
	if counter.byID != 0 {
		t.Fatalf("rejected send must not touch the store, got %d lookups", counter.byID)
	}
	stored, err := f.messages.ByConversation(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("by conversation: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("rejected send must store nothing, got %d messages", len(stored))
	}
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	_, err := f.service.SendMessage(context.Background(), conversation.ID, otherID, "let me in")
	if !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
}

func TestSendMessageAdvancesLastActivity(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	message := f.send(t, conversation.ID, buyerID, "hello")

	updated, err := f.service.Conversations.ByID(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if !updated.LastMessageAt.Equal(message.CreatedAt) {
		t.Fatalf("last activity %v != message time %v", updated.LastMessageAt, message.CreatedAt)
	}
}

func TestListMessagesAscending(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	f.send(t, conversation.ID, buyerID, "first")
	f.send(t, conversation.ID, sellerID, "second")
	f.send(t, conversation.ID, buyerID, "third")

	messages, err := f.service.ListMessages(context.Background(), conversation.ID, buyerID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("want 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Text != want {
			t.Fatalf("position %d: got %q, want %q", i, messages[i].Text, want)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("messages out of order")
		}
	}
}

func TestListMessagesMarksForeignMessagesRead(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	fromBuyer := f.send(t, conversation.ID, buyerID, "from buyer")
	fromSeller := f.send(t, conversation.ID, sellerID, "from seller")

	messages, err := f.service.ListMessages(context.Background(), conversation.ID, sellerID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, message := range messages {
		switch message.ID {
		case fromBuyer.ID:
			if !message.Read {
				t.Fatal("peer message must be returned read")
			}
		case fromSeller.ID:
			if message.Read {
				t.Fatal("viewer's own message must stay unread")
			}
		}
	}
	if f.messages.Unread(fromBuyer.ID) {
		t.Fatal("peer message not persisted as read")
	}
	if !f.messages.Unread(fromSeller.ID) {
		t.Fatal("own message must stay unread in the store")
	}
}

func TestListMessagesDoesNotTouchLastActivity(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	message := f.send(t, conversation.ID, buyerID, "hello")

	if _, err := f.service.ListMessages(context.Background(), conversation.ID, sellerID); err != nil {
		t.Fatalf("list messages: %v", err)
	}
	updated, err := f.service.Conversations.ByID(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if !updated.LastMessageAt.Equal(message.CreatedAt) {
		t.Fatal("reading must not advance last activity")
	}
}

func TestListMessagesRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	conversation := f.openConversation(t)
	_, err := f.service.ListMessages(context.Background(), conversation.ID, otherID)
	if !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
}

func TestListConversationsNewestActivityFirst(t *testing.T) {
	f := newFixture(t)
	first := f.openConversation(t)
	second, err := f.service.GetOrCreateConversation(context.Background(), f.listing, otherID)
	if err != nil {
		t.Fatalf("get or create conversation: %v", err)
	}

	f.send(t, first.ID, buyerID, "bump the older thread")

	threads, err := f.service.ListConversations(context.Background(), sellerID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("want 2 threads, got %d", len(threads))
	}
	if threads[0].ID != first.ID || threads[1].ID != second.ID {
		t.Fatalf("threads not ordered by last activity: %q, %q", threads[0].ID, threads[1].ID)
	}
}
