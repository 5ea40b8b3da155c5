package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"plateful/internal/domain/listing"
	"plateful/internal/domain/user"
)

var (
	ErrIDRequired           = errors.New("chat: id is required")
	ErrListingRequired      = errors.New("chat: listing reference is required")
	ErrParticipantsRequired = errors.New("chat: buyer and seller are required")
	ErrSelfConversation     = errors.New("chat: buyer and seller must differ")
	ErrNotParticipant       = errors.New("chat: actor is not a conversation participant")
	ErrEmptyMessage         = errors.New("chat: message text must not be empty")
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrMessageNotFound      = errors.New("chat: message not found")
)

type ConversationID string
type MessageID string

// Conversation is the single thread between the buyer who enquired about a
// listing and the listing's owner. LastMessageAt is denormalized and only
// advanced by sends, never by reads.
type Conversation struct {
	ID            ConversationID
	ListingID     listing.ListingID
	Buyer         user.ID
	Seller        user.ID
	CreatedAt     time.Time
	LastMessageAt time.Time
}

func (c *Conversation) Participant(id user.ID) bool {
	return id != "" && (id == c.Buyer || id == c.Seller)
}

// Peer returns the other participant for a known participant.
func (c *Conversation) Peer(id user.ID) user.ID {
	if id == c.Buyer {
		return c.Seller
	}
	return c.Buyer
}

type CreateConversationParams struct {
	ID        ConversationID
	ListingID listing.ListingID
	Buyer     user.ID
	Seller    user.ID
	Now       time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.ListingID)) == "" {
		return nil, ErrListingRequired
	}
	buyer := user.ID(strings.TrimSpace(string(params.Buyer)))
	seller := user.ID(strings.TrimSpace(string(params.Seller)))
	if buyer == "" || seller == "" {
		return nil, ErrParticipantsRequired
	}
	if buyer == seller {
		return nil, ErrSelfConversation
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:            params.ID,
		ListingID:     params.ListingID,
		Buyer:         buyer,
		Seller:        seller,
		CreatedAt:     now,
		LastMessageAt: now,
	}, nil
}

// Message is one entry in a conversation. Read flips false to true exactly
// once, and only through the non-sending participant's retrieval paths.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         user.ID
	Text           string
	CreatedAt      time.Time
	Read           bool
}

type CreateMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         user.ID
	Text           string
	Now            time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrConversationNotFound
	}
	if strings.TrimSpace(string(params.Sender)) == "" {
		return nil, ErrParticipantsRequired
	}
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		Sender:         params.Sender,
		Text:           text,
		CreatedAt:      now.UTC(),
		Read:           false,
	}, nil
}

type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	// ByListingAndBuyer locates the single thread a buyer has for a listing,
	// or returns ErrConversationNotFound.
	ByListingAndBuyer(ctx context.Context, listingID listing.ListingID, buyer user.ID) (*Conversation, error)
	// ByParticipant returns the user's conversations newest-activity first.
	ByParticipant(ctx context.Context, id user.ID) ([]*Conversation, error)
	Insert(ctx context.Context, conversation *Conversation) error
	// TouchLastMessage advances LastMessageAt, never moving it backwards.
	TouchLastMessage(ctx context.Context, id ConversationID, at time.Time) error
}

type MessageRepository interface {
	// ByConversation returns all messages ascending by creation time, ties
	// broken by store insertion order.
	ByConversation(ctx context.Context, id ConversationID) ([]Message, error)
	Insert(ctx context.Context, message *Message) error
	// MarkRead flips a single message to read.
	MarkRead(ctx context.Context, id MessageID) error
	// MarkReadForViewer flips every unread message in the conversation whose
	// sender is not the viewer.
	MarkReadForViewer(ctx context.Context, id ConversationID, viewer user.ID) error
}
