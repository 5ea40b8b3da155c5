package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "plateful/internal/app/outbox"
	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

// Feed is the publish/subscribe channel carrying message-insert events. A
// subscription stays live until its disposer runs.
type Feed interface {
	PublishInsert(ctx context.Context, message domainchat.Message) error
	SubscribeInserts(ctx context.Context, id domainchat.ConversationID, fn func(domainchat.Message)) (stop func(), err error)
}

// Service owns conversation lookup/creation, ordered message retrieval,
// read-state transitions and live delivery for open conversation views.
type Service struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Listings      domainlisting.Repository
	Feed          Feed
	Events        appoutbox.Recorder
	Logger        *slog.Logger
	Now           func() time.Time
}

var errServiceNotConfigured = errors.New("chat: service missing repositories")

func (s *Service) ready() error {
	if s.Conversations == nil || s.Messages == nil || s.Listings == nil {
		return errServiceNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GetOrCreateConversation returns the existing thread between the requester
// and the listing owner, creating it on first contact. Lookup-then-create is
// not atomic: a concurrent double-submission may create a duplicate, which
// callers tolerate by retrying the lookup.
func (s *Service) GetOrCreateConversation(ctx context.Context, listingID domainlisting.ListingID, requester domainuser.ID) (*domainchat.Conversation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	item, err := s.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if item.Owner == requester {
		return nil, domainchat.ErrSelfConversation
	}

	existing, err := s.Conversations.ByListingAndBuyer(ctx, listingID, requester)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return nil, fmt.Errorf("chat: lookup conversation: %w", err)
	}

	conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        domainchat.ConversationID(uuid.NewString()),
		ListingID: listingID,
		Buyer:     requester,
		Seller:    item.Owner,
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Conversations.Insert(ctx, conversation); err != nil {
		return nil, fmt.Errorf("chat: create conversation: %w", err)
	}
	s.record(ctx, "chat.conversation_started", string(conversation.ID), conversation.CreatedAt, map[string]any{
		"conversation_id": conversation.ID,
		"listing_id":      conversation.ListingID,
		"buyer_id":        conversation.Buyer,
		"seller_id":       conversation.Seller,
	})
	if s.Logger != nil {
		s.Logger.Info("conversation started",
			"conversation_id", conversation.ID,
			"listing_id", conversation.ListingID,
			"buyer_id", conversation.Buyer,
		)
	}
	return conversation, nil
}

// ListConversations returns the viewer's threads newest-activity first.
func (s *Service) ListConversations(ctx context.Context, viewer domainuser.ID) ([]*domainchat.Conversation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Conversations.ByParticipant(ctx, viewer)
}

// ListMessages returns all messages ascending by creation time and, as a side
// effect, marks every returned message from the other participant as read.
// The conversation's last-activity timestamp is left untouched.
func (s *Service) ListMessages(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) ([]domainchat.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	conversation, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.Participant(viewer) {
		return nil, domainchat.ErrNotParticipant
	}

	messages, err := s.Messages.ByConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	if err := s.Messages.MarkReadForViewer(ctx, id, viewer); err != nil {
		return nil, fmt.Errorf("chat: mark read: %w", err)
	}
	for i := range messages {
		if messages[i].Sender != viewer {
			messages[i].Read = true
		}
	}
	return messages, nil
}

// SendMessage validates and appends a message, then advances the
// conversation's last-activity timestamp to the message's own creation time
// so last-activity never precedes the message it reflects. Invalid input is
// rejected before any store access.
func (s *Service) SendMessage(ctx context.Context, id domainchat.ConversationID, sender domainuser.ID, text string) (*domainchat.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domainchat.ErrEmptyMessage
	}
	conversation, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.Participant(sender) {
		return nil, domainchat.ErrNotParticipant
	}

	message, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: id,
		Sender:         sender,
		Text:           text,
		Now:            s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Messages.Insert(ctx, message); err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	if err := s.Conversations.TouchLastMessage(ctx, id, message.CreatedAt); err != nil {
		return nil, fmt.Errorf("chat: touch conversation: %w", err)
	}
	if s.Feed != nil {
		if err := s.Feed.PublishInsert(ctx, *message); err != nil && s.Logger != nil {
			s.Logger.Warn("message insert publish failed",
				"conversation_id", id, "message_id", message.ID, "error", err)
		}
	}
	s.record(ctx, "chat.message_sent", string(id), message.CreatedAt, map[string]any{
		"conversation_id": id,
		"message_id":      message.ID,
		"sender_id":       sender,
	})
	return message, nil
}

func (s *Service) record(ctx context.Context, name, aggregate string, at time.Time, data map[string]any) {
	if s.Events == nil {
		return
	}
	event, err := appoutbox.NewRecord(name, aggregate, at, data)
	if err == nil {
		err = s.Events.Add(ctx, event)
	}
	if err != nil && s.Logger != nil {
		s.Logger.Warn("event staging failed", "event", name, "error", err)
	}
}
