package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

// ConversationRepository keeps conversations in memory.
type ConversationRepository struct {
	mu    sync.RWMutex
	items map[domainchat.ConversationID]*domainchat.Conversation
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items: make(map[domainchat.ConversationID]*domainchat.Conversation),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conversation, ok := r.items[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	copyConversation := *conversation
	return &copyConversation, nil
}

func (r *ConversationRepository) ByListingAndBuyer(ctx context.Context, listingID domainlisting.ListingID, buyer domainuser.ID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conversation := range r.items {
		if conversation.ListingID == listingID && conversation.Buyer == buyer {
			copyConversation := *conversation
			return &copyConversation, nil
		}
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ConversationRepository) ByParticipant(ctx context.Context, id domainuser.ID) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainchat.Conversation
	for _, conversation := range r.items {
		if conversation.Participant(id) {
			copyConversation := *conversation
			out = append(out, &copyConversation)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (r *ConversationRepository) Insert(ctx context.Context, conversation *domainchat.Conversation) error {
	if conversation == nil {
		return domainchat.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyConversation := *conversation
	r.items[conversation.ID] = &copyConversation
	return nil
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id domainchat.ConversationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	if at.After(conversation.LastMessageAt) {
		conversation.LastMessageAt = at.UTC()
	}
	return nil
}

// MessageRepository keeps messages per conversation in insertion order, which
// doubles as the tie-break for equal creation timestamps.
type MessageRepository struct {
	mu     sync.RWMutex
	byConv map[domainchat.ConversationID][]*domainchat.Message
	byID   map[domainchat.MessageID]*domainchat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byConv: make(map[domainchat.ConversationID][]*domainchat.Message),
		byID:   make(map[domainchat.MessageID]*domainchat.Message),
	}
}

func (r *MessageRepository) ByConversation(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byConv[id]
	out := make([]domainchat.Message, 0, len(stored))
	for _, message := range stored {
		out = append(out, *message)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MessageRepository) Insert(ctx context.Context, message *domainchat.Message) error {
	if message == nil {
		return domainchat.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyMessage := *message
	r.byConv[message.ConversationID] = append(r.byConv[message.ConversationID], &copyMessage)
	r.byID[message.ID] = &copyMessage
	return nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.byID[id]
	if !ok {
		return domainchat.ErrMessageNotFound
	}
	message.Read = true
	return nil
}

func (r *MessageRepository) MarkReadForViewer(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, message := range r.byConv[id] {
		if message.Sender != viewer && !message.Read {
			message.Read = true
		}
	}
	return nil
}

// Unread reports whether a message is still unread. Test helper.
func (r *MessageRepository) Unread(id domainchat.MessageID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	message, ok := r.byID[id]
	return ok && !message.Read
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
var _ domainchat.MessageRepository = (*MessageRepository)(nil)
