package chat

import (
	"context"
	"errors"
	"sync"

	domainchat "plateful/internal/domain/chat"
	domainuser "plateful/internal/domain/user"
)

var errFeedNotConfigured = errors.New("chat: live view requires a feed")

// LiveView is an open conversation screen: an ordered in-memory snapshot kept
// current by a filtered insert subscription. It moves Detached -> Subscribed
// on open and back to Detached on Close; Close is the disposer the caller must
// invoke on every exit path.
type LiveView struct {
	conversationID domainchat.ConversationID
	viewer         domainuser.ID

	mu       sync.Mutex
	messages []domainchat.Message
	seen     map[domainchat.MessageID]struct{}
	closed   bool

	stop     func()
	onAppend func(domainchat.Message)
	service  *Service
	ctx      context.Context
}

// OpenView loads the ordered message list (marking foreign messages read, as
// ListMessages does) and subscribes to inserts for the conversation. The
// subscription is established before the initial load so no insert falls into
// the gap; duplicate delivery across the two paths is collapsed by ID.
//
// onAppend, if non-nil, is invoked outside the view lock for every message
// appended after the initial snapshot. ctx must stay alive for the lifetime
// of the view; Close releases the subscription.
func (s *Service) OpenView(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID, onAppend func(domainchat.Message)) (*LiveView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.Feed == nil {
		return nil, errFeedNotConfigured
	}

	view := &LiveView{
		conversationID: id,
		viewer:         viewer,
		seen:           make(map[domainchat.MessageID]struct{}),
		onAppend:       onAppend,
		service:        s,
		ctx:            ctx,
	}

	stop, err := s.Feed.SubscribeInserts(ctx, id, view.onInsert)
	if err != nil {
		return nil, err
	}
	view.stop = stop

	messages, err := s.ListMessages(ctx, id, viewer)
	if err != nil {
		stop()
		return nil, err
	}

	view.mu.Lock()
	for _, message := range messages {
		if _, ok := view.seen[message.ID]; ok {
			continue
		}
		view.seen[message.ID] = struct{}{}
		view.messages = insertOrdered(view.messages, message)
	}
	view.mu.Unlock()
	return view, nil
}

// Messages returns a copy of the current ordered snapshot.
func (v *LiveView) Messages() []domainchat.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domainchat.Message(nil), v.messages...)
}

// Close releases the subscription. Safe to call more than once; events
// arriving after Close are dropped, events already delivered stay applied.
func (v *LiveView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	stop := v.stop
	v.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// onInsert applies one feed event. The store round-trip happens outside the
// view lock so a slow store never blocks Messages or Close; closed and seen
// are re-checked afterwards since both may change while unlocked.
func (v *LiveView) onInsert(message domainchat.Message) {
	if v.dropped(message.ID) {
		return
	}

	if message.Sender != v.viewer && !message.Read {
		if err := v.service.Messages.MarkRead(v.ctx, message.ID); err != nil {
			if v.service.Logger != nil {
				v.service.Logger.Warn("live mark-read failed",
					"conversation_id", v.conversationID, "message_id", message.ID, "error", err)
			}
		} else {
			message.Read = true
		}
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if _, ok := v.seen[message.ID]; ok {
		v.mu.Unlock()
		return
	}
	v.seen[message.ID] = struct{}{}
	v.messages = insertOrdered(v.messages, message)
	notify := v.onAppend
	v.mu.Unlock()

	if notify != nil {
		notify(message)
	}
}

func (v *LiveView) dropped(id domainchat.MessageID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return true
	}
	_, ok := v.seen[id]
	return ok
}

// insertOrdered appends keeping non-decreasing CreatedAt order. Inserts almost
// always land at the tail; equal timestamps keep arrival order.
func insertOrdered(messages []domainchat.Message, message domainchat.Message) []domainchat.Message {
	i := len(messages)
	for i > 0 && messages[i-1].CreatedAt.After(message.CreatedAt) {
		i--
	}
	messages = append(messages, domainchat.Message{})
	copy(messages[i+1:], messages[i:])
	messages[i] = message
	return messages
}
