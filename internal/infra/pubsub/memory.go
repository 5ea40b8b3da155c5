// Package pubsub carries message-insert events between the send path and
// open conversation views. Both implementations satisfy the chat service's
// Feed contract: deliver inserts matching one conversation to a callback
// until the returned disposer runs.
package pubsub

import (
	"context"
	"sync"

	domainchat "plateful/internal/domain/chat"
)

// Memory is an in-process broker for single-node runs and tests.
type Memory struct {
	mu   sync.RWMutex
	next int
	subs map[domainchat.ConversationID]map[int]func(domainchat.Message)
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[domainchat.ConversationID]map[int]func(domainchat.Message))}
}

func (m *Memory) PublishInsert(ctx context.Context, message domainchat.Message) error {
	m.mu.RLock()
	handlers := make([]func(domainchat.Message), 0, len(m.subs[message.ConversationID]))
	for _, fn := range m.subs[message.ConversationID] {
		handlers = append(handlers, fn)
	}
	m.mu.RUnlock()
	for _, fn := range handlers {
		fn(message)
	}
	return nil
}

func (m *Memory) SubscribeInserts(ctx context.Context, id domainchat.ConversationID, fn func(domainchat.Message)) (func(), error) {
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]func(domainchat.Message))
	}
	key := m.next
	m.next++
	m.subs[id][key] = fn
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[id], key)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
			m.mu.Unlock()
		})
	}
	return stop, nil
}

// SubscriberCount reports active subscriptions for a conversation. Test
// helper.
func (m *Memory) SubscriberCount(id domainchat.ConversationID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[id])
}
