package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	domainchat "plateful/internal/domain/chat"
	domainuser "plateful/internal/domain/user"
)

// Redis fans message-insert events out across nodes through one pub/sub
// channel per conversation.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(addr string, logger *slog.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type insertEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

func channelFor(id domainchat.ConversationID) string {
	return "conversations:" + string(id) + ":inserts"
}

func (r *Redis) PublishInsert(ctx context.Context, message domainchat.Message) error {
	payload, err := json.Marshal(insertEvent{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.Sender),
		Text:           message.Text,
		CreatedAt:      message.CreatedAt,
		Read:           message.Read,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channelFor(message.ConversationID), payload).Err()
}

// SubscribeInserts delivers inserted messages for one conversation until the
// disposer runs. Delivery stops when the subscription closes; undecodable
// payloads are logged and skipped.
func (r *Redis) SubscribeInserts(ctx context.Context, id domainchat.ConversationID, fn func(domainchat.Message)) (func(), error) {
	sub := r.client.Subscribe(ctx, channelFor(id))
	// Force the subscription handshake so a dead broker fails here, not on
	// first delivery.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for raw := range sub.Channel() {
			var event insertEvent
			if err := json.Unmarshal([]byte(raw.Payload), &event); err != nil {
				if r.logger != nil {
					r.logger.Warn("insert event decode failed", "channel", raw.Channel, "error", err)
				}
				continue
			}
			fn(domainchat.Message{
				ID:             domainchat.MessageID(event.ID),
				ConversationID: domainchat.ConversationID(event.ConversationID),
				Sender:         domainuser.ID(event.SenderID),
				Text:           event.Text,
				CreatedAt:      event.CreatedAt,
				Read:           event.Read,
			})
		}
	}()

	return func() { _ = sub.Close() }, nil
}
