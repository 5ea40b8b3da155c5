package dto

import (
	"time"

	domainchat "plateful/internal/domain/chat"
	domainuser "plateful/internal/domain/user"
)

// Conversation describes thread metadata. PeerID is the other participant
// from the requesting user's point of view.
type Conversation struct {
	ID            string    `json:"id"`
	ListingID     string    `json:"listing_id"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	PeerID        string    `json:"peer_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

func MapConversation(conversation *domainchat.Conversation, viewer domainuser.ID) Conversation {
	if conversation == nil {
		return Conversation{}
	}
	return Conversation{
		ID:            string(conversation.ID),
		ListingID:     string(conversation.ListingID),
		BuyerID:       string(conversation.Buyer),
		SellerID:      string(conversation.Seller),
		PeerID:        string(conversation.Peer(viewer)),
		CreatedAt:     conversation.CreatedAt,
		LastMessageAt: conversation.LastMessageAt,
	}
}

func MapChatMessage(message domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.Sender),
		Text:           message.Text,
		CreatedAt:      message.CreatedAt,
		Read:           message.Read,
	}
}

func MapChatMessages(messages []domainchat.Message) ChatMessageList {
	list := ChatMessageList{Items: make([]ChatMessage, 0, len(messages))}
	for _, message := range messages {
		list.Items = append(list.Items, MapChatMessage(message))
	}
	return list
}
