package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

// ConversationRepository persists conversations in the agg_conversation
// collection.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("agg_conversation")}
}

// EnsureIndexes creates the (listing_id, buyer_id) unique index so the
// lookup-then-create race collapses concurrent duplicates at the store layer.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ByListingAndBuyer(ctx context.Context, listingID domainlisting.ListingID, buyer domainuser.ID) (*domainchat.Conversation, error) {
	filter := bson.M{"listing_id": string(listingID), "buyer_id": string(buyer)}
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ByParticipant(ctx context.Context, id domainuser.ID) ([]*domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"buyer_id": string(id)},
		bson.M{"seller_id": string(id)},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainchat.Conversation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func (r *ConversationRepository) Insert(ctx context.Context, conversation *domainchat.Conversation) error {
	_, err := r.col.InsertOne(ctx, newConversationDocument(conversation))
	return err
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id domainchat.ConversationID, at time.Time) error {
	// $max keeps the timestamp monotonic under out-of-order touches.
	update := bson.M{"$max": bson.M{"last_message_at": at.UTC().UnixMilli()}}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

type conversationDocument struct {
	ID            string `bson:"_id"`
	ListingID     string `bson:"listing_id"`
	BuyerID       string `bson:"buyer_id"`
	SellerID      string `bson:"seller_id"`
	CreatedAt     int64  `bson:"created_at"`
	LastMessageAt int64  `bson:"last_message_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:            string(c.ID),
		ListingID:     string(c.ListingID),
		BuyerID:       string(c.Buyer),
		SellerID:      string(c.Seller),
		CreatedAt:     c.CreatedAt.UnixMilli(),
		LastMessageAt: c.LastMessageAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:            domainchat.ConversationID(d.ID),
		ListingID:     domainlisting.ListingID(d.ListingID),
		Buyer:         domainuser.ID(d.BuyerID),
		Seller:        domainuser.ID(d.SellerID),
		CreatedAt:     timestampToTime(d.CreatedAt),
		LastMessageAt: timestampToTime(d.LastMessageAt),
	}
}

// MessageRepository persists messages in the agg_message collection. The
// ascending (created_at, _id) sort gives the total order the conversation
// view relies on; _id insertion order breaks timestamp ties.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("agg_message")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (r *MessageRepository) ByConversation(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	filter := bson.M{"conversation_id": string(id)}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainchat.Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func (r *MessageRepository) Insert(ctx context.Context, message *domainchat.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(message))
	return err
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.MessageID) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) MarkReadForViewer(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) error {
	filter := bson.M{
		"conversation_id": string(id),
		"sender_id":       bson.M{"$ne": string(viewer)},
		"read":            false,
	}
	_, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	return err
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Text           string `bson:"text"`
	CreatedAt      int64  `bson:"created_at"`
	Read           bool   `bson:"read"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.Sender),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt.UnixMilli(),
		Read:           m.Read,
	}
}

func (d messageDocument) toAggregate() domainchat.Message {
	return domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		Sender:         domainuser.ID(d.SenderID),
		Text:           d.Text,
		CreatedAt:      timestampToTime(d.CreatedAt),
		Read:           d.Read,
	}
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
var _ domainchat.MessageRepository = (*MessageRepository)(nil)
