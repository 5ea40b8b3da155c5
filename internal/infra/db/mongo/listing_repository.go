package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

// ListingRepository persists listings in the agg_listing collection.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("agg_listing")}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlisting.ListingID) (*domainlisting.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlisting.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) ByOwner(ctx context.Context, owner domainuser.ID) ([]*domainlisting.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"owner_id": string(owner)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainlisting.Listing, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func (r *ListingRepository) Active(ctx context.Context) ([]domainlisting.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{"state": string(domainlisting.ListingActive)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainlisting.Listing, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *doc.toAggregate())
	}
	return out, nil
}

func (r *ListingRepository) Save(ctx context.Context, item *domainlisting.Listing) error {
	doc := newListingDocument(item)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

type listingDocument struct {
	ID          string          `bson:"_id"`
	OwnerID     string          `bson:"owner_id"`
	Title       string          `bson:"title"`
	Description string          `bson:"description"`
	PriceCents  int64           `bson:"price_cents"`
	Category    string          `bson:"category"`
	DietaryTags []string        `bson:"dietary_tags"`
	ExpiresAt   *int64          `bson:"expires_at,omitempty"`
	Pickup      addressDocument `bson:"pickup"`
	Photos      []string        `bson:"photos"`
	State       string          `bson:"state"`
	ClaimedBy   string          `bson:"claimed_by,omitempty"`
	CreatedAt   int64           `bson:"created_at"`
	UpdatedAt   int64           `bson:"updated_at"`
}

type addressDocument struct {
	Line1   string  `bson:"line1"`
	City    string  `bson:"city"`
	Country string  `bson:"country"`
	Lat     float64 `bson:"lat"`
	Lon     float64 `bson:"lon"`
}

func newListingDocument(l *domainlisting.Listing) listingDocument {
	tags := make([]string, 0, len(l.DietaryTags))
	for _, tag := range l.DietaryTags {
		tags = append(tags, string(tag))
	}
	doc := listingDocument{
		ID:          string(l.ID),
		OwnerID:     string(l.Owner),
		Title:       l.Title,
		Description: l.Description,
		PriceCents:  l.PriceCents,
		Category:    string(l.Category),
		DietaryTags: tags,
		Pickup: addressDocument{
			Line1:   l.Pickup.Line1,
			City:    l.Pickup.City,
			Country: l.Pickup.Country,
			Lat:     l.Pickup.Lat,
			Lon:     l.Pickup.Lon,
		},
		Photos:    append([]string(nil), l.Photos...),
		State:     string(l.State),
		ClaimedBy: string(l.ClaimedBy),
		CreatedAt: l.CreatedAt.UnixMilli(),
		UpdatedAt: l.UpdatedAt.UnixMilli(),
	}
	if l.ExpiresAt != nil {
		ms := l.ExpiresAt.UnixMilli()
		doc.ExpiresAt = &ms
	}
	return doc
}

func (d listingDocument) toAggregate() *domainlisting.Listing {
	tags := make([]domainlisting.DietaryTag, 0, len(d.DietaryTags))
	for _, tag := range d.DietaryTags {
		tags = append(tags, domainlisting.DietaryTag(tag))
	}
	item := &domainlisting.Listing{
		ID:          domainlisting.ListingID(d.ID),
		Owner:       domainuser.ID(d.OwnerID),
		Title:       d.Title,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		Category:    domainlisting.Category(d.Category),
		DietaryTags: tags,
		Pickup: domainlisting.Address{
			Line1:   d.Pickup.Line1,
			City:    d.Pickup.City,
			Country: d.Pickup.Country,
			Lat:     d.Pickup.Lat,
			Lon:     d.Pickup.Lon,
		},
		Photos:    append([]string(nil), d.Photos...),
		State:     domainlisting.State(d.State),
		ClaimedBy: domainuser.ID(d.ClaimedBy),
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
	if d.ExpiresAt != nil {
		expires := timestampToTime(*d.ExpiresAt)
		item.ExpiresAt = &expires
	}
	return item
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainlisting.Repository = (*ListingRepository)(nil)
