package dto

import (
	"time"

	domainlisting "plateful/internal/domain/listing"
)

// PickupAddress is the public location snapshot.
type PickupAddress struct {
	Line1   string  `json:"line1"`
	City    string  `json:"city"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Listing is the browse/detail payload. ExpiresAt is omitted for items
// without a use-by deadline.
type Listing struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	PriceCents  int64         `json:"price_cents"`
	Free        bool          `json:"free"`
	Category    string        `json:"category"`
	DietaryTags []string      `json:"dietary_tags"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Pickup      PickupAddress `json:"pickup"`
	Photos      []string      `json:"photos"`
	State       string        `json:"state"`
	CreatedAt   time.Time     `json:"created_at"`
}

type ListingCollection struct {
	Items []Listing `json:"items"`
	Total int       `json:"total"`
}

func MapListing(item *domainlisting.Listing) Listing {
	if item == nil {
		return Listing{}
	}
	tags := make([]string, 0, len(item.DietaryTags))
	for _, tag := range item.DietaryTags {
		tags = append(tags, string(tag))
	}
	return Listing{
		ID:          string(item.ID),
		OwnerID:     string(item.Owner),
		Title:       item.Title,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		Free:        item.Free(),
		Category:    string(item.Category),
		DietaryTags: tags,
		ExpiresAt:   item.ExpiresAt,
		Pickup: PickupAddress{
			Line1:   item.Pickup.Line1,
			City:    item.Pickup.City,
			Country: item.Pickup.Country,
			Lat:     item.Pickup.Lat,
			Lon:     item.Pickup.Lon,
		},
		Photos:    append([]string(nil), item.Photos...),
		State:     string(item.State),
		CreatedAt: item.CreatedAt,
	}
}

func MapListingCollection(items []domainlisting.Listing) ListingCollection {
	collection := ListingCollection{Items: make([]Listing, 0, len(items)), Total: len(items)}
	for i := range items {
		collection.Items = append(collection.Items, MapListing(&items[i]))
	}
	return collection
}
