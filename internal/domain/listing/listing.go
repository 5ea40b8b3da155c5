package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"plateful/internal/domain/user"
)

var (
	ErrIDRequired     = errors.New("listing: id is required")
	ErrOwnerRequired  = errors.New("listing: owner is required")
	ErrTitleRequired  = errors.New("listing: title is required")
	ErrNegativePrice  = errors.New("listing: price must be non-negative")
	ErrBadCategory    = errors.New("listing: unknown category")
	ErrBadDietaryTag  = errors.New("listing: unknown dietary tag")
	ErrExpiryInPast   = errors.New("listing: expiry must be in the future")
	ErrInvalidState   = errors.New("listing: invalid state transition")
	ErrPickupRequired = errors.New("listing: pickup address must be provided when publishing")
	ErrNotFound       = errors.New("listing: not found")
)

type ListingID string

type Category string

const (
	CategoryProduce   Category = "produce"
	CategoryBakery    Category = "bakery"
	CategoryDairy     Category = "dairy"
	CategoryPantry    Category = "pantry"
	CategoryPrepared  Category = "prepared"
	CategoryBeverages Category = "beverages"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryProduce,
	CategoryBakery,
	CategoryDairy,
	CategoryPantry,
	CategoryPrepared,
	CategoryBeverages,
}

func ParseCategory(raw string) (Category, error) {
	candidate := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range Categories {
		if c == candidate {
			return c, nil
		}
	}
	return "", ErrBadCategory
}

type DietaryTag string

const (
	TagVegan      DietaryTag = "vegan"
	TagVegetarian DietaryTag = "vegetarian"
	TagGlutenFree DietaryTag = "gluten-free"
	TagDairyFree  DietaryTag = "dairy-free"
	TagNutFree    DietaryTag = "nut-free"
	TagHalal      DietaryTag = "halal"
	TagKosher     DietaryTag = "kosher"
)

// DietaryTags lists every valid tag.
var DietaryTags = []DietaryTag{
	TagVegan,
	TagVegetarian,
	TagGlutenFree,
	TagDairyFree,
	TagNutFree,
	TagHalal,
	TagKosher,
}

func ParseDietaryTag(raw string) (DietaryTag, error) {
	candidate := DietaryTag(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range DietaryTags {
		if t == candidate {
			return t, nil
		}
	}
	return "", ErrBadDietaryTag
}

type State string

const (
	ListingDraft   State = "DRAFT"
	ListingActive  State = "ACTIVE"
	ListingClaimed State = "CLAIMED"
)

type Address struct {
	Line1   string
	City    string
	Country string
	Lat     float64
	Lon     float64
}

func (a Address) Valid() bool {
	return strings.TrimSpace(a.Line1) != "" && strings.TrimSpace(a.City) != ""
}

// Listing is a surplus-food item offered for pickup. A zero PriceCents means
// the item is given away for free. ExpiresAt is nil when the item has no
// use-by deadline.
type Listing struct {
	ID          ListingID
	Owner       user.ID
	Title       string
	Description string
	PriceCents  int64
	Category    Category
	DietaryTags []DietaryTag
	ExpiresAt   *time.Time
	Pickup      Address
	Photos      []string
	State       State
	ClaimedBy   user.ID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	ByOwner(ctx context.Context, owner user.ID) ([]*Listing, error)
	// Active returns the full browsable set in creation order.
	Active(ctx context.Context) ([]Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

type CreateParams struct {
	ID          ListingID
	Owner       user.ID
	Title       string
	Description string
	PriceCents  int64
	Category    Category
	DietaryTags []DietaryTag
	ExpiresAt   *time.Time
	Pickup      Address
	Photos      []string
	Now         time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.Owner)) == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrTitleRequired
	}
	if params.PriceCents < 0 {
		return nil, ErrNegativePrice
	}
	if _, err := ParseCategory(string(params.Category)); err != nil {
		return nil, err
	}
	tags := make([]DietaryTag, 0, len(params.DietaryTags))
	seen := make(map[DietaryTag]struct{}, len(params.DietaryTags))
	for _, tag := range params.DietaryTags {
		parsed, err := ParseDietaryTag(string(tag))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[parsed]; ok {
			continue
		}
		seen[parsed] = struct{}{}
		tags = append(tags, parsed)
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	var expires *time.Time
	if params.ExpiresAt != nil {
		e := params.ExpiresAt.UTC()
		if !e.After(now) {
			return nil, ErrExpiryInPast
		}
		expires = &e
	}

	return &Listing{
		ID:          params.ID,
		Owner:       params.Owner,
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		PriceCents:  params.PriceCents,
		Category:    params.Category,
		DietaryTags: tags,
		ExpiresAt:   expires,
		Pickup:      params.Pickup,
		Photos:      append([]string(nil), params.Photos...),
		State:       ListingDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Free reports whether the item is given away at no cost.
func (l *Listing) Free() bool {
	return l.PriceCents == 0
}

// ExpiresWithin reports whether the listing expires in the open interval
// (now, now+window). Listings without an expiry never match.
func (l *Listing) ExpiresWithin(now time.Time, window time.Duration) bool {
	if l.ExpiresAt == nil {
		return false
	}
	remaining := l.ExpiresAt.Sub(now)
	return remaining > 0 && remaining < window
}

func (l *Listing) Activate(now time.Time) error {
	if l.State == ListingActive {
		return nil
	}
	if l.State == ListingClaimed {
		return ErrInvalidState
	}
	if !l.Pickup.Valid() {
		return ErrPickupRequired
	}
	l.State = ListingActive
	l.UpdatedAt = now.UTC()
	return nil
}

func (l *Listing) Claim(by user.ID, now time.Time) error {
	if l.State != ListingActive {
		return ErrInvalidState
	}
	l.State = ListingClaimed
	l.ClaimedBy = by
	l.UpdatedAt = now.UTC()
	return nil
}

func (l *Listing) AttachPhoto(url string, now time.Time) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	l.Photos = append(l.Photos, url)
	l.UpdatedAt = now.UTC()
}
