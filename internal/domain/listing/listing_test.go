package listing

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func validParams() CreateParams {
	return CreateParams{
		ID:       "l-1",
		Owner:    "u-1",
		Title:    "Bruised apples",
		Category: CategoryProduce,
		Pickup:   Address{Line1: "1 Orchard Way", City: "Bristol"},
		Now:      testNow,
	}
}

func TestNewListingValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"missing title", func(p *CreateParams) { p.Title = "   " }, ErrTitleRequired},
		{"negative price", func(p *CreateParams) { p.PriceCents = -1 }, ErrNegativePrice},
		{"unknown category", func(p *CreateParams) { p.Category = "frozen" }, ErrBadCategory},
		{"unknown tag", func(p *CreateParams) { p.DietaryTags = []DietaryTag{"paleo"} }, ErrBadDietaryTag},
		{"missing owner", func(p *CreateParams) { p.Owner = "" }, ErrOwnerRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(&params)
			if _, err := NewListing(params); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewListingRejectsPastExpiry(t *testing.T) {
	params := validParams()
	past := testNow.Add(-time.Minute)
	params.ExpiresAt = &past
	if _, err := NewListing(params); !errors.Is(err, ErrExpiryInPast) {
		t.Fatalf("want ErrExpiryInPast, got %v", err)
	}
}

func TestNewListingDeduplicatesTags(t *testing.T) {
	params := validParams()
	params.DietaryTags = []DietaryTag{TagVegan, TagVegan, TagGlutenFree}
	item, err := NewListing(params)
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if len(item.DietaryTags) != 2 {
		t.Fatalf("tags not deduplicated: %v", item.DietaryTags)
	}
}

func TestZeroPriceIsFree(t *testing.T) {
	params := validParams()
	item, err := NewListing(params)
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if !item.Free() {
		t.Fatal("zero price must read as free")
	}
	item.PriceCents = 1
	if item.Free() {
		t.Fatal("one cent is not free")
	}
}

func TestExpiresWithinOpenInterval(t *testing.T) {
	window := 24 * time.Hour
	item := &Listing{}
	if item.ExpiresWithin(testNow, window) {
		t.Fatal("no expiry must never match")
	}

	at := testNow.Add(6 * time.Hour)
	item.ExpiresAt = &at
	if !item.ExpiresWithin(testNow, window) {
		t.Fatal("6h out must match a 24h window")
	}

	boundary := testNow.Add(window)
	item.ExpiresAt = &boundary
	if item.ExpiresWithin(testNow, window) {
		t.Fatal("exact window boundary must not match")
	}

	expired := testNow.Add(-time.Second)
	item.ExpiresAt = &expired
	if item.ExpiresWithin(testNow, window) {
		t.Fatal("already expired must not match")
	}
}

func TestActivateRequiresPickup(t *testing.T) {
	params := validParams()
	params.Pickup = Address{}
	item, err := NewListing(params)
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := item.Activate(testNow); !errors.Is(err, ErrPickupRequired) {
		t.Fatalf("want ErrPickupRequired, got %v", err)
	}
}

func TestClaimTransitions(t *testing.T) {
	item, err := NewListing(validParams())
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}

	if err := item.Claim("u-2", testNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("draft must not be claimable, got %v", err)
	}
	if err := item.Activate(testNow); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := item.Claim("u-2", testNow); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item.State != ListingClaimed || item.ClaimedBy != "u-2" {
		t.Fatalf("claim did not transition: %+v", item)
	}
	if err := item.Claim("u-3", testNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double claim must fail, got %v", err)
	}
}

func TestParseCategoryNormalizes(t *testing.T) {
	got, err := ParseCategory("  Bakery ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != CategoryBakery {
		t.Fatalf("got %q", got)
	}
	if _, err := ParseCategory("hardware"); !errors.Is(err, ErrBadCategory) {
		t.Fatalf("want ErrBadCategory, got %v", err)
	}
}
