package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"plateful/internal/app/filterstore"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/storage/memory"
)

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return fmt.Sprintf("https://cdn.example/%s", key), nil
}

func newService() *Service {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return &Service{
		Listings: memory.NewListingRepository(),
		Now:      func() time.Time { return base },
	}
}

func createListing(t *testing.T, s *Service, owner string, priceCents int64) *domainlisting.Listing {
	t.Helper()
	item, err := s.Create(context.Background(), CreateParams{
		Owner:      domainuser.ID(owner),
		Title:      "Surplus box",
		PriceCents: priceCents,
		Category:   domainlisting.CategoryProduce,
		Pickup:     domainlisting.Address{Line1: "1 Market Row", City: "Bristol"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return item
}

func TestCreatePublishesImmediately(t *testing.T) {
	s := newService()
	item := createListing(t, s, "seller-1", 300)
	if item.State != domainlisting.ListingActive {
		t.Fatalf("new listing must be active, got %q", item.State)
	}
	got, err := s.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != item.ID {
		t.Fatalf("stored listing mismatch: %q", got.ID)
	}
}

func TestBrowseAppliesSpec(t *testing.T) {
	s := newService()
	free := createListing(t, s, "seller-1", 0)
	createListing(t, s, "seller-1", 900)

	spec := filterstore.DefaultSpec()
	spec.FreeOnly = true
	items, err := s.Browse(context.Background(), spec)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if len(items) != 1 || items[0].ID != free.ID {
		t.Fatalf("browse returned wrong set: %d items", len(items))
	}
}

func TestBrowseRejectsMalformedRange(t *testing.T) {
	s := newService()
	spec := filterstore.DefaultSpec()
	spec.PriceMinCents = 100
	spec.PriceMaxCents = 50
	if _, err := s.Browse(context.Background(), spec); !errors.Is(err, filterstore.ErrPriceRange) {
		t.Fatalf("want ErrPriceRange, got %v", err)
	}
}

func TestClaimByStranger(t *testing.T) {
	s := newService()
	item := createListing(t, s, "seller-1", 0)

	claimed, err := s.Claim(context.Background(), item.ID, "buyer-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.State != domainlisting.ListingClaimed || claimed.ClaimedBy != "buyer-1" {
		t.Fatalf("claim state wrong: %+v", claimed)
	}
}

func TestOwnerCannotClaimOwnListing(t *testing.T) {
	s := newService()
	item := createListing(t, s, "seller-1", 0)
	if _, err := s.Claim(context.Background(), item.ID, item.Owner); !errors.Is(err, domainlisting.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestAttachPhotoOwnerOnly(t *testing.T) {
	s := newService()
	uploader := &fakeUploader{}
	s.Photos = uploader
	item := createListing(t, s, "seller-1", 0)

	updated, err := s.AttachPhoto(context.Background(), item.ID, item.Owner, strings.NewReader("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("attach photo: %v", err)
	}
	if len(updated.Photos) != 1 {
		t.Fatalf("photo not attached: %v", updated.Photos)
	}
	if len(uploader.keys) != 1 || !strings.HasPrefix(uploader.keys[0], "listings/"+string(item.ID)+"/") {
		t.Fatalf("unexpected storage key: %v", uploader.keys)
	}

	if _, err := s.AttachPhoto(context.Background(), item.ID, "stranger", strings.NewReader("jpeg"), "image/jpeg"); !errors.Is(err, domainlisting.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState for non-owner, got %v", err)
	}
}
