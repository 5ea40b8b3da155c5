package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"plateful/internal/app/filterstore"
	appoutbox "plateful/internal/app/outbox"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

var errServiceNotConfigured = errors.New("listings: service missing repository")

// Uploader stores binary content and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}

// Service covers listing creation, browsing through a per-request filter
// store, claiming and photo uploads.
type Service struct {
	Listings domainlisting.Repository
	Photos   Uploader
	Events   appoutbox.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type CreateParams struct {
	Owner       domainuser.ID
	Title       string
	Description string
	PriceCents  int64
	Category    domainlisting.Category
	DietaryTags []domainlisting.DietaryTag
	ExpiresAt   *time.Time
	Pickup      domainlisting.Address
}

// Create validates and stores a new listing, published immediately.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	now := s.now()
	item, err := domainlisting.NewListing(domainlisting.CreateParams{
		ID:          domainlisting.ListingID(uuid.NewString()),
		Owner:       params.Owner,
		Title:       params.Title,
		Description: params.Description,
		PriceCents:  params.PriceCents,
		Category:    params.Category,
		DietaryTags: params.DietaryTags,
		ExpiresAt:   params.ExpiresAt,
		Pickup:      params.Pickup,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if err := item.Activate(now); err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("listings: save: %w", err)
	}
	s.record(ctx, "listing.created", string(item.ID), now, map[string]any{
		"listing_id": item.ID,
		"owner_id":   item.Owner,
		"category":   item.Category,
		"free":       item.Free(),
	})
	return item, nil
}

// Browse fetches the active set and narrows it through a filter store owned
// by this call.
func (s *Service) Browse(ctx context.Context, spec filterstore.Spec) ([]domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	store := filterstore.New(s.Listings, s.Now)
	if err := store.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("listings: refresh: %w", err)
	}
	if err := store.SetFilters(spec); err != nil {
		return nil, err
	}
	return store.Filtered(), nil
}

func (s *Service) Get(ctx context.Context, id domainlisting.ListingID) (*domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	return s.Listings.ByID(ctx, id)
}

func (s *Service) ByOwner(ctx context.Context, owner domainuser.ID) ([]*domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	return s.Listings.ByOwner(ctx, owner)
}

// Claim marks an active listing as taken by the requester.
func (s *Service) Claim(ctx context.Context, id domainlisting.ListingID, by domainuser.ID) (*domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	item, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Owner == by {
		return nil, domainlisting.ErrInvalidState
	}
	now := s.now()
	if err := item.Claim(by, now); err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("listings: save: %w", err)
	}
	s.record(ctx, "listing.claimed", string(item.ID), now, map[string]any{
		"listing_id": item.ID,
		"claimed_by": by,
	})
	return item, nil
}

// AttachPhoto uploads a photo and appends its public URL to the listing.
// Only the owner may attach photos.
func (s *Service) AttachPhoto(ctx context.Context, id domainlisting.ListingID, owner domainuser.ID, reader io.Reader, contentType string) (*domainlisting.Listing, error) {
	if s.Listings == nil {
		return nil, errServiceNotConfigured
	}
	if s.Photos == nil {
		return nil, errors.New("listings: photo storage unavailable")
	}
	item, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Owner != owner {
		return nil, domainlisting.ErrInvalidState
	}
	key := fmt.Sprintf("listings/%s/%s", item.ID, uuid.NewString())
	url, err := s.Photos.Upload(ctx, key, reader, contentType)
	if err != nil {
		return nil, fmt.Errorf("listings: upload photo: %w", err)
	}
	item.AttachPhoto(url, s.now())
	if err := s.Listings.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("listings: save: %w", err)
	}
	return item, nil
}

func (s *Service) record(ctx context.Context, name, aggregate string, at time.Time, data map[string]any) {
	if s.Events == nil {
		return
	}
	event, err := appoutbox.NewRecord(name, aggregate, at, data)
	if err == nil {
		err = s.Events.Add(ctx, event)
	}
	if err != nil && s.Logger != nil {
		s.Logger.Warn("event staging failed", "event", name, "error", err)
	}
}
