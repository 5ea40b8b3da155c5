// Package filterstore holds the browsable listing set and the active filter
// specification for one screen or request. Each Store is explicitly owned by
// its caller; there is no shared package-level state.
package filterstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"plateful/internal/domain/listing"
)

// ExpiringSoonWindow bounds the "expiring soon" predicate.
const ExpiringSoonWindow = 24 * time.Hour

var (
	ErrPriceRange = errors.New("filterstore: price range is malformed")
	ErrNoSource   = errors.New("filterstore: no listing source configured")
)

// Spec is the complete filter specification. Dimensions compose by AND;
// multi-select dimensions match by OR within the set.
type Spec struct {
	PriceMinCents int64
	PriceMaxCents int64
	Categories    []listing.Category
	DietaryTags   []listing.DietaryTag
	FreeOnly      bool
	ExpiringSoon  bool
}

// DefaultSpec matches every listing: full price range, no selections, both
// flags off.
func DefaultSpec() Spec {
	return Spec{PriceMinCents: 0, PriceMaxCents: math.MaxInt64}
}

func (s Spec) validate() error {
	if s.PriceMinCents < 0 || s.PriceMaxCents < 0 || s.PriceMinCents > s.PriceMaxCents {
		return ErrPriceRange
	}
	return nil
}

// Source supplies the full browsable set on refresh.
type Source interface {
	Active(ctx context.Context) ([]listing.Listing, error)
}

// Store recomputes a derived filtered view on every filter change. The full
// set is treated as immutable between Refresh calls; the view is always a
// pure function of (full set, spec, now).
type Store struct {
	mu     sync.RWMutex
	source Source
	now    func() time.Time
	all    []listing.Listing
	spec   Spec
	view   []listing.Listing
}

func New(source Source, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{source: source, now: now, spec: DefaultSpec()}
}

// Refresh replaces the full set from the source and recomputes the view under
// the current spec.
func (s *Store) Refresh(ctx context.Context) error {
	if s.source == nil {
		return ErrNoSource
	}
	items, err := s.source.Active(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.all = append([]listing.Listing(nil), items...)
	s.view = apply(s.all, s.spec, s.now().UTC())
	s.mu.Unlock()
	return nil
}

// SetFilters replaces the specification wholesale and synchronously
// recomputes the view. A malformed price range is rejected before any state
// changes.
func (s *Store) SetFilters(spec Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	spec.Categories = append([]listing.Category(nil), spec.Categories...)
	spec.DietaryTags = append([]listing.DietaryTag(nil), spec.DietaryTags...)
	s.mu.Lock()
	s.spec = spec
	s.view = apply(s.all, s.spec, s.now().UTC())
	s.mu.Unlock()
	return nil
}

// ResetFilters restores the default specification and recomputes.
func (s *Store) ResetFilters() {
	s.mu.Lock()
	s.spec = DefaultSpec()
	s.view = apply(s.all, s.spec, s.now().UTC())
	s.mu.Unlock()
}

// Spec returns the active specification.
func (s *Store) Spec() Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec := s.spec
	spec.Categories = append([]listing.Category(nil), spec.Categories...)
	spec.DietaryTags = append([]listing.DietaryTag(nil), spec.DietaryTags...)
	return spec
}

// Filtered returns a copy of the derived view, preserving the full set's
// relative order.
func (s *Store) Filtered() []listing.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]listing.Listing(nil), s.view...)
}

// apply narrows the full set through the fixed stage order: price, category,
// dietary, expiring-soon.
func apply(all []listing.Listing, spec Spec, now time.Time) []listing.Listing {
	out := make([]listing.Listing, 0, len(all))
	for _, item := range all {
		if !priceStage(item, spec) {
			continue
		}
		if !categoryStage(item, spec.Categories) {
			continue
		}
		if !dietaryStage(item, spec.DietaryTags) {
			continue
		}
		if spec.ExpiringSoon && !item.ExpiresWithin(now, ExpiringSoonWindow) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func priceStage(item listing.Listing, spec Spec) bool {
	if spec.FreeOnly {
		return item.PriceCents == 0
	}
	return item.PriceCents >= spec.PriceMinCents && item.PriceCents <= spec.PriceMaxCents
}

func categoryStage(item listing.Listing, selected []listing.Category) bool {
	if len(selected) == 0 {
		return true
	}
	for _, c := range selected {
		if item.Category == c {
			return true
		}
	}
	return false
}

func dietaryStage(item listing.Listing, selected []listing.DietaryTag) bool {
	if len(selected) == 0 {
		return true
	}
	for _, want := range selected {
		for _, have := range item.DietaryTags {
			if want == have {
				return true
			}
		}
	}
	return false
}
