package memory

import (
	"context"
	"sort"
	"sync"

	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

// ListingRepository is an in-memory listing store preserving creation order
// for the browsable set.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlisting.ListingID]*domainlisting.Listing
	order []domainlisting.ListingID
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlisting.ListingID]*domainlisting.Listing),
	}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlisting.ListingID) (*domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, domainlisting.ErrNotFound
	}
	return cloneListing(item), nil
}

func (r *ListingRepository) ByOwner(ctx context.Context, owner domainuser.ID) ([]*domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainlisting.Listing
	for _, id := range r.order {
		if item := r.items[id]; item.Owner == owner {
			out = append(out, cloneListing(item))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListingRepository) Active(ctx context.Context) ([]domainlisting.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainlisting.Listing, 0, len(r.order))
	for _, id := range r.order {
		item := r.items[id]
		if item.State != domainlisting.ListingActive {
			continue
		}
		out = append(out, *cloneListing(item))
	}
	return out, nil
}

func (r *ListingRepository) Save(ctx context.Context, item *domainlisting.Listing) error {
	if item == nil {
		return domainlisting.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		r.order = append(r.order, item.ID)
	}
	r.items[item.ID] = cloneListing(item)
	return nil
}

func cloneListing(l *domainlisting.Listing) *domainlisting.Listing {
	if l == nil {
		return nil
	}
	copyListing := *l
	copyListing.DietaryTags = append([]domainlisting.DietaryTag(nil), l.DietaryTags...)
	copyListing.Photos = append([]string(nil), l.Photos...)
	if l.ExpiresAt != nil {
		expires := *l.ExpiresAt
		copyListing.ExpiresAt = &expires
	}
	return &copyListing
}

var _ domainlisting.Repository = (*ListingRepository)(nil)
