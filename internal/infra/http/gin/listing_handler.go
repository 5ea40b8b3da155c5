package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"plateful/internal/app/dto"
	"plateful/internal/app/filterstore"
	listingsvc "plateful/internal/app/services/listings"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/obs"
)

// ListingHandler wires the listing service to HTTP.
type ListingHandler struct {
	Service *listingsvc.Service
	Logger  *slog.Logger
}

// Browse responds with the active set narrowed by the request's filter
// specification.
func (h ListingHandler) Browse(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	spec, err := filterSpecFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := h.Service.Browse(c.Request.Context(), spec)
	if err != nil {
		if errors.Is(err, filterstore.ErrPriceRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logError(c, "browse failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load listings"})
		return
	}
	c.JSON(http.StatusOK, dto.MapListingCollection(items))
}

func (h ListingHandler) Get(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	item, err := h.Service.Get(c.Request.Context(), domainlisting.ListingID(c.Param("id")))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(item))
}

type createListingRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PriceCents  int64    `json:"price_cents"`
	Category    string   `json:"category"`
	DietaryTags []string `json:"dietary_tags"`
	ExpiresAt   string   `json:"expires_at"`
	Pickup      struct {
		Line1   string  `json:"line1"`
		City    string  `json:"city"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"pickup"`
}

func (h ListingHandler) Create(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	category, err := domainlisting.ParseCategory(req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tags := make([]domainlisting.DietaryTag, 0, len(req.DietaryTags))
	for _, raw := range req.DietaryTags {
		tag, err := domainlisting.ParseDietaryTag(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tags = append(tags, tag)
	}
	var expires *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
			return
		}
		expires = &parsed
	}

	item, err := h.Service.Create(c.Request.Context(), listingsvc.CreateParams{
		Owner:       domainuser.ID(principal.ID),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    category,
		DietaryTags: tags,
		ExpiresAt:   expires,
		Pickup: domainlisting.Address{
			Line1:   req.Pickup.Line1,
			City:    req.Pickup.City,
			Country: req.Pickup.Country,
			Lat:     req.Pickup.Lat,
			Lon:     req.Pickup.Lon,
		},
	})
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapListing(item))
}

func (h ListingHandler) Mine(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	items, err := h.Service.ByOwner(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.logError(c, "own listings failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load listings"})
		return
	}
	collection := dto.ListingCollection{Items: make([]dto.Listing, 0, len(items)), Total: len(items)}
	for _, item := range items {
		collection.Items = append(collection.Items, dto.MapListing(item))
	}
	c.JSON(http.StatusOK, collection)
}

func (h ListingHandler) Claim(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	item, err := h.Service.Claim(c.Request.Context(), domainlisting.ListingID(c.Param("id")), domainuser.ID(principal.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(item))
}

func (h ListingHandler) UploadPhoto(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")

	item, err := h.Service.AttachPhoto(c.Request.Context(), domainlisting.ListingID(c.Param("id")), domainuser.ID(principal.ID), file, contentType)
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(item))
}

func (h ListingHandler) respondListingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainlisting.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, domainlisting.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "listing state does not allow this"})
	case errors.Is(err, domainlisting.ErrTitleRequired),
		errors.Is(err, domainlisting.ErrNegativePrice),
		errors.Is(err, domainlisting.ErrBadCategory),
		errors.Is(err, domainlisting.ErrBadDietaryTag),
		errors.Is(err, domainlisting.ErrExpiryInPast),
		errors.Is(err, domainlisting.ErrPickupRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logError(c, "listing operation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h ListingHandler) logError(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg,
			"error", err,
			"request_id", obs.RequestIDFromContext(c.Request.Context()))
	}
}

func filterSpecFromQuery(c *gin.Context) (filterstore.Spec, error) {
	spec := filterstore.DefaultSpec()
	if raw := strings.TrimSpace(c.Query("price_min_cents")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filterstore.Spec{}, filterstore.ErrPriceRange
		}
		spec.PriceMinCents = value
	}
	if raw := strings.TrimSpace(c.Query("price_max_cents")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filterstore.Spec{}, filterstore.ErrPriceRange
		}
		spec.PriceMaxCents = value
	}
	for _, raw := range splitCSV(c.Query("categories")) {
		category, err := domainlisting.ParseCategory(raw)
		if err != nil {
			return filterstore.Spec{}, err
		}
		spec.Categories = append(spec.Categories, category)
	}
	for _, raw := range splitCSV(c.Query("dietary")) {
		tag, err := domainlisting.ParseDietaryTag(raw)
		if err != nil {
			return filterstore.Spec{}, err
		}
		spec.DietaryTags = append(spec.DietaryTags, tag)
	}
	spec.FreeOnly = parseBoolQuery(c.Query("free_only"))
	spec.ExpiringSoon = parseBoolQuery(c.Query("expiring_soon"))
	return spec, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseBoolQuery(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}

var _ ListingHTTP = (*ListingHandler)(nil)
