package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/casahub/casahub/internal/cache"
	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/casahub/casahub/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PropertiesStore interface {
	Create(ctx context.Context, req property.CreatePropertyRequest) (property.Property, error)
	GetByID(ctx context.Context, id string) (property.Property, error)
	ListCursor(ctx context.Context, f property.ListFilter, afterCreatedAt time.Time, afterID string) ([]property.Property, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]property.Property, error)
	Update(ctx context.Context, id, ownerID string, req property.UpdatePropertyRequest) (property.Property, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type SubscriptionChecker interface {
	HasActive(ctx context.Context, ownerID string) (bool, error)
}

type propertyPage struct {
	Items      []property.Property `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

type PropertiesHandler struct {
	store    PropertiesStore
	subs     SubscriptionChecker
	listings *cache.TTL
	log      *slog.Logger
}

func NewPropertiesHandler(store PropertiesStore, subs SubscriptionChecker, listings *cache.TTL, log *slog.Logger) *PropertiesHandler {
	return &PropertiesHandler{
		store:    store,
		subs:     subs,
		listings: listings,
		log:      log,
	}
}

// Create requires an active subscription; listings are the paid feature.
func (h *PropertiesHandler) Create(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	active, err := h.subs.HasActive(ctx.Request.Context(), ownerID)

	if err != nil {
		RespondInternal(ctx, "Could not verify subscription")
		return
	}

	if !active {
		RespondError(ctx, http.StatusPaymentRequired, "subscription_required",
			"An active subscription is required to publish listings", nil)
		return
	}

	var req property.CreatePropertyRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.OwnerID = ownerID

	p, err := h.store.Create(ctx.Request.Context(), req)

	if err != nil {
		RespondInternal(ctx, "Could not create listing")
		return
	}

	h.invalidateListings()

	ctx.JSON(http.StatusCreated, gin.H{"property": p})
}

// List is the public browse endpoint: cursor paged, filterable, served from
// the short-TTL cache when the exact same page was just asked for.
func (h *PropertiesHandler) List(ctx *gin.Context) {
	filter, cursor, ok := h.parseListQuery(ctx)

	if !ok {
		return
	}

	key := listCacheKey(filter, cursor)

	if h.listings != nil {
		if cached, hit := h.listings.Get(key); hit {
			if page, isPage := cached.(propertyPage); isPage {
				RespondJSONWithETag(ctx, http.StatusOK, page)
				return
			}
		}
	}

	afterCreatedAt, afterID, err := utils.DecodeCursor(cursor)

	if err != nil {
		RespondBadRequest(ctx, "Malformed cursor", nil)
		return
	}

	items, hasMore, err := h.store.ListCursor(ctx.Request.Context(), filter, afterCreatedAt, afterID)

	if err != nil {
		RespondInternal(ctx, "Could not list properties")
		return
	}

	page := propertyPage{Items: items}

	if page.Items == nil {
		page.Items = []property.Property{}
	}

	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
	}

	if h.listings != nil {
		h.listings.Set(key, page)
	}

	RespondJSONWithETag(ctx, http.StatusOK, page)
}

func (h *PropertiesHandler) parseListQuery(ctx *gin.Context) (property.ListFilter, string, bool) {
	var filter property.ListFilter

	filter.Limit = defaultPageSize

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)

		if err != nil || n <= 0 {
			RespondBadRequest(ctx, "limit must be a positive integer", nil)
			return filter, "", false
		}

		if n > maxPageSize {
			n = maxPageSize
		}

		filter.Limit = n
	}

	if city := ctx.Query("city"); city != "" {
		filter.City = &city
	}

	if raw := ctx.Query("minPrice"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)

		if err != nil || n < 0 {
			RespondBadRequest(ctx, "minPrice must be a non-negative integer", nil)
			return filter, "", false
		}

		filter.MinPrice = &n
	}

	if raw := ctx.Query("maxPrice"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)

		if err != nil || n < 0 {
			RespondBadRequest(ctx, "maxPrice must be a non-negative integer", nil)
			return filter, "", false
		}

		filter.MaxPrice = &n
	}

	return filter, ctx.Query("cursor"), true
}

func listCacheKey(f property.ListFilter, cursor string) string {
	city, minP, maxP := "", "", ""

	if f.City != nil {
		city = *f.City
	}
	if f.MinPrice != nil {
		minP = strconv.FormatInt(*f.MinPrice, 10)
	}
	if f.MaxPrice != nil {
		maxP = strconv.FormatInt(*f.MaxPrice, 10)
	}

	return fmt.Sprintf("properties:list:%s:%s:%s:%d:%s", city, minP, maxP, f.Limit, cursor)
}

func (h *PropertiesHandler) Get(ctx *gin.Context) {
	p, err := h.store.GetByID(ctx.Request.Context(), ctx.Param("id"))

	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			RespondNotFound(ctx, "Property not found")
			return
		}

		RespondInternal(ctx, "Could not load property")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"property": p})
}

func (h *PropertiesHandler) ListMine(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	items, err := h.store.ListByOwner(ctx.Request.Context(), ownerID)

	if err != nil {
		RespondInternal(ctx, "Could not list properties")
		return
	}

	if items == nil {
		items = []property.Property{}
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *PropertiesHandler) Update(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	var req property.UpdatePropertyRequest

	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.store.Update(ctx.Request.Context(), ctx.Param("id"), ownerID, req)

	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			RespondNotFound(ctx, "Property not found")
			return
		}

		RespondInternal(ctx, "Could not update listing")
		return
	}

	h.invalidateListings()

	ctx.JSON(http.StatusOK, gin.H{"property": p})
}

func (h *PropertiesHandler) Delete(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	err := h.store.Delete(ctx.Request.Context(), ctx.Param("id"), ownerID)

	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			RespondNotFound(ctx, "Property not found")
			return
		}

		RespondInternal(ctx, "Could not delete listing")
		return
	}

	h.invalidateListings()

	ctx.Status(http.StatusNoContent)
}

func (h *PropertiesHandler) invalidateListings() {
	if h.listings != nil {
		h.listings.InvalidatePrefix("properties:list:")
	}
}
