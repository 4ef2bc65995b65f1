package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/domain/review"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type ReviewsStore interface {
	Create(ctx context.Context, req review.CreateReviewRequest) (review.Review, error)
	ListByProperty(ctx context.Context, propertyID string) ([]review.Review, float64, error)
}

type ReviewsHandler struct {
	store      ReviewsStore
	properties PropertyGetter
}

func NewReviewsHandler(store ReviewsStore, properties PropertyGetter) *ReviewsHandler {
	return &ReviewsHandler{store: store, properties: properties}
}

func (h *ReviewsHandler) Create(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	rctx := ctx.Request.Context()

	// 404 before 409: a review against a deleted property is not a conflict
	_, err := h.properties.GetByID(rctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			RespondNotFound(ctx, "Property not found")
			return
		}

		RespondInternal(ctx, "Could not create review")
		return
	}

	var req review.CreateReviewRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.PropertyID = ctx.Param("id")
	req.CustomerID = customerID

	rv, err := h.store.Create(rctx, req)

	if err != nil {
		if errors.Is(err, review.ErrAlreadyReviewed) {
			RespondConflict(ctx, "already_reviewed", "You already reviewed this property")
			return
		}

		RespondInternal(ctx, "Could not create review")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"review": rv})
}

// List is public: the reviews plus the property's average rating.
func (h *ReviewsHandler) List(ctx *gin.Context) {
	items, avg, err := h.store.ListByProperty(ctx.Request.Context(), ctx.Param("id"))

	if err != nil {
		RespondInternal(ctx, "Could not load reviews")
		return
	}

	if items == nil {
		items = []review.Review{}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":         items,
		"averageRating": avg,
	})
}
