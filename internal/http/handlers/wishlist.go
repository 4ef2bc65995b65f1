package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/casahub/casahub/internal/domain/wishlist"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type WishlistStore interface {
	Add(ctx context.Context, customerID, propertyID string) (wishlist.Item, error)
	Remove(ctx context.Context, customerID, propertyID string) error
	ListByCustomer(ctx context.Context, customerID string) ([]wishlist.Item, error)
}

type WishlistHandler struct {
	store WishlistStore
}

func NewWishlistHandler(store WishlistStore) *WishlistHandler {
	return &WishlistHandler{store: store}
}

// Add is idempotent; wishing the same property twice still comes back 200.
func (h *WishlistHandler) Add(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	item, err := h.store.Add(ctx.Request.Context(), customerID, ctx.Param("id"))

	if err != nil {
		RespondInternal(ctx, "Could not add to wishlist")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *WishlistHandler) Remove(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	err := h.store.Remove(ctx.Request.Context(), customerID, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, wishlist.ErrNotFound) {
			RespondNotFound(ctx, "Property is not on your wishlist")
			return
		}

		RespondInternal(ctx, "Could not remove from wishlist")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *WishlistHandler) List(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	items, err := h.store.ListByCustomer(ctx.Request.Context(), customerID)

	if err != nil {
		RespondInternal(ctx, "Could not load wishlist")
		return
	}

	if items == nil {
		items = []wishlist.Item{}
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}
