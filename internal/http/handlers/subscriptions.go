package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/casahub/casahub/internal/domain/subscription"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type SubscriptionsStore interface {
	RecordPayment(ctx context.Context, s subscription.Subscription, reference string) error
	GetCurrent(ctx context.Context, ownerID string) (subscription.Subscription, error)
}

// SubscriptionsHandler records payments that already cleared elsewhere and
// answers "what plan am I on". It does not talk to any payment gateway.
type SubscriptionsHandler struct {
	store SubscriptionsStore
}

func NewSubscriptionsHandler(store SubscriptionsStore) *SubscriptionsHandler {
	return &SubscriptionsHandler{store: store}
}

func (h *SubscriptionsHandler) RecordPayment(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	var req subscription.RecordPaymentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.OwnerID = ownerID

	s, err := subscription.NewFromPayment(req)

	if err != nil {
		RespondBadRequest(ctx, "Unknown subscription plan", nil)
		return
	}

	err = h.store.RecordPayment(ctx.Request.Context(), s, req.Reference)

	if err != nil {
		RespondInternal(ctx, "Could not record payment")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"subscription": s})
}

func (h *SubscriptionsHandler) Current(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	s, err := h.store.GetCurrent(ctx.Request.Context(), ownerID)

	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			RespondNotFound(ctx, "No active subscription")
			return
		}

		RespondInternal(ctx, "Could not load subscription")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subscription": s})
}
