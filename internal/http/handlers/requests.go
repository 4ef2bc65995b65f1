package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/domain/request"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type RequestsStore interface {
	Create(ctx context.Context, req request.CreateRequest) (request.ViewingRequest, error)
	GetByID(ctx context.Context, id string) (request.ViewingRequest, error)
	UpdateStatus(ctx context.Context, id string, to request.Status) (request.ViewingRequest, error)
	ListByCustomer(ctx context.Context, customerID string) ([]request.ViewingRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]request.ViewingRequest, error)
}

type PropertyGetter interface {
	GetByID(ctx context.Context, id string) (property.Property, error)
}

// RequestsHandler runs the viewing-request workflow. Customers open and
// cancel, owners approve or reject against their own properties.
type RequestsHandler struct {
	store      RequestsStore
	properties PropertyGetter
}

func NewRequestsHandler(store RequestsStore, properties PropertyGetter) *RequestsHandler {
	return &RequestsHandler{store: store, properties: properties}
}

func (h *RequestsHandler) Create(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	var req request.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.PropertyID = ctx.Param("id")
	req.CustomerID = customerID

	vr, err := h.store.Create(ctx.Request.Context(), req)

	if err != nil {
		switch {
		case errors.Is(err, property.ErrNotFound):
			RespondNotFound(ctx, "Property not found")
		case errors.Is(err, request.ErrAlreadyRequested):
			RespondConflict(ctx, "already_requested", "You already have an open request for this property")
		default:
			RespondInternal(ctx, "Could not create viewing request")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"request": vr})
}

// Approve and Reject are the owner's two moves on a pending request.

func (h *RequestsHandler) Approve(ctx *gin.Context) {
	h.ownerTransition(ctx, request.StatusApproved)
}

func (h *RequestsHandler) Reject(ctx *gin.Context) {
	h.ownerTransition(ctx, request.StatusRejected)
}

func (h *RequestsHandler) ownerTransition(ctx *gin.Context, to request.Status) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	rctx := ctx.Request.Context()

	vr, err := h.store.GetByID(rctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			RespondNotFound(ctx, "Viewing request not found")
			return
		}

		RespondInternal(ctx, "Could not load viewing request")
		return
	}

	p, err := h.properties.GetByID(rctx, vr.PropertyID)

	if err != nil {
		RespondInternal(ctx, "Could not load viewing request")
		return
	}

	if p.OwnerID != ownerID {
		RespondForbidden(ctx, "forbidden", "This request is not against one of your properties")
		return
	}

	vr, err = h.store.UpdateStatus(rctx, vr.ID, to)

	if err != nil {
		if errors.Is(err, request.ErrInvalidTransition) {
			RespondConflict(ctx, "invalid_transition", "Request is no longer pending")
			return
		}

		RespondInternal(ctx, "Could not update viewing request")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"request": vr})
}

// Cancel is the customer withdrawing their own pending request.
func (h *RequestsHandler) Cancel(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	rctx := ctx.Request.Context()

	vr, err := h.store.GetByID(rctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			RespondNotFound(ctx, "Viewing request not found")
			return
		}

		RespondInternal(ctx, "Could not load viewing request")
		return
	}

	if vr.CustomerID != customerID {
		RespondForbidden(ctx, "forbidden", "This is not your viewing request")
		return
	}

	vr, err = h.store.UpdateStatus(rctx, vr.ID, request.StatusCancelled)

	if err != nil {
		if errors.Is(err, request.ErrInvalidTransition) {
			RespondConflict(ctx, "invalid_transition", "Request is no longer pending")
			return
		}

		RespondInternal(ctx, "Could not cancel viewing request")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"request": vr})
}

func (h *RequestsHandler) ListMine(ctx *gin.Context) {
	customerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	items, err := h.store.ListByCustomer(ctx.Request.Context(), customerID)

	if err != nil {
		RespondInternal(ctx, "Could not list viewing requests")
		return
	}

	if items == nil {
		items = []request.ViewingRequest{}
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *RequestsHandler) ListIncoming(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	items, err := h.store.ListByOwner(ctx.Request.Context(), ownerID)

	if err != nil {
		RespondInternal(ctx, "Could not list viewing requests")
		return
	}

	if items == nil {
		items = []request.ViewingRequest{}
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}
