package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	users UsersProfileStore
}

type UsersProfileStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error)
}

func NewProfileHandler(users UsersProfileStore) *ProfileHandler {
	return &ProfileHandler{users: users}
}

func (h *ProfileHandler) Get(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		RespondInternal(ctx, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *ProfileHandler) Update(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.UpdateProfile(ctx.Request.Context(), id, req)

	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondNotFound(ctx, "Account not found")
			return
		}

		RespondInternal(ctx, "Could not update profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}
