package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/casahub/casahub/internal/chat"
	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatHandler upgrades an authenticated request into the relay. The session
// gate runs before this handler (via the access_token query parameter, since
// browsers cannot set headers on a websocket handshake).
type ChatHandler struct {
	hub        *chat.Hub
	properties PropertyGetter
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func NewChatHandler(hub *chat.Hub, properties PropertyGetter, allowedOrigins []string, log *slog.Logger) *ChatHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))

	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &ChatHandler{
		hub:        hub,
		properties: properties,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				if origin == "" {
					return true // non-browser client
				}

				_, ok := allowed[origin]
				return ok
			},
		},
		log: log,
	}
}

// Join connects the caller to the conversation about a property. A customer
// joins their own conversation; the owner names the customer and must own
// the property.
func (h *ChatHandler) Join(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_identity", "Not authenticated")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)
	propertyID := ctx.Param("id")

	p, err := h.properties.GetByID(ctx.Request.Context(), propertyID)

	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			RespondNotFound(ctx, "Property not found")
			return
		}

		RespondInternal(ctx, "Could not open chat")
		return
	}

	var customerID string

	switch role {
	case user.RoleCustomer:
		customerID = userID
	case user.RoleOwner:
		if p.OwnerID != userID {
			RespondForbidden(ctx, "forbidden", "This is not your property")
			return
		}

		customerID = ctx.Query("customerId")

		if customerID == "" {
			RespondBadRequest(ctx, "customerId is required for owners", nil)
			return
		}
	default:
		RespondForbidden(ctx, "forbidden", "Unknown role")
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)

	if err != nil {
		// Upgrade already wrote the handshake failure
		h.log.Debug("chat: upgrade failed", "error", err)
		return
	}

	room := propertyID + ":" + customerID

	h.hub.Serve(conn, room, userID, role)
}
