package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/casahub/casahub/internal/auth"
	"github.com/casahub/casahub/internal/domain/session"
	"github.com/casahub/casahub/internal/observability"
	"github.com/gin-gonic/gin"
)

// Keep these interfaces small so tests can fake them easily.

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
	HashToken(raw string) string
}

type SessionLookup interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error)
}

// how long the ledger lookup may take before we fail closed
const ledgerLookupTimeout = 2 * time.Second

type AuthMiddleware struct {
	jwt    TokenVerifier
	ledger SessionLookup
	prom   *observability.Prom
}

func NewAuthMiddleware(jwt TokenVerifier, ledger SessionLookup, prom *observability.Prom) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, ledger: ledger, prom: prom}
}

// RequireSession is the gate every protected route goes through: the token
// signature alone is not enough, the ledger must still hold the session.
// That cross-check is what makes logout and login-supersession take effect
// while the signed token is still cryptographically valid.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)

		if raw == "" {
			m.reject(c, "missing_token", "Missing or invalid Authorization header")
			return
		}

		claims, err := m.jwt.Verify(raw)

		if err != nil {
			m.reject(c, "invalid_token", "Invalid or expired access token")
			return
		}

		// ledger cross-check with a bounded timeout; on any failure we
		// reject — never fail open.

		lctx, cancel := context.WithTimeout(c.Request.Context(), ledgerLookupTimeout)
		defer cancel()

		s, err := m.ledger.FindByTokenHash(lctx, m.jwt.HashToken(raw))

		if err != nil {
			if err == session.ErrSessionNotFound {
				m.reject(c, "session_revoked", "Session is no longer active")
				return
			}

			m.reject(c, "ledger_unavailable", "Could not validate session")
			return
		}

		if s.IsExpired(time.Now().UTC()) {
			m.reject(c, "session_revoked", "Session is no longer active")
			return
		}

		// Stash useful bits of identity on the context
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, claims.Role)

		c.Next()
	}
}

func (m *AuthMiddleware) reject(c *gin.Context, code, message string) {
	if m.prom != nil {
		m.prom.GateRejections.WithLabelValues(code).Inc()
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// extractToken prefers the Authorization header. The query parameter exists
// only for the websocket handshake, which cannot carry custom headers.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	}

	return strings.TrimSpace(c.Query("access_token"))
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxEmail)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
