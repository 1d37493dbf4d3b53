package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/domain"
)

const (
	SessionHeader = "X-Session-Token"
	sessionKey    = "session"
)

// SessionResolver looks up a live session by token.
type SessionResolver interface {
	Session(ctx context.Context, token string) (*domain.Session, error)
}

// SessionToken reads the token from "Authorization: Bearer <token>", the
// X-Session-Token header or, for websocket clients, the "token" query parameter.
func SessionToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := c.GetHeader(SessionHeader); token != "" {
		return token
	}
	return c.Query("token")
}

// RequireSession rejects requests without a live session. When roles are
// given the session must hold one of them.
func RequireSession(resolver SessionResolver, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := resolver.Session(c.Request.Context(), SessionToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}
		if len(roles) > 0 && !hasRole(session.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not permitted for this role"})
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func hasRole(role domain.Role, roles []domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(c *gin.Context) (*domain.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*domain.Session)
	return s, ok
}
