package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the request's New Relic transaction with the vehicle,
// rider or guardian in the path and the caller's session. It must run after
// nrgin.Middleware; without a transaction it does nothing.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if id := c.Param("id"); id != "" {
			txn.AddAttribute("path.id", id)
		}

		c.Next()

		// Set by a route-level RequireSession, so only visible afterwards.
		if s, ok := SessionFromContext(c); ok {
			txn.AddAttribute("session.role", string(s.Role))
			txn.AddAttribute("session.identity", s.Identity)
		}

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
