package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the acting user. Authentication happens upstream;
// this service trusts the value.
const HeaderUserID = "X-User-ID"

// anonymousActor is used for idempotency and rate-limit keys when a request
// carries no identity.
const anonymousActor = "demo-user"

// actorID returns the acting user from the Gin context ("userID", set by an
// auth layer) or the X-User-ID header. It returns "" when neither is present.
func actorID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		return strings.TrimSpace(c.GetHeader(HeaderUserID))
	}
	return ""
}

// userIDFromCtx is actorID with the anonymous fallback applied.
func userIDFromCtx(c *gin.Context) string {
	if id := actorID(c); id != "" {
		return id
	}
	return anonymousActor
}
