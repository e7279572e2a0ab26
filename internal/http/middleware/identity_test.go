package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestActorID_Sources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := actorID(c); got != "" {
		t.Fatalf("no request: %q", got)
	}
	if got := userIDFromCtx(c); got != anonymousActor {
		t.Fatalf("anonymous fallback: %q", got)
	}

	c.Request = httptest.NewRequest(http.MethodPost, "/forms", nil)
	c.Request.Header.Set(HeaderUserID, " editor-7 ")
	if got := userIDFromCtx(c); got != "editor-7" {
		t.Fatalf("header actor: %q", got)
	}

	c.Set("userID", 42)
	if got := actorID(c); got != "editor-7" {
		t.Fatalf("non-string context value should fall through: %q", got)
	}
	c.Set("userID", "u1")
	if got := actorID(c); got != "u1" {
		t.Fatalf("context actor: %q", got)
	}
}
