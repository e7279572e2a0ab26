// Package handlers implements the Gin handlers of the form editor API.
//
// Every failure is written as an ErrorResponse through fail, so clients can
// switch on a stable code (errors.go) and quote request_id in bug reports:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "form_archived",
//	  "message": "form is archived"
//	}
//
// Successful creates that were answered from an idempotency record carry
// Idempotency-Replayed: true and the originally created resource.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-builder/internal/http/middleware"
)

// HeaderReplayed marks a create response served from an idempotency record.
const HeaderReplayed = "Idempotency-Replayed"

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable code, see errors.go
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"form not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged through the
// request-scoped logger, which already carries the form and actor.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().Int("status", status).Str("code", code)
		if id := c.Param("nodeId"); id != "" {
			ev = ev.Str("node_id", id)
		}
		ev.Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// replayed answers a repeated create with the resource the first request
// produced.
func replayed(c *gin.Context, body any) {
	c.Header(HeaderReplayed, "true")
	c.JSON(http.StatusCreated, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
