// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides correlation IDs, panic recovery and access to the
// request-scoped logger installed by RedactingLogger:
//
//   - RequestID() reuses a well-formed X-Request-ID or mints a UUID, and
//     echoes it on the response.
//   - Recovery() converts panics into the JSON error envelope and logs the
//     stack through the request-scoped logger.
//   - LoggerFrom() returns that logger so handlers can add fields such as
//     node_id without repeating request_id, actor or form_id.
//
// Recommended order: RequestID → RedactingLogger → Recovery, so that panics
// are logged with the correlation ID and the form being edited.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey holds the *zerolog.Logger installed by RedactingLogger.
	loggerKey = "logger"
	// maxRequestIDLength bounds client-supplied correlation IDs.
	maxRequestIDLength = 128
)

// RequestID attaches (or propagates) a correlation identifier per request.
// Client-supplied IDs are reused only when they are short printable ASCII;
// anything else is replaced with a new UUIDv4 so it cannot pollute logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// When the handler already wrote a response only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := requestID(c)
			lg := LoggerFrom(c)
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or the global logger
// when none was installed. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if c != nil {
		if v, ok := c.Get(loggerKey); ok {
			if lg, ok := v.(*zerolog.Logger); ok {
				return lg
			}
		}
	}
	l := log.With().Logger()
	return &l
}

// requestID returns the correlation ID from the context, falling back to the
// response header.
func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// asString converts an arbitrary value to a string, returning "" for
// non-strings.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
