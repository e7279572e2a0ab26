// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., validation_failed, sync_partial) are reserved for
//     editor errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Usage:
//   - Handlers select the most specific matching code and pass it to `fail()` along
//     with the corresponding HTTP status and message.
//   - Editor operations go through failEditor, which maps the editor's typed
//     errors onto status and code in one place.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "form_archived",
//	  "message": "form is archived"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-builder/internal/editor"
	"github.com/tbourn/go-form-builder/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeValidation       = "validation_failed"
	ErrCodeArchived         = "form_archived"
	ErrCodePersistFailed    = "persist_failed"
	ErrCodeSyncPartial      = "sync_partial"
	ErrCodeSyncFailed       = "sync_failed"
	ErrCodeUnavailable      = "unavailable"
)

// failEditor writes the response for an error returned by an editor
// operation.
func failEditor(c *gin.Context, err error) {
	var (
		syncErr *editor.SyncError
		persErr *editor.PersistenceError
	)
	switch {
	case editor.IsValidation(err),
		errors.Is(err, editor.ErrKindMismatch),
		errors.Is(err, editor.ErrFixedOptions):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case editor.IsNotFound(err):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case errors.Is(err, services.ErrMissingActor):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, editor.ErrFormArchived):
		fail(c, http.StatusConflict, ErrCodeArchived, "form is archived")
	case errors.Is(err, services.ErrShuttingDown):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.As(err, &syncErr):
		if syncErr.Partial {
			fail(c, http.StatusInternalServerError, ErrCodeSyncPartial, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
	case errors.As(err, &persErr):
		fail(c, http.StatusInternalServerError, ErrCodePersistFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
