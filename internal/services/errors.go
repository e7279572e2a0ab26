// Package services defines the business logic for forms and editor
// sessions. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer. Editor errors (editor.ValidationError,
// editor.NotFoundError, editor.PersistenceError, editor.SyncError) pass
// through the EditorService unchanged.
package services

import (
	"errors"

	"github.com/tbourn/go-form-builder/internal/editor"
)

// Form-related errors.
var (
	// ErrFormNotFound indicates that the requested form does not exist.
	ErrFormNotFound = errors.New("form not found")

	// ErrInvalidStatus is returned for a lifecycle state other than draft,
	// active or archived.
	ErrInvalidStatus = errors.New("status must be one of draft, active, archived")

	// ErrTitleTooLong is returned when a form title exceeds the limit.
	ErrTitleTooLong = errors.New("title too long")

	// ErrFormArchived is returned for mutations of an archived form. It is
	// the same value the editor returns.
	ErrFormArchived = editor.ErrFormArchived
)

// Editor session errors.
var (
	// ErrMissingActor is returned when an editor call has no actor id.
	ErrMissingActor = errors.New("actor id is required")

	// ErrShuttingDown is returned once the session registry is closed.
	ErrShuttingDown = errors.New("editor is shutting down")
)
