package editor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKindMismatch is returned when a node is inserted under a parent that
	// cannot own it (an option under a group, a group under an item, ...).
	ErrKindMismatch = errors.New("node kind does not match parent")

	// ErrFixedOptions is returned when an operation tries to edit the option
	// set of a yes/no item directly.
	ErrFixedOptions = errors.New("options of a yes/no item are fixed")

	// ErrNotLoaded is returned by session operations before the first Pull.
	ErrNotLoaded = errors.New("form tree not loaded")

	// ErrFormArchived is returned by every mutation on an archived form.
	ErrFormArchived = errors.New("form is archived")
)

// NotFoundError reports a node id that is not present in the tree.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError is raised before any persistence call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failed store call. Op names the editor operation
// ("drag", "add_group", ...). When RolledBack is set both the tree and the
// store are back to their state before the operation; otherwise the store
// may hold part of it and Pull re-reads it.
type PersistenceError struct {
	Op         string
	RolledBack bool
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SyncError reports a reconciliation that did not complete. When Partial is
// set the delete phase landed (Deleted lists the ids) and the upsert phase
// failed; the deletions are not rolled back.
type SyncError struct {
	ItemID  string
	Deleted []string
	Partial bool
	Err     error
}

func (e *SyncError) Error() string {
	if e.Partial {
		return fmt.Sprintf("sync item %s: options [%s] deleted but upsert failed: %v",
			e.ItemID, strings.Join(e.Deleted, ","), e.Err)
	}
	return fmt.Sprintf("sync item %s: %v", e.ItemID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
