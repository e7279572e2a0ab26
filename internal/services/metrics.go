package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-form-builder/internal/editor"
)

// editorOps counts editor operations by name and outcome.
var editorOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "formbuilder_editor_ops_total",
		Help: "Editor operations by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(editorOps)
}

// outcomeOf classifies an editor error into a bounded label value.
func outcomeOf(err error) string {
	var (
		syncErr *editor.SyncError
		persErr *editor.PersistenceError
	)
	switch {
	case err == nil:
		return "ok"
	case editor.IsValidation(err):
		return "validation"
	case editor.IsNotFound(err), errors.Is(err, ErrFormNotFound):
		return "not_found"
	case errors.Is(err, editor.ErrFormArchived):
		return "archived"
	case errors.As(err, &syncErr):
		if syncErr.Partial {
			return "sync_partial"
		}
		return "sync_failed"
	case errors.As(err, &persErr):
		return "persist_failed"
	}
	return "error"
}
