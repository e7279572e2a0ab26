// Package editor implements the structured form editor: an in-memory
// Group → Item → Option tree for one form, the ordering rules that keep
// sibling indices dense, the drag-and-drop reorder protocol, option-set
// reconciliation, the default/yes-no invariants, and feedback resolution.
//
// The package never talks to a database directly. Persistence goes through
// the Store interface, which the repo package implements with GORM.
package editor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// Table is the per-entity record store used by the editor. Select returns
// the children of parentID ordered by order_index ascending.
//
// BatchUpsert inserts records with an empty id (the store assigns one and
// writes it back into recs) and updates the others. When columns is
// non-empty only those columns of existing records are written; a record
// deleted in the meantime is not recreated.
type Table[T any] interface {
	Select(ctx context.Context, parentID string) ([]T, error)
	Insert(ctx context.Context, rec *T) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	BatchUpsert(ctx context.Context, recs []T, columns ...string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// Store is the remote, authoritative copy of the form tree.
type Store interface {
	Forms() Table[domain.Form]
	Groups() Table[domain.Group]
	Items() Table[domain.Item]
	Options() Table[domain.Option]
	Tags() Table[domain.FeedbackTag]

	// LoadForm reads the form and its whole tree, with the general feedback
	// templates written by authorID.
	LoadForm(ctx context.Context, formID, authorID string) (*domain.FormSnapshot, error)
	// UpsertGeneralFeedback writes the (option, author) general template.
	UpsertGeneralFeedback(ctx context.Context, rec *domain.FeedbackGeneral) error
}

// IDCache remembers the persisted option ids of an item between syncs.
// Implementations must be safe for concurrent use.
type IDCache interface {
	Get(ctx context.Context, itemID string) ([]string, bool)
	Set(ctx context.Context, itemID string, ids []string)
	Invalidate(ctx context.Context, itemID string)
}

// Notifier receives user-facing outcome messages. Return values are not
// relevant to editor correctness.
type Notifier interface {
	NotifySuccess(msg string)
	NotifyError(msg string)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) NotifySuccess(msg string) { n.Log.Info().Str("kind", "success").Msg(msg) }
func (n LogNotifier) NotifyError(msg string)   { n.Log.Warn().Str("kind", "error").Msg(msg) }

type nopNotifier struct{}

func (nopNotifier) NotifySuccess(string) {}
func (nopNotifier) NotifyError(string)   {}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]string, bool) { return nil, false }
func (nopCache) Set(context.Context, string, []string)        {}
func (nopCache) Invalidate(context.Context, string)           {}
