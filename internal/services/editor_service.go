// Package services – EditorService
//
// This file implements EditorService, the registry of editor sessions. A
// session is keyed by (actor, form), created on first use and loaded from
// the store, and evicted after IdleTTL without calls. Pending debounced
// field edits are flushed on eviction and on Close.
//
// Every public method resolves the session, delegates to it, and records
// the outcome in an OpenTelemetry span and in
// formbuilder_editor_ops_total{op,outcome}. Editor errors are returned
// unchanged so handlers can map them.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultIdleTTL is used when EditorService.IdleTTL is zero.
const DefaultIdleTTL = 30 * time.Minute

type sessionKey struct {
	actor string
	form  string
}

// EditorService owns the editor sessions of this process.
type EditorService struct {
	Store    editor.Store
	Cache    editor.IDCache
	Debounce time.Duration
	IdleTTL  time.Duration
	Log      zerolog.Logger

	now func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*editor.Session
	closed   bool
}

// NewEditorService returns an empty registry.
func NewEditorService(store editor.Store, cache editor.IDCache, debounce, idleTTL time.Duration, log zerolog.Logger) *EditorService {
	return &EditorService{
		Store:    store,
		Cache:    cache,
		Debounce: debounce,
		IdleTTL:  idleTTL,
		Log:      log,
	}
}

var _ FormWatcher = (*EditorService)(nil)

func (s *EditorService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *EditorService) idleTTL() time.Duration {
	if s.IdleTTL > 0 {
		return s.IdleTTL
	}
	return DefaultIdleTTL
}

// Session returns the session of (actor, form), loading it on first use.
// A missing form yields ErrFormNotFound.
func (s *EditorService) Session(ctx context.Context, actorID, formID string) (*editor.Session, error) {
	if actorID == "" {
		return nil, ErrMissingActor
	}
	key := sessionKey{actor: actorID, form: formID}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s.sessions == nil {
		s.sessions = map[sessionKey]*editor.Session{}
	}
	evicted := s.collectIdleLocked()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	s.flushAll(evicted, "idle")
	if ok {
		return sess, nil
	}

	fresh := editor.NewSession(s.Store, formID, actorID, editor.SessionOptions{
		Cache:    s.Cache,
		Notifier: editor.LogNotifier{Log: s.Log},
		Debounce: s.Debounce,
		Logger:   s.Log,
	})
	if _, err := fresh.Pull(ctx); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}
	if existing, ok := s.sessions[key]; ok {
		// lost a race with a concurrent first call
		return existing, nil
	}
	s.sessions[key] = fresh
	s.Log.Debug().Str("form_id", formID).Str("actor", actorID).Msg("editor session opened")
	return fresh, nil
}

// collectIdleLocked removes sessions idle longer than IdleTTL and returns
// them for flushing. mu must be held.
func (s *EditorService) collectIdleLocked() []*editor.Session {
	cutoff := s.clock().Add(-s.idleTTL())
	var out []*editor.Session
	for k, sess := range s.sessions {
		if sess.LastUsed().Before(cutoff) {
			delete(s.sessions, k)
			out = append(out, sess)
		}
	}
	return out
}

func (s *EditorService) flushAll(sessions []*editor.Session, reason string) error {
	var errs []error
	for _, sess := range sessions {
		if err := sess.Flush(); err != nil {
			s.Log.Warn().Err(err).Str("form_id", sess.FormID).Str("actor", sess.ActorID).
				Str("reason", reason).Msg("flush of editor session failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *EditorService) formSessions(formID string) []*editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*editor.Session
	for k, sess := range s.sessions {
		if k.form == formID {
			out = append(out, sess)
		}
	}
	return out
}

// Sweep evicts idle sessions now instead of on the next call.
func (s *EditorService) Sweep() int {
	s.mu.Lock()
	evicted := s.collectIdleLocked()
	s.mu.Unlock()
	_ = s.flushAll(evicted, "idle")
	return len(evicted)
}

// Len reports the number of open sessions.
func (s *EditorService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close flushes and forgets every session. Later calls fail with
// ErrShuttingDown.
func (s *EditorService) Close() error {
	s.mu.Lock()
	s.closed = true
	all := make([]*editor.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.sessions = nil
	s.mu.Unlock()
	return s.flushAll(all, "shutdown")
}

// FlushForm commits pending edits of every session on formID.
func (s *EditorService) FlushForm(formID string) error {
	return s.flushAll(s.formSessions(formID), "form_write")
}

// ReloadForm re-pulls every session on formID. Sessions whose form is gone
// are dropped.
func (s *EditorService) ReloadForm(ctx context.Context, formID string) {
	for _, sess := range s.formSessions(formID) {
		if _, err := sess.Pull(ctx); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.DropForm(formID)
				return
			}
			s.Log.Warn().Err(err).Str("form_id", formID).Str("actor", sess.ActorID).Msg("session reload failed")
		}
	}
}

// DropForm discards the sessions of a deleted form without flushing.
func (s *EditorService) DropForm(formID string) {
	s.mu.Lock()
	var dropped []*editor.Session
	for k, sess := range s.sessions {
		if k.form == formID {
			delete(s.sessions, k)
			dropped = append(dropped, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range dropped {
		sess.Discard()
	}
}

// run resolves the session and wraps fn with tracing and metrics.
func run[T any](ctx context.Context, s *EditorService, op, actorID, formID string, fn func(context.Context, *editor.Session) (T, error)) (T, error) {
	tr := otel.Tracer("services/EditorService")
	ctx, span := tr.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	var out T
	sess, err := s.Session(ctx, actorID, formID)
	if err == nil {
		out, err = fn(ctx, sess)
	}
	outcome := outcomeOf(err)
	editorOps.WithLabelValues(op, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return out, err
}

func run0(ctx context.Context, s *EditorService, op, actorID, formID string, fn func(context.Context, *editor.Session) error) error {
	_, err := run(ctx, s, op, actorID, formID, func(ctx context.Context, sess *editor.Session) (struct{}, error) {
		return struct{}{}, fn(ctx, sess)
	})
	return err
}

// Tree returns the session's current tree, loading it on first use.
func (s *EditorService) Tree(ctx context.Context, actorID, formID string) (*editor.Tree, error) {
	return run(ctx, s, "tree", actorID, formID, func(_ context.Context, sess *editor.Session) (*editor.Tree, error) {
		return sess.Tree()
	})
}

// Pull reloads the tree from the store.
func (s *EditorService) Pull(ctx context.Context, actorID, formID string) (*editor.Tree, error) {
	return run(ctx, s, "pull", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.Tree, error) {
		return sess.Pull(ctx)
	})
}

func (s *EditorService) AddGroup(ctx context.Context, actorID, formID, title string) (*editor.GroupNode, error) {
	return run(ctx, s, "add_group", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.GroupNode, error) {
		return sess.AddGroup(ctx, title)
	})
}

func (s *EditorService) AddItem(ctx context.Context, actorID, formID, groupID, question string, answerType domain.AnswerType, required bool) (*editor.ItemNode, error) {
	return run(ctx, s, "add_item", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.ItemNode, error) {
		return sess.AddItem(ctx, groupID, question, answerType, required)
	})
}

func (s *EditorService) RemoveGroup(ctx context.Context, actorID, formID, groupID string) error {
	return run0(ctx, s, "remove_group", actorID, formID, func(ctx context.Context, sess *editor.Session) error {
		return sess.RemoveGroup(ctx, groupID)
	})
}

func (s *EditorService) RemoveItem(ctx context.Context, actorID, formID, itemID string) error {
	return run0(ctx, s, "remove_item", actorID, formID, func(ctx context.Context, sess *editor.Session) error {
		return sess.RemoveItem(ctx, itemID)
	})
}

// EditField schedules a debounced free-text edit.
func (s *EditorService) EditField(ctx context.Context, actorID, formID string, k editor.FieldKey, value string) error {
	return run0(ctx, s, "edit_field", actorID, formID, func(_ context.Context, sess *editor.Session) error {
		return sess.EditField(k, value)
	})
}

func (s *EditorService) Drag(ctx context.Context, actorID, formID string, d editor.Drag) (*editor.DragResult, error) {
	return run(ctx, s, "drag", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.DragResult, error) {
		return sess.Drag(ctx, d)
	})
}

func (s *EditorService) SyncOptions(ctx context.Context, actorID, formID, itemID string, drafts []editor.OptionDraft) (*editor.ItemNode, error) {
	return run(ctx, s, "sync_options", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.ItemNode, error) {
		return sess.SyncOptions(ctx, itemID, drafts)
	})
}

func (s *EditorService) SetDefault(ctx context.Context, actorID, formID, itemID, optionID string) (*editor.ItemNode, error) {
	return run(ctx, s, "set_default", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.ItemNode, error) {
		return sess.SetDefault(ctx, itemID, optionID)
	})
}

func (s *EditorService) SwitchAnswerType(ctx context.Context, actorID, formID, itemID string, t domain.AnswerType) (*editor.ItemNode, error) {
	return run(ctx, s, "switch_answer_type", actorID, formID, func(_ context.Context, sess *editor.Session) (*editor.ItemNode, error) {
		return sess.SwitchAnswerType(itemID, t)
	})
}

func (s *EditorService) SaveItem(ctx context.Context, actorID, formID, itemID string, in editor.SaveItemInput) (*editor.ItemNode, error) {
	return run(ctx, s, "save_item", actorID, formID, func(ctx context.Context, sess *editor.Session) (*editor.ItemNode, error) {
		return sess.SaveItem(ctx, itemID, in)
	})
}

func (s *EditorService) SetGeneralFeedback(ctx context.Context, actorID, formID, optionID, text string) error {
	return run0(ctx, s, "set_general_feedback", actorID, formID, func(ctx context.Context, sess *editor.Session) error {
		return sess.SetGeneralFeedback(ctx, optionID, text)
	})
}

func (s *EditorService) AddTag(ctx context.Context, actorID, formID, optionID, name, text string) (*domain.FeedbackTag, error) {
	return run(ctx, s, "add_tag", actorID, formID, func(ctx context.Context, sess *editor.Session) (*domain.FeedbackTag, error) {
		return sess.AddTag(ctx, optionID, name, text)
	})
}

func (s *EditorService) DeleteTag(ctx context.Context, actorID, formID, optionID, tagID string) error {
	return run0(ctx, s, "delete_tag", actorID, formID, func(ctx context.Context, sess *editor.Session) error {
		return sess.DeleteTag(ctx, optionID, tagID)
	})
}

func (s *EditorService) SelectOption(ctx context.Context, actorID, formID, itemID, optionID string) (editor.Selection, error) {
	return run(ctx, s, "select_option", actorID, formID, func(_ context.Context, sess *editor.Session) (editor.Selection, error) {
		return sess.SelectOption(itemID, optionID)
	})
}

func (s *EditorService) ToggleTag(ctx context.Context, actorID, formID, itemID, tagID string) (editor.Selection, error) {
	return run(ctx, s, "toggle_tag", actorID, formID, func(_ context.Context, sess *editor.Session) (editor.Selection, error) {
		return sess.ToggleTag(itemID, tagID)
	})
}

func (s *EditorService) EditFeedbackText(ctx context.Context, actorID, formID, itemID, text string) (editor.Selection, error) {
	return run(ctx, s, "edit_feedback_text", actorID, formID, func(_ context.Context, sess *editor.Session) (editor.Selection, error) {
		return sess.EditFeedbackText(itemID, text)
	})
}

func (s *EditorService) Feedback(ctx context.Context, actorID, formID, itemID string) (editor.Selection, error) {
	return run(ctx, s, "feedback", actorID, formID, func(_ context.Context, sess *editor.Session) (editor.Selection, error) {
		return sess.Feedback(itemID)
	})
}
