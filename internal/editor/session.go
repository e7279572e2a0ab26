package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// Text limits shared by validation.
const (
	MaxTitleLen    = 255
	MaxLabelLen    = 255
	MaxShortName   = 64
	MaxTagNameLen  = 128
	MaxQuestionLen = 4000
)

// Field names a debounced free-text field.
type Field string

const (
	FieldFormTitle       Field = "form.title"
	FieldFormDescription Field = "form.description"
	FieldGroupTitle      Field = "group.title"
	FieldItemQuestion    Field = "item.question"
	FieldItemShortName   Field = "item.short_name"
)

// FieldKey identifies one field of one node.
type FieldKey struct {
	Field  Field
	NodeID string
}

// SessionOptions configures a Session. Zero values fall back to no-op
// collaborators and DefaultDebounce.
type SessionOptions struct {
	Cache    IDCache
	Notifier Notifier
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Session is the editor surface for one (actor, form) pair. It owns the
// Tree Store and serializes every mutation together with its persistence
// calls.
type Session struct {
	FormID  string
	ActorID string

	store  Store
	cache  IDCache
	notify Notifier
	log    zerolog.Logger

	mu        sync.Mutex
	tree      *Tree
	drafts    map[string]map[string]string // item id -> draft key -> persisted id
	selection map[string]*Selection        // item id -> feedback state
	fields    *Debouncer[FieldKey, string]
	lastUsed  time.Time
}

// NewSession returns an unloaded session; call Pull before anything else.
func NewSession(store Store, formID, actorID string, opts SessionOptions) *Session {
	s := &Session{
		FormID:    formID,
		ActorID:   actorID,
		store:     store,
		cache:     opts.Cache,
		notify:    opts.Notifier,
		log:       opts.Logger.With().Str("form_id", formID).Str("actor", actorID).Logger(),
		drafts:    map[string]map[string]string{},
		selection: map[string]*Selection{},
		lastUsed:  time.Now(),
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}
	s.fields = NewDebouncer(opts.Debounce, s.commitField, func(k FieldKey, err error) {
		s.log.Warn().Err(err).Str("field", string(k.Field)).Str("node_id", k.NodeID).Msg("debounced commit failed")
		s.notify.NotifyError(fmt.Sprintf("could not save %s", k.Field))
	})
	return s
}

// Pull replaces the tree wholesale from the store. Fields with a pending
// debounced value keep the local value.
func (s *Session) Pull(ctx context.Context) (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err := s.pull(ctx); err != nil {
		return nil, err
	}
	return s.tree.Clone(), nil
}

func (s *Session) pull(ctx context.Context) error {
	snap, err := s.store.LoadForm(ctx, s.FormID, s.ActorID)
	if err != nil {
		return err
	}
	t := BuildTree(snap)
	s.fields.Each(func(k FieldKey, v string) { applyField(t, k, v) })
	s.tree = t
	return nil
}

// Tree returns a copy of the current tree.
func (s *Session) Tree() (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, ErrNotLoaded
	}
	return s.tree.Clone(), nil
}

// LastUsed reports when the session last served a call.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Flush commits every pending debounced field.
func (s *Session) Flush() error {
	return s.fields.Flush()
}

// Discard drops pending debounced fields without writing them. Used when
// the form is gone.
func (s *Session) Discard() {
	s.fields.CancelAll()
}

func (s *Session) touch() { s.lastUsed = time.Now() }

// writable must be called with mu held.
func (s *Session) writable() error {
	s.touch()
	if s.tree == nil {
		return ErrNotLoaded
	}
	if s.tree.Form.Status == domain.FormStatusArchived {
		return ErrFormArchived
	}
	return nil
}

// fail restores snapshot, notifies and wraps err.
func (s *Session) fail(op string, snapshot *Tree, err error) error {
	if snapshot != nil {
		s.tree = snapshot
	}
	s.log.Warn().Err(err).Str("op", op).Bool("rolled_back", snapshot != nil).Msg("editor operation failed")
	s.notify.NotifyError(fmt.Sprintf("%s failed: %v", op, err))
	return &PersistenceError{Op: op, RolledBack: snapshot != nil, Err: err}
}

// abandon undoes a row inserted earlier in a failed operation, then fails
// like fail. If the row cannot be removed the error reports RolledBack false.
func (s *Session) abandon(ctx context.Context, op string, snapshot *Tree, del func(context.Context, string) error, id string, err error) error {
	derr := del(ctx, id)
	ferr := s.fail(op, snapshot, err)
	if derr != nil {
		s.log.Error().Err(derr).Str("op", op).Str("node_id", id).Msg("could not remove partially created node")
		var pe *PersistenceError
		if errors.As(ferr, &pe) {
			pe.RolledBack = false
		}
	}
	return ferr
}

// AddGroup appends a new group to the form and persists it.
func (s *Session) AddGroup(ctx context.Context, title string) (*GroupNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	title, err := requireText("title", title, MaxTitleLen)
	if err != nil {
		return nil, err
	}

	snapshot := s.tree.Clone()
	node := &GroupNode{Group: domain.Group{Title: title}}
	if _, err := s.tree.InsertChild(s.FormID, len(s.tree.Groups), node); err != nil {
		return nil, err
	}
	if err := s.store.Groups().Insert(ctx, &node.Group); err != nil {
		return nil, s.fail("add_group", snapshot, err)
	}
	if err := s.renumberIfStale(ctx, s.FormID); err != nil {
		return nil, s.abandon(ctx, "add_group", snapshot, s.store.Groups().Delete, node.ID, err)
	}
	s.notify.NotifySuccess("group added")
	return &GroupNode{Group: node.Group}, nil
}

// AddItem appends a new item to a group and persists it. A yes/no item is
// created with its canonical option pair.
func (s *Session) AddItem(ctx context.Context, groupID, question string, answerType domain.AnswerType, required bool) (*ItemNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	question, err := requireText("question", question, MaxQuestionLen)
	if err != nil {
		return nil, err
	}
	if answerType == "" {
		answerType = domain.AnswerYesNo
	}
	if !answerType.Valid() {
		return nil, &ValidationError{Field: "answer_type", Reason: "unknown answer type"}
	}
	g := s.tree.Group(groupID)
	if g == nil {
		return nil, NotFoundError{Kind: string(KindGroup), ID: groupID}
	}

	snapshot := s.tree.Clone()
	node := &ItemNode{Item: domain.Item{Question: question, AnswerType: answerType, Required: required}}
	if _, err := s.tree.InsertChild(groupID, len(g.Items), node); err != nil {
		return nil, err
	}
	if err := s.store.Items().Insert(ctx, &node.Item); err != nil {
		return nil, s.fail("add_item", snapshot, err)
	}
	if answerType == domain.AnswerYesNo {
		recs := canonicalYesNo(node.ID)
		if err := s.store.Options().BatchUpsert(ctx, recs); err != nil {
			return nil, s.abandon(ctx, "add_item", snapshot, s.store.Items().Delete, node.ID, err)
		}
		for i := range recs {
			node.Options = append(node.Options, &OptionNode{Option: recs[i]})
		}
		s.cache.Set(ctx, node.ID, optionIDs(recs))
	}
	if err := s.renumberIfStale(ctx, groupID); err != nil {
		s.cache.Invalidate(ctx, node.ID)
		return nil, s.abandon(ctx, "add_item", snapshot, s.store.Items().Delete, node.ID, err)
	}
	s.notify.NotifySuccess("item added")
	return node.clone(), nil
}

// RemoveGroup deletes a group and everything beneath it. Remaining groups
// are renumbered locally only; the form's persisted indices are rewritten
// the next time an insert or move touches the form.
func (s *Session) RemoveGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	g := s.tree.Group(groupID)
	if g == nil {
		return NotFoundError{Kind: string(KindGroup), ID: groupID}
	}
	snapshot := s.tree.Clone()
	if _, err := s.tree.RemoveChild(s.FormID, groupID); err != nil {
		return err
	}
	if err := s.store.Groups().Delete(ctx, groupID); err != nil {
		return s.fail("remove_group", snapshot, err)
	}
	for _, it := range g.Items {
		s.forgetItem(ctx, it.ID)
	}
	s.notify.NotifySuccess("group removed")
	return nil
}

// RemoveItem deletes an item with its options and feedback templates.
func (s *Session) RemoveItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	it, g := s.tree.Item(itemID)
	if it == nil {
		return NotFoundError{Kind: string(KindItem), ID: itemID}
	}
	snapshot := s.tree.Clone()
	if _, err := s.tree.RemoveChild(g.ID, itemID); err != nil {
		return err
	}
	if err := s.store.Items().Delete(ctx, itemID); err != nil {
		return s.fail("remove_item", snapshot, err)
	}
	s.forgetItem(ctx, itemID)
	s.notify.NotifySuccess("item removed")
	return nil
}

func (s *Session) forgetItem(ctx context.Context, itemID string) {
	s.cache.Invalidate(ctx, itemID)
	delete(s.drafts, itemID)
	delete(s.selection, itemID)
	s.fields.Cancel(FieldKey{Field: FieldItemQuestion, NodeID: itemID})
	s.fields.Cancel(FieldKey{Field: FieldItemShortName, NodeID: itemID})
}

// EditField applies a free-text edit to the tree immediately and schedules
// the debounced commit.
func (s *Session) EditField(k FieldKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if err := checkField(k.Field, value); err != nil {
		return err
	}
	if !applyField(s.tree, k, value) {
		return NotFoundError{Kind: string(k.Field), ID: k.NodeID}
	}
	s.fields.Set(k, value)
	return nil
}

func checkField(f Field, v string) error {
	var max int
	switch f {
	case FieldFormTitle, FieldGroupTitle:
		max = MaxTitleLen
	case FieldItemShortName:
		max = MaxShortName
	case FieldItemQuestion:
		max = MaxQuestionLen
	case FieldFormDescription:
		return nil
	default:
		return &ValidationError{Field: "field", Reason: fmt.Sprintf("unknown field %q", f)}
	}
	if len([]rune(v)) > max {
		return &ValidationError{Field: string(f), Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

// applyField writes v into the node addressed by k and reports whether it
// exists.
func applyField(t *Tree, k FieldKey, v string) bool {
	switch k.Field {
	case FieldFormTitle, FieldFormDescription:
		if k.NodeID != t.Form.ID {
			return false
		}
		if k.Field == FieldFormTitle {
			t.Form.Title = v
		} else {
			t.Form.Description = v
		}
		return true
	case FieldGroupTitle:
		if g := t.Group(k.NodeID); g != nil {
			g.Title = v
			return true
		}
	case FieldItemQuestion, FieldItemShortName:
		if it, _ := t.Item(k.NodeID); it != nil {
			if k.Field == FieldItemQuestion {
				it.Question = v
			} else {
				it.ShortName = v
			}
			return true
		}
	}
	return false
}

func (s *Session) commitField(k FieldKey, v string) error {
	ctx := context.Background()
	var err error
	switch k.Field {
	case FieldFormTitle:
		err = s.store.Forms().Update(ctx, k.NodeID, map[string]any{"title": v})
	case FieldFormDescription:
		err = s.store.Forms().Update(ctx, k.NodeID, map[string]any{"description": v})
	case FieldGroupTitle:
		err = s.store.Groups().Update(ctx, k.NodeID, map[string]any{"title": v})
	case FieldItemQuestion:
		err = s.store.Items().Update(ctx, k.NodeID, map[string]any{"question": v})
	case FieldItemShortName:
		err = s.store.Items().Update(ctx, k.NodeID, map[string]any{"short_name": v})
	default:
		err = fmt.Errorf("unknown field %q", k.Field)
	}
	if err != nil {
		return fmt.Errorf("commit %s of %s: %w", k.Field, k.NodeID, err)
	}
	return nil
}

// renumberIfStale rewrites the persisted order of a stale container.
func (s *Session) renumberIfStale(ctx context.Context, parentID string) error {
	if !s.tree.Stale(parentID) {
		return nil
	}
	if err := s.persistOrder(ctx, parentID, false); err != nil {
		return err
	}
	s.tree.clearStale(parentID)
	return nil
}

// persistOrder issues one batch upsert of the container's siblings limited
// to order_index (and group_id when reparented). Local-only options are
// skipped; they get their index when the item is synced.
func (s *Session) persistOrder(ctx context.Context, parentID string, reparented bool) error {
	kind, ok := s.tree.kindOf(parentID)
	if !ok {
		return NotFoundError{Kind: "container", ID: parentID}
	}
	switch kind {
	case KindForm:
		recs := make([]domain.Group, 0, len(s.tree.Groups))
		for _, g := range s.tree.Groups {
			recs = append(recs, g.Group)
		}
		if len(recs) == 0 {
			return nil
		}
		return s.store.Groups().BatchUpsert(ctx, recs, "order_index")
	case KindGroup:
		g := s.tree.Group(parentID)
		recs := make([]domain.Item, 0, len(g.Items))
		for _, it := range g.Items {
			recs = append(recs, it.Item)
		}
		if len(recs) == 0 {
			return nil
		}
		cols := []string{"order_index"}
		if reparented {
			cols = append(cols, "group_id")
		}
		return s.store.Items().BatchUpsert(ctx, recs, cols...)
	case KindItem:
		it, _ := s.tree.Item(parentID)
		recs := make([]domain.Option, 0, len(it.Options))
		for _, o := range it.Options {
			if o.Persisted() {
				recs = append(recs, o.Option)
			}
		}
		if len(recs) == 0 {
			return nil
		}
		return s.store.Options().BatchUpsert(ctx, recs, "order_index")
	}
	return ErrKindMismatch
}

// SetGeneralFeedback writes the actor's general feedback template for a
// persisted option.
func (s *Session) SetGeneralFeedback(ctx context.Context, optionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	o, _ := s.tree.Option(optionID)
	if o == nil || !o.Persisted() {
		return NotFoundError{Kind: string(KindOption), ID: optionID}
	}
	prev := o.General
	o.General = text
	rec := &domain.FeedbackGeneral{OptionID: o.ID, AuthorID: s.ActorID, Text: text}
	if err := s.store.UpsertGeneralFeedback(ctx, rec); err != nil {
		o.General = prev
		return s.fail("set_general_feedback", nil, err)
	}
	return nil
}

// AddTag appends a feedback tag to a persisted option.
func (s *Session) AddTag(ctx context.Context, optionID, name, text string) (*domain.FeedbackTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	name, err := requireText("name", name, MaxTagNameLen)
	if err != nil {
		return nil, err
	}
	o, _ := s.tree.Option(optionID)
	if o == nil || !o.Persisted() {
		return nil, NotFoundError{Kind: string(KindOption), ID: optionID}
	}
	tag := domain.FeedbackTag{OptionID: o.ID, Name: name, Text: text, OrderIndex: len(o.Tags)}
	if err := s.store.Tags().Insert(ctx, &tag); err != nil {
		return nil, s.fail("add_tag", nil, err)
	}
	o.Tags = append(o.Tags, tag)
	return &tag, nil
}

// DeleteTag removes a feedback tag and deactivates it wherever it is active.
func (s *Session) DeleteTag(ctx context.Context, optionID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	o, it := s.tree.Option(optionID)
	if o == nil {
		return NotFoundError{Kind: string(KindOption), ID: optionID}
	}
	idx := -1
	for i, tg := range o.Tags {
		if tg.ID == tagID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return NotFoundError{Kind: "tag", ID: tagID}
	}
	if err := s.store.Tags().Delete(ctx, tagID); err != nil {
		return s.fail("delete_tag", nil, err)
	}
	o.Tags = append(o.Tags[:idx:idx], o.Tags[idx+1:]...)
	if sel := s.selection[it.ID]; sel != nil && sel.deactivate(tagID) {
		sel.resolve(o)
	}
	return nil
}

// itemOrErr looks up an item, mapping a miss to NotFoundError.
func (s *Session) itemOrErr(itemID string) (*ItemNode, error) {
	it, _ := s.tree.Item(itemID)
	if it == nil {
		return nil, NotFoundError{Kind: string(KindItem), ID: itemID}
	}
	return it, nil
}
