package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tbourn/go-form-builder/internal/domain"
)

var errBoom = errors.New("boom")

// fakeStore is an in-memory Store with call recording and failure
// injection keyed by "<table>.<op>" (for example "options.batch_upsert").
type fakeStore struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
	seq    int

	form    domain.Form
	groups  *fakeTable[domain.Group]
	items   *fakeTable[domain.Item]
	options *fakeTable[domain.Option]
	tags    *fakeTable[domain.FeedbackTag]
	forms   *fakeTable[domain.Form]
	general map[string]domain.FeedbackGeneral // option|author
}

func newFakeStore(form domain.Form) *fakeStore {
	s := &fakeStore{failOn: map[string]error{}, form: form, general: map[string]domain.FeedbackGeneral{}}
	s.forms = &fakeTable[domain.Form]{
		s: s, name: "forms",
		key:    func(r *domain.Form) *string { return &r.ID },
		parent: func(r *domain.Form) string { return r.CreatedBy },
		order:  func(*domain.Form) int { return 0 },
		set: map[string]func(*domain.Form, any){
			"title":       func(r *domain.Form, v any) { r.Title = v.(string) },
			"description": func(r *domain.Form, v any) { r.Description = v.(string) },
		},
	}
	s.forms.rows = []domain.Form{form}
	s.groups = &fakeTable[domain.Group]{
		s: s, name: "groups",
		key:    func(r *domain.Group) *string { return &r.ID },
		parent: func(r *domain.Group) string { return r.FormID },
		order:  func(r *domain.Group) int { return r.OrderIndex },
		set: map[string]func(*domain.Group, any){
			"title":       func(r *domain.Group, v any) { r.Title = v.(string) },
			"order_index": func(r *domain.Group, v any) { r.OrderIndex = v.(int) },
		},
		cols: map[string]func(dst, src *domain.Group){
			"order_index": func(d, s *domain.Group) { d.OrderIndex = s.OrderIndex },
		},
		cascade: func(id string) { s.items.deleteWhere(func(it *domain.Item) bool { return it.GroupID == id }) },
	}
	s.items = &fakeTable[domain.Item]{
		s: s, name: "items",
		key:    func(r *domain.Item) *string { return &r.ID },
		parent: func(r *domain.Item) string { return r.GroupID },
		order:  func(r *domain.Item) int { return r.OrderIndex },
		set: map[string]func(*domain.Item, any){
			"question":    func(r *domain.Item, v any) { r.Question = v.(string) },
			"short_name":  func(r *domain.Item, v any) { r.ShortName = v.(string) },
			"required":    func(r *domain.Item, v any) { r.Required = v.(bool) },
			"answer_type": func(r *domain.Item, v any) { r.AnswerType = domain.AnswerType(v.(string)) },
		},
		cols: map[string]func(dst, src *domain.Item){
			"order_index": func(d, s *domain.Item) { d.OrderIndex = s.OrderIndex },
			"group_id":    func(d, s *domain.Item) { d.GroupID = s.GroupID },
		},
		cascade: func(id string) { s.options.deleteWhere(func(o *domain.Option) bool { return o.ItemID == id }) },
	}
	s.options = &fakeTable[domain.Option]{
		s: s, name: "options",
		key:    func(r *domain.Option) *string { return &r.ID },
		parent: func(r *domain.Option) string { return r.ItemID },
		order:  func(r *domain.Option) int { return r.OrderIndex },
		cols: map[string]func(dst, src *domain.Option){
			"order_index": func(d, s *domain.Option) { d.OrderIndex = s.OrderIndex },
			"is_default":  func(d, s *domain.Option) { d.IsDefault = s.IsDefault },
		},
		cascade: func(id string) {
			s.tags.deleteWhere(func(t *domain.FeedbackTag) bool { return t.OptionID == id })
			for k, g := range s.general {
				if g.OptionID == id {
					delete(s.general, k)
				}
			}
		},
	}
	s.tags = &fakeTable[domain.FeedbackTag]{
		s: s, name: "tags",
		key:    func(r *domain.FeedbackTag) *string { return &r.ID },
		parent: func(r *domain.FeedbackTag) string { return r.OptionID },
		order:  func(r *domain.FeedbackTag) int { return r.OrderIndex },
	}
	return s
}

func (s *fakeStore) Forms() Table[domain.Form]       { return s.forms }
func (s *fakeStore) Groups() Table[domain.Group]     { return s.groups }
func (s *fakeStore) Items() Table[domain.Item]       { return s.items }
func (s *fakeStore) Options() Table[domain.Option]   { return s.options }
func (s *fakeStore) Tags() Table[domain.FeedbackTag] { return s.tags }

func (s *fakeStore) LoadForm(_ context.Context, formID, authorID string) (*domain.FormSnapshot, error) {
	if err := s.record("store.load_form"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	form := s.forms.rows[0]
	if form.ID != formID {
		return nil, NotFoundError{Kind: "form", ID: formID}
	}
	snap := &domain.FormSnapshot{Form: form, AuthorID: authorID}
	snap.Groups = slices.Clone(s.groups.rows)
	snap.Items = slices.Clone(s.items.rows)
	snap.Options = slices.Clone(s.options.rows)
	snap.Tags = slices.Clone(s.tags.rows)
	for _, g := range s.general {
		snap.General = append(snap.General, g)
	}
	return snap, nil
}

func (s *fakeStore) UpsertGeneralFeedback(_ context.Context, rec *domain.FeedbackGeneral) error {
	if err := s.record("general.upsert"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.general[rec.OptionID+"|"+rec.AuthorID] = *rec
	return nil
}

// record logs a call and returns the injected failure for it, if any.
func (s *fakeStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
	return s.failOn[op]
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// callsWithPrefix returns recorded calls starting with p.
func (s *fakeStore) callsWithPrefix(p string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if strings.HasPrefix(c, p) {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeStore) resetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

type fakeTable[T any] struct {
	s       *fakeStore
	name    string
	rows    []T
	key     func(*T) *string
	parent  func(*T) string
	order   func(*T) int
	set     map[string]func(*T, any)
	cols    map[string]func(dst, src *T)
	cascade func(id string)
}

func (t *fakeTable[T]) find(id string) int {
	for i := range t.rows {
		if *t.key(&t.rows[i]) == id {
			return i
		}
	}
	return -1
}

func (t *fakeTable[T]) deleteWhere(pred func(*T) bool) {
	var ids []string
	for i := range t.rows {
		if pred(&t.rows[i]) {
			ids = append(ids, *t.key(&t.rows[i]))
		}
	}
	for _, id := range ids {
		t.deleteOne(id)
	}
}

func (t *fakeTable[T]) deleteOne(id string) {
	if i := t.find(id); i >= 0 {
		t.rows = slices.Delete(t.rows, i, i+1)
		if t.cascade != nil {
			t.cascade(id)
		}
	}
}

func (t *fakeTable[T]) Select(_ context.Context, parentID string) ([]T, error) {
	if err := t.s.record(t.name + ".select"); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []T
	for i := range t.rows {
		if t.parent(&t.rows[i]) == parentID {
			out = append(out, t.rows[i])
		}
	}
	slices.SortStableFunc(out, func(a, b T) int { return t.order(&a) - t.order(&b) })
	return out, nil
}

func (t *fakeTable[T]) Insert(_ context.Context, rec *T) error {
	if err := t.s.record(t.name + ".insert"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if *t.key(rec) == "" {
		*t.key(rec) = t.s.nextID(t.name)
	}
	t.rows = append(t.rows, *rec)
	return nil
}

func (t *fakeTable[T]) Update(_ context.Context, id string, fields map[string]any) error {
	if err := t.s.record(t.name + ".update"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	i := t.find(id)
	if i < 0 {
		return NotFoundError{Kind: t.name, ID: id}
	}
	for col, v := range fields {
		fn, ok := t.set[col]
		if !ok {
			return fmt.Errorf("%s: unknown column %s", t.name, col)
		}
		fn(&t.rows[i], v)
	}
	return nil
}

func (t *fakeTable[T]) Delete(_ context.Context, id string) error {
	if err := t.s.record(t.name + ".delete"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.deleteOne(id)
	return nil
}

func (t *fakeTable[T]) DeleteMany(_ context.Context, ids []string) error {
	if err := t.s.record(t.name + ".delete_many"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, id := range ids {
		t.deleteOne(id)
	}
	return nil
}

func (t *fakeTable[T]) BatchUpsert(_ context.Context, recs []T, columns ...string) error {
	op := t.name + ".batch_upsert"
	if len(columns) > 0 {
		op += "[" + strings.Join(columns, ",") + "]"
	}
	if err := t.s.record(op); err != nil {
		return err
	}
	if err := t.s.failOn[t.name+".batch_upsert"]; err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := range recs {
		rec := &recs[i]
		if *t.key(rec) == "" {
			*t.key(rec) = t.s.nextID(t.name)
		}
		j := t.find(*t.key(rec))
		if j < 0 {
			if len(columns) == 0 {
				t.rows = append(t.rows, *rec)
			}
			continue
		}
		if len(columns) == 0 {
			t.rows[j] = *rec
			continue
		}
		for _, c := range columns {
			fn, ok := t.cols[c]
			if !ok {
				return fmt.Errorf("%s: unknown column %s", t.name, c)
			}
			fn(&t.rows[j], rec)
		}
	}
	return nil
}

// rowsOf returns the persisted children of parentID ordered by order_index.
func (t *fakeTable[T]) rowsOf(parentID string) []T {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []T
	for i := range t.rows {
		if t.parent(&t.rows[i]) == parentID {
			out = append(out, t.rows[i])
		}
	}
	slices.SortStableFunc(out, func(a, b T) int { return t.order(&a) - t.order(&b) })
	return out
}

// memCache is a map-backed IDCache.
type memCache struct {
	mu sync.Mutex
	m  map[string][]string
}

func newMemCache() *memCache { return &memCache{m: map[string][]string{}} }

func (c *memCache) Get(_ context.Context, k string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[k]
	return slices.Clone(v), ok
}

func (c *memCache) Set(_ context.Context, k string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = slices.Clone(ids)
}

func (c *memCache) Invalidate(_ context.Context, k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, k)
}

// recNotifier records notifications.
type recNotifier struct {
	mu       sync.Mutex
	success  []string
	failures []string
}

func (n *recNotifier) NotifySuccess(msg string) {
	n.mu.Lock()
	n.success = append(n.success, msg)
	n.mu.Unlock()
}

func (n *recNotifier) NotifyError(msg string) {
	n.mu.Lock()
	n.failures = append(n.failures, msg)
	n.mu.Unlock()
}

func (n *recNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failures)
}
