package editor

import (
	"slices"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// Kind names a node level in the tree.
type Kind string

const (
	KindForm   Kind = "form"
	KindGroup  Kind = "group"
	KindItem   Kind = "item"
	KindOption Kind = "option"
)

// Node is a group, item or option node.
type Node interface {
	orderable
	Kind() Kind
}

// Tree is the in-memory Group → Item → Option hierarchy of one form.
//
// The tree's order_index values are always the array positions of the
// nodes. Containers whose persisted indices may have drifted from that
// (after a removal, or when loaded with gaps) are tracked as stale and are
// rewritten in full the next time an insert or move touches them.
type Tree struct {
	Form   domain.Form  `json:"form"`
	Groups []*GroupNode `json:"groups"`

	stale map[string]struct{}
}

type GroupNode struct {
	domain.Group
	Items []*ItemNode `json:"items"`
}

type ItemNode struct {
	domain.Item
	Options []*OptionNode `json:"options"`
}

// OptionNode is an option in the tree. DraftKey is set, and ID empty, for
// options that exist only locally.
type OptionNode struct {
	domain.Option
	DraftKey string               `json:"draft_key,omitempty"`
	General  string               `json:"general_feedback"`
	Tags     []domain.FeedbackTag `json:"tags"`
}

func (g *GroupNode) NodeID() string      { return g.ID }
func (g *GroupNode) Kind() Kind          { return KindGroup }
func (g *GroupNode) setOrderIndex(i int) { g.OrderIndex = i }

func (it *ItemNode) NodeID() string      { return it.ID }
func (it *ItemNode) Kind() Kind          { return KindItem }
func (it *ItemNode) setOrderIndex(i int) { it.OrderIndex = i }

// NodeID returns the persisted id, or the draft key for a local option.
func (o *OptionNode) NodeID() string {
	if o.ID == "" {
		return o.DraftKey
	}
	return o.ID
}
func (o *OptionNode) Kind() Kind          { return KindOption }
func (o *OptionNode) setOrderIndex(i int) { o.OrderIndex = i }

// Persisted reports whether the option has a store id.
func (o *OptionNode) Persisted() bool { return o.ID != "" }

// BuildTree assembles a tree from a flat snapshot. Children are ordered by
// their persisted order_index (ties by id) and then renumbered; containers
// whose persisted indices were not dense are marked stale.
func BuildTree(snap *domain.FormSnapshot) *Tree {
	t := &Tree{Form: snap.Form, stale: map[string]struct{}{}}

	general := make(map[string]string, len(snap.General))
	for _, g := range snap.General {
		if snap.AuthorID == "" || g.AuthorID == snap.AuthorID {
			general[g.OptionID] = g.Text
		}
	}
	tags := map[string][]domain.FeedbackTag{}
	for _, tg := range snap.Tags {
		tags[tg.OptionID] = append(tags[tg.OptionID], tg)
	}

	options := map[string][]*OptionNode{}
	for _, o := range snap.Options {
		n := &OptionNode{Option: o, General: general[o.ID]}
		n.Tags = sortedTags(tags[o.ID])
		options[o.ItemID] = append(options[o.ItemID], n)
	}
	items := map[string][]*ItemNode{}
	for _, it := range snap.Items {
		n := &ItemNode{Item: it}
		n.Options = adoptSorted(t, it.ID, options[it.ID], func(o *OptionNode) int { return o.OrderIndex })
		items[it.GroupID] = append(items[it.GroupID], n)
	}
	var groups []*GroupNode
	for _, g := range snap.Groups {
		if g.FormID != snap.Form.ID {
			continue
		}
		n := &GroupNode{Group: g}
		n.Items = adoptSorted(t, g.ID, items[g.ID], func(it *ItemNode) int { return it.OrderIndex })
		groups = append(groups, n)
	}
	t.Groups = adoptSorted(t, snap.Form.ID, groups, func(g *GroupNode) int { return g.OrderIndex })
	return t
}

func adoptSorted[T orderable](t *Tree, parentID string, s []T, idx func(T) int) []T {
	slices.SortStableFunc(s, func(a, b T) int {
		if d := idx(a) - idx(b); d != 0 {
			return d
		}
		switch {
		case a.NodeID() < b.NodeID():
			return -1
		case a.NodeID() > b.NodeID():
			return 1
		}
		return 0
	})
	indices := make([]int, len(s))
	for i, v := range s {
		indices[i] = idx(v)
	}
	if !dense(indices) {
		t.markStale(parentID)
	}
	renumber(s)
	return s
}

func sortedTags(in []domain.FeedbackTag) []domain.FeedbackTag {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b domain.FeedbackTag) int { return a.OrderIndex - b.OrderIndex })
	return out
}

// Clone returns a deep copy of the tree, used as a rollback snapshot.
func (t *Tree) Clone() *Tree {
	c := &Tree{Form: t.Form, Groups: make([]*GroupNode, len(t.Groups)), stale: make(map[string]struct{}, len(t.stale))}
	for k := range t.stale {
		c.stale[k] = struct{}{}
	}
	for i, g := range t.Groups {
		gc := &GroupNode{Group: g.Group, Items: make([]*ItemNode, len(g.Items))}
		for j, it := range g.Items {
			gc.Items[j] = it.clone()
		}
		c.Groups[i] = gc
	}
	return c
}

func (it *ItemNode) clone() *ItemNode {
	c := &ItemNode{Item: it.Item, Options: make([]*OptionNode, len(it.Options))}
	for k, o := range it.Options {
		oc := *o
		oc.Tags = slices.Clone(o.Tags)
		c.Options[k] = &oc
	}
	return c
}

// Group returns the group with the given id, or nil.
func (t *Tree) Group(id string) *GroupNode {
	for _, g := range t.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Item returns the item with the given id and its parent group.
func (t *Tree) Item(id string) (*ItemNode, *GroupNode) {
	for _, g := range t.Groups {
		for _, it := range g.Items {
			if it.ID == id {
				return it, g
			}
		}
	}
	return nil, nil
}

// Option returns the option whose NodeID is id, and its parent item.
func (t *Tree) Option(id string) (*OptionNode, *ItemNode) {
	for _, g := range t.Groups {
		for _, it := range g.Items {
			for _, o := range it.Options {
				if o.NodeID() == id {
					return o, it
				}
			}
		}
	}
	return nil, nil
}

// kindOf reports which level id lives at.
func (t *Tree) kindOf(id string) (Kind, bool) {
	if id == t.Form.ID {
		return KindForm, true
	}
	if t.Group(id) != nil {
		return KindGroup, true
	}
	if it, _ := t.Item(id); it != nil {
		return KindItem, true
	}
	if o, _ := t.Option(id); o != nil {
		return KindOption, true
	}
	return "", false
}

func (t *Tree) parentError(parentID string, want Kind) error {
	if _, ok := t.kindOf(parentID); ok {
		return ErrKindMismatch
	}
	return NotFoundError{Kind: string(want), ID: parentID}
}

// InsertChild places n under parentID at position (clamped) and returns the
// renumbered siblings. The parent foreign key of n is set to parentID.
func (t *Tree) InsertChild(parentID string, position int, n Node) ([]Sibling, error) {
	switch n := n.(type) {
	case *GroupNode:
		if parentID != t.Form.ID {
			return nil, t.parentError(parentID, KindForm)
		}
		n.FormID = parentID
		t.Groups = insertAt(t.Groups, position, n)
		return renumber(t.Groups), nil
	case *ItemNode:
		g := t.Group(parentID)
		if g == nil {
			return nil, t.parentError(parentID, KindGroup)
		}
		n.GroupID = parentID
		g.Items = insertAt(g.Items, position, n)
		return renumber(g.Items), nil
	case *OptionNode:
		it, _ := t.Item(parentID)
		if it == nil {
			return nil, t.parentError(parentID, KindItem)
		}
		n.ItemID = parentID
		it.Options = insertAt(it.Options, position, n)
		return renumber(it.Options), nil
	}
	return nil, ErrKindMismatch
}

// RemoveChild detaches childID from parentID and returns the renumbered
// remaining siblings. The container is marked stale.
func (t *Tree) RemoveChild(parentID, childID string) ([]Sibling, error) {
	kind, ok := t.kindOf(parentID)
	if !ok {
		return nil, NotFoundError{Kind: "container", ID: parentID}
	}
	var (
		out []Sibling
		idx = -1
	)
	switch kind {
	case KindForm:
		if idx = indexOf(t.Groups, childID); idx >= 0 {
			t.Groups, _ = removeAt(t.Groups, idx)
			out = renumber(t.Groups)
		}
	case KindGroup:
		g := t.Group(parentID)
		if idx = indexOf(g.Items, childID); idx >= 0 {
			g.Items, _ = removeAt(g.Items, idx)
			out = renumber(g.Items)
		}
	case KindItem:
		it, _ := t.Item(parentID)
		if idx = indexOf(it.Options, childID); idx >= 0 {
			it.Options, _ = removeAt(it.Options, idx)
			out = renumber(it.Options)
		}
	default:
		return nil, ErrKindMismatch
	}
	if idx < 0 {
		return nil, NotFoundError{Kind: "child", ID: childID}
	}
	t.markStale(parentID)
	return out, nil
}

// MoveChild moves the child at fromIndex to toIndex within parentID and
// returns the renumbered siblings.
func (t *Tree) MoveChild(parentID string, fromIndex, toIndex int) ([]Sibling, error) {
	kind, ok := t.kindOf(parentID)
	if !ok {
		return nil, NotFoundError{Kind: "container", ID: parentID}
	}
	switch kind {
	case KindForm:
		t.Groups = moveTo(t.Groups, fromIndex, toIndex)
		return renumber(t.Groups), nil
	case KindGroup:
		g := t.Group(parentID)
		g.Items = moveTo(g.Items, fromIndex, toIndex)
		return renumber(g.Items), nil
	case KindItem:
		it, _ := t.Item(parentID)
		it.Options = moveTo(it.Options, fromIndex, toIndex)
		return renumber(it.Options), nil
	}
	return nil, ErrKindMismatch
}

// Siblings returns the current (id, order_index) list of a container.
func (t *Tree) Siblings(parentID string) []Sibling {
	kind, _ := t.kindOf(parentID)
	switch kind {
	case KindForm:
		return siblingsOf(t.Groups)
	case KindGroup:
		return siblingsOf(t.Group(parentID).Items)
	case KindItem:
		it, _ := t.Item(parentID)
		return siblingsOf(it.Options)
	}
	return nil
}

func siblingsOf[T orderable](s []T) []Sibling {
	out := make([]Sibling, len(s))
	for i, v := range s {
		out[i] = Sibling{ID: v.NodeID(), OrderIndex: i}
	}
	return out
}

func (t *Tree) markStale(id string) {
	if t.stale == nil {
		t.stale = map[string]struct{}{}
	}
	t.stale[id] = struct{}{}
}

// Stale reports whether the persisted indices of a container may differ from
// the tree.
func (t *Tree) Stale(id string) bool {
	_, ok := t.stale[id]
	return ok
}

func (t *Tree) clearStale(id string) { delete(t.stale, id) }
