package editor

import (
	"context"
	"fmt"
)

// Drag is the result of a drag-and-drop gesture.
type Drag struct {
	Kind              Kind   `json:"kind"                validate:"required,oneof=group item option"`
	SourceContainerID string `json:"source_container_id" validate:"required"`
	SourceIndex       int    `json:"source_index"        validate:"min=0"`
	DestContainerID   string `json:"dest_container_id"`
	DestIndex         int    `json:"dest_index"          validate:"min=0"`
}

// DragResult reports what a drag changed. Containers maps every affected
// container id to its renumbered siblings. Deferred is set when the moved
// options include local drafts; their order is persisted by the next sync.
type DragResult struct {
	Applied    bool                 `json:"applied"`
	Deferred   bool                 `json:"deferred,omitempty"`
	Containers map[string][]Sibling `json:"containers,omitempty"`
}

// Drag applies a drag result to the tree and persists the new order of
// every affected container with one batch upsert each. Drops that the rules
// do not allow, and drops onto the starting position, are no-ops. On any
// persistence failure the tree is restored to its pre-drag state.
func (s *Session) Drag(ctx context.Context, d Drag) (*DragResult, error) {
	if err := validateStruct(d); err != nil {
		return nil, err
	}
	if d.DestContainerID == "" {
		d.DestContainerID = d.SourceContainerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}

	noop := &DragResult{}
	if d.SourceContainerID == d.DestContainerID && d.SourceIndex == d.DestIndex {
		return noop, nil
	}

	switch d.Kind {
	case KindGroup:
		if d.SourceContainerID != s.FormID {
			return nil, NotFoundError{Kind: string(KindForm), ID: d.SourceContainerID}
		}
		if d.DestContainerID != s.FormID {
			return noop, nil
		}
		if d.SourceIndex >= len(s.tree.Groups) {
			return nil, NotFoundError{Kind: string(KindGroup), ID: fmt.Sprintf("%s[%d]", s.FormID, d.SourceIndex)}
		}
		return s.moveWithin(ctx, s.FormID, d.SourceIndex, d.DestIndex)

	case KindItem:
		src := s.tree.Group(d.SourceContainerID)
		if src == nil {
			return nil, NotFoundError{Kind: string(KindGroup), ID: d.SourceContainerID}
		}
		if d.SourceIndex >= len(src.Items) {
			return nil, NotFoundError{Kind: string(KindItem), ID: fmt.Sprintf("%s[%d]", src.ID, d.SourceIndex)}
		}
		if d.SourceContainerID == d.DestContainerID {
			return s.moveWithin(ctx, src.ID, d.SourceIndex, d.DestIndex)
		}
		dst := s.tree.Group(d.DestContainerID)
		if dst == nil {
			return noop, nil
		}
		return s.reparentItem(ctx, src, dst, d.SourceIndex, d.DestIndex)

	case KindOption:
		it, _ := s.tree.Item(d.SourceContainerID)
		if it == nil {
			return nil, NotFoundError{Kind: string(KindItem), ID: d.SourceContainerID}
		}
		if d.DestContainerID != d.SourceContainerID {
			return noop, nil
		}
		if d.SourceIndex >= len(it.Options) {
			return nil, NotFoundError{Kind: string(KindOption), ID: fmt.Sprintf("%s[%d]", it.ID, d.SourceIndex)}
		}
		return s.moveWithin(ctx, it.ID, d.SourceIndex, d.DestIndex)
	}
	return noop, nil
}

func (s *Session) moveWithin(ctx context.Context, parentID string, from, to int) (*DragResult, error) {
	snapshot := s.tree.Clone()
	sibs, err := s.tree.MoveChild(parentID, from, to)
	if err != nil {
		return nil, err
	}
	res := &DragResult{Applied: true, Containers: map[string][]Sibling{parentID: sibs}}

	if it, _ := s.tree.Item(parentID); it != nil && hasDrafts(it) {
		res.Deferred = true
		return res, nil
	}
	if err := s.persistOrder(ctx, parentID, false); err != nil {
		return nil, s.fail("drag", snapshot, err)
	}
	s.tree.clearStale(parentID)
	if it, _ := s.tree.Item(parentID); it != nil {
		s.cache.Set(ctx, it.ID, persistedIDs(it))
	}
	return res, nil
}

func (s *Session) reparentItem(ctx context.Context, src, dst *GroupNode, from, to int) (*DragResult, error) {
	snapshot := s.tree.Clone()

	var moved *ItemNode
	src.Items, moved = removeAt(src.Items, from)
	srcSibs := renumber(src.Items)
	dstSibs, err := s.tree.InsertChild(dst.ID, to, moved)
	if err != nil {
		s.tree = snapshot
		return nil, err
	}

	if err := s.persistOrder(ctx, src.ID, false); err != nil {
		return nil, s.fail("drag", snapshot, err)
	}
	if err := s.persistOrder(ctx, dst.ID, true); err != nil {
		return nil, s.fail("drag", snapshot, err)
	}
	s.tree.clearStale(src.ID)
	s.tree.clearStale(dst.ID)
	return &DragResult{
		Applied:    true,
		Containers: map[string][]Sibling{src.ID: srcSibs, dst.ID: dstSibs},
	}, nil
}

func hasDrafts(it *ItemNode) bool {
	for _, o := range it.Options {
		if !o.Persisted() {
			return true
		}
	}
	return false
}
