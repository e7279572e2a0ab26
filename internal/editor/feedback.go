package editor

import "strings"

// ResolveFeedback computes the suggested feedback text for an answer.
//
// With active tags, it is the space-joined text of every active tag that
// belongs to opt, in activation order (tags with empty text are skipped).
// Without active tags it is the option's general template. A nil option
// resolves to "".
func ResolveFeedback(opt *OptionNode, activeTagIDs []string) string {
	if opt == nil {
		return ""
	}
	if len(activeTagIDs) == 0 {
		return opt.General
	}
	texts := make(map[string]string, len(opt.Tags))
	for _, t := range opt.Tags {
		texts[t.ID] = t.Text
	}
	parts := make([]string, 0, len(activeTagIDs))
	for _, id := range activeTagIDs {
		if txt, ok := texts[id]; ok && txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

// Selection is the feedback state of one item: the selected option, the
// tags activated against it (in activation order) and the current text.
// Edited is set when Text was typed by hand after the last resolution.
type Selection struct {
	OptionID   string   `json:"option_id"`
	ActiveTags []string `json:"active_tags"`
	Text       string   `json:"text"`
	Edited     bool     `json:"edited"`
}

func (sel *Selection) resolve(o *OptionNode) {
	sel.Text = ResolveFeedback(o, sel.ActiveTags)
	sel.Edited = false
}

// toggle flips tagID and reports whether it is now active.
func (sel *Selection) toggle(tagID string) bool {
	if sel.deactivate(tagID) {
		return false
	}
	sel.ActiveTags = append(sel.ActiveTags, tagID)
	return true
}

func (sel *Selection) deactivate(tagID string) bool {
	for i, id := range sel.ActiveTags {
		if id == tagID {
			sel.ActiveTags = append(sel.ActiveTags[:i:i], sel.ActiveTags[i+1:]...)
			return true
		}
	}
	return false
}

func (sel *Selection) copy() Selection {
	c := *sel
	c.ActiveTags = append([]string(nil), sel.ActiveTags...)
	return c
}

// SelectOption selects an option for an item, clears its active tags and
// re-resolves the feedback text.
func (s *Session) SelectOption(itemID, optionID string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return Selection{}, ErrNotLoaded
	}
	s.touch()
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return Selection{}, err
	}
	idx := indexOf(it.Options, optionID)
	if idx < 0 {
		return Selection{}, NotFoundError{Kind: string(KindOption), ID: optionID}
	}
	sel := &Selection{OptionID: optionID}
	sel.resolve(it.Options[idx])
	s.selection[itemID] = sel
	return sel.copy(), nil
}

// ToggleTag activates or deactivates a tag of the selected option and
// re-resolves the feedback text.
func (s *Session) ToggleTag(itemID, tagID string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return Selection{}, ErrNotLoaded
	}
	s.touch()
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return Selection{}, err
	}
	sel := s.selection[itemID]
	if sel == nil {
		return Selection{}, &ValidationError{Field: "option_id", Reason: "no option selected for item " + itemID}
	}
	idx := indexOf(it.Options, sel.OptionID)
	if idx < 0 {
		delete(s.selection, itemID)
		return Selection{}, NotFoundError{Kind: string(KindOption), ID: sel.OptionID}
	}
	opt := it.Options[idx]
	found := false
	for _, t := range opt.Tags {
		if t.ID == tagID {
			found = true
			break
		}
	}
	if !found {
		return Selection{}, NotFoundError{Kind: "tag", ID: tagID}
	}
	sel.toggle(tagID)
	sel.resolve(opt)
	return sel.copy(), nil
}

// EditFeedbackText overrides the resolved text by hand. The edit holds
// until the next SelectOption or ToggleTag on the item.
func (s *Session) EditFeedbackText(itemID, text string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return Selection{}, ErrNotLoaded
	}
	s.touch()
	if _, err := s.itemOrErr(itemID); err != nil {
		return Selection{}, err
	}
	sel := s.selection[itemID]
	if sel == nil {
		return Selection{}, &ValidationError{Field: "option_id", Reason: "no option selected for item " + itemID}
	}
	sel.Text = text
	sel.Edited = true
	return sel.copy(), nil
}

// Feedback returns the feedback state of an item. An item with no selection
// yields the zero Selection.
func (s *Session) Feedback(itemID string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return Selection{}, ErrNotLoaded
	}
	s.touch()
	if _, err := s.itemOrErr(itemID); err != nil {
		return Selection{}, err
	}
	if sel := s.selection[itemID]; sel != nil {
		return sel.copy(), nil
	}
	return Selection{}, nil
}
