package editor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// Canonical yes/no labels.
const (
	LabelYes = "Yes"
	LabelNo  = "No"
)

// canonicalYesNo returns the fixed option pair of a yes/no item, unsaved.
func canonicalYesNo(itemID string) []domain.Option {
	return []domain.Option{
		{ItemID: itemID, Label: LabelYes, Value: Slugify(LabelYes), IsDefault: true, IsCorrect: true, OrderIndex: 0},
		{ItemID: itemID, Label: LabelNo, Value: Slugify(LabelNo), OrderIndex: 1},
	}
}

// canonicalDrafts returns the yes/no pair as drafts, reusing the references
// of existing options with matching labels.
func canonicalDrafts(it *ItemNode) []OptionDraft {
	refFor := func(label string) OptionRef {
		for _, o := range it.Options {
			if strings.EqualFold(strings.TrimSpace(o.Label), label) {
				return o.ref()
			}
		}
		return DraftRef(uuid.NewString())
	}
	return []OptionDraft{
		{Ref: refFor(LabelYes), Label: LabelYes, IsDefault: true, IsCorrect: true},
		{Ref: refFor(LabelNo), Label: LabelNo},
	}
}

// SetDefault makes optionID the only default option of its item:
// is_default := (id == optionID) for every sibling, written as one batch
// upsert of the is_default column. The tree is restored on failure.
func (s *Session) SetDefault(ctx context.Context, itemID, optionID string) (*ItemNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return nil, err
	}
	if it.AnswerType == domain.AnswerYesNo {
		return nil, &ValidationError{Field: "option_id", Reason: ErrFixedOptions.Error()}
	}
	if indexOf(it.Options, optionID) < 0 {
		return nil, NotFoundError{Kind: string(KindOption), ID: optionID}
	}

	snapshot := s.tree.Clone()
	recs := make([]domain.Option, 0, len(it.Options))
	for _, o := range it.Options {
		o.IsDefault = o.NodeID() == optionID
		if o.Persisted() {
			recs = append(recs, o.Option)
		}
	}
	if len(recs) > 0 {
		if err := s.store.Options().BatchUpsert(ctx, recs, "is_default"); err != nil {
			return nil, s.fail("set_default", snapshot, err)
		}
	}
	s.notify.NotifySuccess("default option updated")
	return it.clone(), nil
}

// SwitchAnswerType changes an item's answer type in the tree only. Switching
// into yes/no replaces the options with the canonical pair as drafts.
// Nothing is persisted until SaveItem.
func (s *Session) SwitchAnswerType(itemID string, t domain.AnswerType) (*ItemNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, &ValidationError{Field: "answer_type", Reason: "unknown answer type"}
	}
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return nil, err
	}
	if it.AnswerType == t {
		return it.clone(), nil
	}
	it.AnswerType = t
	if t == domain.AnswerYesNo {
		pair := canonicalYesNo(it.ID)
		it.Options = make([]*OptionNode, 0, len(pair))
		for i := range pair {
			it.Options = append(it.Options, &OptionNode{Option: pair[i], DraftKey: uuid.NewString()})
		}
		delete(s.selection, it.ID)
	}
	return it.clone(), nil
}

// SaveItemInput carries the explicit-save fields of an item. Nil fields
// keep the tree's value; nil Options saves the tree's current options.
type SaveItemInput struct {
	Question  *string
	ShortName *string
	Required  *bool
	Options   []OptionDraft
}

// SaveItem commits an item's fields and then its option set through
// SyncOptions. Pending debounced edits of the item are folded into the
// same update.
func (s *Session) SaveItem(ctx context.Context, itemID string, in SaveItemInput) (*ItemNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return nil, err
	}

	question, shortName, required := it.Question, it.ShortName, it.Required
	if in.Question != nil {
		question = *in.Question
	}
	if in.ShortName != nil {
		shortName = strings.TrimSpace(*in.ShortName)
	}
	if in.Required != nil {
		required = *in.Required
	}
	if question, err = requireText("question", question, MaxQuestionLen); err != nil {
		return nil, err
	}
	if err := checkField(FieldItemShortName, shortName); err != nil {
		return nil, err
	}
	drafts := in.Options
	if drafts == nil {
		drafts = it.Drafts()
	}

	fields := map[string]any{
		"question":    question,
		"short_name":  shortName,
		"required":    required,
		"answer_type": string(it.AnswerType),
	}
	if err := s.store.Items().Update(ctx, it.ID, fields); err != nil {
		return nil, s.fail("save_item", nil, err)
	}
	s.fields.Cancel(FieldKey{Field: FieldItemQuestion, NodeID: it.ID})
	s.fields.Cancel(FieldKey{Field: FieldItemShortName, NodeID: it.ID})
	it.Question, it.ShortName, it.Required = question, shortName, required

	if err := s.syncOptions(ctx, it, drafts); err != nil {
		return nil, err
	}
	return it.clone(), nil
}
