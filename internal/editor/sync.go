package editor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// OptionRef identifies the option a draft edits: either a persisted option
// (PersistedRef) or one that only exists locally (DraftRef).
type OptionRef interface {
	isOptionRef()
	String() string
}

// PersistedRef is the store id of an existing option.
type PersistedRef string

// DraftRef is a client-chosen key for an option never sent to the store.
type DraftRef string

func (PersistedRef) isOptionRef()     {}
func (DraftRef) isOptionRef()         {}
func (r PersistedRef) String() string { return string(r) }
func (r DraftRef) String() string     { return "draft:" + string(r) }

// RefFrom builds a ref from wire fields: a non-empty id wins over the key.
// A draft with neither gets a fresh key.
func RefFrom(id, draftKey string) OptionRef {
	switch {
	case id != "":
		return PersistedRef(id)
	case draftKey != "":
		return DraftRef(draftKey)
	}
	return DraftRef(uuid.NewString())
}

// OptionDraft is the locally edited state of one option.
type OptionDraft struct {
	Ref       OptionRef `json:"-"`
	Label     string    `json:"label"      validate:"required,max=255"`
	Color     string    `json:"color"      validate:"max=32"`
	IsDefault bool      `json:"is_default"`
	IsCorrect bool      `json:"is_correct"`
}

// SyncPlan is the minimal set of remote operations that brings one item's
// persisted options in line with a draft list. Upsert[i] has order_index i;
// records with an empty id are inserts. DraftKeys[i] is the draft key of
// Upsert[i], or "" for a persisted ref.
type SyncPlan struct {
	ItemID    string
	Delete    []string
	Upsert    []domain.Option
	DraftKeys []string
}

// validateDrafts checks drafts on their own, before any store call.
func validateDrafts(drafts []OptionDraft) error {
	seen := map[string]bool{}
	for i, d := range drafts {
		label, err := requireText(fmt.Sprintf("options[%d].label", i), d.Label, MaxLabelLen)
		if err != nil {
			return err
		}
		d.Label = label
		if err := validateStruct(d); err != nil {
			return err
		}
		if d.Ref == nil {
			return &ValidationError{Field: fmt.Sprintf("options[%d]", i), Reason: "missing option reference"}
		}
		if seen[d.Ref.String()] {
			return &ValidationError{Field: fmt.Sprintf("options[%d]", i), Reason: "duplicate option reference " + d.Ref.String()}
		}
		seen[d.Ref.String()] = true
	}
	return nil
}

// PlanSync partitions drafts against the persisted ids of an item. known
// maps draft keys to ids assigned by an earlier sync of the same drafts, so
// a retried draft updates instead of inserting twice. The first draft
// flagged default keeps the flag; later ones are cleared.
func PlanSync(itemID string, persisted []string, drafts []OptionDraft, known map[string]string) (*SyncPlan, error) {
	if err := validateDrafts(drafts); err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(persisted))
	for _, id := range persisted {
		have[id] = true
	}

	plan := &SyncPlan{
		ItemID:    itemID,
		Upsert:    make([]domain.Option, 0, len(drafts)),
		DraftKeys: make([]string, 0, len(drafts)),
	}
	kept := map[string]bool{}
	hasDefault := false

	for i, d := range drafts {
		var id, key string
		switch ref := d.Ref.(type) {
		case PersistedRef:
			id = string(ref)
			if !have[id] {
				return nil, &ValidationError{Field: fmt.Sprintf("options[%d].id", i), Reason: "option does not belong to item " + itemID}
			}
			if kept[id] {
				return nil, &ValidationError{Field: fmt.Sprintf("options[%d].id", i), Reason: "option " + id + " is listed twice"}
			}
		case DraftRef:
			key = string(ref)
			if prev, ok := known[key]; ok && have[prev] && !kept[prev] {
				id = prev
			}
		}
		if id != "" {
			kept[id] = true
		}

		label := strings.TrimSpace(d.Label)
		isDefault := d.IsDefault && !hasDefault
		hasDefault = hasDefault || isDefault
		plan.Upsert = append(plan.Upsert, domain.Option{
			ID:         id,
			ItemID:     itemID,
			Label:      label,
			Value:      Slugify(label),
			IsDefault:  isDefault,
			IsCorrect:  d.IsCorrect,
			Color:      strings.TrimSpace(d.Color),
			OrderIndex: i,
		})
		plan.DraftKeys = append(plan.DraftKeys, key)
	}

	for _, id := range persisted {
		if !kept[id] {
			plan.Delete = append(plan.Delete, id)
		}
	}
	return plan, nil
}

// SyncOptions reconciles the persisted options of an item with drafts:
// deletions first, then one batch upsert. If the upsert fails after the
// deletions landed, the deletions stay and a partial *SyncError is
// returned; Pull repairs the tree. For a yes/no item the drafts are
// replaced by the canonical pair.
func (s *Session) SyncOptions(ctx context.Context, itemID string, drafts []OptionDraft) (*ItemNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}
	it, err := s.itemOrErr(itemID)
	if err != nil {
		return nil, err
	}
	if err := s.syncOptions(ctx, it, drafts); err != nil {
		return nil, err
	}
	return it.clone(), nil
}

func (s *Session) syncOptions(ctx context.Context, it *ItemNode, drafts []OptionDraft) error {
	if it.AnswerType == domain.AnswerYesNo {
		drafts = canonicalDrafts(it)
	}
	if err := validateDrafts(drafts); err != nil {
		return err
	}

	persisted, cached, err := s.persistedOptionIDs(ctx, it.ID)
	if err != nil {
		return s.syncFailed(&SyncError{ItemID: it.ID, Err: err})
	}
	plan, err := PlanSync(it.ID, persisted, drafts, s.drafts[it.ID])
	if err != nil && cached && IsValidation(err) {
		// the cached id set may predate another session's writes
		s.cache.Invalidate(ctx, it.ID)
		if persisted, _, err = s.persistedOptionIDs(ctx, it.ID); err != nil {
			return s.syncFailed(&SyncError{ItemID: it.ID, Err: err})
		}
		plan, err = PlanSync(it.ID, persisted, drafts, s.drafts[it.ID])
	}
	if err != nil {
		return err
	}

	if len(plan.Delete) > 0 {
		if err := s.store.Options().DeleteMany(ctx, plan.Delete); err != nil {
			return s.syncFailed(&SyncError{ItemID: it.ID, Err: err})
		}
		s.cache.Invalidate(ctx, it.ID)
		it.Options = slices.DeleteFunc(it.Options, func(o *OptionNode) bool {
			return o.Persisted() && slices.Contains(plan.Delete, o.ID)
		})
		renumber(it.Options)
		if sel := s.selection[it.ID]; sel != nil && slices.Contains(plan.Delete, sel.OptionID) {
			delete(s.selection, it.ID)
		}
	}

	if len(plan.Upsert) > 0 {
		if err := s.store.Options().BatchUpsert(ctx, plan.Upsert); err != nil {
			return s.syncFailed(&SyncError{ItemID: it.ID, Deleted: plan.Delete, Partial: len(plan.Delete) > 0, Err: err})
		}
	}

	known := s.drafts[it.ID]
	if known == nil {
		known = map[string]string{}
		s.drafts[it.ID] = known
	}
	prev := make(map[string]*OptionNode, len(it.Options))
	for _, o := range it.Options {
		if o.Persisted() {
			prev[o.ID] = o
		}
	}
	next := make([]*OptionNode, len(plan.Upsert))
	for i, rec := range plan.Upsert {
		if key := plan.DraftKeys[i]; key != "" {
			known[key] = rec.ID
		}
		n := &OptionNode{Option: rec}
		if old := prev[rec.ID]; old != nil {
			n.General, n.Tags = old.General, old.Tags
		}
		next[i] = n
	}
	it.Options = next
	s.tree.clearStale(it.ID)
	s.cache.Set(ctx, it.ID, optionIDs(plan.Upsert))
	s.notify.NotifySuccess("options saved")
	return nil
}

func (s *Session) syncFailed(err *SyncError) error {
	s.log.Warn().Err(err.Err).Str("item_id", err.ItemID).Bool("partial", err.Partial).
		Strs("deleted", err.Deleted).Msg("option sync failed")
	s.notify.NotifyError(fmt.Sprintf("could not save options of item %s", err.ItemID))
	return err
}

// persistedOptionIDs returns the item's persisted option ids and whether
// they came from the cache.
func (s *Session) persistedOptionIDs(ctx context.Context, itemID string) ([]string, bool, error) {
	if ids, ok := s.cache.Get(ctx, itemID); ok {
		return ids, true, nil
	}
	recs, err := s.store.Options().Select(ctx, itemID)
	if err != nil {
		return nil, false, err
	}
	ids := optionIDs(recs)
	s.cache.Set(ctx, itemID, ids)
	return ids, false, nil
}

func optionIDs(recs []domain.Option) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func persistedIDs(it *ItemNode) []string {
	ids := make([]string, 0, len(it.Options))
	for _, o := range it.Options {
		if o.Persisted() {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// ref returns the reference a draft of this option carries.
func (o *OptionNode) ref() OptionRef {
	if o.Persisted() {
		return PersistedRef(o.ID)
	}
	return DraftRef(o.DraftKey)
}

// Drafts returns the current options of an item as drafts.
func (it *ItemNode) Drafts() []OptionDraft {
	out := make([]OptionDraft, len(it.Options))
	for i, o := range it.Options {
		out[i] = OptionDraft{Ref: o.ref(), Label: o.Label, Color: o.Color, IsDefault: o.IsDefault, IsCorrect: o.IsCorrect}
	}
	return out
}
