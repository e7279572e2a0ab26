// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides TreeStore, the GORM implementation of
// the editor's Store: one generic table per tree level plus the snapshot
// read that loads a whole form.
//
// Deletes cascade explicitly (option → feedback, item → options, group →
// items, form → groups) inside a transaction rather than relying on the
// driver's foreign-key enforcement.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"
)

// table is a generic GORM-backed editor.Table. parent is the foreign key
// column Select filters on ("id" for the form table); order is its ORDER BY.
type table[T any] struct {
	db      *gorm.DB
	parent  string
	order   string
	cascade func(tx *gorm.DB, ids []string) error
}

func (t table[T]) Select(ctx context.Context, parentID string) ([]T, error) {
	var out []T
	err := t.db.WithContext(ctx).
		Where(t.parent+" = ?", parentID).
		Order(t.order).
		Find(&out).Error
	return out, err
}

func (t table[T]) Insert(ctx context.Context, rec *T) error {
	return t.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error
}

// Update writes the given columns and returns ErrNotFound when no row has
// the id.
func (t table[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	res := t.db.WithContext(ctx).
		Model(new(T)).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes one row and its descendants. Deleting a missing id is not
// an error.
func (t table[T]) Delete(ctx context.Context, id string) error {
	return t.DeleteMany(ctx, []string{id})
}

func (t table[T]) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.cascade != nil {
			if err := t.cascade(tx, ids); err != nil {
				return err
			}
		}
		return tx.Where("id IN ?", ids).Delete(new(T)).Error
	})
}

// BatchUpsert inserts or updates recs in one statement keyed on id, and
// writes generated ids back into recs. With columns it only updates those
// columns of rows that still exist: a row deleted meanwhile stays deleted
// and records without an id are skipped.
func (t table[T]) BatchUpsert(ctx context.Context, recs []T, columns ...string) error {
	if len(recs) == 0 {
		return nil
	}
	if len(columns) > 0 {
		return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range recs {
				err := tx.Model(&recs[i]).Select(columns).Updates(&recs[i]).Error
				if err != nil && !errors.Is(err, gorm.ErrMissingWhereClause) {
					return err
				}
			}
			return nil
		})
	}
	return t.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&recs).Error
}

// TreeStore persists the form tree with GORM.
type TreeStore struct {
	DB *gorm.DB
}

// NewTreeStore wraps db.
func NewTreeStore(db *gorm.DB) *TreeStore { return &TreeStore{DB: db} }

var _ editor.Store = (*TreeStore)(nil)

func (s *TreeStore) Forms() editor.Table[domain.Form] {
	return table[domain.Form]{db: s.DB, parent: "id", order: "id", cascade: cascadeForms}
}

func (s *TreeStore) Groups() editor.Table[domain.Group] {
	return table[domain.Group]{db: s.DB, parent: "form_id", order: "order_index, id", cascade: cascadeGroups}
}

func (s *TreeStore) Items() editor.Table[domain.Item] {
	return table[domain.Item]{db: s.DB, parent: "group_id", order: "order_index, id", cascade: cascadeItems}
}

func (s *TreeStore) Options() editor.Table[domain.Option] {
	return table[domain.Option]{db: s.DB, parent: "item_id", order: "order_index, id", cascade: cascadeOptions}
}

func (s *TreeStore) Tags() editor.Table[domain.FeedbackTag] {
	return table[domain.FeedbackTag]{db: s.DB, parent: "option_id", order: "order_index, id"}
}

// LoadForm reads a form and everything beneath it in one read transaction.
// General feedback is limited to authorID. Returns ErrNotFound when the form
// does not exist.
func (s *TreeStore) LoadForm(ctx context.Context, formID, authorID string) (*domain.FormSnapshot, error) {
	snap := &domain.FormSnapshot{AuthorID: authorID}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", formID).First(&snap.Form).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", formID).Order("order_index, id").Find(&snap.Groups).Error; err != nil {
			return err
		}
		groupIDs := idsOf(snap.Groups, func(g domain.Group) string { return g.ID })
		if len(groupIDs) == 0 {
			return nil
		}
		if err := tx.Where("group_id IN ?", groupIDs).Order("group_id, order_index, id").Find(&snap.Items).Error; err != nil {
			return err
		}
		itemIDs := idsOf(snap.Items, func(it domain.Item) string { return it.ID })
		if len(itemIDs) == 0 {
			return nil
		}
		if err := tx.Where("item_id IN ?", itemIDs).Order("item_id, order_index, id").Find(&snap.Options).Error; err != nil {
			return err
		}
		optionIDs := idsOf(snap.Options, func(o domain.Option) string { return o.ID })
		if len(optionIDs) == 0 {
			return nil
		}
		if err := tx.Where("option_id IN ? AND author_id = ?", optionIDs, authorID).Find(&snap.General).Error; err != nil {
			return err
		}
		return tx.Where("option_id IN ?", optionIDs).Order("option_id, order_index, id").Find(&snap.Tags).Error
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpsertGeneralFeedback writes the (option, author) general template.
func (s *TreeStore) UpsertGeneralFeedback(ctx context.Context, rec *domain.FeedbackGeneral) error {
	return UpsertGeneralFeedback(ctx, s.DB, rec)
}

func idsOf[T any](recs []T, id func(T) string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = id(r)
	}
	return out
}

// childIDs returns the ids of rows in model whose column is one of parents.
func childIDs(tx *gorm.DB, model any, column string, parents []string) ([]string, error) {
	var ids []string
	err := tx.Model(model).Where(column+" IN ?", parents).Pluck("id", &ids).Error
	return ids, err
}

func cascadeForms(tx *gorm.DB, ids []string) error {
	groups, err := childIDs(tx, &domain.Group{}, "form_id", ids)
	if err != nil || len(groups) == 0 {
		return err
	}
	if err := cascadeGroups(tx, groups); err != nil {
		return err
	}
	return tx.Where("id IN ?", groups).Delete(&domain.Group{}).Error
}

func cascadeGroups(tx *gorm.DB, ids []string) error {
	items, err := childIDs(tx, &domain.Item{}, "group_id", ids)
	if err != nil || len(items) == 0 {
		return err
	}
	if err := cascadeItems(tx, items); err != nil {
		return err
	}
	return tx.Where("id IN ?", items).Delete(&domain.Item{}).Error
}

func cascadeItems(tx *gorm.DB, ids []string) error {
	options, err := childIDs(tx, &domain.Option{}, "item_id", ids)
	if err != nil || len(options) == 0 {
		return err
	}
	if err := cascadeOptions(tx, options); err != nil {
		return err
	}
	return tx.Where("id IN ?", options).Delete(&domain.Option{}).Error
}

func cascadeOptions(tx *gorm.DB, ids []string) error {
	if err := tx.Where("option_id IN ?", ids).Delete(&domain.FeedbackGeneral{}).Error; err != nil {
		return err
	}
	return tx.Where("option_id IN ?", ids).Delete(&domain.FeedbackTag{}).Error
}
