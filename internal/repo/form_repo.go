// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Form
// model: the lifecycle operations that sit outside the editor tree.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a form is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateForm(ctx, db, actorID, title, description) -> *domain.Form, error
//   - CountForms(ctx, db, status) -> (int64, error)
//   - ListFormsPage(ctx, db, status, offset, limit) -> []domain.Form, error
//   - GetForm(ctx, db, id) -> *domain.Form, error
//   - UpdateForm(ctx, db, id, fields) -> error
//   - SetFormStatus(ctx, db, id, status) -> error
//   - DeleteForm(ctx, db, id) -> error
//
// An empty status filter matches every form.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateForm inserts a new draft Form created by actorID.
func CreateForm(ctx context.Context, db *gorm.DB, actorID, title, description string) (*domain.Form, error) {
	now := time.Now().UTC()
	f := &domain.Form{
		Title:       title,
		Description: description,
		Status:      domain.FormStatusDraft,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func formsQuery(ctx context.Context, db *gorm.DB, status domain.FormStatus) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Form{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// CountForms returns the number of forms with the given status.
func CountForms(ctx context.Context, db *gorm.DB, status domain.FormStatus) (int64, error) {
	var total int64
	err := formsQuery(ctx, db, status).Count(&total).Error
	return total, err
}

// ListFormsPage returns a page of forms, most recently updated first.
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListFormsPage(ctx context.Context, db *gorm.DB, status domain.FormStatus, offset, limit int) ([]domain.Form, error) {
	var out []domain.Form
	err := formsQuery(ctx, db, status).
		Order("updated_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetForm fetches a single form by id, or ErrNotFound.
func GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	var f domain.Form
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateForm writes the given columns of a form. An empty map is a no-op
// that still reports ErrNotFound for a missing form.
func UpdateForm(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		_, err := GetForm(ctx, db, id)
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.Form{}).
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

// SetFormStatus moves a form to another lifecycle state.
func SetFormStatus(ctx context.Context, db *gorm.DB, id string, status domain.FormStatus) error {
	return UpdateForm(ctx, db, id, map[string]any{"status": status})
}

// DeleteForm removes a form and its whole tree in one transaction. The
// children are deleted explicitly: foreign-key enforcement in SQLite is a
// per-connection setting and cannot be relied upon across the pool.
func DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cascadeForms(tx, []string{id}); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Form{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
