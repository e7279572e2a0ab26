// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the feedback
// templates attached to options.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the editor and services
// packages.
//
// Functions:
//
//   - UpsertGeneralFeedback(ctx, db, rec) -> error
//     Inserts or replaces the general template of one (option, author) pair.
//     The pair is unique in the schema, so a second write updates the text.
//
//   - ListTags(ctx, db, optionID) -> []domain.FeedbackTag, error
//     Returns the tags of an option ordered by order_index.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// UpsertGeneralFeedback writes rec keyed by (option_id, author_id). On
// conflict only the text and updated_at change; rec.ID of an existing row is
// not reloaded.
func UpsertGeneralFeedback(ctx context.Context, db *gorm.DB, rec *domain.FeedbackGeneral) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "option_id"}, {Name: "author_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
		}).
		Create(rec).Error
}

// GetGeneralFeedback returns the template one author wrote for an option,
// or ErrNotFound.
func GetGeneralFeedback(ctx context.Context, db *gorm.DB, optionID, authorID string) (*domain.FeedbackGeneral, error) {
	var rec domain.FeedbackGeneral
	err := db.WithContext(ctx).
		Where("option_id = ? AND author_id = ?", optionID, authorID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTags returns the tags of an option in display order.
func ListTags(ctx context.Context, db *gorm.DB, optionID string) ([]domain.FeedbackTag, error) {
	var out []domain.FeedbackTag
	err := db.WithContext(ctx).
		Where("option_id = ?", optionID).
		Order("order_index, id").
		Find(&out).Error
	return out, err
}
