package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-form-builder/internal/domain"
)

func TestUpsertGeneralFeedback_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	err := UpsertGeneralFeedback(context.Background(), db, &domain.FeedbackGeneral{OptionID: "o1", AuthorID: "a1", Text: "x"})
	if err == nil {
		t.Fatalf("expected error when table is missing")
	}
}

func TestUpsertGeneralFeedback_InsertThenReplace(t *testing.T) {
	db := newTestDB(t, &domain.FeedbackGeneral{})
	ctx := context.Background()

	if err := UpsertGeneralFeedback(ctx, db, &domain.FeedbackGeneral{OptionID: "o1", AuthorID: "a1", Text: "first"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := UpsertGeneralFeedback(ctx, db, &domain.FeedbackGeneral{OptionID: "o1", AuthorID: "a1", Text: "second"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := UpsertGeneralFeedback(ctx, db, &domain.FeedbackGeneral{OptionID: "o1", AuthorID: "a2", Text: "other author"}); err != nil {
		t.Fatalf("second author: %v", err)
	}

	var n int64
	db.Model(&domain.FeedbackGeneral{}).Where("option_id = ?", "o1").Count(&n)
	if n != 2 {
		t.Fatalf("expected one row per author, got %d", n)
	}

	got, err := GetGeneralFeedback(ctx, db, "o1", "a1")
	if err != nil {
		t.Fatalf("GetGeneralFeedback: %v", err)
	}
	if got.Text != "second" {
		t.Fatalf("expected replaced text, got %q", got.Text)
	}
}

func TestGetGeneralFeedback_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.FeedbackGeneral{})
	_, err := GetGeneralFeedback(context.Background(), db, "o1", "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTags_Order(t *testing.T) {
	db := newTestDB(t, &domain.FeedbackTag{})
	for _, tag := range []domain.FeedbackTag{
		{ID: "t2", OptionID: "o1", Name: "b", Text: "B", OrderIndex: 1},
		{ID: "t1", OptionID: "o1", Name: "a", Text: "A", OrderIndex: 0},
		{ID: "t3", OptionID: "o2", Name: "c", Text: "C", OrderIndex: 0},
	} {
		tag := tag
		if err := db.Create(&tag).Error; err != nil {
			t.Fatalf("seed %s: %v", tag.ID, err)
		}
	}

	tags, err := ListTags(context.Background(), db, "o1")
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 2 || tags[0].ID != "t1" || tags[1].ID != "t2" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}
