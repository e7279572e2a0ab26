package domain

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func migrateTree(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.AutoMigrate(&Form{}, &Group{}, &Item{}, &Option{}, &FeedbackGeneral{}, &FeedbackTag{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Form{}).TableName():            "forms",
		(Group{}).TableName():           "form_groups",
		(Item{}).TableName():            "form_items",
		(Option{}).TableName():          "form_options",
		(FeedbackGeneral{}).TableName(): "feedback_general",
		(FeedbackTag{}).TableName():     "feedback_tags",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestStatusAndAnswerTypeValid(t *testing.T) {
	for _, s := range []FormStatus{FormStatusDraft, FormStatusActive, FormStatusArchived} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if FormStatus("deleted").Valid() {
		t.Fatalf("unknown status reported valid")
	}
	for _, a := range []AnswerType{AnswerYesNo, AnswerToggle, AnswerDropdown} {
		if !a.Valid() {
			t.Fatalf("%q should be valid", a)
		}
	}
	if AnswerType("free_text").Valid() {
		t.Fatalf("unknown answer type reported valid")
	}
}

func TestBeforeCreate_AssignsIDs(t *testing.T) {
	db := newDomainDB(t, "ids")
	migrateTree(t, db)

	f := &Form{Title: "Audit", CreatedBy: "u1"}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("create form: %v", err)
	}
	if len(f.ID) != 36 {
		t.Fatalf("expected generated uuid, got %q", f.ID)
	}

	// Caller-supplied ids are preserved.
	g := &Group{ID: "11111111-1111-1111-1111-111111111111", FormID: f.ID, Title: "A"}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	if g.ID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("id overwritten: %q", g.ID)
	}
}

func TestCascade_DeleteFormRemovesTree(t *testing.T) {
	db := newDomainDB(t, "cascade")
	migrateTree(t, db)

	f := &Form{Title: "Audit", CreatedBy: "u1"}
	mustCreate(t, db, f)
	g := &Group{FormID: f.ID, Title: "G"}
	mustCreate(t, db, g)
	it := &Item{GroupID: g.ID, Question: "Q", AnswerType: AnswerToggle}
	mustCreate(t, db, it)
	o := &Option{ItemID: it.ID, Label: "Yes", Value: "yes"}
	mustCreate(t, db, o)
	mustCreate(t, db, &FeedbackTag{OptionID: o.ID, Name: "T1", Text: "Tag text"})
	mustCreate(t, db, &FeedbackGeneral{OptionID: o.ID, AuthorID: "u1", Text: "Default text"})

	if err := db.Delete(&Form{}, "id = ?", f.ID).Error; err != nil {
		t.Fatalf("delete form: %v", err)
	}

	for _, m := range []any{&Group{}, &Item{}, &Option{}, &FeedbackTag{}, &FeedbackGeneral{}} {
		var n int64
		if err := db.Model(m).Count(&n).Error; err != nil {
			t.Fatalf("count %T: %v", m, err)
		}
		if n != 0 {
			t.Fatalf("expected %T rows to cascade, found %d", m, n)
		}
	}
}

func mustCreate(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}
