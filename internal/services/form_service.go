// Package services – FormService
//
// This file implements FormService, which owns the lifecycle of forms
// outside the editor tree: creation, paginated listing, metadata updates,
// status transitions and deletion. Titles are normalized and clipped the
// same way for every entry point.
//
// Open editor sessions are kept consistent through the FormWatcher hooks:
// pending edits are flushed before a metadata write, sessions reload after
// it, and sessions of a deleted form are discarded.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"
	"github.com/tbourn/go-form-builder/internal/utils"
)

// DefaultFormTitle is stored when a form is created without a title.
const DefaultFormTitle = "Untitled form"

// FormRepo defines the repository contract required by FormService.
type FormRepo interface {
	CreateForm(ctx context.Context, db *gorm.DB, actorID, title, description string) (*domain.Form, error)
	GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error)
	UpdateForm(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	SetFormStatus(ctx context.Context, db *gorm.DB, id string, status domain.FormStatus) error
	DeleteForm(ctx context.Context, db *gorm.DB, id string) error

	// CountForms and ListFormsPage back pagination; an empty status matches all.
	CountForms(ctx context.Context, db *gorm.DB, status domain.FormStatus) (int64, error)
	ListFormsPage(ctx context.Context, db *gorm.DB, status domain.FormStatus, offset, limit int) ([]domain.Form, error)
}

// FormWatcher is notified around form writes so editor sessions stay in
// step. EditorService implements it.
type FormWatcher interface {
	FlushForm(formID string) error
	ReloadForm(ctx context.Context, formID string)
	DropForm(formID string)
}

// FormPatch carries optional metadata changes.
type FormPatch struct {
	Title       *string
	Description *string
}

// FormService provides form lifecycle operations.
type FormService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the form repository used by this service.
	Repo FormRepo
	// Sessions is optional; nil disables session coordination.
	Sessions FormWatcher

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewFormService constructs a FormService with default title handling.
func NewFormService(db *gorm.DB, r FormRepo, sessions FormWatcher) *FormService {
	return &FormService{
		DB:          db,
		Repo:        r,
		Sessions:    sessions,
		TitleMaxLen: editor.MaxTitleLen,
	}
}

// Create inserts a new draft form. A blank title becomes DefaultFormTitle.
func (s *FormService) Create(ctx context.Context, actorID, title, description string) (*domain.Form, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = DefaultFormTitle
	}
	return s.Repo.CreateForm(ctx, s.DB, actorID, s.clip(title), strings.TrimSpace(description))
}

// Get returns one form.
func (s *FormService) Get(ctx context.Context, id string) (*domain.Form, error) {
	f, err := s.Repo.GetForm(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return f, nil
}

// ListPage returns a page of forms with the given status ("" for all) and
// the total count. Invalid page/pageSize fall back to defaults.
func (s *FormService) ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Form, int64, error) {
	st, err := parseStatusFilter(status)
	if err != nil {
		return nil, 0, err
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	page, pageSize = utils.ClampPage(page, pageSize)

	total, err := s.Repo.CountForms(ctx, s.DB, st)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Form{}, 0, nil
	}
	items, err := s.Repo.ListFormsPage(ctx, s.DB, st, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Update changes title and/or description. Archived forms are read-only.
func (s *FormService) Update(ctx context.Context, id string, p FormPatch) (*domain.Form, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == domain.FormStatusArchived {
		return nil, ErrFormArchived
	}

	fields := map[string]any{}
	if p.Title != nil {
		title := normalizeTitle(*p.Title)
		if title == "" {
			title = DefaultFormTitle
		}
		if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
			return nil, ErrTitleTooLong
		}
		fields["title"] = title
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	if len(fields) == 0 {
		return f, nil
	}

	s.flush(id)
	if err := s.Repo.UpdateForm(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	s.reload(ctx, id)
	return s.Get(ctx, id)
}

// SetStatus moves a form to draft, active or archived.
func (s *FormService) SetStatus(ctx context.Context, id, status string) (*domain.Form, error) {
	st := domain.FormStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return nil, ErrInvalidStatus
	}
	s.flush(id)
	if err := s.Repo.SetFormStatus(ctx, s.DB, id, st); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	s.reload(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes a form and its tree, and discards open sessions on it.
func (s *FormService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeleteForm(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFormNotFound
		}
		return err
	}
	if s.Sessions != nil {
		s.Sessions.DropForm(id)
	}
	return nil
}

// flush commits pending session edits so they cannot overwrite the write
// that follows. Failures are reported by the sessions themselves.
func (s *FormService) flush(id string) {
	if s.Sessions != nil {
		_ = s.Sessions.FlushForm(id)
	}
}

func (s *FormService) reload(ctx context.Context, id string) {
	if s.Sessions != nil {
		s.Sessions.ReloadForm(ctx, id)
	}
}

// clip truncates a form title to the configured maximum rune length.
func (s *FormService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

func parseStatusFilter(status string) (domain.FormStatus, error) {
	st := domain.FormStatus(strings.ToLower(strings.TrimSpace(status)))
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", ErrInvalidStatus
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
