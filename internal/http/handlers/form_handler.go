// Form HTTP handlers.
//
// This file exposes REST endpoints for form resources:
//   - POST   /forms               (create, idempotent)
//   - GET    /forms               (list, paginated, ETag support)
//   - GET    /forms/{id}          (read)
//   - PATCH  /forms/{id}          (title/description)
//   - PUT    /forms/{id}/status   (draft | active | archived)
//   - DELETE /forms/{id}          (cascade delete)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"
	"github.com/tbourn/go-form-builder/internal/http/middleware"
	"github.com/tbourn/go-form-builder/internal/repo"
	"github.com/tbourn/go-form-builder/internal/services"
	"github.com/tbourn/go-form-builder/internal/utils"
)

//
// Service contracts (context-aware)
//

// FormService defines form lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type FormService interface {
	Create(ctx context.Context, actorID, title, description string) (*domain.Form, error)
	Get(ctx context.Context, id string) (*domain.Form, error)
	// ListPage returns a page of forms ("" status for all) and the total count.
	ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Form, int64, error)
	Update(ctx context.Context, id string, p services.FormPatch) (*domain.Form, error)
	SetStatus(ctx context.Context, id, status string) (*domain.Form, error)
	Delete(ctx context.Context, id string) error
}

// EditorService defines the editor operations of one actor on one form.
// Every method resolves (or opens) the actor's session on the form.
type EditorService interface {
	Tree(ctx context.Context, actorID, formID string) (*editor.Tree, error)
	Pull(ctx context.Context, actorID, formID string) (*editor.Tree, error)

	AddGroup(ctx context.Context, actorID, formID, title string) (*editor.GroupNode, error)
	AddItem(ctx context.Context, actorID, formID, groupID, question string, answerType domain.AnswerType, required bool) (*editor.ItemNode, error)
	RemoveGroup(ctx context.Context, actorID, formID, groupID string) error
	RemoveItem(ctx context.Context, actorID, formID, itemID string) error
	EditField(ctx context.Context, actorID, formID string, k editor.FieldKey, value string) error
	Drag(ctx context.Context, actorID, formID string, d editor.Drag) (*editor.DragResult, error)

	SyncOptions(ctx context.Context, actorID, formID, itemID string, drafts []editor.OptionDraft) (*editor.ItemNode, error)
	SetDefault(ctx context.Context, actorID, formID, itemID, optionID string) (*editor.ItemNode, error)
	SwitchAnswerType(ctx context.Context, actorID, formID, itemID string, t domain.AnswerType) (*editor.ItemNode, error)
	SaveItem(ctx context.Context, actorID, formID, itemID string, in editor.SaveItemInput) (*editor.ItemNode, error)

	SetGeneralFeedback(ctx context.Context, actorID, formID, optionID, text string) error
	AddTag(ctx context.Context, actorID, formID, optionID, name, text string) (*domain.FeedbackTag, error)
	DeleteTag(ctx context.Context, actorID, formID, optionID, tagID string) error

	SelectOption(ctx context.Context, actorID, formID, itemID, optionID string) (editor.Selection, error)
	ToggleTag(ctx context.Context, actorID, formID, itemID, tagID string) (editor.Selection, error)
	EditFeedbackText(ctx context.Context, actorID, formID, itemID, text string) (editor.Selection, error)
	Feedback(ctx context.Context, actorID, formID, itemID string) (editor.Selection, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for forms and the editor. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	formSvc   FormService
	editorSvc EditorService

	// IdempotencyTTL bounds how long a create can be replayed.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(formSvc FormService, editorSvc EditorService) *Handlers {
	return &Handlers{formSvc: formSvc, editorSvc: editorSvc, IdempotencyTTL: 24 * time.Hour}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// db returns the GORM handle behind the concrete FormService, or nil when
// the handlers run against another implementation (tests).
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.formSvc.(*services.FormService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// CreateFormRequest is the JSON payload for creating a form.
type CreateFormRequest struct {
	// Title optionally sets the form title; a default is used when empty.
	Title       string `json:"title" example:"Site safety audit"`
	Description string `json:"description" example:"Quarterly walkthrough"`
}

// UpdateFormRequest is the JSON payload for PATCH /forms/{id}. Absent
// fields are left unchanged.
type UpdateFormRequest struct {
	Title       *string `json:"title" example:"Site safety audit (v2)"`
	Description *string `json:"description"`
}

// SetStatusRequest is the JSON payload for PUT /forms/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required" example:"active"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListFormsResponse wraps a page of forms and pagination information.
type ListFormsResponse struct {
	Forms      []domain.Form `json:"forms"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// replayedID returns the resource created by an earlier request with the
// same Idempotency-Key, user and scope.
func (h *Handlers) replayedID(c *gin.Context) (string, bool) {
	key, present := middleware.GetIdempotencyKey(c)
	db := h.db()
	if !present || db == nil {
		return "", false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), db, userID(c), middleware.IdempotencyScope(c), key, time.Now().UTC())
	if err != nil || rec == nil {
		return "", false
	}
	return rec.ResourceID, true
}

// remember records resourceID under the request's Idempotency-Key. Best
// effort: a failed write only loses replay protection.
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	key, present := middleware.GetIdempotencyKey(c)
	db := h.db()
	if !present || db == nil {
		return
	}
	if _, err := repo.CreateIdempotency(c.Request.Context(), db, userID(c), middleware.IdempotencyScope(c), key, resourceID, status, h.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("resource_id", resourceID).Msg("idempotency record not stored")
	}
}

// failForm maps FormService errors.
func failForm(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case errors.Is(err, services.ErrInvalidStatus), errors.Is(err, services.ErrTitleTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrFormArchived):
		fail(c, http.StatusConflict, ErrCodeArchived, "form is archived")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

//
// Handlers
//

// CreateForm godoc
// @ID          createForm
// @Summary     Create a new form
// @Description Creates a draft form and returns it. Supports Idempotency-Key.
// @Tags        Forms
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateFormRequest  true  "Create form payload"
//
// @Success     201  {object}  domain.Form
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /forms [post]
func (h *Handlers) CreateForm(c *gin.Context) {
	var req CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if id, hit := h.replayedID(c); hit {
		if prev, err := h.formSvc.Get(c.Request.Context(), id); err == nil {
			replayed(c, prev)
			return
		}
	}

	f, err := h.formSvc.Create(c.Request.Context(), userID(c), req.Title, req.Description)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	h.remember(c, f.ID, http.StatusCreated)
	ok(c, http.StatusCreated, f)
}

// ListForms godoc
// @ID          listForms
// @Summary     List forms (paginated)
// @Description Returns a page of forms, optionally filtered by status. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Forms
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "draft | active | archived"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListFormsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms [get]
func (h *Handlers) ListForms(c *gin.Context) {
	ctx := c.Request.Context()
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && !domain.FormStatus(status).Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidStatus.Error())
		return
	}
	page, pageSize := clampPagination(c)

	// A stats failure only skips the conditional response.
	if db := h.db(); db != nil {
		if st, err := repo.FormListStats(ctx, db, domain.FormStatus(status)); err == nil {
			etag := st.ETag(page, pageSize)
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.formSvc.ListPage(ctx, status, page, pageSize)
	if err != nil {
		failForm(c, err, ErrCodeListFailed)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListFormsResponse{
		Forms: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetForm godoc
// @ID          getForm
// @Summary     Get a form
// @Tags        Forms
// @Produce     json
// @Param       id   path    string  true  "Form ID"
// @Success     200  {object} domain.Form
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id} [get]
func (h *Handlers) GetForm(c *gin.Context) {
	f, err := h.formSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failForm(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateForm godoc
// @ID          updateForm
// @Summary     Update form title and description
// @Description Absent fields are left unchanged. Archived forms reject updates with 409.
// @Tags        Forms
// @Accept      json
// @Produce     json
// @Param       id    path    string  true  "Form ID"
// @Param       body  body    handlers.UpdateFormRequest  true  "Changes"
// @Success     200  {object} domain.Form
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     409  {object} handlers.ErrorResponse "Form archived"
// @Router      /forms/{id} [patch]
func (h *Handlers) UpdateForm(c *gin.Context) {
	var req UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	f, err := h.formSvc.Update(c.Request.Context(), c.Param("id"), services.FormPatch{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		failForm(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, f)
}

// SetFormStatus godoc
// @ID          setFormStatus
// @Summary     Change the lifecycle status of a form
// @Tags        Forms
// @Accept      json
// @Produce     json
// @Param       id    path    string  true  "Form ID"
// @Param       body  body    handlers.SetStatusRequest  true  "New status"
// @Success     200  {object} domain.Form
// @Failure     400  {object} handlers.ErrorResponse "Invalid status"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/status [put]
func (h *Handlers) SetFormStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	f, err := h.formSvc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		failForm(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, f)
}

// DeleteForm godoc
// @ID          deleteForm
// @Summary     Delete a form and its whole tree
// @Tags        Forms
// @Param       id   path    string  true  "Form ID"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id} [delete]
func (h *Handlers) DeleteForm(c *gin.Context) {
	if err := h.formSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failForm(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
