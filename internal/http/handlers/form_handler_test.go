package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/http/middleware"
	"github.com/tbourn/go-form-builder/internal/repo"
	"github.com/tbourn/go-form-builder/internal/services"
)

// ---------- test DB + repo shim ----------

func newFormDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:form_handlers_%s?mode=memory&cache=shared", uuid.NewString())

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
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Minimal shim implementing services.FormRepo using repo package (like router.go)
type testFormRepo struct{}

func (testFormRepo) CreateForm(ctx context.Context, db *gorm.DB, actorID, title, description string) (*domain.Form, error) {
	return repo.CreateForm(ctx, db, actorID, title, description)
}

func (testFormRepo) GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetForm(ctx, db, id)
}

func (testFormRepo) UpdateForm(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return repo.UpdateForm(ctx, db, id, fields)
}

func (testFormRepo) SetFormStatus(ctx context.Context, db *gorm.DB, id string, status domain.FormStatus) error {
	return repo.SetFormStatus(ctx, db, id, status)
}

func (testFormRepo) DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteForm(ctx, db, id)
}

func (testFormRepo) CountForms(ctx context.Context, db *gorm.DB, status domain.FormStatus) (int64, error) {
	return repo.CountForms(ctx, db, status)
}

func (testFormRepo) ListFormsPage(ctx context.Context, db *gorm.DB, status domain.FormStatus, offset, limit int) ([]domain.Form, error) {
	return repo.ListFormsPage(ctx, db, status, offset, limit)
}

// ---------- test server ----------

// newTestServer wires real services over an in-memory database and mounts
// every route the way router.go does.
func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newFormDB(t)
	ed := services.NewEditorService(repo.NewTreeStore(db), nil, time.Hour, time.Hour, zerolog.Nop())
	t.Cleanup(func() { _ = ed.Close() })
	h := New(services.NewFormService(db, testFormRepo{}, ed), ed)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/forms", h.CreateForm)
	r.GET("/forms", h.ListForms)
	r.GET("/forms/:id", h.GetForm)
	r.PATCH("/forms/:id", h.UpdateForm)
	r.PUT("/forms/:id/status", h.SetFormStatus)
	r.DELETE("/forms/:id", h.DeleteForm)

	r.GET("/forms/:id/tree", h.GetTree)
	r.POST("/forms/:id/pull", h.PullTree)
	r.POST("/forms/:id/groups", h.AddGroup)
	r.DELETE("/forms/:id/groups/:nodeId", h.RemoveGroup)
	r.POST("/forms/:id/groups/:nodeId/items", h.AddItem)
	r.DELETE("/forms/:id/items/:nodeId", h.RemoveItem)
	r.PATCH("/forms/:id/fields", h.EditField)
	r.POST("/forms/:id/drag", h.Drag)
	r.PUT("/forms/:id/items/:nodeId/options", h.SyncOptions)
	r.PUT("/forms/:id/items/:nodeId/default", h.SetDefault)
	r.PUT("/forms/:id/items/:nodeId/type", h.SwitchAnswerType)
	r.POST("/forms/:id/items/:nodeId/save", h.SaveItem)

	r.PUT("/forms/:id/options/:nodeId/feedback", h.SetGeneralFeedback)
	r.POST("/forms/:id/options/:nodeId/tags", h.AddTag)
	r.DELETE("/forms/:id/options/:nodeId/tags/:tagId", h.DeleteTag)
	r.POST("/forms/:id/items/:nodeId/feedback/select", h.SelectOption)
	r.POST("/forms/:id/items/:nodeId/feedback/tags/:tagId", h.ToggleTag)
	r.PUT("/forms/:id/items/:nodeId/feedback", h.EditFeedbackText)
	r.GET("/forms/:id/items/:nodeId/feedback", h.GetFeedback)
	return r, db
}

// do performs a request as user u1. Header pairs follow the body.
func do(t *testing.T, r *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "u1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return v
}

func createForm(t *testing.T, r *gin.Engine, title string) domain.Form {
	t.Helper()
	w := do(t, r, http.MethodPost, "/forms", fmt.Sprintf(`{"title":%q}`, title))
	if w.Code != http.StatusCreated {
		t.Fatalf("create form: %d %s", w.Code, w.Body.String())
	}
	return decode[domain.Form](t, w)
}

// ---------- helpers-only tests ----------

func Test_userID_and_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rc := gin.CreateTestContextOnly(httptest.NewRecorder(), gin.New())
	if got := userID(rc); got != "demo-user" {
		t.Fatalf("fallback userID = %q", got)
	}
	rc.Set("userID", "u1")
	if got := userID(rc); got != "u1" {
		t.Fatalf("context userID = %q", got)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms?page=0&page_size=1000", nil)
	c.Request.Header.Set("X-User-ID", " hdr ")
	if got := userID(c); got != "hdr" {
		t.Fatalf("header userID = %q", got)
	}
	if p, ps := clampPagination(c); p != 1 || ps != 100 {
		t.Fatalf("clamp = %d,%d", p, ps)
	}
	// gin caches the query per context, so the malformed case gets its own
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/forms?page=x&page_size=-3", nil)
	if p, ps := clampPagination(c2); p != 1 || ps != 1 {
		t.Fatalf("clamp invalid = %d,%d", p, ps)
	}
}

// ---------- endpoint tests ----------

func TestCreateForm_DefaultsAndBadJSON(t *testing.T) {
	r, _ := newTestServer(t)

	f := createForm(t, r, "   ")
	if f.ID == "" || f.Title != services.DefaultFormTitle || f.Status != domain.FormStatusDraft || f.CreatedBy != "u1" {
		t.Fatalf("unexpected form: %+v", f)
	}

	w := do(t, r, http.MethodPost, "/forms", `{"title":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json expected 400, got %d", w.Code)
	}
}

func TestCreateForm_IdempotentReplay(t *testing.T) {
	r, db := newTestServer(t)

	w1 := do(t, r, http.MethodPost, "/forms", `{"title":"Audit"}`, middleware.HeaderIdempotencyKey, "k-1")
	if w1.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w1.Code)
	}
	w2 := do(t, r, http.MethodPost, "/forms", `{"title":"Audit"}`, middleware.HeaderIdempotencyKey, "k-1")
	if w2.Code != http.StatusCreated || w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d replayed=%q", w2.Code, w2.Header().Get("Idempotency-Replayed"))
	}
	if decode[domain.Form](t, w1).ID != decode[domain.Form](t, w2).ID {
		t.Fatalf("replay returned a different form")
	}

	n, err := repo.CountForms(context.Background(), db, "")
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one form, got %d (%v)", n, err)
	}

	// a different key creates a second form
	w3 := do(t, r, http.MethodPost, "/forms", `{"title":"Audit"}`, middleware.HeaderIdempotencyKey, "k-2")
	if w3.Code != http.StatusCreated || w3.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("new key: %d", w3.Code)
	}
}

func TestListForms_PaginationETagAndFilter(t *testing.T) {
	r, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		createForm(t, r, fmt.Sprintf("F%d", i))
	}

	w := do(t, r, http.MethodGet, "/forms?page=1&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	resp := decode[ListFormsResponse](t, w)
	if len(resp.Forms) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	w = do(t, r, http.MethodGet, "/forms?page=1&page_size=2", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/forms?status=active", "")
	if w.Code != http.StatusOK || decode[ListFormsResponse](t, w).Pagination.Total != 0 {
		t.Fatalf("status filter: %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/forms?status=deleted", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status expected 400, got %d", w.Code)
	}
}

func TestFormLifecycle_UpdateStatusDelete(t *testing.T) {
	r, _ := newTestServer(t)
	f := createForm(t, r, "Audit")
	base := "/forms/" + f.ID

	w := do(t, r, http.MethodPatch, base, `{"title":"  Site   audit ","description":"q3"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	if got := decode[domain.Form](t, w); got.Title != "Site audit" || got.Description != "q3" {
		t.Fatalf("unexpected form: %+v", got)
	}

	if w = do(t, r, http.MethodPut, base+"/status", `{"status":"bogus"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bogus status expected 400, got %d", w.Code)
	}
	if w = do(t, r, http.MethodPut, base+"/status", `{"status":"archived"}`); w.Code != http.StatusOK {
		t.Fatalf("archive: %d", w.Code)
	}

	w = do(t, r, http.MethodPatch, base, `{"title":"x"}`)
	if w.Code != http.StatusConflict || decode[ErrorResponse](t, w).Code != ErrCodeArchived {
		t.Fatalf("archived patch expected 409 form_archived, got %d %s", w.Code, w.Body.String())
	}

	if w = do(t, r, http.MethodDelete, base, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w = do(t, r, http.MethodGet, base, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete expected 404, got %d", w.Code)
	}
	if w = do(t, r, http.MethodDelete, base, ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete expected 404, got %d", w.Code)
	}
}
