// Editor HTTP handlers.
//
// This file exposes the structural editing endpoints of a form. Every call
// acts on the caller's editor session for the form (opened on first use):
//   - GET    /forms/{id}/tree                          (session tree)
//   - POST   /forms/{id}/pull                          (reload from store)
//   - POST   /forms/{id}/groups                        (add group, idempotent)
//   - DELETE /forms/{id}/groups/{nodeId}               (remove group)
//   - POST   /forms/{id}/groups/{nodeId}/items         (add item, idempotent)
//   - DELETE /forms/{id}/items/{nodeId}                (remove item)
//   - PATCH  /forms/{id}/fields                        (debounced text edit)
//   - POST   /forms/{id}/drag                          (reorder / reparent)
//   - PUT    /forms/{id}/items/{nodeId}/options        (reconcile options)
//   - PUT    /forms/{id}/items/{nodeId}/default        (default option)
//   - PUT    /forms/{id}/items/{nodeId}/type           (answer type)
//   - POST   /forms/{id}/items/{nodeId}/save           (explicit save)
//
// Editor errors are mapped by failEditor.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"
)

//
// DTOs
//

// AddGroupRequest is the JSON payload for adding a group.
type AddGroupRequest struct {
	Title string `json:"title" binding:"required" example:"General"`
}

// AddItemRequest is the JSON payload for adding an item to a group.
type AddItemRequest struct {
	Question   string `json:"question" binding:"required" example:"Are exits clearly marked?"`
	AnswerType string `json:"answer_type" example:"yes_no"`
	Required   bool   `json:"required"`
}

// EditFieldRequest is the JSON payload for a debounced text edit. Field is
// one of form.title, form.description, group.title, item.question and
// item.short_name.
type EditFieldRequest struct {
	Field  string `json:"field" binding:"required" example:"item.question"`
	NodeID string `json:"node_id" binding:"required"`
	Value  string `json:"value"`
}

// OptionDraftRequest is one option in a reconcile or save payload. A
// non-empty id addresses a persisted option; otherwise draft_key names a
// local draft (a fresh key is generated when both are empty).
type OptionDraftRequest struct {
	ID        string `json:"id,omitempty"`
	DraftKey  string `json:"draft_key,omitempty"`
	Label     string `json:"label" example:"Yes"`
	Color     string `json:"color,omitempty" example:"#2e7d32"`
	IsDefault bool   `json:"is_default"`
	IsCorrect bool   `json:"is_correct"`
}

// SyncOptionsRequest replaces an item's option list.
type SyncOptionsRequest struct {
	Options []OptionDraftRequest `json:"options"`
}

// SetDefaultRequest names the option to make default.
type SetDefaultRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// SwitchTypeRequest names the new answer type.
type SwitchTypeRequest struct {
	AnswerType string `json:"answer_type" binding:"required" example:"custom_dropdown"`
}

// SaveItemRequest is the explicit-save payload. Absent fields keep the
// session's value; absent options save the session's current options.
type SaveItemRequest struct {
	Question  *string              `json:"question"`
	ShortName *string              `json:"short_name"`
	Required  *bool                `json:"required"`
	Options   []OptionDraftRequest `json:"options"`
}

func toDrafts(in []OptionDraftRequest) []editor.OptionDraft {
	if in == nil {
		return nil
	}
	out := make([]editor.OptionDraft, 0, len(in))
	for _, o := range in {
		out = append(out, editor.OptionDraft{
			Ref:       editor.RefFrom(o.ID, o.DraftKey),
			Label:     o.Label,
			Color:     o.Color,
			IsDefault: o.IsDefault,
			IsCorrect: o.IsCorrect,
		})
	}
	return out
}

//
// Handlers
//

// GetTree godoc
// @ID          getTree
// @Summary     Current editor tree of a form
// @Tags        Editor
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Form ID"
// @Success     200  {object} editor.Tree
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Router      /forms/{id}/tree [get]
func (h *Handlers) GetTree(c *gin.Context) {
	t, err := h.editorSvc.Tree(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// PullTree godoc
// @ID          pullTree
// @Summary     Reload the editor tree from the store
// @Description Replaces the session tree wholesale. Pending text edits keep their local value.
// @Tags        Editor
// @Produce     json
// @Param       id   path    string  true  "Form ID"
// @Success     200  {object} editor.Tree
// @Router      /forms/{id}/pull [post]
func (h *Handlers) PullTree(c *gin.Context) {
	t, err := h.editorSvc.Pull(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// AddGroup godoc
// @ID          addGroup
// @Summary     Append a group to a form
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id    path    string  true  "Form ID"
// @Param       body  body    handlers.AddGroupRequest  true  "Group"
// @Success     201  {object} editor.GroupNode
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     409  {object} handlers.ErrorResponse "Form archived"
// @Router      /forms/{id}/groups [post]
func (h *Handlers) AddGroup(c *gin.Context) {
	var req AddGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required")
		return
	}
	ctx, uid, formID := c.Request.Context(), userID(c), c.Param("id")

	if id, hit := h.replayedID(c); hit {
		if t, err := h.editorSvc.Tree(ctx, uid, formID); err == nil {
			if g := t.Group(id); g != nil {
				replayed(c, g)
				return
			}
		}
	}

	g, err := h.editorSvc.AddGroup(ctx, uid, formID, req.Title)
	if err != nil {
		failEditor(c, err)
		return
	}
	h.remember(c, g.ID, http.StatusCreated)
	ok(c, http.StatusCreated, g)
}

// RemoveGroup godoc
// @ID          removeGroup
// @Summary     Remove a group and everything under it
// @Tags        Editor
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Group ID"
// @Success     204  {string} string "No Content"
// @Router      /forms/{id}/groups/{nodeId} [delete]
func (h *Handlers) RemoveGroup(c *gin.Context) {
	if err := h.editorSvc.RemoveGroup(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId")); err != nil {
		failEditor(c, err)
		return
	}
	noContent(c)
}

// AddItem godoc
// @ID          addItem
// @Summary     Append an item to a group
// @Description A yes/no item is created with its fixed Yes/No option pair.
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Group ID"
// @Param       body    body    handlers.AddItemRequest  true  "Item"
// @Success     201  {object} editor.ItemNode
// @Router      /forms/{id}/groups/{nodeId}/items [post]
func (h *Handlers) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}
	at := domain.AnswerType(req.AnswerType)
	if at == "" {
		at = domain.AnswerYesNo
	}
	ctx, uid, formID := c.Request.Context(), userID(c), c.Param("id")

	if id, hit := h.replayedID(c); hit {
		if t, err := h.editorSvc.Tree(ctx, uid, formID); err == nil {
			if it, _ := t.Item(id); it != nil {
				replayed(c, it)
				return
			}
		}
	}

	it, err := h.editorSvc.AddItem(ctx, uid, formID, c.Param("nodeId"), req.Question, at, req.Required)
	if err != nil {
		failEditor(c, err)
		return
	}
	h.remember(c, it.ID, http.StatusCreated)
	ok(c, http.StatusCreated, it)
}

// RemoveItem godoc
// @ID          removeItem
// @Summary     Remove an item and its options
// @Tags        Editor
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Success     204  {string} string "No Content"
// @Router      /forms/{id}/items/{nodeId} [delete]
func (h *Handlers) RemoveItem(c *gin.Context) {
	if err := h.editorSvc.RemoveItem(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId")); err != nil {
		failEditor(c, err)
		return
	}
	noContent(c)
}

// EditField godoc
// @ID          editField
// @Summary     Edit a text field
// @Description Applied to the session tree immediately; persisted after the debounce window.
// @Tags        Editor
// @Accept      json
// @Param       id    path    string  true  "Form ID"
// @Param       body  body    handlers.EditFieldRequest  true  "Edit"
// @Success     202  {string} string "Accepted"
// @Router      /forms/{id}/fields [patch]
func (h *Handlers) EditField(c *gin.Context) {
	var req EditFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "field and node_id required")
		return
	}
	k := editor.FieldKey{Field: editor.Field(req.Field), NodeID: req.NodeID}
	if err := h.editorSvc.EditField(c.Request.Context(), userID(c), c.Param("id"), k, req.Value); err != nil {
		failEditor(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Drag godoc
// @ID          drag
// @Summary     Apply a drag result
// @Description Reorders within a container, or moves an item to another group. Disallowed drops are no-ops (applied=false).
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       id    path    string  true  "Form ID"
// @Param       body  body    editor.Drag  true  "Drag"
// @Success     200  {object} editor.DragResult
// @Failure     500  {object} handlers.ErrorResponse "Persist failed (tree restored)"
// @Router      /forms/{id}/drag [post]
func (h *Handlers) Drag(c *gin.Context) {
	var req editor.Drag
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.editorSvc.Drag(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SyncOptions godoc
// @ID          syncOptions
// @Summary     Reconcile an item's options with a draft list
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.SyncOptionsRequest  true  "Options in display order"
// @Success     200  {object} editor.ItemNode
// @Failure     500  {object} handlers.ErrorResponse "sync_partial or sync_failed"
// @Router      /forms/{id}/items/{nodeId}/options [put]
func (h *Handlers) SyncOptions(c *gin.Context) {
	var req SyncOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	drafts := toDrafts(req.Options)
	if drafts == nil {
		drafts = []editor.OptionDraft{}
	}
	it, err := h.editorSvc.SyncOptions(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), drafts)
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SetDefault godoc
// @ID          setDefault
// @Summary     Make one option the item's default
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.SetDefaultRequest  true  "Option"
// @Success     200  {object} editor.ItemNode
// @Router      /forms/{id}/items/{nodeId}/default [put]
func (h *Handlers) SetDefault(c *gin.Context) {
	var req SetDefaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "option_id required")
		return
	}
	it, err := h.editorSvc.SetDefault(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), req.OptionID)
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SwitchAnswerType godoc
// @ID          switchAnswerType
// @Summary     Change an item's answer type
// @Description Local until the item is saved. Switching to yes_no replaces the options with the fixed pair.
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.SwitchTypeRequest  true  "Answer type"
// @Success     200  {object} editor.ItemNode
// @Router      /forms/{id}/items/{nodeId}/type [put]
func (h *Handlers) SwitchAnswerType(c *gin.Context) {
	var req SwitchTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer_type required")
		return
	}
	it, err := h.editorSvc.SwitchAnswerType(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), domain.AnswerType(req.AnswerType))
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SaveItem godoc
// @ID          saveItem
// @Summary     Save an item and reconcile its options
// @Tags        Editor
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.SaveItemRequest  true  "Item fields"
// @Success     200  {object} editor.ItemNode
// @Router      /forms/{id}/items/{nodeId}/save [post]
func (h *Handlers) SaveItem(c *gin.Context) {
	var req SaveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	it, err := h.editorSvc.SaveItem(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), editor.SaveItemInput{
		Question:  req.Question,
		ShortName: req.ShortName,
		Required:  req.Required,
		Options:   toDrafts(req.Options),
	})
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}
