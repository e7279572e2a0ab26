// Feedback HTTP handlers.
//
// This file exposes the feedback endpoints. Authoring endpoints edit an
// option's feedback template (general text plus named tags):
//   - PUT    /forms/{id}/options/{nodeId}/feedback            (general text)
//   - POST   /forms/{id}/options/{nodeId}/tags                (add tag, idempotent)
//   - DELETE /forms/{id}/options/{nodeId}/tags/{tagId}        (delete tag)
//
// Selection endpoints drive the per-item resolved feedback text:
//   - POST   /forms/{id}/items/{nodeId}/feedback/select       (select option)
//   - POST   /forms/{id}/items/{nodeId}/feedback/tags/{tagId} (toggle tag)
//   - PUT    /forms/{id}/items/{nodeId}/feedback              (manual text)
//   - GET    /forms/{id}/items/{nodeId}/feedback              (current state)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GeneralFeedbackRequest sets an option's general feedback text. An empty
// text clears it.
type GeneralFeedbackRequest struct {
	Text string `json:"text" example:"Exits must be lit at all times."`
}

// AddTagRequest adds a named feedback tag to an option.
type AddTagRequest struct {
	Name string `json:"name" binding:"required" example:"Lighting"`
	Text string `json:"text" example:"Emergency lighting was not working."`
}

// SelectOptionRequest selects the option whose feedback is resolved.
type SelectOptionRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// FeedbackTextRequest overrides the resolved text.
type FeedbackTextRequest struct {
	Text string `json:"text"`
}

// SetGeneralFeedback godoc
// @ID          setGeneralFeedback
// @Summary     Set the caller's general feedback text of an option
// @Tags        Feedback
// @Accept      json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Option ID"
// @Param       body    body    handlers.GeneralFeedbackRequest  true  "Text"
// @Success     204  {string} string "No Content"
// @Router      /forms/{id}/options/{nodeId}/feedback [put]
func (h *Handlers) SetGeneralFeedback(c *gin.Context) {
	var req GeneralFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.editorSvc.SetGeneralFeedback(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), req.Text); err != nil {
		failEditor(c, err)
		return
	}
	noContent(c)
}

// AddTag godoc
// @ID          addTag
// @Summary     Add a feedback tag to an option
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Option ID"
// @Param       body    body    handlers.AddTagRequest  true  "Tag"
// @Success     201  {object} domain.FeedbackTag
// @Router      /forms/{id}/options/{nodeId}/tags [post]
func (h *Handlers) AddTag(c *gin.Context) {
	var req AddTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	ctx, uid, formID, optionID := c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId")

	if id, hit := h.replayedID(c); hit {
		if t, err := h.editorSvc.Tree(ctx, uid, formID); err == nil {
			if o, _ := t.Option(optionID); o != nil {
				for i := range o.Tags {
					if o.Tags[i].ID == id {
						replayed(c, o.Tags[i])
						return
					}
				}
			}
		}
	}

	tag, err := h.editorSvc.AddTag(ctx, uid, formID, optionID, req.Name, req.Text)
	if err != nil {
		failEditor(c, err)
		return
	}
	h.remember(c, tag.ID, http.StatusCreated)
	ok(c, http.StatusCreated, tag)
}

// DeleteTag godoc
// @ID          deleteTag
// @Summary     Delete a feedback tag
// @Tags        Feedback
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Option ID"
// @Param       tagId   path    string  true  "Tag ID"
// @Success     204  {string} string "No Content"
// @Router      /forms/{id}/options/{nodeId}/tags/{tagId} [delete]
func (h *Handlers) DeleteTag(c *gin.Context) {
	if err := h.editorSvc.DeleteTag(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), c.Param("tagId")); err != nil {
		failEditor(c, err)
		return
	}
	noContent(c)
}

// SelectOption godoc
// @ID          selectFeedbackOption
// @Summary     Select the option whose feedback is resolved for an item
// @Description Clears active tags and resets the text to the option's general feedback.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.SelectOptionRequest  true  "Option"
// @Success     200  {object} editor.Selection
// @Router      /forms/{id}/items/{nodeId}/feedback/select [post]
func (h *Handlers) SelectOption(c *gin.Context) {
	var req SelectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "option_id required")
		return
	}
	sel, err := h.editorSvc.SelectOption(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), req.OptionID)
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}

// ToggleTag godoc
// @ID          toggleFeedbackTag
// @Summary     Toggle a feedback tag of the selected option
// @Description Recomputes the text from the active tags, discarding manual edits.
// @Tags        Feedback
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       tagId   path    string  true  "Tag ID"
// @Success     200  {object} editor.Selection
// @Router      /forms/{id}/items/{nodeId}/feedback/tags/{tagId} [post]
func (h *Handlers) ToggleTag(c *gin.Context) {
	sel, err := h.editorSvc.ToggleTag(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), c.Param("tagId"))
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}

// EditFeedbackText godoc
// @ID          editFeedbackText
// @Summary     Override the resolved feedback text
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Param       body    body    handlers.FeedbackTextRequest  true  "Text"
// @Success     200  {object} editor.Selection
// @Router      /forms/{id}/items/{nodeId}/feedback [put]
func (h *Handlers) EditFeedbackText(c *gin.Context) {
	var req FeedbackTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sel, err := h.editorSvc.EditFeedbackText(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"), req.Text)
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}

// GetFeedback godoc
// @ID          getFeedback
// @Summary     Current feedback selection of an item
// @Tags        Feedback
// @Produce     json
// @Param       id      path    string  true  "Form ID"
// @Param       nodeId  path    string  true  "Item ID"
// @Success     200  {object} editor.Selection
// @Router      /forms/{id}/items/{nodeId}/feedback [get]
func (h *Handlers) GetFeedback(c *gin.Context) {
	sel, err := h.editorSvc.Feedback(c.Request.Context(), userID(c), c.Param("id"), c.Param("nodeId"))
	if err != nil {
		failEditor(c, err)
		return
	}
	ok(c, http.StatusOK, sel)
}
