package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/editor"
	"github.com/tbourn/go-form-builder/internal/http/middleware"
)

func TestFeedback_TemplateAndSelection(t *testing.T) {
	r, _ := newTestServer(t)
	f := createForm(t, r, "Audit")
	g := addGroup(t, r, f.ID, "General")
	it := addItem(t, r, f.ID, g.ID, "Exits lit?", "yes_no")
	no := it.Options[1]

	optBase := "/forms/" + f.ID + "/options/" + no.ID
	itemBase := "/forms/" + f.ID + "/items/" + it.ID

	if w := do(t, r, http.MethodPut, optBase+"/feedback", `{"text":"Exits must be lit."}`); w.Code != http.StatusNoContent {
		t.Fatalf("general feedback: %d %s", w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodPost, optBase+"/tags", `{"name":"Lighting","text":"Emergency lights failed."}`, middleware.HeaderIdempotencyKey, "t-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("add tag: %d %s", w.Code, w.Body.String())
	}
	tag := decode[domain.FeedbackTag](t, w)
	w = do(t, r, http.MethodPost, optBase+"/tags", `{"name":"Lighting","text":"Emergency lights failed."}`, middleware.HeaderIdempotencyKey, "t-1")
	if w.Code != http.StatusCreated || decode[domain.FeedbackTag](t, w).ID != tag.ID {
		t.Fatalf("tag replay: %d %s", w.Code, w.Body.String())
	}
	signs := decode[domain.FeedbackTag](t, do(t, r, http.MethodPost, optBase+"/tags", `{"name":"Signs","text":"Signs missing."}`))

	// toggling before any selection is rejected
	if w = do(t, r, http.MethodPost, itemBase+"/feedback/tags/"+tag.ID, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("toggle without selection expected 400, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, itemBase+"/feedback/select", fmt.Sprintf(`{"option_id":%q}`, no.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("select: %d %s", w.Code, w.Body.String())
	}
	if sel := decode[editor.Selection](t, w); sel.OptionID != no.ID || sel.Text != "Exits must be lit." {
		t.Fatalf("unexpected selection: %+v", sel)
	}

	do(t, r, http.MethodPost, itemBase+"/feedback/tags/"+signs.ID, "")
	w = do(t, r, http.MethodPost, itemBase+"/feedback/tags/"+tag.ID, "")
	if sel := decode[editor.Selection](t, w); sel.Text != "Signs missing. Emergency lights failed." || len(sel.ActiveTags) != 2 {
		t.Fatalf("unexpected resolved text: %+v", sel)
	}

	w = do(t, r, http.MethodPut, itemBase+"/feedback", `{"text":"Custom note"}`)
	if sel := decode[editor.Selection](t, w); w.Code != http.StatusOK || !sel.Edited || sel.Text != "Custom note" {
		t.Fatalf("manual edit: %d %+v", w.Code, sel)
	}
	w = do(t, r, http.MethodGet, itemBase+"/feedback", "")
	if sel := decode[editor.Selection](t, w); sel.Text != "Custom note" {
		t.Fatalf("get feedback: %+v", sel)
	}

	// deleting an active tag re-resolves from the remaining ones
	if w = do(t, r, http.MethodDelete, optBase+"/tags/"+signs.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete tag: %d", w.Code)
	}
	w = do(t, r, http.MethodGet, itemBase+"/feedback", "")
	if sel := decode[editor.Selection](t, w); sel.Text != "Emergency lights failed." || sel.Edited {
		t.Fatalf("after delete: %+v", sel)
	}

	if w = do(t, r, http.MethodDelete, optBase+"/tags/"+signs.ID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete expected 404, got %d", w.Code)
	}

	// the general template survives a reload
	w = do(t, r, http.MethodPost, "/forms/"+f.ID+"/pull", "")
	pulled := decode[treeJSON](t, w).Groups[0].Items[0].Options[1]
	if pulled.General != "Exits must be lit." {
		t.Fatalf("general feedback not persisted: %+v", pulled)
	}
}

func TestFeedback_Validation(t *testing.T) {
	r, _ := newTestServer(t)
	f := createForm(t, r, "Audit")
	g := addGroup(t, r, f.ID, "General")
	it := addItem(t, r, f.ID, g.ID, "Exits lit?", "yes_no")

	if w := do(t, r, http.MethodPost, "/forms/"+f.ID+"/options/"+it.Options[0].ID+"/tags", `{"text":"no name"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing tag name expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/forms/"+f.ID+"/options/missing/feedback", `{"text":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing option expected 404, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/forms/"+f.ID+"/items/"+it.ID+"/feedback/select", `{"option_id":"missing"}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing option select expected 404, got %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/forms/"+f.ID+"/items/"+it.ID+"/feedback", "")
	if sel := decode[editor.Selection](t, w); w.Code != http.StatusOK || sel.OptionID != "" {
		t.Fatalf("empty selection expected, got %d %+v", w.Code, sel)
	}
}
