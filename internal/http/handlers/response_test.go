package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseEngine(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(buf)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.POST("/forms/:id/items/:nodeId/save", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodePersistFailed, "write failed")
	})
	r.GET("/forms/:id", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	})
	r.POST("/forms", func(c *gin.Context) { replayed(c, gin.H{"id": "f1"}) })
	r.DELETE("/forms/:id", func(c *gin.Context) { noContent(c) })
	return r
}

func TestFail_ServerErrorIsLoggedWithNode(t *testing.T) {
	var buf bytes.Buffer
	r := responseEngine(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forms/f1/items/i9/save", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorResponse{RequestID: "rid-1", Code: ErrCodePersistFailed, Message: "write failed"}, resp)

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"node_id":"i9"`)
	assert.Contains(t, out, `"code":"persist_failed"`)
}

func TestFail_ClientErrorIsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	r := responseEngine(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forms/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Code)
	assert.Equal(t, "rid-1", resp.RequestID)
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestReplayedAndNoContent(t *testing.T) {
	r := responseEngine(&bytes.Buffer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forms", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderReplayed))
	assert.JSONEq(t, `{"id":"f1"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/forms/f1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}
