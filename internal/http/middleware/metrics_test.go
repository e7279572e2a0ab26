package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/forms/:id/tree", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.DELETE("/forms/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tree := httpReqs.WithLabelValues("GET", "/forms/:id/tree", "200")
	del := httpReqs.WithLabelValues("DELETE", "/forms/:id", "204")
	miss := httpReqs.WithLabelValues("GET", "unmatched", "404")
	baseTree, baseDel, baseMiss := testutil.ToFloat64(tree), testutil.ToFloat64(del), testutil.ToFloat64(miss)

	for _, tc := range []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/forms/a/tree", http.StatusOK},
		{http.MethodGet, "/forms/b/tree", http.StatusOK},
		{http.MethodDelete, "/forms/a", http.StatusNoContent},
		{http.MethodGet, "/random/probe", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.code {
			t.Fatalf("%s %s -> %d, want %d", tc.method, tc.path, w.Code, tc.code)
		}
	}

	// ids collapse into the route template
	if got := testutil.ToFloat64(tree); got != baseTree+2 {
		t.Fatalf("tree counter = %v; want %v", got, baseTree+2)
	}
	if got := testutil.ToFloat64(del); got != baseDel+1 {
		t.Fatalf("delete counter = %v; want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(miss); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}
}

func TestRouteLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := routeLabel(c); got != "unmatched" {
		t.Fatalf("routeLabel = %q", got)
	}
}
