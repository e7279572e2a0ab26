// Package httpapi wires Gin to the form and editor services: the middleware
// chain, operational endpoints and the versioned API routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/config"
	"github.com/tbourn/go-form-builder/internal/domain"
	"github.com/tbourn/go-form-builder/internal/http/handlers"
	"github.com/tbourn/go-form-builder/internal/http/middleware"
	"github.com/tbourn/go-form-builder/internal/repo"
	"github.com/tbourn/go-form-builder/internal/services"
)

// formRepoShim adapts the repository free functions to the
// services.FormRepo interface expected by the FormService.
type formRepoShim struct{}

func (formRepoShim) CreateForm(ctx context.Context, db *gorm.DB, actorID, title, description string) (*domain.Form, error) {
	return repo.CreateForm(ctx, db, actorID, title, description)
}

func (formRepoShim) GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetForm(ctx, db, id)
}

func (formRepoShim) UpdateForm(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return repo.UpdateForm(ctx, db, id, fields)
}

func (formRepoShim) SetFormStatus(ctx context.Context, db *gorm.DB, id string, status domain.FormStatus) error {
	return repo.SetFormStatus(ctx, db, id, status)
}

func (formRepoShim) DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteForm(ctx, db, id)
}

// CountForms proxies repo.CountForms (pagination support).
func (formRepoShim) CountForms(ctx context.Context, db *gorm.DB, status domain.FormStatus) (int64, error) {
	return repo.CountForms(ctx, db, status)
}

// ListFormsPage proxies repo.ListFormsPage (pagination support).
func (formRepoShim) ListFormsPage(ctx context.Context, db *gorm.DB, status domain.FormStatus, offset, limit int) ([]domain.Form, error) {
	return repo.ListFormsPage(ctx, db, status, offset, limit)
}

// corsMethods and corsHeaders are shared by both CORS postures.
var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderUserID, middleware.HeaderIdempotencyKey}
	corsExpose  = []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderReplayed}
)

// RegisterRoutes installs the middleware chain, the operational endpoints
// (/health, /ready, /metrics) and the form editor API under cfg.APIBasePath.
//
// The editor service is owned by the caller, which sweeps idle sessions and
// closes it on shutdown.
//
// Middleware order:
//  1. otelgin, so every request has a span
//  2. RequestID
//  3. RedactingLogger, which installs the request-scoped logger
//  4. Recovery, logging through that logger
//  5. body limit
//  6. Metrics
//  7. IdempotencyValidator, before the limiter so replays bypass it
//  8. RateLimiter
//  9. CORS, then security headers
//  10. gzip, skipping the Prometheus scrape
func RegisterRoutes(r *gin.Engine, db *gorm.DB, editorSvc *services.EditorService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}),
		middleware.Recovery(),
		limitBody(1<<20),
		middleware.Metrics(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idempotencyLookup(db)),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
			Exempt("/health", "/ready", "/metrics").
			Handler(),
	)
	r.Use(corsChain(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		VaryHeaders:  []string{middleware.HeaderUserID},
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(db, editorSvc))

	formSvc := services.NewFormService(db, formRepoShim{}, editorSvc)
	h := handlers.New(formSvc, editorSvc)
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}
	mountAPI(groupWithPrefix(r, cfg.APIBasePath), h)
}

// mountAPI registers the form editor endpoints on g.
func mountAPI(g *gin.RouterGroup, h *handlers.Handlers) {
	// Forms
	g.POST("/forms", h.CreateForm)
	g.GET("/forms", h.ListForms)
	g.GET("/forms/:id", h.GetForm)
	g.PATCH("/forms/:id", h.UpdateForm)
	g.PUT("/forms/:id/status", h.SetFormStatus)
	g.DELETE("/forms/:id", h.DeleteForm)

	// Tree editing
	g.GET("/forms/:id/tree", h.GetTree)
	g.POST("/forms/:id/pull", h.PullTree)
	g.POST("/forms/:id/groups", h.AddGroup)
	g.DELETE("/forms/:id/groups/:nodeId", h.RemoveGroup)
	g.POST("/forms/:id/groups/:nodeId/items", h.AddItem)
	g.DELETE("/forms/:id/items/:nodeId", h.RemoveItem)
	g.PATCH("/forms/:id/fields", h.EditField)
	g.POST("/forms/:id/drag", h.Drag)

	// Options
	g.PUT("/forms/:id/items/:nodeId/options", h.SyncOptions)
	g.PUT("/forms/:id/items/:nodeId/default", h.SetDefault)
	g.PUT("/forms/:id/items/:nodeId/type", h.SwitchAnswerType)
	g.POST("/forms/:id/items/:nodeId/save", h.SaveItem)

	// Feedback templates
	g.PUT("/forms/:id/options/:nodeId/feedback", h.SetGeneralFeedback)
	g.POST("/forms/:id/options/:nodeId/tags", h.AddTag)
	g.DELETE("/forms/:id/options/:nodeId/tags/:tagId", h.DeleteTag)

	// Feedback selection
	g.POST("/forms/:id/items/:nodeId/feedback/select", h.SelectOption)
	g.POST("/forms/:id/items/:nodeId/feedback/tags/:tagId", h.ToggleTag)
	g.PUT("/forms/:id/items/:nodeId/feedback", h.EditFeedbackText)
	g.GET("/forms/:id/items/:nodeId/feedback", h.GetFeedback)
}

// idempotencyLookup reports whether a live record exists. A miss is not an
// error; store failures are returned so the middleware can log them.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scopeID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, userID, scopeID, key, now)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// corsChain returns the CORS middleware. With no allowlist every origin is
// accepted (without credentials); otherwise only listed origins are echoed.
func corsChain(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     corsMethods,
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    corsExpose,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO on every response, including requests without an Origin.
		star := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{star, cors.New(base)}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	echo := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{echo, cors.New(base)}
}

// readiness reports 503 when the database does not answer a ping.
func readiness(db *gorm.DB, editorSvc *services.EditorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "sessions": editorSvc.Len()})
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
