// Command formbuilder serves the form editor HTTP API.
//
// Configuration comes from the environment (optionally seeded from a .env
// file in the working directory); see internal/config for the keys.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-builder/internal/cache"
	"github.com/tbourn/go-form-builder/internal/config"
	"github.com/tbourn/go-form-builder/internal/editor"
	httpapi "github.com/tbourn/go-form-builder/internal/http"
	"github.com/tbourn/go-form-builder/internal/observability"
	"github.com/tbourn/go-form-builder/internal/repo"
	"github.com/tbourn/go-form-builder/internal/services"
	"github.com/tbourn/go-form-builder/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	log.Logger = logger

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("formbuilder stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.DBPath,
		PostgresDSN: cfg.DatabaseURL,
		Tracing:     cfg.OTEL.Enabled,
		Log:         &logger,
	})
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	var idCache editor.IDCache = cache.NewMemory(cfg.OptionCacheTTL)
	if cfg.RedisAddr != "" {
		var client *redis.Client
		idCache, client, err = cache.NewRedis(ctx, cfg.RedisAddr, cfg.OptionCacheTTL, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("option-id cache on redis")
	}

	editorSvc := services.NewEditorService(repo.NewTreeStore(db), idCache, cfg.DebounceWindow, cfg.SessionIdleTTL, logger)
	go sweep(ctx, db, editorSvc, cfg.SessionIdleTTL/2, logger)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, editorSvc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			_ = editorSvc.Close()
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// Pending debounced edits are committed before the database closes.
	if err := editorSvc.Close(); err != nil {
		logger.Error().Err(err).Msg("flush editor sessions")
	}
	return nil
}

// sweep evicts idle editor sessions and purges expired idempotency records
// until ctx is done.
func sweep(ctx context.Context, db *gorm.DB, svc *services.EditorService, every time.Duration, logger zerolog.Logger) {
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := svc.Sweep(); n > 0 {
				logger.Debug().Int("evicted", n).Int("open", svc.Len()).Msg("idle editor sessions")
			}
			if n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC()); err != nil {
				logger.Warn().Err(err).Msg("purge idempotency records")
			} else if n > 0 {
				logger.Debug().Int64("purged", n).Msg("expired idempotency records")
			}
		}
	}
}
