// Package repo persists forms, their node tree, feedback templates and
// idempotency records with GORM. Queries are free functions taking a
// *gorm.DB; TreeStore adapts them to the editor's Store interface.
//
// This file opens the database (pure-Go SQLite or PostgreSQL) and migrates
// the schema.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-form-builder/internal/domain"
)

// Supported values of the DB_DRIVER setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas are applied to every pooled connection through the DSN.
// foreign_keys is per connection in SQLite, hence the DSN rather than Exec.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// Options selects and tunes the database backend.
type Options struct {
	Driver      string // sqlite|postgres
	SQLitePath  string
	PostgresDSN string
	Tracing     bool // install the GORM OpenTelemetry plugin

	// Log receives slow-query and error reports; GORM's default logger is
	// used when nil.
	Log *zerolog.Logger
	// SlowQuery is the threshold above which queries are reported. Defaults
	// to 200ms.
	SlowQuery time.Duration
}

// Open connects to the configured backend and, when requested, installs the
// OpenTelemetry tracing plugin so every query becomes a child span of the
// request.
func Open(opts Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if opts.Log != nil {
		gcfg.Logger = newGormLogger(*opts.Log, opts.SlowQuery)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		db, err = openSQLite(opts.SQLitePath, gcfg)
	case DriverPostgres:
		db, err = openPostgres(opts.PostgresDSN, gcfg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("install gorm tracing: %w", err)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*gorm.DB, error) {
	return openSQLite(path, &gorm.Config{})
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	// A missing directory otherwise surfaces as a misleading driver error.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gcfg)
	if err != nil {
		return nil, err
	}
	if err := tunePool(db, 10, 10); err != nil {
		return nil, err
	}
	return db, nil
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenPostgres connects to PostgreSQL using a libpq-style DSN or URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return openPostgres(dsn, &gorm.Config{})
}

func openPostgres(dsn string, gcfg *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: empty DATABASE_URL")
	}
	db, err := gorm.Open(postgres.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	if err := tunePool(db, 25, 10); err != nil {
		return nil, err
	}
	return db, nil
}

func tunePool(db *gorm.DB, maxOpen, maxIdle int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return nil
}

// gormWriter forwards GORM's log lines to zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func newGormLogger(log zerolog.Logger, slow time.Duration) logger.Interface {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return logger.New(gormWriter{log: log}, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// AutoMigrate creates or updates the schema for every persisted model.
// Parents are listed before children so foreign keys resolve.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Form{},
		&domain.Group{},
		&domain.Item{},
		&domain.Option{},
		&domain.FeedbackGeneral{},
		&domain.FeedbackTag{},
		&domain.Idempotency{},
	)
}
