package sqlstore

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/schema"

	"github.com/giantswarm/token-authority/instrumentation"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config describes how to open the database.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres. The driver package must be imported by the caller.
	Driver string

	// DSN is the driver-specific data source name
	DSN string

	// MaxOpenConns limits the pool. SQLite in-memory databases need 1.
	MaxOpenConns int

	// Debug logs every query to DebugWriter (stderr when nil)
	Debug       bool
	DebugWriter io.Writer

	// Instrumentation, when set, traces and measures queries through bunotel
	Instrumentation *instrumentation.Instrumentation
}

// Open opens a bun.DB with the dialect matching cfg.Driver.
func Open(cfg Config) (*bun.DB, error) {
	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := bun.NewDB(sqlDB, dialect)

	if cfg.Instrumentation != nil {
		db.AddQueryHook(bunotel.NewQueryHook(
			bunotel.WithDBName(cfg.Driver),
			bunotel.WithTracerProvider(cfg.Instrumentation.TracerProvider()),
			bunotel.WithMeterProvider(cfg.Instrumentation.MeterProvider()),
		))
	}
	if cfg.Debug {
		opts := []bundebug.Option{bundebug.WithVerbose(true)}
		if cfg.DebugWriter != nil {
			opts = append(opts, bundebug.WithWriter(cfg.DebugWriter))
		}
		db.AddQueryHook(bundebug.NewQueryHook(opts...))
	}

	return db, nil
}
