// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping for SQLite (pure
// Go driver) and Postgres, schema migrations, and the server-side read-receipt
// function used on Postgres.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-whatsapp-inbox/internal/config"
	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// Open connects to the store selected by cfg.Driver and installs the
// OpenTelemetry tracing plugin.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = OpenPostgres(cfg.URL)
	case "sqlite", "":
		db, err = OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install gorm tracing: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// OpenPostgres connects to Postgres using dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// markReadFunctionSQL installs mark_conversation_read(uuid-as-text), which
// stamps read_at on every unread client message of one conversation and
// returns the number of rows touched.
const markReadFunctionSQL = `
CREATE OR REPLACE FUNCTION mark_conversation_read(conv_id text)
RETURNS integer
LANGUAGE plpgsql
AS $$
DECLARE
	touched integer;
BEGIN
	UPDATE messages
	   SET read_at = now(), updated_at = now()
	 WHERE conversation_id = conv_id
	   AND sender = 'client'
	   AND read_at IS NULL;
	GET DIAGNOSTICS touched = ROW_COUNT;
	RETURN touched;
END;
$$;`

// AutoMigrate creates or updates the schema. On Postgres it also installs
// the read-receipt function.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Client{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.InstanceCredentials{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}
	if isPostgres(db) {
		return db.Exec(markReadFunctionSQL).Error
	}
	return nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}
