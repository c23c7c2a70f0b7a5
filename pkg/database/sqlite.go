// Package database opens the SQLite requisition store and applies its
// schema migrations.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Config holds the connection settings for the requisition store.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB owns the sql.DB handle for the requisition store. Transactions are
// managed one layer up by the context-carrying transaction manager; this
// type only opens, pools and closes the connection.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// New opens the requisition store. WAL keeps audit and list reads from
// blocking behind the single writer, the busy timeout absorbs writer
// contention from concurrent approvals, and foreign keys back the
// requisition/step/audit relations declared in the migrations.
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	sqlDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to open requisition store: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping requisition store: %w", err)
	}

	logger.Info("Requisition store opened", zap.String("path", cfg.Path))
	return &DB{DB: sqlDB, logger: logger}, nil
}

// Close closes the store connection
func (db *DB) Close() error {
	db.logger.Info("Closing requisition store")
	return db.DB.Close()
}
