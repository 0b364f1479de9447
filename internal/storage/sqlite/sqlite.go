// Package sqlite persists visitor entries in an embedded SQLite database for
// single-node deployments that must survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"optin/internal/storage"
	"optin/internal/storage/sqlite/migrations"
	"optin/pkg/platform/sentinel"
)

// Backend is a SQLite-backed storage.Backend.
type Backend struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Backend{db: db, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Backend) Get(ctx context.Context, visitorID, key string) (string, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM consent_entries WHERE visitor_id = ? AND key = ?`,
		visitorID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("visitor %s key %q: %w", visitorID, key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get entry: %w", err)
	}
	return value, nil
}

// SetMany upserts all items inside one transaction.
func (b *Backend) SetMany(ctx context.Context, visitorID string, items []storage.Item) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := b.clock().UTC().UnixMilli()
	for _, item := range items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO consent_entries (visitor_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (visitor_id, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			visitorID, item.Key, item.Value, now,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", item.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Health pings the database.
func (b *Backend) Health(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
