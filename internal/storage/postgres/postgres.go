// Package postgres persists visitor entries in the consent_entries table.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Backend is a PostgreSQL-backed storage.Backend.
type Backend struct {
	db    *sql.DB
	clock func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used for updated_at.
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Migrate creates the table when missing.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate consent_entries: %w", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, visitorID, key string) (string, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM consent_entries WHERE visitor_id = $1 AND key = $2`,
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

// SetMany upserts every item in one statement.
func (b *Backend) SetMany(ctx context.Context, visitorID string, items []storage.Item) error {
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	values := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
		values = append(values, item.Value)
	}

	query := `
		INSERT INTO consent_entries (visitor_id, key, value, updated_at)
		SELECT $1, k, v, $4
		FROM unnest($2::text[], $3::text[]) AS t(k, v)
		ON CONFLICT (visitor_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := b.db.ExecContext(ctx, query, visitorID, pq.Array(keys), pq.Array(values), b.clock().UTC())
	if err != nil {
		return fmt.Errorf("set entries batch: %w", err)
	}
	return nil
}

// Health pings the database.
func (b *Backend) Health(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
