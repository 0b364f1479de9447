package migrations

import "embed"

// FS contains embedded SQLite migrations for consent entries.
//
//go:embed *.sql
var FS embed.FS
