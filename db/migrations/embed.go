// Package dbmigrations exposes the embedded SQL migrations bundled into
// runtime binaries, for components that carry their own schema (the
// Postgres reference sink).
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations.
//
//go:embed *.sql
var Files embed.FS
