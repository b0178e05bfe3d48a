// Package migrations embeds the PostgreSQL schema migrations for the
// server's record storage.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
