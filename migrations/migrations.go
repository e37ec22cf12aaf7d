// Package migrations embeds the PostgreSQL schema so the server and the
// test fixtures apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
