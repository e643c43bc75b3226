// Package migrations embeds the SQL schema migrations into the binaries,
// so every process can bring the database up to date on start.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
