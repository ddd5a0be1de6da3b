// Package migrations embeds the SQL schema migrations.
//
// The files are consumed through golang-migrate's iofs source by the
// migrator binary and by the integration-test harness, so every environment
// runs the exact schema shipped in the binary.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
