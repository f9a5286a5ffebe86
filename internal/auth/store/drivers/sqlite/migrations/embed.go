package migrations

import "embed"

// Migrations holds the golang-migrate source files applied by the sqlite
// driver at startup.
//
//go:embed *.sql
var Migrations embed.FS
