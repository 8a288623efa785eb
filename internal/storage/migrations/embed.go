// Package migrations embeds the schema golang-migrate/migrate/v4 applies
// to every freshly-opened store, the same embedded-FS migration pattern
// used for sqlite.Migrations elsewhere in this codebase's history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
