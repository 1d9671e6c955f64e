// Package migrations embeds the SQL migration files applied by goose.
package migrations

import "embed"

// FS holds the migration files in lexical (and therefore version) order.
//
//go:embed *.sql
var FS embed.FS
