// Package migrations embeds the auth service database migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
