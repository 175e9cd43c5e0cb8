// Package migrations embeds the schema so binaries and tests share one copy.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
