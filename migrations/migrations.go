// Package migrations embeds the versioned schema files applied by
// "fh-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
