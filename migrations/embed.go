// Package migrations embeds the SQL schema owned by the gateway.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
