// Package migrations embeds the credential store schema so migrations
// ship inside the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
