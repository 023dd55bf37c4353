// Package migrations holds the goose migrations for the report service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
