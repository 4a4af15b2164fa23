// Package migrations holds the SQL schema applied by golang-migrate.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS
