package db

import "embed"

// Migrations holds the goose SQL migrations shipped with the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS
