package queue

import (
	_ "embed"

	"captionminer/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their queue database after schema changes.
const schemaVersion = 1

var schema = sqlitedb.Schema{Name: "queue", SQL: schemaSQL, Version: schemaVersion}
