// Package all registers every built-in storage backend. Import it for side
// effects only:
//
//	import _ "auditlog/internal/storage/all"
//
// after which storage.New accepts kind "postgres", "mssql" or "sqlite".
package all

import (
	_ "auditlog/internal/storage/mssql"
	_ "auditlog/internal/storage/postgres"
	_ "auditlog/internal/storage/sqlite"
)
