package storage

import (
	"context"
	"fmt"
	"sync"

	"auditlog/internal/ddl"
)

var (
	ddlMu       sync.RWMutex
	ddlDialects = map[string]ddl.Dialect{}
)

// RegisterDDL associates a SQL dialect with a storage kind so EnsureTable can
// create tables without the caller knowing the backend.
func RegisterDDL(kind string, d ddl.Dialect) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlDialects[kind] = d
}

// DialectFor returns the dialect registered for kind.
func DialectFor(kind string) (ddl.Dialect, bool) {
	ddlMu.RLock()
	defer ddlMu.RUnlock()
	d, ok := ddlDialects[kind]
	return d, ok
}

// EnsureTable creates table with one text column per entry of columns unless
// it already exists.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, columns []string) error {
	d, ok := DialectFor(kind)
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	stmt, err := d.BuildCreateTableSQL(ddl.TextTable(table, d.TextType, columns))
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}
