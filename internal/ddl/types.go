package ddl

// ColumnDef describes a single column.
//
// Fields:
//   - Name: logical column name, unquoted; quoting happens at render time
//   - SQLType: target SQL type (TEXT, NVARCHAR(MAX), ...)
//   - Nullable: whether NULL is allowed
//   - Default: raw default expression
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Default  string
}

// TableDef holds the table name in dotted form ("schema.table") and an
// ordered list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// TextTable returns a definition where every column is a nullable column of
// textType. Access-log fields are opaque strings, so loaders keep them as
// text and leave typing to downstream queries.
func TextTable(fqn, textType string, columns []string) TableDef {
	t := TableDef{FQN: fqn, Columns: make([]ColumnDef, len(columns))}
	for i, c := range columns {
		t.Columns[i] = ColumnDef{Name: c, SQLType: textType, Nullable: true}
	}
	return t
}
