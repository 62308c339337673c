// Package ddl renders CREATE TABLE statements for the SQL sinks.
//
// A Dialect supplies identifier quoting, the text column type and the
// "create if missing" guard; the column list is rendered the same way for
// every dialect:
//
//	<quoted name> <SQLType> [NOT NULL] [DEFAULT <Default>]
package ddl

import (
	"fmt"
	"strings"
)

// Dialect describes the SQL flavour of a backend.
type Dialect struct {
	Name     string
	TextType string
	// Quote quotes one identifier segment.
	Quote func(id string) string
	// Wrap turns the quoted table name and rendered column list into the
	// final idempotent statement.
	Wrap func(fqn, cols string) string
}

// Built-in dialects.
var (
	Postgres = Dialect{
		Name:     "postgres",
		TextType: "TEXT",
		Quote:    doubleQuote,
		Wrap:     ifNotExists,
	}
	SQLite = Dialect{
		Name:     "sqlite",
		TextType: "TEXT",
		Quote:    doubleQuote,
		Wrap:     ifNotExists,
	}
	MSSQL = Dialect{
		Name:     "mssql",
		TextType: "NVARCHAR(MAX)",
		Quote:    bracketQuote,
		Wrap: func(fqn, cols string) string {
			return fmt.Sprintf(
				"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
				strings.ReplaceAll(fqn, "'", "''"), fqn, strings.ReplaceAll(cols, "\n  ", "\n    "))
		},
	}
)

func ifNotExists(fqn, cols string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", fqn, cols)
}

func doubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func bracketQuote(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

// QuoteFQN quotes each dot-separated segment of a table name. Empty segments
// are dropped.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.Quote(p))
	}
	return strings.Join(out, ".")
}

// QuoteAll quotes every column name.
func (d Dialect) QuoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

// BuildCreateTableSQL renders an idempotent CREATE TABLE statement for t.
//
// It fails when the table name is empty, when there are no columns, or when
// a column has an empty name or type.
func (d Dialect) BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns))
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		if _, dup := seen[name]; dup {
			return "", fmt.Errorf("%s ddl: duplicate column %s in table %s", d.Name, name, fqn)
		}
		seen[name] = struct{}{}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name, name)
		}

		var sb strings.Builder
		sb.WriteString(d.Quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())
	}

	return d.Wrap(d.QuoteFQN(fqn), strings.Join(cols, ",\n  ")), nil
}
