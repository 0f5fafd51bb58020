package sqltool

import (
	"context"
	"fmt"
	"strings"
)

// TableNames lists user tables and views, excluding SQLite internals, in
// schema order.
func (e *Executor) TableNames(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Schema renders the live table and column layout as text for prompt
// injection, so generated SQL only references existing structures.
//
//	Table: products
//	  - ProductID (INTEGER)
//	  - ProductName (TEXT)
func (e *Executor) Schema(ctx context.Context) (string, error) {
	names, err := e.TableNames(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, name := range names {
		cols, err := e.columns(ctx, name)
		if err != nil {
			return "", err
		}
		b.WriteString("Table: " + name + "\n")
		for _, col := range cols {
			b.WriteString(fmt.Sprintf("  - %s (%s)\n", col.name, col.typ))
		}
	}
	return b.String(), nil
}

type columnInfo struct {
	name string
	typ  string
}

func (e *Executor) columns(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid         int
			name, typ   string
			notNull, pk int
			dflt        any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		if typ == "" {
			typ = "ANY"
		}
		cols = append(cols, columnInfo{name: name, typ: typ})
	}
	return cols, rows.Err()
}
