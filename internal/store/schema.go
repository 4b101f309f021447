package store

import (
	"context"
	"fmt"
	"strings"
)

// Column describes one column as reported by pragma_table_info.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	PK      int // 1-based position in the primary key, 0 if not part of it
}

// RowIDAlias reports whether the column is an INTEGER PRIMARY KEY, which
// SQLite assigns on insert.
func (c Column) RowIDAlias(cols []Column) bool {
	if c.PK != 1 || !strings.EqualFold(c.Type, "INTEGER") {
		return false
	}
	for _, other := range cols {
		if other.PK > 1 {
			return false
		}
	}
	return true
}

// TableColumns returns the columns of table in declaration order. A missing
// table yields an empty slice, not an error.
func TableColumns(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.NotNull, &c.PK); err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	return cols, nil
}

// ColumnNames returns just the names of cols.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
