package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/store"
)

// Stats counts the statements an apply executed.
type Stats struct {
	Deleted  int `json:"deleted"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Relinked int `json:"relinked"`
}

// applyOps executes the plan on tx in order. Inserted parent rows are
// looked up again so their children can reference them.
func applyOps(ctx context.Context, tx store.Execer, schema *catalog.Schema, plan *Plan) (Stats, error) {
	var stats Stats
	// referenced holds, per insert op index, the parent column values its
	// children point at.
	referenced := map[int]map[string]any{}

	for i, op := range plan.Ops {
		switch op.Kind {
		case OpDelete:
			query := fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, store.QuoteIdent(op.Table))
			if err := execOne(ctx, tx, op, query, op.RowID); err != nil {
				return stats, err
			}
			stats.Deleted++

		case OpInsert:
			cols := op.Columns
			args := op.Values
			if op.ParentOp >= 0 {
				t, _ := schema.Table(op.Table)
				v, ok := referenced[op.ParentOp][t.Parent.References]
				if !ok {
					return stats, fmt.Errorf("apply op %d: parent op %d has not run", i, op.ParentOp)
				}
				cols = append(cols[:len(cols):len(cols)], op.ParentColumn)
				args = append(args[:len(args):len(args)], v)
			}
			quoted := make([]string, len(cols))
			marks := make([]string, len(cols))
			for j, c := range cols {
				quoted[j] = store.QuoteIdent(c)
				marks[j] = "?"
			}
			query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
				store.QuoteIdent(op.Table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return stats, fmt.Errorf("insert into %s [%s]: %w", op.Table, op.Label, err)
			}
			stats.Inserted++

			if children := schema.Children(op.Table); len(children) > 0 {
				rowID, err := res.LastInsertId()
				if err != nil {
					return stats, fmt.Errorf("insert into %s: %w", op.Table, err)
				}
				referenced[i] = map[string]any{}
				for _, child := range children {
					ref := child.Parent.References
					if _, done := referenced[i][ref]; done {
						continue
					}
					var v any
					query := fmt.Sprintf(`SELECT %s FROM %s WHERE rowid = ?`, store.QuoteIdent(ref), store.QuoteIdent(op.Table))
					if err := tx.QueryRowContext(ctx, query, rowID).Scan(&v); err != nil {
						return stats, fmt.Errorf("read back %s.%s: %w", op.Table, ref, err)
					}
					referenced[i][ref] = v
				}
			}

		case OpUpdate, OpRelink:
			sets := make([]string, len(op.Columns))
			for j, c := range op.Columns {
				sets[j] = store.QuoteIdent(c) + " = ?"
			}
			query := fmt.Sprintf(`UPDATE %s SET %s WHERE rowid = ?`, store.QuoteIdent(op.Table), strings.Join(sets, ", "))
			args := append(op.Values[:len(op.Values):len(op.Values)], op.RowID)
			if err := execOne(ctx, tx, op, query, args...); err != nil {
				return stats, err
			}
			if op.Kind == OpUpdate {
				stats.Updated++
			} else {
				stats.Relinked++
			}

		default:
			return stats, fmt.Errorf("apply op %d: unknown kind %q", i, op.Kind)
		}
	}
	return stats, nil
}

// execOne runs a statement that must affect exactly one row.
func execOne(ctx context.Context, tx store.Execer, op Op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s rowid=%d: %w", op.Kind, op.Table, op.RowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rowid=%d: %w", op.Kind, op.Table, op.RowID, err)
	}
	if n != 1 {
		return fmt.Errorf("%s %s rowid=%d: affected %d rows, want 1", op.Kind, op.Table, op.RowID, n)
	}
	return nil
}
