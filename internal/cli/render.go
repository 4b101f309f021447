package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/roach88/devmigrate/internal/migrate"
)

// maxValueWidth truncates column values in text output.
const maxValueWidth = 48

func writePlan(w io.Writer, p *migrate.Plan) error {
	fmt.Fprintf(w, "Plan: %s %s -> %s (%d operations)\n", p.Mode, p.Source, p.Target, len(p.Ops))

	tableWidth := 0
	for _, op := range p.Ops {
		tableWidth = max(tableWidth, len(op.Table))
	}
	for _, op := range p.Ops {
		line := fmt.Sprintf("  %-6s %-*s %s", op.Kind, tableWidth, op.Table, op.Label)
		if op.Rewrites > 0 {
			line += fmt.Sprintf("  (%d embedded id%s rewritten)", op.Rewrites, plural(op.Rewrites))
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	fmt.Fprintf(w, "Rows owned by %s afterwards:\n", p.Target)
	tables := make([]string, 0, len(p.Expected))
	nameWidth := 0
	for t := range p.Expected {
		tables = append(tables, t)
		nameWidth = max(nameWidth, len(t))
	}
	slices.Sort(tables)
	for _, t := range tables {
		fmt.Fprintf(w, "  %-*s %d\n", nameWidth, t, p.Expected[t])
	}
	_, err := fmt.Fprintln(w, "Dry run: the store was not modified.")
	return err
}

// graphView is the JSON form of a device graph.
type graphView struct {
	Device string      `json:"device"`
	Tables []tableView `json:"tables"`
}

type tableView struct {
	Name string    `json:"name"`
	Rows []rowView `json:"rows"`
}

type rowView struct {
	RowID    int64                 `json:"rowid"`
	Label    string                `json:"label"`
	Values   map[string]any        `json:"values"`
	Embedded []migrate.EmbeddedRef `json:"embedded,omitempty"`
}

func newGraphView(g *migrate.Graph) graphView {
	v := graphView{Device: g.DeviceID, Tables: []tableView{}}
	for _, tr := range g.Tables {
		tv := tableView{Name: tr.Table.Name, Rows: []rowView{}}
		for _, row := range tr.Rows {
			rv := rowView{RowID: row.RowID, Label: row.Label, Values: map[string]any{}, Embedded: row.Embedded}
			for i, col := range tr.Columns {
				rv.Values[col] = jsonValue(row.Values[i])
			}
			tv.Rows = append(tv.Rows, rv)
		}
		v.Tables = append(v.Tables, tv)
	}
	return v
}

// jsonValue keeps text blobs readable in JSON output.
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok && utf8.Valid(b) && printable(b) {
		return string(b)
	}
	return v
}

func writeGraph(w io.Writer, g *migrate.Graph) error {
	fmt.Fprintf(w, "Device %s: %d rows\n", g.DeviceID, g.Len())
	for _, tr := range g.Tables {
		fmt.Fprintf(w, "\n%s (%d)\n", tr.Table.Name, len(tr.Rows))
		for _, row := range tr.Rows {
			fmt.Fprintf(w, "  [%s] rowid=%d\n", row.Label, row.RowID)
			for i, col := range tr.Columns {
				if col == tr.RowIDColumn {
					continue
				}
				fmt.Fprintf(w, "    %s = %s\n", col, textValue(row.Values[i]))
			}
			for _, ref := range row.Embedded {
				fmt.Fprintf(w, "    -> %s @%d (%d bytes): %q\n", ref.Column, ref.Offset, ref.Length, ref.Identifier)
			}
		}
	}
	return nil
}

func textValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		if utf8.Valid(v) && printable(v) {
			return truncate(string(v))
		}
		return truncate("x'" + hex.EncodeToString(v) + "'")
	case string:
		return truncate(fmt.Sprintf("%q", v))
	default:
		return fmt.Sprint(v)
	}
}

func printable(b []byte) bool {
	for _, r := range string(b) {
		if r < 0x20 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxValueWidth {
		return s
	}
	r := []rune(s)
	return string(r[:maxValueWidth-3]) + "..."
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
