package migrate

import (
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/payload"
)

// Graph is every configuration row reachable from one device, with the
// identifiers embedded in their payloads. Graphs are not modified after
// extraction.
type Graph struct {
	DeviceID string
	// Tables follows catalog order and includes tables with no rows.
	Tables []*TableRows
}

// TableRows holds the rows one table contributes to a graph.
type TableRows struct {
	Table catalog.Table
	// Columns lists every store column, in declaration order.
	Columns []string
	// RowIDColumn is the INTEGER PRIMARY KEY column, if the table has one.
	RowIDColumn string
	// Rows are ordered by parent, then rowid.
	Rows []Row
	// Codecs holds the payload codec of each blob column.
	Codecs map[string]payload.Codec
}

// Row is one configuration row.
type Row struct {
	RowID int64
	// Parent is the rowid of the owning parent row, 0 for direct tables.
	Parent int64
	// Identity identifies the row within its owner. Child identities are
	// prefixed with their parent's.
	Identity string
	// Label is Identity in readable form.
	Label    string
	Values   []any
	Embedded []EmbeddedRef
}

// EmbeddedRef is one identifier occurrence inside a payload column.
type EmbeddedRef struct {
	Column string `json:"column"`
	payload.Occurrence
}

// Table returns the rows for the named table, or nil.
func (g *Graph) Table(name string) *TableRows {
	for _, t := range g.Tables {
		if t.Table.Name == name {
			return t
		}
	}
	return nil
}

// Len counts rows across all tables.
func (g *Graph) Len() int {
	n := 0
	for _, t := range g.Tables {
		n += len(t.Rows)
	}
	return n
}

// Empty reports whether the device owns no rows.
func (g *Graph) Empty() bool {
	return g.Len() == 0
}

// Counts returns the number of rows per table.
func (g *Graph) Counts() map[string]int {
	counts := make(map[string]int, len(g.Tables))
	for _, t := range g.Tables {
		counts[t.Table.Name] = len(t.Rows)
	}
	return counts
}

// Occurrences counts embedded occurrences of id across the graph.
func (g *Graph) Occurrences(id string) int {
	n := 0
	for _, t := range g.Tables {
		for _, r := range t.Rows {
			n += len(r.SelfRefs(id))
		}
	}
	return n
}

// Children returns the rows of table whose parent is parentRowID.
func (t *TableRows) Children(parentRowID int64) []Row {
	var out []Row
	for _, r := range t.Rows {
		if r.Parent == parentRowID {
			out = append(out, r)
		}
	}
	return out
}

// Index returns the position of column in Columns, or -1.
func (t *TableRows) Index(column string) int {
	return slices.Index(t.Columns, column)
}

// Value returns the value of column in row.
func (t *TableRows) Value(r Row, column string) any {
	if i := t.Index(column); i >= 0 {
		return r.Values[i]
	}
	return nil
}

// SelfRefs returns the embedded occurrences that equal id.
func (r Row) SelfRefs(id string) []EmbeddedRef {
	var out []EmbeddedRef
	for _, ref := range r.Embedded {
		if ref.Identifier == id {
			out = append(out, ref)
		}
	}
	return out
}

// identity encodes the key column values of a row. Values are tagged with
// their type so that 1, "1" and x'31' stay distinct.
func identity(t *TableRows, r Row) (key, label string) {
	keys := make([]string, len(t.Table.KeyColumns))
	labels := make([]string, len(t.Table.KeyColumns))
	for i, col := range t.Table.KeyColumns {
		v := t.Value(r, col)
		keys[i] = canonical(v)
		labels[i] = display(v)
	}
	return strings.Join(keys, "\x1f"), strings.Join(labels, "/")
}

func canonical(v any) string {
	switch v := v.(type) {
	case nil:
		return "n"
	case int64:
		return "i" + strconv.FormatInt(v, 10)
	case float64:
		return "f" + strconv.FormatUint(math.Float64bits(v), 16)
	case bool:
		if v {
			return "i1"
		}
		return "i0"
	case string:
		return "s" + v
	case []byte:
		return "b" + hex.EncodeToString(v)
	default:
		return fmt.Sprintf("?%T:%v", v, v)
	}
}

func display(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// blobBytes returns the bytes of a payload value. NULL yields nil.
func blobBytes(v any) ([]byte, bool) {
	switch v := v.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

// sameType returns b converted to the storage type of v.
func sameType(v any, b []byte) any {
	if _, ok := v.(string); ok {
		return string(b)
	}
	return b
}
