package migrate

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Mode selects what happens to the source device's rows.
type Mode string

const (
	// ModeCopy leaves the source untouched and inserts retargeted copies.
	ModeCopy Mode = "copy"
	// ModeMove re-points the source rows at the target in place.
	ModeMove Mode = "move"
)

// ParseMode accepts "copy" and "move"; "" means copy.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeCopy:
		return ModeCopy, nil
	case ModeMove:
		return ModeMove, nil
	}
	return "", fmt.Errorf("unknown mode %q (valid: copy, move)", s)
}

// OpKind is the kind of one plan operation.
type OpKind string

const (
	OpDelete OpKind = "delete"
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	// OpRelink points a row's device column at the target.
	OpRelink OpKind = "relink"
)

// phase orders operations: deletes, then inserts and updates, then
// relinks.
func (k OpKind) phase() int {
	switch k {
	case OpDelete:
		return 0
	case OpRelink:
		return 2
	default:
		return 1
	}
}

// Op is one statement of a plan.
type Op struct {
	Kind  OpKind `json:"kind"`
	Table string `json:"table"`
	// RowID addresses the row for delete, update and relink.
	RowID int64 `json:"rowid,omitempty"`
	// Label names the row by its key columns.
	Label string `json:"label,omitempty"`

	// Columns and Values are the assignments of insert, update and relink.
	Columns []string `json:"columns,omitempty"`
	Values  []any    `json:"-"`

	// ParentOp is the index of the insert that creates this row's parent,
	// or -1. ParentColumn receives that row's referenced value.
	ParentOp     int    `json:"parent_op"`
	ParentColumn string `json:"parent_column,omitempty"`

	// Rewrites counts embedded identifiers rewritten in Values.
	Rewrites int `json:"rewrites,omitempty"`
}

// Plan is the ordered list of operations that retargets one device's
// graph. Producing a plan has no side effects.
type Plan struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Mode   Mode   `json:"mode"`
	Ops    []Op   `json:"ops"`

	// Expected is the row count per table of the target's graph once the
	// plan is applied.
	Expected map[string]int `json:"expected"`
	// Retargeted lists, per table, the row identities the target must own
	// afterwards.
	Retargeted map[string][]string `json:"-"`
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Ops) == 0
}

// Count returns the number of operations of the given kind.
func (p *Plan) Count(kind OpKind) int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Tables returns the tables the plan touches, sorted.
func (p *Plan) Tables() []string {
	seen := map[string]bool{}
	for _, op := range p.Ops {
		seen[op.Table] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// order stable-sorts ops into phases and remaps ParentOp indexes.
func order(ops []Op) []Op {
	idx := make([]int, len(ops))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return ops[a].Kind.phase() - ops[b].Kind.phase()
	})

	newPos := make([]int, len(ops))
	for pos, old := range idx {
		newPos[old] = pos
	}
	out := make([]Op, len(ops))
	for pos, old := range idx {
		op := ops[old]
		if op.ParentOp >= 0 {
			op.ParentOp = newPos[op.ParentOp]
		}
		out[pos] = op
	}
	return out
}
