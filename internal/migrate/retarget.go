package migrate

import (
	"errors"
	"slices"
)

// Retarget plans the transfer of src, the source device's graph, onto dst,
// the target device's current graph.
//
// Source rows are matched to target rows by identity. Where the target
// already has rows with a source row's identity, the plan deletes them
// (with their child rows) before the source's version is written, so the
// target ends up with exactly the source's configuration for that slot.
// Target rows with no source counterpart are left alone. A matching
// target group whose content already equals the retargeted source is
// skipped, which makes a repeated transfer plan nothing.
//
// Every device column is set to the target, and every embedded occurrence
// of the source identifier is rewritten through its codec. Retarget fails
// with KindIdentifierWidth when the target does not fit a payload slot.
func Retarget(src, dst *Graph, mode Mode) (*Plan, error) {
	if src.DeviceID == dst.DeviceID {
		return nil, ErrSameDevice
	}
	if mode == "" {
		mode = ModeCopy
	}
	r := &retargeter{
		src:  src,
		dst:  dst,
		mode: mode,
		plan: &Plan{
			Source:     src.DeviceID,
			Target:     dst.DeviceID,
			Mode:       mode,
			Expected:   dst.Counts(),
			Retargeted: map[string][]string{},
		},
	}
	if err := r.run(); err != nil {
		return nil, err
	}
	r.plan.Ops = order(r.ops)
	return r.plan, nil
}

type retargeter struct {
	src, dst *Graph
	mode     Mode
	plan     *Plan
	ops      []Op
	// rewritten caches retargeted values per table and source rowid.
	rewritten map[string]map[int64]rewrite
}

type rewrite struct {
	values   []any
	rewrites int
}

func (r *retargeter) run() error {
	r.rewritten = map[string]map[int64]rewrite{}
	for _, st := range r.src.Tables {
		m := map[int64]rewrite{}
		for _, row := range st.Rows {
			values, n, err := retargetRow(st, row, r.src.DeviceID, r.dst.DeviceID)
			if err != nil {
				return err
			}
			m[row.RowID] = rewrite{values: values, rewrites: n}
		}
		r.rewritten[st.Table.Name] = m
	}

	for _, st := range r.src.Tables {
		if !st.Table.Direct() {
			continue
		}
		dt := r.dst.Table(st.Table.Name)
		srcGroups := groupByIdentity(st.Rows)
		dstGroups := groupByIdentity(dt.Rows)

		for _, id := range groupOrder(st.Rows) {
			sg, tg := srcGroups[id], dstGroups[id]
			switch {
			case len(tg) > 0 && r.mode == ModeCopy && r.sameGroup(st, dt, sg, tg):
				r.keep(st, sg)
				continue
			case len(tg) > 0:
				for _, row := range tg {
					r.delete(dt, row)
				}
			}
			switch r.mode {
			case ModeMove:
				for _, row := range sg {
					r.move(st, row)
				}
			default:
				for _, row := range sg {
					r.insert(st, row, -1)
				}
			}
		}
	}
	return nil
}

// retargetRow returns row's values with the device column set to target
// and every embedded occurrence of source rewritten. It also returns the
// number of rewritten occurrences.
func retargetRow(tr *TableRows, row Row, source, target string) ([]any, int, error) {
	values := slices.Clone(row.Values)
	if tr.Table.Direct() {
		values[tr.Index(tr.Table.DeviceColumn)] = target
	}

	refs := row.SelfRefs(source)
	byColumn := map[string]map[int]string{}
	for _, ref := range refs {
		if byColumn[ref.Column] == nil {
			byColumn[ref.Column] = map[int]string{}
		}
		byColumn[ref.Column][ref.Offset] = target
	}
	for _, b := range tr.Table.Blobs {
		repl := byColumn[b.Column]
		if len(repl) == 0 {
			continue
		}
		i := tr.Index(b.Column)
		data, _ := blobBytes(values[i])
		out, err := tr.Codecs[b.Column].Rewrite(data, repl)
		if err != nil {
			return nil, 0, payloadError(tr.Table.Name, b.Column, row.RowID, target, err)
		}
		values[i] = sameType(values[i], out)
	}
	return values, len(refs), nil
}

// compared reports whether column takes part in content comparison.
// Rowids and parent links differ between equal rows.
func compared(tr *TableRows, column string) bool {
	if column == tr.RowIDColumn {
		return false
	}
	return tr.Table.Direct() || column != tr.Table.Parent.Column
}

// sameGroup reports whether the retargeted source rows already equal the
// target rows, including their child subtrees.
func (r *retargeter) sameGroup(st, dt *TableRows, sg, tg []Row) bool {
	if len(sg) != len(tg) {
		return false
	}
	for i := range sg {
		want := r.rewritten[st.Table.Name][sg[i].RowID].values
		for j, col := range st.Columns {
			if compared(st, col) && canonical(want[j]) != canonical(tg[i].Values[j]) {
				return false
			}
		}
		for _, child := range r.children(st.Table.Name) {
			dc := r.dst.Table(child.Table.Name)
			if !r.sameGroup(child, dc, child.Children(sg[i].RowID), dc.Children(tg[i].RowID)) {
				return false
			}
		}
	}
	return true
}

// children returns the source tables whose parent is table.
func (r *retargeter) children(table string) []*TableRows {
	var out []*TableRows
	for _, t := range r.src.Tables {
		if !t.Table.Direct() && t.Table.Parent.Table == table {
			out = append(out, t)
		}
	}
	return out
}

// keep records rows the target already owns in retargeted form.
func (r *retargeter) keep(st *TableRows, rows []Row) {
	for _, row := range rows {
		r.retargeted(st.Table.Name, row.Identity)
		for _, child := range r.children(st.Table.Name) {
			r.keep(child, child.Children(row.RowID))
		}
	}
}

func (r *retargeter) retargeted(table, identity string) {
	if !slices.Contains(r.plan.Retargeted[table], identity) {
		r.plan.Retargeted[table] = append(r.plan.Retargeted[table], identity)
	}
}

// delete removes a target row after its child subtree.
func (r *retargeter) delete(dt *TableRows, row Row) {
	for _, child := range r.dstChildren(dt.Table.Name) {
		for _, cr := range child.Children(row.RowID) {
			r.delete(child, cr)
		}
	}
	r.ops = append(r.ops, Op{
		Kind:     OpDelete,
		Table:    dt.Table.Name,
		RowID:    row.RowID,
		Label:    row.Label,
		ParentOp: -1,
	})
	r.plan.Expected[dt.Table.Name]--
}

func (r *retargeter) dstChildren(table string) []*TableRows {
	var out []*TableRows
	for _, t := range r.dst.Tables {
		if !t.Table.Direct() && t.Table.Parent.Table == table {
			out = append(out, t)
		}
	}
	return out
}

// insert copies a source row, and then its children, onto the target.
// parentOp is the index of the insert creating the new parent row.
func (r *retargeter) insert(st *TableRows, row Row, parentOp int) {
	rw := r.rewritten[st.Table.Name][row.RowID]
	op := Op{
		Kind:     OpInsert,
		Table:    st.Table.Name,
		Label:    row.Label,
		ParentOp: parentOp,
		Rewrites: rw.rewrites,
	}
	for i, col := range st.Columns {
		if col == st.RowIDColumn {
			continue
		}
		if parentOp >= 0 && col == st.Table.Parent.Column {
			op.ParentColumn = col
			continue
		}
		op.Columns = append(op.Columns, col)
		op.Values = append(op.Values, rw.values[i])
	}
	r.ops = append(r.ops, op)
	self := len(r.ops) - 1
	r.plan.Expected[st.Table.Name]++
	r.retargeted(st.Table.Name, row.Identity)

	for _, child := range r.children(st.Table.Name) {
		for _, cr := range child.Children(row.RowID) {
			r.insert(child, cr, self)
		}
	}
}

// move re-points a source row and rewrites the payloads of its subtree.
func (r *retargeter) move(st *TableRows, row Row) {
	rw := r.rewritten[st.Table.Name][row.RowID]
	if rw.rewrites > 0 {
		op := Op{Kind: OpUpdate, Table: st.Table.Name, RowID: row.RowID, Label: row.Label, ParentOp: -1, Rewrites: rw.rewrites}
		for _, col := range st.Table.BlobColumns() {
			op.Columns = append(op.Columns, col)
			op.Values = append(op.Values, rw.values[st.Index(col)])
		}
		r.ops = append(r.ops, op)
	}
	if st.Table.Direct() {
		r.ops = append(r.ops, Op{
			Kind:     OpRelink,
			Table:    st.Table.Name,
			RowID:    row.RowID,
			Label:    row.Label,
			Columns:  []string{st.Table.DeviceColumn},
			Values:   []any{r.dst.DeviceID},
			ParentOp: -1,
		})
	}
	r.plan.Expected[st.Table.Name]++
	r.retargeted(st.Table.Name, row.Identity)

	for _, child := range r.children(st.Table.Name) {
		for _, cr := range child.Children(row.RowID) {
			r.move(child, cr)
		}
	}
}

func groupByIdentity(rows []Row) map[string][]Row {
	groups := map[string][]Row{}
	for _, row := range rows {
		groups[row.Identity] = append(groups[row.Identity], row)
	}
	return groups
}

// groupOrder returns identities in order of first appearance.
func groupOrder(rows []Row) []string {
	var ids []string
	for _, row := range rows {
		if !slices.Contains(ids, row.Identity) {
			ids = append(ids, row.Identity)
		}
	}
	return ids
}

// IsSameDevice reports whether err is ErrSameDevice.
func IsSameDevice(err error) bool {
	return errors.Is(err, ErrSameDevice)
}
