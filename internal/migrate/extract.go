package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/payload"
	"github.com/roach88/devmigrate/internal/store"
)

// Extract collects the graph of deviceID: every row of every catalogued
// table owned by the device, directly or through a parent row, plus the
// identifiers embedded in their payloads.
//
// An identifier that owns no rows is valid if the device table lists it;
// otherwise Extract fails with KindDeviceNotFound. Extract only reads, so q
// may be an open transaction.
func Extract(ctx context.Context, schema *catalog.Schema, q store.Querier, deviceID string) (*Graph, error) {
	g := &Graph{DeviceID: deviceID}
	for _, t := range schema.TablesOwnedByDevice() {
		cols := schema.Columns(t.Name)
		tr := &TableRows{Table: t, Columns: store.ColumnNames(cols), Codecs: map[string]payload.Codec{}}
		for _, col := range t.BlobColumns() {
			tr.Codecs[col] = schema.Codec(t.Name, col)
		}
		for _, c := range cols {
			if c.RowIDAlias(cols) {
				tr.RowIDColumn = c.Name
			}
		}

		if t.Direct() {
			rows, err := selectRows(ctx, q, tr, deviceID, 0, "")
			if err != nil {
				return nil, err
			}
			tr.Rows = rows
		} else {
			parent := g.Table(t.Parent.Table)
			for _, pr := range parent.Rows {
				rows, err := selectRows(ctx, q, tr, parent.Value(pr, t.Parent.References), pr.RowID, pr.Identity)
				if err != nil {
					return nil, err
				}
				tr.Rows = append(tr.Rows, rows...)
			}
		}

		if err := scanEmbedded(tr, deviceID); err != nil {
			return nil, err
		}
		g.Tables = append(g.Tables, tr)
	}

	if g.Empty() {
		ok, err := schema.DeviceExists(ctx, q, deviceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Error{
				Kind:     KindDeviceNotFound,
				Message:  fmt.Sprintf("no rows and no %s entry for device %q", schema.Devices.Table, deviceID),
				DeviceID: deviceID,
			}
		}
	}
	return g, nil
}

// selectRows reads the rows of tr whose owner column equals owner.
func selectRows(ctx context.Context, q store.Querier, tr *TableRows, owner any, parentRowID int64, parentIdentity string) ([]Row, error) {
	quoted := make([]string, len(tr.Columns))
	for i, c := range tr.Columns {
		quoted[i] = store.QuoteIdent(c)
	}
	query := fmt.Sprintf(`SELECT rowid, %s FROM %s WHERE %s = ? ORDER BY rowid`,
		strings.Join(quoted, ", "), store.QuoteIdent(tr.Table.Name), store.QuoteIdent(tr.Table.OwnerColumn()))

	rs, err := q.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", tr.Table.Name, err)
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		r := Row{Parent: parentRowID, Values: make([]any, len(tr.Columns))}
		dest := make([]any, len(tr.Columns)+1)
		dest[0] = &r.RowID
		for i := range r.Values {
			dest[i+1] = &r.Values[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, fmt.Errorf("extract %s: %w", tr.Table.Name, err)
		}
		r.Identity, r.Label = identity(tr, r)
		if parentIdentity != "" {
			r.Identity = parentIdentity + "\x1e" + r.Identity
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("extract %s: %w", tr.Table.Name, err)
	}
	return rows, nil
}

// scanEmbedded records every identifier occurrence in the blob columns of
// tr, whichever device it names.
func scanEmbedded(tr *TableRows, deviceID string) error {
	for i := range tr.Rows {
		r := &tr.Rows[i]
		for _, col := range tr.Table.BlobColumns() {
			data, ok := blobBytes(tr.Value(*r, col))
			if !ok {
				continue
			}
			for occ, err := range tr.Codecs[col].Scan(data) {
				if err != nil {
					return payloadError(tr.Table.Name, col, r.RowID, deviceID, err)
				}
				r.Embedded = append(r.Embedded, EmbeddedRef{Column: col, Occurrence: occ})
			}
		}
	}
	return nil
}
