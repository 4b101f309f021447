package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/devmigrate/internal/payload"
	"github.com/roach88/devmigrate/internal/store"
)

// MismatchError reports that no catalog entry describes the store.
type MismatchError struct {
	// Catalog is the closest candidate, empty when none applied.
	Catalog    string   `json:"catalog,omitempty"`
	AppVersion string   `json:"app_version,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	b.WriteString("SchemaMismatch: ")
	if e.Reason != "" {
		b.WriteString(e.Reason)
	} else {
		fmt.Fprintf(&b, "store does not match catalog %s", e.Catalog)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.AppVersion != "" {
		fmt.Fprintf(&b, " (app version %s)", e.AppVersion)
	}
	return b.String()
}

// IsMismatch reports whether err is a schema mismatch.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// Schema is a catalog entry confirmed against a live store.
type Schema struct {
	*Catalog

	// AppVersion is the vendor version read from the store, if any.
	AppVersion string

	columns map[string][]store.Column
	codecs  map[string]map[string]payload.Codec
}

// Resolve picks the newest entry that applies to the store's vendor
// version and whose tables and columns all exist. Entries must be ordered
// newest first, as returned by Load.
func Resolve(ctx context.Context, q store.Querier, entries []*Catalog, logger *slog.Logger) (*Schema, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(entries) == 0 {
		return nil, &MismatchError{Reason: "no catalog entries loaded"}
	}

	var closest *MismatchError
	considered := 0
	for _, c := range entries {
		appVersion, err := readAppVersion(ctx, q, c.Meta)
		if err != nil {
			return nil, err
		}
		if !c.Allows(appVersion) {
			logger.Debug("catalog skipped", "catalog", c.Version, "app_version", appVersion, "constraint", c.AppVersions)
			continue
		}
		considered++

		s, missing, err := check(ctx, q, c)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			s.AppVersion = appVersion
			logger.Debug("catalog resolved", "catalog", c.Version, "app_version", appVersion)
			return s, nil
		}
		logger.Debug("catalog does not match", "catalog", c.Version, "missing", missing)
		if closest == nil || len(missing) < len(closest.Missing) {
			closest = &MismatchError{Catalog: c.Version, AppVersion: appVersion, Missing: missing}
		}
	}

	if considered == 0 {
		version, _ := readAppVersion(ctx, q, entries[0].Meta)
		return nil, &MismatchError{AppVersion: version, Reason: "no catalog entry supports this vendor version"}
	}
	doc, err := documentLayout(ctx, q)
	if err != nil {
		return nil, err
	}
	if doc {
		closest.Reason = "store keeps every setting in one JSON document (table data), a layout no catalog entry describes"
	}
	return nil, closest
}

// documentLayout reports whether the store is the vendor's single-document
// layout: one data table whose file column holds the whole configuration.
func documentLayout(ctx context.Context, q store.Querier) (bool, error) {
	cols, err := store.TableColumns(ctx, q, "data")
	if err != nil {
		return false, err
	}
	names := store.ColumnNames(cols)
	return slices.Contains(names, "_id") && slices.Contains(names, "file"), nil
}

// readAppVersion returns "" when the entry has no meta table or the store
// lacks it.
func readAppVersion(ctx context.Context, q store.Querier, m *Meta) (string, error) {
	if m == nil {
		return "", nil
	}
	cols, err := store.TableColumns(ctx, q, m.Table)
	if err != nil {
		return "", err
	}
	names := store.ColumnNames(cols)
	if !slices.Contains(names, m.KeyColumn) || !slices.Contains(names, m.ValueColumn) {
		return "", nil
	}

	var v sql.NullString
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
		store.QuoteIdent(m.ValueColumn), store.QuoteIdent(m.Table), store.QuoteIdent(m.KeyColumn))
	err = q.QueryRowContext(ctx, query, m.VersionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read app version: %w", err)
	}
	return strings.TrimSpace(v.String), nil
}

// requirements lists every table the entry touches with the columns it
// needs, in catalog order.
func requirements(c *Catalog) []tableReq {
	d := c.Devices
	devCols := []string{d.IDColumn, d.ModelColumn}
	if d.TypeColumn != "" {
		devCols = append(devCols, d.TypeColumn)
	}
	reqs := []tableReq{
		{d.Table, devCols},
		{c.Models.Table, []string{c.Models.IDColumn, c.Models.NameColumn}},
	}
	for _, t := range c.Tables {
		cols := []string{t.OwnerColumn()}
		cols = append(cols, t.KeyColumns...)
		cols = append(cols, t.BlobColumns()...)
		reqs = append(reqs, tableReq{t.Name, cols})
		if t.Parent != nil {
			reqs = append(reqs, tableReq{t.Parent.Table, []string{t.Parent.References}})
		}
	}
	return reqs
}

type tableReq struct {
	table   string
	columns []string
}

// missingColumns checks reqs against the store. It returns the missing
// items as "table" or "table.column" along with the columns it found.
func missingColumns(ctx context.Context, q store.Querier, reqs []tableReq) ([]string, map[string][]store.Column, error) {
	var missing []string
	found := map[string][]store.Column{}
	for _, r := range reqs {
		cols, ok := found[r.table]
		if !ok {
			var err error
			cols, err = store.TableColumns(ctx, q, r.table)
			if err != nil {
				return nil, nil, err
			}
			found[r.table] = cols
		}
		if len(cols) == 0 {
			if !slices.Contains(missing, r.table) {
				missing = append(missing, r.table)
			}
			continue
		}
		names := store.ColumnNames(cols)
		for _, col := range r.columns {
			item := r.table + "." + col
			if !slices.Contains(names, col) && !slices.Contains(missing, item) {
				missing = append(missing, item)
			}
		}
	}
	return missing, found, nil
}

func check(ctx context.Context, q store.Querier, c *Catalog) (*Schema, []string, error) {
	missing, found, err := missingColumns(ctx, q, requirements(c))
	if err != nil || len(missing) > 0 {
		return nil, missing, err
	}

	s := &Schema{
		Catalog: c,
		columns: found,
		codecs:  map[string]map[string]payload.Codec{},
	}
	for _, t := range c.Tables {
		s.codecs[t.Name] = map[string]payload.Codec{}
		for _, b := range t.Blobs {
			codec, err := b.codec()
			if err != nil {
				return nil, nil, err
			}
			s.codecs[t.Name][b.Column] = codec
		}
	}
	return s, nil, nil
}

// TablesOwnedByDevice returns the per-device tables in dependency order:
// every parent precedes its children.
func (s *Schema) TablesOwnedByDevice() []Table {
	return slices.Clone(s.Tables)
}

// Columns returns the store columns of a catalogued table.
func (s *Schema) Columns(table string) []store.Column {
	return s.columns[table]
}

// Codec returns the codec for a blob column, or nil if the column is not
// a catalogued blob.
func (s *Schema) Codec(table, column string) payload.Codec {
	return s.codecs[table][column]
}
