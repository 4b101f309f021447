package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/devmigrate/internal/store"
)

// Device is one paired device as recorded by the vendor application.
type Device struct {
	ID          string `json:"id"`
	Model       string `json:"model"`
	Type        string `json:"type,omitempty"`
	DisplayName string `json:"display_name"`
}

// ResolveDeviceTable lists the store's devices ordered by id. Devices whose
// type is excluded are skipped and duplicate ids are reported once.
func (s *Schema) ResolveDeviceTable(ctx context.Context, q store.Querier) ([]Device, error) {
	reqs := requirements(s.Catalog)[:2]
	missing, _, err := missingColumns(ctx, q, reqs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &MismatchError{Catalog: s.Version, AppVersion: s.AppVersion, Missing: missing}
	}

	names, err := s.modelNames(ctx, q)
	if err != nil {
		return nil, err
	}

	d := s.Devices
	typeExpr := "NULL"
	if d.TypeColumn != "" {
		typeExpr = store.QuoteIdent(d.TypeColumn)
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY %s`,
		store.QuoteIdent(d.IDColumn), store.QuoteIdent(d.ModelColumn), typeExpr,
		store.QuoteIdent(d.Table), store.QuoteIdent(d.IDColumn), store.QuoteIdent(d.IDColumn))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	seen := map[string]bool{}
	for rows.Next() {
		var id string
		var model, kind sql.NullString
		if err := rows.Scan(&id, &model, &kind); err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		if seen[id] || slices.ContainsFunc(d.ExcludeTypes, func(t string) bool { return strings.EqualFold(t, kind.String) }) {
			continue
		}
		seen[id] = true
		devices = append(devices, Device{
			ID:          id,
			Model:       model.String,
			Type:        kind.String,
			DisplayName: displayName(id, model.String, names),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// DeviceExists reports whether id appears in the device table, regardless
// of its type.
func (s *Schema) DeviceExists(ctx context.Context, q store.Querier, id string) (bool, error) {
	d := s.Devices
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ? LIMIT 1`, store.QuoteIdent(d.Table), store.QuoteIdent(d.IDColumn))
	var one int
	err := q.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup device %s: %w", id, err)
	}
	return true, nil
}

func (s *Schema) modelNames(ctx context.Context, q store.Querier) (map[string]string, error) {
	m := s.Models
	query := fmt.Sprintf(`SELECT %s, %s FROM %s`,
		store.QuoteIdent(m.IDColumn), store.QuoteIdent(m.NameColumn), store.QuoteIdent(m.Table))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	names := map[string]string{}
	for rows.Next() {
		var id, name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if id.Valid && name.String != "" {
			names[id.String] = name.String
		}
	}
	return names, rows.Err()
}

// displayName looks the model up by its full id, then by the part before
// its first underscore ("6b023_ext2" is named like "6b023"). Unknown
// models show the model id, and devices without a model show their own id.
func displayName(id, model string, names map[string]string) string {
	if n := names[model]; n != "" {
		return n
	}
	if prefix, _, ok := strings.Cut(model, "_"); ok {
		if n := names[prefix]; n != "" {
			return n
		}
	}
	if model != "" {
		return model
	}
	return id
}
