package catalog

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/devmigrate/internal/payload"
)

// Catalog is one versioned description of the vendor store layout.
// Field tags are the CUE field names.
type Catalog struct {
	Version     string      `json:"version"`
	AppVersions string      `json:"app_versions,omitempty"`
	Meta        *Meta       `json:"meta,omitempty"`
	Devices     DeviceTable `json:"devices"`
	Models      ModelTable  `json:"models"`
	Tables      []Table     `json:"tables"`

	// Source names the file the entry was loaded from.
	Source string `json:"-"`
}

// Meta locates the vendor application version inside the store.
type Meta struct {
	Table       string `json:"table"`
	KeyColumn   string `json:"key_column"`
	ValueColumn string `json:"value_column"`
	VersionKey  string `json:"version_key"`
}

// DeviceTable describes the table of paired devices.
type DeviceTable struct {
	Table        string   `json:"table"`
	IDColumn     string   `json:"id_column"`
	ModelColumn  string   `json:"model_column"`
	TypeColumn   string   `json:"type_column,omitempty"`
	ExcludeTypes []string `json:"exclude_types,omitempty"`
}

// ModelTable maps model identifiers to display names.
type ModelTable struct {
	Table      string `json:"table"`
	IDColumn   string `json:"id_column"`
	NameColumn string `json:"name_column"`
}

// Table describes one table holding per-device configuration rows.
//
// A table is owned either directly, through DeviceColumn, or transitively
// through Parent. KeyColumns identify a row within its owner; rows of the
// source and target device with equal keys occupy the same slot.
type Table struct {
	Name         string   `json:"name"`
	DeviceColumn string   `json:"device_column,omitempty"`
	Parent       *Parent  `json:"parent,omitempty"`
	KeyColumns   []string `json:"key_columns"`
	Blobs        []Blob   `json:"blobs,omitempty"`
}

// Parent links a child table to an earlier table: Column in the child
// holds the value of References in the parent row.
type Parent struct {
	Table      string `json:"table"`
	Column     string `json:"column"`
	References string `json:"references"`
}

// Blob names a binary column that embeds device identifiers.
type Blob struct {
	Column string  `json:"column"`
	Codec  string  `json:"codec"`
	Fields []Field `json:"fields,omitempty"`
}

// Field configures one identifier-bearing key for the json codec.
type Field struct {
	Key       string `json:"key"`
	Mode      string `json:"mode"`
	Separator string `json:"separator,omitempty"`
}

// Direct reports whether the table carries the device column itself.
func (t Table) Direct() bool {
	return t.DeviceColumn != ""
}

// OwnerColumn returns the column linking rows to their owner: the device
// column for direct tables, the parent column otherwise.
func (t Table) OwnerColumn() string {
	if t.Direct() {
		return t.DeviceColumn
	}
	return t.Parent.Column
}

// BlobColumns returns the names of the table's blob columns.
func (t Table) BlobColumns() []string {
	cols := make([]string, len(t.Blobs))
	for i, b := range t.Blobs {
		cols[i] = b.Column
	}
	return cols
}

// Table returns the named table descriptor.
func (c *Catalog) Table(name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Children returns the tables whose parent is the named table.
func (c *Catalog) Children(name string) []Table {
	var out []Table
	for _, t := range c.Tables {
		if t.Parent != nil && t.Parent.Table == name {
			out = append(out, t)
		}
	}
	return out
}

// Allows reports whether the entry applies to the given vendor version.
// Entries without a constraint, and unparsable versions, always apply.
func (c *Catalog) Allows(appVersion string) bool {
	if c.AppVersions == "" || appVersion == "" {
		return true
	}
	v, err := semver.NewVersion(appVersion)
	if err != nil {
		return true
	}
	constraint, err := semver.NewConstraint(c.AppVersions)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}

// Validate checks the entry's internal consistency. It does not look at
// any store; see Resolve for that.
func (c *Catalog) Validate() error {
	if _, err := semver.StrictNewVersion(c.Version); err != nil {
		return fmt.Errorf("catalog version %q: %w", c.Version, err)
	}
	if c.AppVersions != "" {
		if _, err := semver.NewConstraint(c.AppVersions); err != nil {
			return fmt.Errorf("catalog %s: app_versions %q: %w", c.Version, c.AppVersions, err)
		}
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalog %s: no tables", c.Version)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.Name] {
			return fmt.Errorf("catalog %s: table %s declared twice", c.Version, t.Name)
		}
		switch {
		case t.DeviceColumn != "" && t.Parent != nil:
			return fmt.Errorf("catalog %s: table %s has both device_column and parent", c.Version, t.Name)
		case t.DeviceColumn == "" && t.Parent == nil:
			return fmt.Errorf("catalog %s: table %s has neither device_column nor parent", c.Version, t.Name)
		case t.Parent != nil && !seen[t.Parent.Table]:
			return fmt.Errorf("catalog %s: table %s: parent %s must be declared before it", c.Version, t.Name, t.Parent.Table)
		}
		for _, b := range t.Blobs {
			if !payload.Known(b.Codec) {
				return fmt.Errorf("catalog %s: %s.%s: unknown codec %q", c.Version, t.Name, b.Column, b.Codec)
			}
			for _, f := range b.Fields {
				if m := payload.FieldMode(f.Mode); m != payload.ModeWhole && m != payload.ModePrefix {
					return fmt.Errorf("catalog %s: %s.%s: field %s: unknown mode %q", c.Version, t.Name, b.Column, f.Key, f.Mode)
				}
			}
		}
		seen[t.Name] = true
	}
	return nil
}

// codec builds the payload codec for a blob column.
func (b Blob) codec() (payload.Codec, error) {
	fields := make([]payload.Field, len(b.Fields))
	for i, f := range b.Fields {
		fields[i] = payload.Field{Key: f.Key, Mode: payload.FieldMode(f.Mode), Separator: f.Separator}
	}
	return payload.New(b.Codec, fields)
}
