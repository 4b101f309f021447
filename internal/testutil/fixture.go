package testutil

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/devmigrate/internal/payload"
	"github.com/roach88/devmigrate/internal/store"
)

// Layout describes one vendor store layout the fixtures can build.
type Layout struct {
	Name       string
	AppVersion string
	Schema     []string

	DeviceTable, DeviceID, DeviceModel, DeviceType string
	ModelTable, ModelID, ModelName                 string

	// Owner is the device column of the per-device tables.
	Owner string
	// Assignments and Button name the button assignment table and its
	// control column; override actions use the same control column.
	Assignments, Button string
}

// V1 is the Options+ 1.x layout.
var V1 = Layout{
	Name:       "v1",
	AppVersion: "1.62.0",
	Schema: []string{
		`CREATE TABLE app_info (key TEXT PRIMARY KEY, value TEXT)`,
		`CREATE TABLE devices (device_id TEXT PRIMARY KEY, model_id TEXT, device_type TEXT, connection_type TEXT)`,
		`CREATE TABLE models (model_id TEXT PRIMARY KEY, display_name TEXT)`,
		`CREATE TABLE button_assignments (id INTEGER PRIMARY KEY, device_id TEXT NOT NULL, profile_key TEXT NOT NULL, button TEXT NOT NULL, payload BLOB, updated_at INTEGER DEFAULT 0)`,
		`CREATE TABLE gesture_profiles (id INTEGER PRIMARY KEY, device_id TEXT NOT NULL, profile_key TEXT NOT NULL, dpi INTEGER, settings BLOB)`,
		`CREATE TABLE app_overrides (id INTEGER PRIMARY KEY, device_id TEXT NOT NULL, app_id TEXT NOT NULL, enabled INTEGER DEFAULT 1, settings BLOB)`,
		`CREATE TABLE override_actions (id INTEGER PRIMARY KEY, override_id INTEGER NOT NULL REFERENCES app_overrides(id), button TEXT NOT NULL, action BLOB)`,
	},
	DeviceTable: "devices", DeviceID: "device_id", DeviceModel: "model_id", DeviceType: "device_type",
	ModelTable: "models", ModelID: "model_id", ModelName: "display_name",
	Owner:       "device_id",
	Assignments: "button_assignments", Button: "button",
}

// V2 is the Options+ 2.x layout.
var V2 = Layout{
	Name:       "v2",
	AppVersion: "2.3.1",
	Schema: []string{
		`CREATE TABLE app_info (key TEXT PRIMARY KEY, value TEXT)`,
		`CREATE TABLE paired_devices (serial TEXT PRIMARY KEY, model TEXT, kind TEXT)`,
		`CREATE TABLE device_models (model TEXT PRIMARY KEY, name TEXT)`,
		`CREATE TABLE assignments (id INTEGER PRIMARY KEY, device_serial TEXT NOT NULL, profile_key TEXT NOT NULL, control TEXT NOT NULL, payload BLOB)`,
		`CREATE TABLE gesture_profiles (id INTEGER PRIMARY KEY, device_serial TEXT NOT NULL, profile_key TEXT NOT NULL, dpi INTEGER, settings BLOB)`,
		`CREATE TABLE app_overrides (id INTEGER PRIMARY KEY, device_serial TEXT NOT NULL, app_id TEXT NOT NULL, enabled INTEGER DEFAULT 1, settings BLOB)`,
		`CREATE TABLE override_actions (id INTEGER PRIMARY KEY, override_id INTEGER NOT NULL, control TEXT NOT NULL, action BLOB)`,
	},
	DeviceTable: "paired_devices", DeviceID: "serial", DeviceModel: "model", DeviceType: "kind",
	ModelTable: "device_models", ModelID: "model", ModelName: "name",
	Owner:       "device_serial",
	Assignments: "assignments", Button: "control",
}

// SlotWidth is the identifier slot width used by fixture TLV payloads.
const SlotWidth = 16

// Fixture is a vendor store file built for a test. Every helper opens its
// own short-lived connection, so no fixture connection is open while the
// code under test holds the store.
type Fixture struct {
	Path   string
	Layout Layout
}

// NewStore creates an empty store with the given layout in a temp dir.
func NewStore(t *testing.T, layout Layout) *Fixture {
	t.Helper()
	f := &Fixture{Path: filepath.Join(t.TempDir(), "settings.db"), Layout: layout}
	for _, stmt := range layout.Schema {
		f.Exec(t, stmt)
	}
	if layout.AppVersion != "" {
		f.Exec(t, `INSERT INTO app_info (key, value) VALUES ('app_version', ?)`, layout.AppVersion)
	}
	return f
}

func (f *Fixture) open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(store.DriverName, f.Path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db
}

// Exec runs one statement against the store.
func (f *Fixture) Exec(t *testing.T, query string, args ...any) sql.Result {
	t.Helper()
	db := f.open(t)
	defer db.Close()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return res
}

// Count runs a SELECT COUNT(*) style query.
func (f *Fixture) Count(t *testing.T, query string, args ...any) int {
	t.Helper()
	db := f.open(t)
	defer db.Close()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// Values returns the first column of every result row as strings. NULL
// becomes "".
func (f *Fixture) Values(t *testing.T, query string, args ...any) []string {
	t.Helper()
	db := f.open(t)
	defer db.Close()
	rows, err := db.Query(query, args...)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan %q: %v", query, err)
		}
		out = append(out, string(v))
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return out
}

// UseWAL switches the store to write-ahead logging.
func (f *Fixture) UseWAL(t *testing.T) {
	t.Helper()
	f.Exec(t, `PRAGMA journal_mode=WAL`)
}

// AddModel records a display name for a model id.
func (f *Fixture) AddModel(t *testing.T, model, name string) {
	t.Helper()
	l := f.Layout
	f.Exec(t, fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?)`, l.ModelTable, l.ModelID, l.ModelName), model, name)
}

// AddDevice adds a paired device.
func (f *Fixture) AddDevice(t *testing.T, id, model, kind string) {
	t.Helper()
	l := f.Layout
	f.Exec(t, fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)`, l.DeviceTable, l.DeviceID, l.DeviceModel, l.DeviceType), id, model, kind)
}

// AddAssignment adds a button assignment whose JSON payload references the
// device through its slot id and device id.
func (f *Fixture) AddAssignment(t *testing.T, device, profile, button string) int64 {
	t.Helper()
	l := f.Layout
	res := f.Exec(t, fmt.Sprintf(`INSERT INTO %s (%s, profile_key, %s, payload) VALUES (?, ?, ?, ?)`, l.Assignments, l.Owner, l.Button),
		device, profile, button, AssignmentPayload(device, button))
	id, _ := res.LastInsertId()
	return id
}

// AddGesture adds a gesture profile with a TLV settings payload.
func (f *Fixture) AddGesture(t *testing.T, device, profile string, dpi int) int64 {
	t.Helper()
	l := f.Layout
	res := f.Exec(t, fmt.Sprintf(`INSERT INTO gesture_profiles (%s, profile_key, dpi, settings) VALUES (?, ?, ?, ?)`, l.Owner),
		device, profile, dpi, GesturePayload(device, dpi))
	id, _ := res.LastInsertId()
	return id
}

// AddOverride adds a per-application override and one action row per
// button. It returns the override's row id.
func (f *Fixture) AddOverride(t *testing.T, device, app string, buttons ...string) int64 {
	t.Helper()
	l := f.Layout
	res := f.Exec(t, fmt.Sprintf(`INSERT INTO app_overrides (%s, app_id, settings) VALUES (?, ?, ?)`, l.Owner),
		device, app, OverridePayload(device, app))
	id, _ := res.LastInsertId()
	for _, b := range buttons {
		f.Exec(t, fmt.Sprintf(`INSERT INTO override_actions (override_id, %s, action) VALUES (?, ?, ?)`, l.Button),
			id, b, AssignmentPayload(device, b))
	}
	return id
}

// AssignmentPayload is the JSON document stored for a button assignment.
func AssignmentPayload(device, button string) []byte {
	return fmt.Appendf(nil, `{"slotId":%q,"deviceId":%q,"card":{"name":"Copy","keys":["ctrl","c"]}}`,
		device+"_"+button, device)
}

// GesturePayload is a TLV settings blob with the device id nested inside
// a group record.
func GesturePayload(device string, dpi int) []byte {
	return payload.BuildTLV(
		payload.Record{Tag: 0x10, Value: []byte("gesture")},
		payload.GroupRecord(
			payload.DeviceRecord(device, SlotWidth),
			payload.Record{Tag: 0x11, Value: binary.BigEndian.AppendUint16(nil, uint16(dpi))},
		),
	)
}

// OverridePayload is a TLV settings blob for an application override.
func OverridePayload(device, app string) []byte {
	return payload.BuildTLV(
		payload.DeviceRecord(device, SlotWidth),
		payload.Record{Tag: 0x20, Value: []byte(app)},
	)
}

// SeedStandard fills a store with the devices most tests use:
//
//   - m1, m2: two mice of the same model
//   - k1: a keyboard
//   - r1: a receiver, excluded from device listings
//
// m1 has three assignments in the default profile (c82, c83, c86), a
// gesture profile and a "chrome" override with actions for c82 and c83.
// m2 has one assignment (default/c82) and a gesture profile of its own.
func SeedStandard(t *testing.T, f *Fixture) {
	t.Helper()
	f.AddModel(t, "2b034", "MX Master 3S")
	f.AddModel(t, "b35b", "MX Keys S")
	f.AddDevice(t, "m1", "2b034", "MOUSE")
	f.AddDevice(t, "m2", "2b034", "MOUSE")
	f.AddDevice(t, "k1", "b35b", "KEYBOARD")
	f.AddDevice(t, "r1", "c548", "RECEIVER")

	for _, b := range []string{"c82", "c83", "c86"} {
		f.AddAssignment(t, "m1", "default", b)
	}
	f.AddGesture(t, "m1", "default", 1600)
	f.AddOverride(t, "m1", "chrome", "c82", "c83")

	f.AddAssignment(t, "m2", "default", "c82")
	f.AddGesture(t, "m2", "default", 800)
}

// Checksum returns the hex SHA-256 of a file.
func Checksum(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("checksum %s: %v", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
