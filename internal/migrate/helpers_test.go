package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/store"
	"github.com/roach88/devmigrate/internal/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

const testSession = "0195f3c2-7a10-7000-8000-000000000001"

func builtinCatalogs(t *testing.T) []*catalog.Catalog {
	t.Helper()
	entries, err := catalog.Builtin()
	require.NoError(t, err)
	return entries
}

// openSchema opens the fixture read-only and resolves its catalog entry.
func openSchema(t *testing.T, f *testutil.Fixture) (*store.Store, *catalog.Schema) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, f.Path, store.Options{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	schema, err := catalog.Resolve(ctx, s.Conn(), builtinCatalogs(t), nil)
	require.NoError(t, err)
	return s, schema
}

func extract(t *testing.T, f *testutil.Fixture, device string) *Graph {
	t.Helper()
	s, schema := openSchema(t, f)
	g, err := Extract(context.Background(), schema, s.Conn(), device)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return g
}

// transferOpts returns options with a frozen clock and session id.
func transferOpts(t *testing.T, f *testutil.Fixture, source, target string) TransferOptions {
	t.Helper()
	return TransferOptions{
		StorePath: f.Path,
		Source:    source,
		Target:    target,
		Mode:      ModeCopy,
		Catalogs:  builtinCatalogs(t),
		Now:       testutil.NewStepClock(testEpoch, 0).Now,
		NewID:     testutil.NewFixedIDs(testSession).NewID,
	}
}

// payloads returns the blob column of every row a device owns directly
// in the given table, ordered by rowid.
func payloads(t *testing.T, f *testutil.Fixture, table, column, device string) []string {
	t.Helper()
	return f.Values(t, `SELECT `+column+` FROM `+table+` WHERE `+f.Layout.Owner+` = ? ORDER BY rowid`, device)
}
