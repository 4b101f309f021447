package cli

import (
	"context"
	"io"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/store"
)

// openReadOnly opens the store without write locks and resolves its
// catalog entry. The caller closes the store.
func (o *RootOptions) openReadOnly(ctx context.Context, path string) (*store.Store, *catalog.Schema, error) {
	entries, err := o.catalogs()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(ctx, path, store.Options{ReadOnly: true})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	schema, err := catalog.Resolve(ctx, s.Conn(), entries, o.Logger.With("component", "catalog"))
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, schema, nil
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}
