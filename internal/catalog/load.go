package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/Masterminds/semver/v3"
)

//go:embed schema.cue
var schemaSource string

//go:embed catalogs/*.cue
var builtin embed.FS

// LoadError reports a catalog file that failed to compile or validate.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Builtin returns the catalog entries shipped with the binary, newest first.
func Builtin() ([]*Catalog, error) {
	return loadFS(builtin, "catalogs", func(name string) string { return name })
}

// LoadDir loads every *.cue file in dir as a catalog entry, newest first.
func LoadDir(dir string) ([]*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog dir %s: not a directory", dir)
	}
	return loadFS(os.DirFS(dir), ".", func(name string) string { return filepath.Join(dir, name) })
}

// Load returns the built-in entries merged with the entries found in dirs.
// An entry from dirs replaces a built-in entry with the same version.
func Load(dirs ...string) ([]*Catalog, error) {
	entries, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		extra, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, c := range extra {
			entries = slices.DeleteFunc(entries, func(e *Catalog) bool { return e.Version == c.Version })
			entries = append(entries, c)
		}
	}
	sortNewestFirst(entries)
	return entries, nil
}

func loadFS(fsys fs.FS, dir string, display func(string) string) ([]*Catalog, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	var entries []*Catalog
	seen := map[string]string{}
	for _, name := range files {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		shown := display(name)
		c, err := Parse(shown, src)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[c.Version]; dup {
			return nil, &LoadError{File: shown, Message: fmt.Sprintf("version %s already defined in %s", c.Version, prev)}
		}
		seen[c.Version] = shown
		entries = append(entries, c)
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Parse compiles one catalog file. The file must define a top-level
// "catalog" field, which is unified with the #Catalog schema.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}
	entry := v.LookupPath(cue.ParsePath("catalog"))
	if !entry.Exists() {
		return nil, &LoadError{File: filename, Message: "no catalog field"}
	}

	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(entry)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(filename, err)
	}

	var c Catalog
	if err := unified.Decode(&c); err != nil {
		return nil, formatCUEError(filename, err)
	}
	c.Source = filename
	if err := c.Validate(); err != nil {
		return nil, &LoadError{File: filename, Message: err.Error()}
	}
	return &c, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(filename string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: filename, Message: err.Error()}
	}
	first := errs[0]
	msg := strings.TrimSpace(first.Error())
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{File: filename, Message: msg, Pos: positions[0]}
	}
	return &LoadError{File: filename, Message: msg}
}

func sortNewestFirst(entries []*Catalog) {
	slices.SortStableFunc(entries, func(a, b *Catalog) int {
		// Versions were checked by Validate.
		return semver.MustParse(b.Version).Compare(semver.MustParse(a.Version))
	})
}
