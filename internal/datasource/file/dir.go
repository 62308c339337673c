package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"auditlog/internal/datasource"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotDir is returned when a directory lister is rooted at something that
// is not a directory.
var ErrNotDir = errors.New("not a directory")

// DefaultPattern lists the regular files directly under the root.
const DefaultPattern = "*"

// Dir lists regular files under root whose root-relative path matches a
// doublestar pattern ("*", "**/*.log", "2021-05-*").
type Dir struct {
	root    string
	pattern string
}

// NewDir returns a lister over root. An empty pattern means DefaultPattern.
func NewDir(root, pattern string) *Dir {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Dir{root: root, pattern: pattern}
}

// List implements datasource.Lister.
func (d *Dir) List(ctx context.Context) ([]datasource.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("list %s: %w", d.root, ErrNotDir)
	}
	if !doublestar.ValidatePattern(d.pattern) {
		return nil, fmt.Errorf("list %s: invalid pattern %q", d.root, d.pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(d.root), d.pattern)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}

	entries := make([]datasource.Entry, 0, len(matches))
	for _, rel := range matches {
		path := filepath.Join(d.root, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, datasource.Entry{
			Name:   rel,
			Size:   info.Size(),
			Source: NewLocal(path),
		})
	}
	datasource.SortEntries(entries)
	return entries, nil
}
