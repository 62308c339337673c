// Package file implements local filesystem datasources: single files, glob
// listings under a directory and list files naming inputs explicitly.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"auditlog/internal/datasource"
)

// Local opens one file from the local disk. Files ending in .gz or .zst are
// decompressed transparently.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound filesystem path.
func (l *Local) Path() string { return l.path }

// Open returns the context error without touching the filesystem when ctx is
// already done. Filesystem errors are wrapped with the path and still match
// errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return datasource.Decompress(l.path, f)
}
