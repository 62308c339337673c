package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"auditlog/internal/datasource"
)

// ReadList reads a text file and returns its non-empty lines that do not
// start with '#', trimmed, in file order.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFile is a lister over the paths named in a list file. Relative paths
// resolve against the list file's directory.
type ListFile struct{ path string }

// NewListFile returns a lister reading path.
func NewListFile(path string) *ListFile { return &ListFile{path: path} }

// List implements datasource.Lister. A named path that does not exist is an
// error; entries keep their listed path as Name.
func (l *ListFile) List(ctx context.Context) ([]datasource.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := ReadList(l.path)
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", l.path, err)
	}
	base := filepath.Dir(l.path)
	entries := make([]datasource.Entry, 0, len(names))
	for _, n := range names {
		p := n
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("read list %s: %w", l.path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("read list %s: %s is not a regular file", l.path, n)
		}
		entries = append(entries, datasource.Entry{Name: filepath.ToSlash(n), Size: info.Size(), Source: NewLocal(p)})
	}
	datasource.SortEntries(entries)
	return entries, nil
}
