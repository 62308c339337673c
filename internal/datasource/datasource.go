// Package datasource defines how raw access-log objects are found and read,
// independent of where they live (local directory, list file or S3 prefix).
package datasource

import (
	"context"
	"io"
	"sort"
)

// Source opens one readable object.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Entry is one listed object. Name is relative to the lister root and uses
// forward slashes; it is the merge order key.
type Entry struct {
	Name   string
	Size   int64
	Source Source
}

// Lister enumerates the objects of a location.
type Lister interface {
	// List returns the entries sorted by Name. An empty location returns an
	// empty slice and no error.
	List(ctx context.Context) ([]Entry, error)
}

// SortEntries orders entries lexicographically by Name, byte-wise.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// Names returns the entry names in order.
func Names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
