package httpds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"auditlog/internal/datasource"
)

// ErrNoURLs is returned by NewURLs for an empty list.
var ErrNoURLs = errors.New("httpds: at least one URL is required")

// URLs lists a fixed set of object URLs.
type URLs struct {
	client *Client
	urls   []string
}

// NewURLs validates every URL and returns a lister over them.
func NewURLs(c *Client, urls []string) (*URLs, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	for _, raw := range urls {
		if _, err := EntryName(raw); err != nil {
			return nil, err
		}
	}
	return &URLs{client: c, urls: append([]string(nil), urls...)}, nil
}

// EntryName is the merge order key of an object URL: its path without the
// leading slash. The query string is ignored, so presigned URLs sort by
// object key.
func EntryName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("httpds: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("httpds: %q: scheme must be http or https", raw)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("httpds: %q has no object path", raw)
	}
	return name, nil
}

// List implements datasource.Lister. Sizes are unknown and reported as -1.
func (l *URLs) List(ctx context.Context) ([]datasource.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := make([]datasource.Entry, 0, len(l.urls))
	for _, raw := range l.urls {
		name, err := EntryName(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, datasource.Entry{Name: name, Size: -1, Source: &Object{client: l.client, url: raw, name: name}})
	}
	datasource.SortEntries(entries)
	return entries, nil
}

// Object is one URL. Bodies of .gz and .zst paths are decompressed.
type Object struct {
	client *Client
	url    string
	name   string
}

// Open implements datasource.Source.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := o.client.Get(ctx, o.url)
	if err != nil {
		return nil, err
	}
	return datasource.Decompress(o.name, resp.Body)
}
