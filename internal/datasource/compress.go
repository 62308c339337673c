package datasource

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies a supported object encoding.
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

// CompressionOf infers the encoding from an object name suffix.
func CompressionOf(name string) Compression {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		return Gzip
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return Zstd
	default:
		return None
	}
}

// Decompress wraps rc so that reads yield decoded content for the encoding
// implied by name. Closing the result closes rc.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch CompressionOf(name) {
	case Gzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		return &decoder{Reader: zr, closeFn: func() error {
			zerr := zr.Close()
			if err := rc.Close(); err != nil {
				return err
			}
			return zerr
		}}, nil
	case Zstd:
		zr, err := zstd.NewReader(rc, zstd.WithDecoderConcurrency(1))
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		return &decoder{Reader: zr, closeFn: func() error {
			zr.Close()
			return rc.Close()
		}}, nil
	default:
		return rc, nil
	}
}

type decoder struct {
	io.Reader
	closeFn func() error
}

func (d *decoder) Close() error { return d.closeFn() }
