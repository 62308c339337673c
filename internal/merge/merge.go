// Package merge concatenates the objects of a log location into a single
// merged file, one line per source line, in lexicographic object order.
package merge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"auditlog/internal/atomicfile"
	"auditlog/internal/datasource"
	"auditlog/internal/logging"
	"auditlog/internal/metrics"
)

// DefaultName is the file name used when only an output directory is known.
const DefaultName = "AuditLogFile"

// ErrNoInput is returned when the location lists no objects. No merged file
// is written in that case.
var ErrNoInput = errors.New("merge: no input objects")

// Options configures Merge.
type Options struct {
	Job    string
	Logger *slog.Logger
}

// Summary describes a completed merge.
type Summary struct {
	Path  string
	Files int
	Lines int
	Bytes int64
}

// Merge lists l and writes every line of every entry to outPath, each followed
// by a newline. The file appears only once the merge is complete; a failed
// read leaves no file behind.
func Merge(ctx context.Context, l datasource.Lister, outPath string, opts Options) (Summary, error) {
	logger := logging.Default(opts.Logger).With("component", "merge")
	job := opts.Job
	if job == "" {
		job = "auditlog"
	}
	start := time.Now()

	sum, err := merge(ctx, l, outPath, logger)
	metrics.RecordStep(job, "merge", err, time.Since(start))
	if err != nil {
		return Summary{}, err
	}
	metrics.RecordMergedFiles(job, int64(sum.Files))
	logger.Info("merge done", "path", outPath, "files", sum.Files, "lines", sum.Lines,
		"bytes", sum.Bytes, "duration", time.Since(start))
	return sum, nil
}

func merge(ctx context.Context, l datasource.Lister, outPath string, logger *slog.Logger) (Summary, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("merge: list: %w", err)
	}
	if len(entries) == 0 {
		return Summary{}, ErrNoInput
	}
	datasource.SortEntries(entries)

	sum := Summary{Path: outPath}
	err = atomicfile.Write(outPath, func(w io.Writer) error {
		for _, e := range entries {
			n, b, err := copyLines(ctx, e, w)
			if err != nil {
				return fmt.Errorf("merge: %s: %w", e.Name, err)
			}
			logger.Debug("merged object", "name", e.Name, "lines", n)
			sum.Files++
			sum.Lines += n
			sum.Bytes += b
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// copyLines writes the lines of e to w, each terminated by '\n'. A final
// line without a newline gets one and "\r\n" becomes "\n". Lines of any
// length are copied through without being buffered whole.
func copyLines(ctx context.Context, e datasource.Entry, w io.Writer) (lines int, written int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	rc, err := e.Source.Open(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	write := func(b []byte) error {
		n, err := w.Write(b)
		written += int64(n)
		return err
	}
	br := bufio.NewReaderSize(rc, 64*1024)
	var (
		open bool // a line was started and not yet terminated
		cr   bool // '\r' held back from the end of the previous chunk
	)
	for {
		chunk, rerr := br.ReadSlice('\n')
		if len(chunk) > 0 {
			open = true
			end := chunk[len(chunk)-1] == '\n'
			body := chunk
			if end {
				body = body[:len(body)-1]
			}
			if cr && !(end && len(body) == 0) {
				if err := write([]byte{'\r'}); err != nil {
					return lines, written, err
				}
			}
			cr = false
			if n := len(body); n > 0 && body[n-1] == '\r' {
				body = body[:n-1]
				cr = !end
			}
			if err := write(body); err != nil {
				return lines, written, err
			}
			if end {
				if err := write([]byte{'\n'}); err != nil {
					return lines, written, err
				}
				lines++
				open = false
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return lines, written, rerr
		}
	}
	if open {
		if err := write([]byte{'\n'}); err != nil {
			return lines, written, err
		}
		lines++
	}
	return lines, written, nil
}
