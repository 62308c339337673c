// Package export writes an enriched dataset as CSV, JSON or MessagePack.
//
// CSV and MessagePack are tabular: the header is the key order of the first
// record, keys a later record lacks are written as "", and keys only later
// records carry are dropped. JSON keeps every record's own keys in order.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"auditlog/internal/atomicfile"
	"auditlog/internal/config"
	"auditlog/internal/logging"
	"auditlog/internal/metrics"
	"auditlog/internal/record"
)

// ErrEmptyDataset is returned by tabular writers, which take their header
// from the first record and so have nothing to write for an empty dataset.
var ErrEmptyDataset = errors.New("export: empty dataset")

// Writer encodes a dataset to w.
type Writer interface {
	Write(w io.Writer, d record.Dataset) error
}

// Kinds.
const (
	KindCSV     = "csv"
	KindJSON    = "json"
	KindMsgPack = "msgpack"
)

// New builds a writer from an export config.
func New(cfg config.Export) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindCSV:
		return CSV{Comma: cfg.Options.Rune("comma", ','), NoHeader: !cfg.Options.Bool("header", true)}, nil
	case KindJSON:
		return JSON{Indent: cfg.Options.String("indent", "")}, nil
	case KindMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("export: unknown kind %q", cfg.Kind)
	}
}

// ToFile writes d to path atomically. On error path is left untouched.
func ToFile(path string, wr Writer, d record.Dataset) error {
	return atomicfile.Write(path, func(w io.Writer) error {
		return wr.Write(w, d)
	})
}

// Options configures All.
type Options struct {
	Job    string
	Logger *slog.Logger
}

// All writes d to every configured export in order. Tabular exports of an
// empty dataset are skipped with a warning rather than failing the run.
func All(ctx context.Context, exports []config.Export, d record.Dataset, opts Options) error {
	logger := logging.Default(opts.Logger).With("component", "export")
	job := opts.Job
	if job == "" {
		job = "auditlog"
	}
	for i, e := range exports {
		if err := ctx.Err(); err != nil {
			return err
		}
		wr, err := New(e)
		if err != nil {
			return fmt.Errorf("export[%d]: %w", i, err)
		}
		start := time.Now()
		err = ToFile(e.Path, wr, d)
		if errors.Is(err, ErrEmptyDataset) {
			logger.Warn("nothing to export", "kind", e.Kind, "path", e.Path)
			continue
		}
		metrics.RecordStep(job, "export_"+strings.ToLower(e.Kind), err, time.Since(start))
		if err != nil {
			return fmt.Errorf("export[%d] %s: %w", i, e.Path, err)
		}
		logger.Info("exported", "kind", e.Kind, "path", e.Path, "records", len(d),
			"duration", time.Since(start))
	}
	return nil
}
