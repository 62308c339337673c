package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"auditlog/internal/logging"
	"auditlog/internal/metrics"
	"auditlog/internal/record"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is used when LoadOptions.BatchSize is not positive.
const DefaultBatchSize = 5000

// RunIDColumn is the leading column added when LoadOptions.RunID is set.
const RunIDColumn = "run_id"

// CopyFn abstracts a backend's bulk insert. It returns the number of rows
// inserted and should cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadOptions configures LoadBatches and LoadDataset.
type LoadOptions struct {
	BatchSize int
	// RunID, when set, is stored in a leading run_id column of every row.
	RunID string
	// ChannelBuffer bounds the row channel between LoadDataset's producer
	// and the batcher. Zero means BatchSize.
	ChannelBuffer int
	Job           string
	Logger        *slog.Logger
}

func (o LoadOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// LoadBatches drains rows from in, groups them into batches and calls copyFn
// once per non-empty batch. It returns the total reported by copyFn and the
// first error. On cancellation it returns (total, ctx.Err()).
func LoadBatches(ctx context.Context, columns []string, in <-chan []any, copyFn CopyFn, opts LoadOptions) (int64, error) {
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	logger := logging.Default(opts.Logger).With("component", "loader")
	size := opts.batchSize()

	var (
		total     int64
		batches   int64
		batch     = make([][]any, 0, size)
		start     = time.Now()
		lastFlush = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			logger.Error("copy failed", "inserted", n, "total", total, "error", err)
			return err
		}
		batches++
		metrics.RecordBatches(opts.Job, 1)
		now := time.Now()
		logger.Debug("batch flushed",
			"batch", batches,
			"inserted", n,
			"total", total,
			"since_last", now.Sub(lastFlush).Truncate(time.Millisecond))
		lastFlush = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				logger.Info("load done", "batches", batches, "rows", total,
					"elapsed", time.Since(start).Truncate(time.Millisecond))
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= size {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// DatasetColumns returns the normalized column list LoadDataset writes for d.
func DatasetColumns(d record.Dataset, withRunID bool) []string {
	header := d.Header()
	if withRunID {
		header = append([]string{RunIDColumn}, header...)
	}
	return Columns(header)
}

// LoadDataset writes every record of d into repo using the same column policy
// as the tabular exports: the first record's keys define the columns, missing
// keys become "" and extra keys are dropped.
func LoadDataset(ctx context.Context, repo Repository, d record.Dataset, opts LoadOptions) (int64, error) {
	if len(d) == 0 {
		return 0, nil
	}
	header := d.Header()
	columns := DatasetColumns(d, opts.RunID != "")

	g, gctx := errgroup.WithContext(ctx)
	buf := opts.ChannelBuffer
	if buf <= 0 {
		buf = opts.batchSize()
	}
	rows := make(chan []any, buf)
	g.Go(func() error {
		defer close(rows)
		for _, r := range d {
			vals := r.Row(header)
			row := make([]any, 0, len(columns))
			if opts.RunID != "" {
				row = append(row, opts.RunID)
			}
			for _, v := range vals {
				row = append(row, v)
			}
			select {
			case rows <- row:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var total int64
	g.Go(func() error {
		n, err := LoadBatches(gctx, columns, rows, repo.CopyFrom, opts)
		total = n
		return err
	})
	err := g.Wait()
	return total, err
}
