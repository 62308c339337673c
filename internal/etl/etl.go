// Package etl wires one audit-log run together: list the source, merge it
// into a single file, parse and enrich the merged lines, then export the
// dataset and optionally load it into a database table.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"auditlog/internal/config"
	"auditlog/internal/datasource"
	"auditlog/internal/datasource/file"
	"auditlog/internal/datasource/httpds"
	"auditlog/internal/datasource/s3ds"
	"auditlog/internal/export"
	"auditlog/internal/logging"
	"auditlog/internal/merge"
	"auditlog/internal/metrics"
	"auditlog/internal/pipeline"
	"auditlog/internal/record"
	"auditlog/internal/storage"
	"auditlog/internal/transformer"

	"github.com/google/uuid"
)

// DefaultJob labels metrics and logs when the pipeline has no job name.
const DefaultJob = "auditlog"

// Options carries per-run dependencies.
type Options struct {
	Logger *slog.Logger
	// RunID tags log lines and loaded rows. Empty means a fresh UUID.
	RunID string
	// S3 replaces the client built from source.s3 settings.
	S3 s3ds.API
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Merge   merge.Summary
	Stats   pipeline.Stats
	Records int
	Loaded  int64
	Elapsed time.Duration
}

// Runtime is the resolved parallelism and batching of a run.
type Runtime struct {
	Workers       int
	BatchSize     int
	ChannelBuffer int
}

// RuntimeFrom resolves rc against AUDITLOG_WORKERS and AUDITLOG_BATCH_SIZE.
// A zero BatchSize leaves the shard and COPY batch sizes at their package
// defaults.
func RuntimeFrom(rc config.RuntimeConfig) Runtime {
	return Runtime{
		Workers:       pickInt(rc.Workers, getenvInt("AUDITLOG_WORKERS", runtime.GOMAXPROCS(0))),
		BatchSize:     pickInt(rc.BatchSize, getenvInt("AUDITLOG_BATCH_SIZE", 0)),
		ChannelBuffer: rc.ChannelBuffer,
	}
}

// JobName returns p.Job or DefaultJob.
func JobName(p config.Pipeline) string {
	if p.Job != "" {
		return p.Job
	}
	return DefaultJob
}

// MergedPath returns where the merged artifact of p is written.
func MergedPath(p config.Pipeline) string {
	if p.Merge.Path != "" {
		return p.Merge.Path
	}
	return config.DefaultMergedName
}

// NewLister returns the lister for a dir, list, s3 or http source.
func NewLister(ctx context.Context, src config.Source, api s3ds.API) (datasource.Lister, error) {
	switch src.Kind {
	case config.SourceDir:
		return file.NewDir(src.Dir.Path, src.Dir.Pattern), nil
	case config.SourceList:
		return file.NewListFile(src.List.Path), nil
	case config.SourceS3:
		if api == nil {
			c, err := s3ds.NewClient(ctx, s3ds.Config{
				Bucket:          src.S3.Bucket,
				Prefix:          src.S3.Prefix,
				Region:          src.S3.Region,
				Endpoint:        src.S3.Endpoint,
				AccessKeyID:     src.S3.AccessKeyID,
				SecretAccessKey: src.S3.SecretAccessKey,
				UsePathStyle:    src.S3.UsePathStyle,
			})
			if err != nil {
				return nil, err
			}
			api = c
		}
		pfx, err := s3ds.NewPrefix(api, src.S3.Bucket, src.S3.Prefix)
		if err != nil {
			return nil, err
		}
		return pfx, nil
	case config.SourceHTTP:
		h := make(http.Header, len(src.HTTP.Header))
		for k, v := range src.HTTP.Header {
			h.Set(k, v)
		}
		c := httpds.NewClient(httpds.Config{
			Timeout:    time.Duration(src.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries: src.HTTP.MaxRetries,
			Header:     h,
		})
		urls, err := httpds.NewURLs(c, src.HTTP.URLs)
		if err != nil {
			return nil, err
		}
		return urls, nil
	case config.SourceFile:
		return nil, fmt.Errorf("etl: source.kind=file names an already merged file; nothing to list")
	default:
		return nil, fmt.Errorf("etl: unsupported source.kind=%s", src.Kind)
	}
}

// Merge concatenates the source of p into MergedPath(p).
func Merge(ctx context.Context, p config.Pipeline, opts Options) (merge.Summary, error) {
	l, err := NewLister(ctx, p.Source, opts.S3)
	if err != nil {
		return merge.Summary{}, err
	}
	return merge.Merge(ctx, l, MergedPath(p), merge.Options{Job: JobName(p), Logger: opts.Logger})
}

// NewPipeline builds the parser for p.
func NewPipeline(p config.Pipeline, rt Runtime, logger *slog.Logger) (*pipeline.Pipeline, error) {
	policy, err := pipeline.ParseUnreferredPolicy(p.Parser.Options.String("unreferred", ""))
	if err != nil {
		return nil, err
	}
	chain, err := transformer.Build(p.Transform)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Options{
		Unreferred: policy,
		Dedupe:     p.Parser.Options.Bool("dedupe", false),
		Workers:    rt.Workers,
		ShardSize:  rt.BatchSize,
		Transforms: chain,
		Job:        JobName(p),
		Logger:     logger,
	}), nil
}

// Parse enriches the lines of the file at path.
func Parse(ctx context.Context, p config.Pipeline, path string, opts Options) (pipeline.Result, error) {
	pl, err := NewPipeline(p, RuntimeFrom(p.Runtime), opts.Logger)
	if err != nil {
		return pipeline.Result{Dataset: record.Dataset{}}, err
	}
	return pl.RunFile(ctx, path)
}

// Run executes every stage of p.
func Run(ctx context.Context, p config.Pipeline, opts Options) (Summary, error) {
	start := time.Now()
	job := JobName(p)
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	opts.Logger = logging.Default(opts.Logger).With("run_id", opts.RunID, "job", job)
	logger := opts.Logger.With("component", "etl")
	rt := RuntimeFrom(p.Runtime)

	sum, err := run(ctx, p, rt, opts, logger)
	sum.RunID = opts.RunID
	sum.Elapsed = time.Since(start)
	metrics.RecordStep(job, "run", err, sum.Elapsed)
	if err != nil {
		logger.Error("run failed", "error", err, "duration", sum.Elapsed)
		return sum, err
	}
	logger.Info("run summary",
		"files", sum.Merge.Files,
		"lines", sum.Stats.Lines,
		"records", sum.Records,
		"grammar_mismatch", sum.Stats.Skips[pipeline.SkipGrammarMismatch],
		"no_referrer", sum.Stats.Skips[pipeline.SkipNoReferrer],
		"duplicates", sum.Stats.Duplicates(),
		"truncated_queries", sum.Stats.TruncatedQueries,
		"loaded", sum.Loaded,
		"duration", sum.Elapsed)
	return sum, nil
}

func run(ctx context.Context, p config.Pipeline, rt Runtime, opts Options, logger *slog.Logger) (Summary, error) {
	var sum Summary

	path := p.Source.File.Path
	if p.Source.Kind != config.SourceFile {
		ms, err := Merge(ctx, p, opts)
		switch {
		case errors.Is(err, merge.ErrNoInput):
			logger.Warn("source is empty; no merged file written")
			path = ""
		case err != nil:
			return sum, err
		default:
			sum.Merge = ms
			path = ms.Path
		}
	}

	d := record.Dataset{}
	if path != "" {
		pl, err := NewPipeline(p, rt, opts.Logger)
		if err != nil {
			return sum, err
		}
		res, err := pl.RunFile(ctx, path)
		if err != nil {
			return sum, err
		}
		sum.Stats = res.Stats
		d = res.Dataset
	}
	sum.Records = len(d)

	if err := export.All(ctx, p.Export, d, export.Options{Job: JobName(p), Logger: opts.Logger}); err != nil {
		return sum, err
	}

	if p.Storage != nil {
		n, err := Load(ctx, *p.Storage, d, rt, LoadOptions{RunID: opts.RunID, Job: JobName(p), Logger: opts.Logger})
		sum.Loaded = n
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// LoadOptions tags a Load call.
type LoadOptions struct {
	RunID  string
	Job    string
	Logger *slog.Logger
}

// Load writes d into the table named by s, creating it first when
// s.DB.AutoCreateTable is set. An empty dataset is not loaded.
func Load(ctx context.Context, s config.Storage, d record.Dataset, rt Runtime, opts LoadOptions) (int64, error) {
	logger := logging.Default(opts.Logger).With("component", "load")
	if len(d) == 0 {
		logger.Info("dataset is empty; nothing to load", "kind", s.Kind)
		return 0, nil
	}
	start := time.Now()
	n, err := load(ctx, s, d, rt, opts)
	metrics.RecordStep(opts.Job, "load", err, time.Since(start))
	return n, err
}

func load(ctx context.Context, s config.Storage, d record.Dataset, rt Runtime, opts LoadOptions) (int64, error) {
	if len(s.DB.Columns) > 0 {
		d = project(d, s.DB.Columns)
	}
	repo, err := storage.New(ctx, storage.Config{
		Kind:    s.Kind,
		DSN:     s.DB.DSN,
		Table:   s.DB.Table,
		Columns: s.DB.Columns,
	})
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	if s.DB.AutoCreateTable {
		cols := storage.DatasetColumns(d, opts.RunID != "")
		if err := storage.EnsureTable(ctx, s.Kind, repo, s.DB.Table, cols); err != nil {
			return 0, err
		}
	}
	return storage.LoadDataset(ctx, repo, d, storage.LoadOptions{
		BatchSize:     rt.BatchSize,
		RunID:         opts.RunID,
		ChannelBuffer: rt.ChannelBuffer,
		Job:           opts.Job,
		Logger:        opts.Logger,
	})
}

// project keeps only cols, in that order. Absent keys become "".
func project(d record.Dataset, cols []string) record.Dataset {
	out := make(record.Dataset, len(d))
	for i, r := range d {
		p := record.New(len(cols))
		for _, c := range cols {
			p.Set(c, r.Value(c))
		}
		out[i] = p
	}
	return out
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value a, otherwise b.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
