// Package pipeline turns merged access-log lines into enriched records.
//
// Each line is matched against the access-log grammar, the query string of its
// referrer is decoded, and the decoded pairs are laid over the record's own
// fields. Lines that cannot be enriched are counted by reason and dropped.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"auditlog/internal/accesslog"
	"auditlog/internal/datasource/file"
	"auditlog/internal/logging"
	"auditlog/internal/metrics"
	"auditlog/internal/querystring"
	"auditlog/internal/record"
	"auditlog/internal/transformer"

	"github.com/zeebo/xxh3"
)

// SkipReason says why a line produced no record.
type SkipReason string

const (
	SkipGrammarMismatch SkipReason = "grammar-mismatch"
	SkipNoReferrer      SkipReason = "no-referrer"
	SkipDuplicate       SkipReason = "duplicate"
)

// UnreferredPolicy decides what happens to a matched line whose referrer is
// "-" or missing.
type UnreferredPolicy int

const (
	// ExcludeUnreferred drops the line with reason no-referrer.
	ExcludeUnreferred UnreferredPolicy = iota
	// KeepUnreferred emits the flattened fields without query pairs.
	KeepUnreferred
)

// ParseUnreferredPolicy maps "exclude" (or "") and "keep" to a policy.
func ParseUnreferredPolicy(s string) (UnreferredPolicy, error) {
	switch s {
	case "", "exclude":
		return ExcludeUnreferred, nil
	case "keep":
		return KeepUnreferred, nil
	default:
		return ExcludeUnreferred, fmt.Errorf("pipeline: unknown unreferred policy %q", s)
	}
}

func (p UnreferredPolicy) String() string {
	if p == KeepUnreferred {
		return "keep"
	}
	return "exclude"
}

const (
	// DefaultShardSize is the number of lines handed to a worker at once.
	DefaultShardSize = 4096
	// MaxLineSize bounds a single log line. Longer lines are counted as
	// grammar mismatches.
	MaxLineSize = 1 << 20
)

// Stats counts what one run did with its input.
type Stats struct {
	Lines            int
	Enriched         int
	Unreferred       int // kept under KeepUnreferred
	Skips            map[SkipReason]int
	TruncatedQueries int
}

// Skipped returns the total number of skipped lines.
func (s Stats) Skipped() int {
	n := 0
	for _, c := range s.Skips {
		n += c
	}
	return n
}

// Duplicates returns the number of lines suppressed as exact repeats.
func (s Stats) Duplicates() int { return s.Skips[SkipDuplicate] }

func (s *Stats) skip(r SkipReason) {
	if s.Skips == nil {
		s.Skips = make(map[SkipReason]int)
	}
	s.Skips[r]++
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Enriched += o.Enriched
	s.Unreferred += o.Unreferred
	s.TruncatedQueries += o.TruncatedQueries
	for r, n := range o.Skips {
		if s.Skips == nil {
			s.Skips = make(map[SkipReason]int)
		}
		s.Skips[r] += n
	}
}

// Result is the outcome of one run.
type Result struct {
	Dataset record.Dataset
	Stats   Stats
}

// LineSource yields lines in order. *LineReader and *bufio.Scanner satisfy
// it. A source that also has an Oversized() bool method may report lines it
// could not hold; those are skipped as grammar mismatches.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// Options configures a Pipeline. The zero value runs sequentially with the
// canonical grammar and excludes unreferred lines.
type Options struct {
	Grammar    *accesslog.Grammar
	Unreferred UnreferredPolicy
	// Dedupe suppresses byte-identical lines after the first.
	Dedupe bool
	// Workers above 1 shard the input across goroutines.
	Workers   int
	ShardSize int
	// Transforms run once over the assembled dataset.
	Transforms transformer.Chain
	Job        string
	Logger     *slog.Logger
}

// Pipeline is safe for concurrent use; every Run owns its own state.
type Pipeline struct {
	grammar    *accesslog.Grammar
	unreferred UnreferredPolicy
	dedupe     bool
	workers    int
	shardSize  int
	transforms transformer.Chain
	job        string
	logger     *slog.Logger
}

// New builds a Pipeline from opts.
func New(opts Options) *Pipeline {
	g := opts.Grammar
	if g == nil {
		g = accesslog.S3AccessLog()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	shard := opts.ShardSize
	if shard <= 0 {
		shard = DefaultShardSize
	}
	job := opts.Job
	if job == "" {
		job = "auditlog"
	}
	return &Pipeline{
		grammar:    g,
		unreferred: opts.Unreferred,
		dedupe:     opts.Dedupe,
		workers:    workers,
		shardSize:  shard,
		transforms: opts.Transforms,
		job:        job,
		logger:     logging.Default(opts.Logger).With("component", "pipeline"),
	}
}

// Grammar returns the grammar lines are matched against.
func (p *Pipeline) Grammar() *accesslog.Grammar { return p.grammar }

// Enrich processes a single line. It returns nil and the skip reason when the
// line yields no record.
func (p *Pipeline) Enrich(line string) (*record.MergedRecord, SkipReason) {
	o := p.enrich(line)
	return o.rec, o.reason
}

type outcome struct {
	rec        *record.MergedRecord
	reason     SkipReason
	unreferred bool
	truncated  bool
}

func (p *Pipeline) enrich(line string) outcome {
	ex, ok := p.grammar.Extract(line)
	if !ok {
		return outcome{reason: SkipGrammarMismatch}
	}
	ref, present := ex.Lookup(accesslog.Referrer)
	if !present || ref == accesslog.Dash {
		if p.unreferred == KeepUnreferred {
			return outcome{rec: ex.Flatten(), unreferred: true}
		}
		return outcome{reason: SkipNoReferrer}
	}
	q := querystring.Parse(querystring.Unquote(ref))
	rec := ex.Flatten()
	for _, kv := range q.Params() {
		rec.Set(kv.Key, kv.Value)
	}
	return outcome{rec: rec, truncated: q.Truncated()}
}

// process enriches lines in order, appending into out and counting into st.
func (p *Pipeline) process(lines []string, out record.Dataset, st *Stats) record.Dataset {
	for _, line := range lines {
		st.Lines++
		o := p.enrich(line)
		switch {
		case o.rec == nil:
			st.skip(o.reason)
			continue
		case o.unreferred:
			st.Unreferred++
		default:
			st.Enriched++
		}
		if o.truncated {
			st.TruncatedQueries++
		}
		out = append(out, o.rec)
	}
	return out
}

// Run drains src and returns the enriched dataset. The dataset is non-nil
// even when no line qualified.
func (p *Pipeline) Run(ctx context.Context, src LineSource) (Result, error) {
	start := time.Now()
	p.logger.Info("run start", "workers", p.workers, "dedupe", p.dedupe, "unreferred", p.unreferred.String())

	var (
		res Result
		err error
	)
	if p.workers > 1 {
		res, err = p.runSharded(ctx, src)
	} else {
		res, err = p.runSequential(ctx, src)
	}
	if err == nil && len(p.transforms) > 0 {
		if res.Dataset = p.transforms.Apply(res.Dataset); res.Dataset == nil {
			res.Dataset = record.Dataset{}
		}
	}
	metrics.RecordStep(p.job, "parse", err, time.Since(start))
	if err != nil {
		p.logger.Error("run failed", "lines", res.Stats.Lines, "error", err)
		return Result{Dataset: record.Dataset{}}, err
	}

	metrics.RecordRow(p.job, "lines", int64(res.Stats.Lines))
	metrics.RecordRow(p.job, "enriched", int64(len(res.Dataset)))
	for r, n := range res.Stats.Skips {
		metrics.RecordSkip(p.job, string(r), int64(n))
	}
	p.logger.Info("run done",
		"lines", res.Stats.Lines,
		"records", len(res.Dataset),
		"skipped", res.Stats.Skipped(),
		"truncated_queries", res.Stats.TruncatedQueries,
		"duration", time.Since(start))
	return res, nil
}

func (p *Pipeline) runSequential(ctx context.Context, src LineSource) (Result, error) {
	var (
		st   Stats
		seen = p.newSeen()
		out  = record.Dataset{}
		buf  = make([]string, 0, p.shardSize)
		over = oversizedFunc(src)
	)
	for src.Scan() {
		if over() {
			st.Lines++
			st.skip(SkipGrammarMismatch)
			continue
		}
		line := src.Text()
		if seen.repeat(line) {
			st.Lines++
			st.skip(SkipDuplicate)
			continue
		}
		buf = append(buf, line)
		if len(buf) == p.shardSize {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			out = p.process(buf, out, &st)
			buf = buf[:0]
		}
	}
	if err := src.Err(); err != nil {
		return Result{}, fmt.Errorf("pipeline: read: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	out = p.process(buf, out, &st)
	return Result{Dataset: out, Stats: st}, nil
}

// RunReader runs over the lines of r.
func (p *Pipeline) RunReader(ctx context.Context, r io.Reader) (Result, error) {
	return p.Run(ctx, NewLineReader(r))
}

// RunFile runs over the file at path, decompressing .gz and .zst files. A
// directory yields an empty result rather than an error.
func (p *Pipeline) RunFile(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{Dataset: record.Dataset{}}, fmt.Errorf("pipeline: %w", err)
	}
	if fi.IsDir() {
		p.logger.Warn("input is a directory; nothing to parse", "path", path)
		return Result{Dataset: record.Dataset{}}, nil
	}
	rc, err := file.NewLocal(path).Open(ctx)
	if err != nil {
		return Result{Dataset: record.Dataset{}}, fmt.Errorf("pipeline: %w", err)
	}
	res, runErr := p.RunReader(ctx, rc)
	if cerr := rc.Close(); cerr != nil && runErr == nil {
		runErr = fmt.Errorf("pipeline: close %s: %w", path, cerr)
	}
	return res, runErr
}

// seenSet tracks xxh3 hashes of lines already read. A nil set never reports
// a repeat.
type seenSet map[uint64]struct{}

func (p *Pipeline) newSeen() seenSet {
	if !p.dedupe {
		return nil
	}
	return make(seenSet)
}

func (s seenSet) repeat(line string) bool {
	if s == nil {
		return false
	}
	h := xxh3.HashString(line)
	if _, ok := s[h]; ok {
		return true
	}
	s[h] = struct{}{}
	return false
}
