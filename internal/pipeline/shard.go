package pipeline

import (
	"context"
	"fmt"

	"auditlog/internal/record"

	"golang.org/x/sync/errgroup"
)

// shard is a run of consecutive input lines.
type shard struct {
	index int
	lines []string
}

// shardResult is a worker outcome for a shard.
type shardResult struct {
	index int
	out   record.Dataset
	stats Stats
}

// runSharded reads src on a single goroutine, hands fixed-size shards to
// p.workers goroutines and reassembles their output in shard order. The
// dedupe check stays on the reader so that "first occurrence" means the same
// thing it does sequentially.
func (p *Pipeline) runSharded(parent context.Context, src LineSource) (Result, error) {
	g, ctx := errgroup.WithContext(parent)
	jobs := make(chan shard, p.workers)
	results := make(chan shardResult, p.workers)

	var readStats Stats
	g.Go(func() error {
		defer close(jobs)
		seen := p.newSeen()
		over := oversizedFunc(src)
		idx := 0
		buf := make([]string, 0, p.shardSize)
		send := func() error {
			select {
			case jobs <- shard{index: idx, lines: buf}:
				idx++
				buf = make([]string, 0, p.shardSize)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for src.Scan() {
			if over() {
				readStats.Lines++
				readStats.skip(SkipGrammarMismatch)
				continue
			}
			line := src.Text()
			if seen.repeat(line) {
				readStats.Lines++
				readStats.skip(SkipDuplicate)
				continue
			}
			buf = append(buf, line)
			if len(buf) == p.shardSize {
				if err := send(); err != nil {
					return err
				}
			}
		}
		if err := src.Err(); err != nil {
			return fmt.Errorf("pipeline: read: %w", err)
		}
		if len(buf) > 0 {
			return send()
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workers.Go(func() error {
			for j := range jobs {
				var r shardResult
				r.index = j.index
				r.out = p.process(j.lines, make(record.Dataset, 0, len(j.lines)), &r.stats)
				select {
				case results <- r:
				case <-wctx.Done():
					return wctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	var parts []shardResult
	for r := range results {
		parts = append(parts, r)
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := parent.Err(); err != nil {
		return Result{}, err
	}

	ordered := make([]shardResult, len(parts))
	for _, r := range parts {
		ordered[r.index] = r
	}
	res := Result{Dataset: record.Dataset{}, Stats: readStats}
	for _, r := range ordered {
		res.Dataset = append(res.Dataset, r.out...)
		res.Stats.add(r.stats)
	}
	return res, nil
}
