package cas

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepResult summarizes one collector pass.
type SweepResult struct {
	Candidates int
	Reclaimed  int
	Bytes      int64
	Skipped    int // pinned or re-referenced since the scan
}

// Collector reclaims chunks left at zero references: those released in
// deferred mode, those skipped by a purge because an upload had pinned
// them, and those stored by uploads that never committed.
type Collector struct {
	db      Database
	chunks  *ChunkStore
	workers int
	logger  Logger
}

// NewCollector creates a collector that reclaims with up to workers
// concurrent deletions.
func NewCollector(db Database, chunks *ChunkStore, workers int, logger Logger) *Collector {
	return &Collector{db: db, chunks: chunks, workers: max(workers, 1), logger: logger}
}

// Sweep reclaims every zero-reference chunk that is not pinned.
func (c *Collector) Sweep(ctx context.Context) (SweepResult, error) {
	candidates, err := c.db.ListUnreferencedChunks(ctx, 0)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing unreferenced chunks: %w", err)
	}

	var mu sync.Mutex
	res := SweepResult{Candidates: len(candidates)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, ch := range candidates {
		g.Go(func() error {
			ok, err := c.chunks.Reclaim(gctx, ch.Digest)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				res.Reclaimed++
				res.Bytes += ch.Size
			} else {
				res.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if res.Candidates > 0 {
		c.logger.Info("sweep finished", "candidates", res.Candidates, "reclaimed", res.Reclaimed, "bytes", res.Bytes, "skipped", res.Skipped)
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (c *Collector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
