// Package scanner discovers newly-launched tokens across configured
// platforms. Each Source is independent; Scanner unions their results the
// way §4.2.3 step 1 describes: the scan step is indifferent to whether a
// token came from a chain-program indexer or an HTTP scrape, it just wants
// "every candidate token visible this tick".
package scanner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atlas-desktop/nova-trader/internal/workers"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Source discovers candidate tokens for one platform or feed.
type Source interface {
	Name() string
	Scan(ctx context.Context) ([]*types.Token, error)
}

// Scanner unions multiple Sources, pacing each with its own rate limiter so
// a slow or rate-limited upstream can't starve the others (§5).
type Scanner struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	sources  []Source
	limiters map[string]*rate.Limiter
	pool     *workers.Pool
}

// New constructs a Scanner over the given sources, each paced to at most
// one scan per interval with a burst of one.
func New(logger *zap.Logger, sources []Source, perSourceRateHz float64) *Scanner {
	if perSourceRateHz <= 0 {
		perSourceRateHz = 1
	}
	limiters := make(map[string]*rate.Limiter, len(sources))
	for _, s := range sources {
		limiters[s.Name()] = rate.NewLimiter(rate.Limit(perSourceRateHz), 1)
	}
	return &Scanner{logger: logger, sources: sources, limiters: limiters}
}

// SetPool attaches a worker pool ScanAll dispatches one task per source onto
// (§5: two platforms' scans may run concurrently). A nil pool (the default)
// makes ScanAll fall back to scanning sources one at a time in-goroutine,
// which is what all but one of the unit tests exercise.
func (s *Scanner) SetPool(pool *workers.Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
}

// ScanAll runs every source and unions their discoveries. A single source's
// failure is logged and skipped; it never aborts the others (§4.2.7: a
// scan-step failure is transient and must not kill the tick). When a pool
// has been attached via SetPool, every source's scan is submitted as its own
// task and ScanAll blocks until all of them have finished, so a slow
// platform's rate limiter or network round trip no longer holds up the
// others; without a pool the sources run serially in call order.
func (s *Scanner) ScanAll(ctx context.Context) []*types.Token {
	s.mu.RLock()
	sources := make([]Source, len(s.sources))
	copy(sources, s.sources)
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil || !pool.IsRunning() {
		return s.scanSourcesSerially(ctx, sources)
	}

	var mu sync.Mutex
	var all []*types.Token
	var wg sync.WaitGroup
	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			// SubmitWait hands the scan to the pool's worker goroutines and
			// blocks this caller goroutine until it finishes, so concurrency
			// across sources is bounded by the pool's worker count rather
			// than fanning out one unbounded goroutine per source.
			err := pool.SubmitWait(workers.TaskFunc(func() error {
				found, ok := s.scanOne(ctx, src)
				if !ok {
					return nil
				}
				mu.Lock()
				all = append(all, found...)
				mu.Unlock()
				return nil
			}))
			if err != nil {
				s.logger.Warn("scan source dropped by pool", zap.String("source", src.Name()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return all
}

// scanSourcesSerially is ScanAll's fallback path for when no pool is
// attached.
func (s *Scanner) scanSourcesSerially(ctx context.Context, sources []Source) []*types.Token {
	var all []*types.Token
	for _, src := range sources {
		found, ok := s.scanOne(ctx, src)
		if !ok {
			continue
		}
		all = append(all, found...)
	}
	return all
}

// scanOne rate-limits and runs a single source, logging and reporting ok=false
// on a rate-limiter cancellation or a scan failure rather than returning an
// error, so callers on either the serial or pooled path treat it identically.
func (s *Scanner) scanOne(ctx context.Context, src Source) ([]*types.Token, bool) {
	if lim, ok := s.limiters[src.Name()]; ok {
		if err := lim.Wait(ctx); err != nil {
			return nil, false
		}
	}
	found, err := src.Scan(ctx)
	if err != nil {
		s.logger.Warn("scan source failed", zap.String("source", src.Name()), zap.Error(err))
		return nil, false
	}
	return found, true
}

// ScanPlatform runs only the sources that declare they serve platform,
// implementing §6.3's scanPlatform(name) contract.
func (s *Scanner) ScanPlatform(ctx context.Context, platform types.Platform) ([]*types.Token, error) {
	s.mu.RLock()
	sources := make([]Source, len(s.sources))
	copy(sources, s.sources)
	s.mu.RUnlock()

	var out []*types.Token
	var lastErr error
	matched := false
	for _, src := range sources {
		pf, ok := src.(platformSource)
		if !ok || pf.Platform() != platform {
			continue
		}
		matched = true
		found, err := src.Scan(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, found...)
	}
	if !matched {
		return nil, fmt.Errorf("scanner: no source configured for platform %q", platform)
	}
	return out, lastErr
}

// platformSource is implemented by Sources bound to a single platform.
type platformSource interface {
	Platform() types.Platform
}
