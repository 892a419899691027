package marketdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Stats mirrors internal/orchestrator.Stats for the market-data chain.
type Stats struct {
	Successes int64
	Failures  int64
	LastUsed  time.Time
}

// Chain attempts each §6.2 operation against Sources in declared priority
// order, advancing on failure or ErrUnsupported, exactly as C1's
// Orchestrator.Chat does for chat completions (§4.1).
type Chain struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	sources  []Source
	stats    map[string]*Stats
	lastUsed string
}

// New constructs a Chain over sources in priority order.
func New(logger *zap.Logger, sources []Source) *Chain {
	stats := make(map[string]*Stats, len(sources))
	for _, s := range sources {
		stats[s.Name()] = &Stats{}
	}
	return &Chain{logger: logger, sources: sources, stats: stats}
}

func (c *Chain) snapshot() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

func (c *Chain) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statFor(name)
	s.Successes++
	s.LastUsed = time.Now()
	c.lastUsed = name
}

func (c *Chain) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statFor(name).Failures++
}

func (c *Chain) statFor(name string) *Stats {
	s, ok := c.stats[name]
	if !ok {
		s = &Stats{}
		c.stats[name] = s
	}
	return s
}

// Stats returns a snapshot of per-source counters and the most recently
// successful source's name.
func (c *Chain) Stats() (map[string]Stats, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Stats, len(c.stats))
	for name, s := range c.stats {
		out[name] = *s
	}
	return out, c.lastUsed
}

// GetQuote attempts each source in order, returning the first success.
func (c *Chain) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	sources := c.snapshot()
	if len(sources) == 0 {
		return types.Quote{}, ErrNoProvidersConfigured
	}
	var attempted []string
	var lastErr error
	for _, s := range sources {
		attempted = append(attempted, s.Name())
		q, err := s.GetQuote(ctx, symbol)
		if err != nil {
			c.recordFailure(s.Name())
			lastErr = err
			continue
		}
		c.recordSuccess(s.Name())
		return q, nil
	}
	return types.Quote{}, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// GetHistoricalQuotes attempts each source in order, returning the first
// success.
func (c *Chain) GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval Interval) ([]types.HistoricalPoint, error) {
	sources := c.snapshot()
	if len(sources) == 0 {
		return nil, ErrNoProvidersConfigured
	}
	var attempted []string
	var lastErr error
	for _, s := range sources {
		attempted = append(attempted, s.Name())
		points, err := s.GetHistoricalQuotes(ctx, symbol, tStart, tEnd, interval)
		if err != nil {
			c.recordFailure(s.Name())
			lastErr = err
			continue
		}
		c.recordSuccess(s.Name())
		return points, nil
	}
	return nil, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// GetListings attempts each source in order, returning the first success.
func (c *Chain) GetListings(ctx context.Context, limit, start int) ([]types.Listing, error) {
	sources := c.snapshot()
	var attempted []string
	var lastErr error
	for _, s := range sources {
		attempted = append(attempted, s.Name())
		listings, err := s.GetListings(ctx, limit, start)
		if err != nil {
			c.recordFailure(s.Name())
			lastErr = err
			continue
		}
		c.recordSuccess(s.Name())
		return listings, nil
	}
	return nil, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// GetGlobalMetrics attempts each source in order, returning the first
// success.
func (c *Chain) GetGlobalMetrics(ctx context.Context) (types.GlobalMetrics, error) {
	sources := c.snapshot()
	var attempted []string
	var lastErr error
	for _, s := range sources {
		attempted = append(attempted, s.Name())
		metrics, err := s.GetGlobalMetrics(ctx)
		if err != nil {
			c.recordFailure(s.Name())
			lastErr = err
			continue
		}
		c.recordSuccess(s.Name())
		return metrics, nil
	}
	return types.GlobalMetrics{}, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// GetMetadata attempts each source in order, returning the first success.
func (c *Chain) GetMetadata(ctx context.Context, symbol string) (types.Metadata, error) {
	sources := c.snapshot()
	var attempted []string
	var lastErr error
	for _, s := range sources {
		attempted = append(attempted, s.Name())
		md, err := s.GetMetadata(ctx, symbol)
		if err != nil {
			c.recordFailure(s.Name())
			lastErr = err
			continue
		}
		c.recordSuccess(s.Name())
		return md, nil
	}
	return types.Metadata{}, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// AvailableCount returns how many sources are configured.
func (c *Chain) AvailableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}
