// Package orchestrator implements C1, the provider fallback orchestrator:
// given a logical request, it attempts it against providers in declared
// priority order, advancing to the next on failure, and returns the first
// success annotated with which provider served it (§4.1).
//
// A single mutex-guarded struct drives a pluggable, ranked Provider list,
// advancing on failure and recording per-provider success/failure stats.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Config tunes the orchestrator. Presently empty beyond logging, but kept as
// a struct (rather than bare constructor args) for consistency with the
// rest of the codebase's DefaultXConfig convention, since providers
// themselves carry their own per-adapter configuration.
type Config struct{}

// DefaultConfig returns the zero-value config.
func DefaultConfig() Config { return Config{} }

// Orchestrator is C1. It never re-orders providers by past success — order
// is declaration order, exactly as §4.1 specifies.
type Orchestrator struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	config    Config
	providers []Provider
	stats     map[string]*Stats
	lastUsed  string
}

// New constructs an Orchestrator over providers, in the priority order
// they're passed (primary tier first by convention, though the orchestrator
// itself does not enforce tier ordering — that's the caller's job when
// assembling the slice).
func New(logger *zap.Logger, config Config, providers []Provider) *Orchestrator {
	stats := make(map[string]*Stats, len(providers))
	for _, p := range providers {
		stats[p.Name()] = &Stats{}
	}
	return &Orchestrator{
		logger:    logger,
		config:    config,
		providers: providers,
		stats:     stats,
	}
}

// Chat attempts messages against each provider in order, per §4.1's
// algorithm. onSwitch may be nil.
func (o *Orchestrator) Chat(ctx context.Context, messages []Message, opts ChatOptions, onSwitch OnSwitch) (*ChatResponse, error) {
	o.mu.RLock()
	if len(o.providers) == 0 {
		o.mu.RUnlock()
		return nil, ErrNoProvidersConfigured
	}
	providers := make([]Provider, len(o.providers))
	copy(providers, o.providers)
	o.mu.RUnlock()

	var attempted []string
	var lastErr error

	for _, p := range providers {
		attempted = append(attempted, p.Name())

		if p.Tier() == types.TierOptional && onSwitch != nil {
			onSwitch(p.Name(), p.Tier(), p.IsFree())
		}

		resp, err := p.Chat(ctx, messages, opts)
		if err != nil {
			o.recordFailure(p.Name())
			o.logger.Debug("provider attempt failed",
				zap.String("provider", p.Name()),
				zap.Error(err))
			lastErr = err
			continue
		}

		o.recordSuccess(p.Name())
		resp.Provider = p.Name()
		resp.Tier = p.Tier()
		resp.IsFree = p.IsFree()
		return resp, nil
	}

	return nil, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

func (o *Orchestrator) recordSuccess(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.statsFor(name)
	s.Successes++
	s.LastUsed = time.Now()
	o.lastUsed = name
}

func (o *Orchestrator) recordFailure(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statsFor(name).Failures++
}

// statsFor returns (creating if absent) the Stats entry for name. Caller
// must hold o.mu.
func (o *Orchestrator) statsFor(name string) *Stats {
	s, ok := o.stats[name]
	if !ok {
		s = &Stats{}
		o.stats[name] = s
	}
	return s
}

// Stats returns a snapshot of per-provider counters plus the name of the
// provider that most recently served a successful request.
func (o *Orchestrator) Stats() (map[string]Stats, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]Stats, len(o.stats))
	for name, s := range o.stats {
		out[name] = *s
	}
	return out, o.lastUsed
}

// HasProvider reports whether a provider by that name is configured.
func (o *Orchestrator) HasProvider(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, p := range o.providers {
		if p.Name() == name {
			return true
		}
	}
	return false
}

// AvailableCount returns how many providers are currently configured.
func (o *Orchestrator) AvailableCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.providers)
}
