// Package engine implements C2, the live scanner and trading engine
// (spec.md §4.2): a scan loop that discovers and admits tokens, and a
// monitor loop that evaluates exits on open positions. Built around
// mutex-guarded state and a stopChan+sync.WaitGroup lifecycle, with the two
// periodic ticker loops running the admission-pipeline/monitor-loop pair
// the spec requires.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/internal/execution"
	"github.com/atlas-desktop/nova-trader/internal/persistence"
	"github.com/atlas-desktop/nova-trader/internal/scanner"
	"github.com/atlas-desktop/nova-trader/internal/sizing"
	"github.com/atlas-desktop/nova-trader/internal/workers"
	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// Enricher fills in a Token's optional market-data factors (§4.2.3 step 3).
type Enricher interface {
	Enrich(ctx context.Context, token *types.Token) error
}

// AIAdvisor produces the structured overlay decision of §4.2.3 step 6. A
// nil AIAdvisor (or UseAIAnalysis=false) makes step 6 a no-op, falling
// straight through to the risk-score rule.
type AIAdvisor interface {
	Analyze(ctx context.Context, token *types.Token, score decimal.Decimal) (*types.AIDecision, error)
}

// Stats is C2's running metrics snapshot (§6.6 get_stats / §4.2.2):
// totals, best/worst trade, running time, and ROI against deployed capital.
type Stats struct {
	TokensScanned   int
	TokensAdmitted  int
	PositionsOpened int
	PositionsClosed int
	FailedTrades    int
	TotalPnL        decimal.Decimal
	WinningTrades   int
	LosingTrades    int
	BestTrade       decimal.Decimal
	WorstTrade      decimal.Decimal
	DeployedCapital decimal.Decimal
	StartedAt       time.Time
}

// RunningTime reports how long the engine has been running as of now.
func (s Stats) RunningTime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// ROI reports TotalPnL as a fraction of capital deployed into buys so far,
// zero when nothing has been deployed yet.
func (s Stats) ROI() decimal.Decimal {
	if s.DeployedCapital.IsZero() {
		return decimal.Zero
	}
	return s.TotalPnL.Div(s.DeployedCapital)
}

// WinRate reports the fraction of closed trades that were winners, zero
// when no trade has closed yet.
func (s Stats) WinRate() decimal.Decimal {
	closed := s.WinningTrades + s.LosingTrades
	if closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.WinningTrades)).Div(decimal.NewFromInt(int64(closed)))
}

// PositionSummary is one entry in Status.ActivePositions (§6.6 get_status).
type PositionSummary struct {
	Symbol      string
	EntryPrice  decimal.Decimal
	MinutesHeld float64
}

// Status is C2's runtime status snapshot (§6.6 get_status): lifecycle,
// composition, win rate/net P&L, per-platform scan counters, and a summary
// of every currently open position.
type Status struct {
	Running         bool
	Mode            types.EngineMode
	OpenPositions   int
	WatchlistSize   int
	BlacklistSize   int
	WinRate         decimal.Decimal
	NetPnL          decimal.Decimal
	ScansByPlatform map[types.Platform]int
	ActivePositions []PositionSummary
}

// Config configures the Engine.
type Config struct {
	Engine   types.EngineConfig
	Strategy types.Strategy
}

// Engine is C2: the live scanner and trading engine.
type Engine struct {
	mu     sync.RWMutex
	logger *zap.Logger

	config   types.EngineConfig
	strategy types.Strategy

	scanner   *scanner.Scanner
	executor  *execution.Executor
	risk      *execution.RiskManager
	enricher  Enricher
	advisor   AIAdvisor
	sizer     *sizing.PositionSizer
	store     *persistence.Store
	bus       *events.Bus

	scannedTokens   map[string]bool
	activePositions map[string]*types.Position
	watchlist       map[string]*types.Token
	blacklist       map[string]bool
	scansByPlatform map[types.Platform]int

	stats Stats

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Dependencies bundles the Engine's collaborators, kept apart from Config
// so Config stays a plain serializable policy value.
type Dependencies struct {
	Scanner   *scanner.Scanner
	Executor  *execution.Executor
	Risk      *execution.RiskManager
	Enricher  Enricher
	Advisor   AIAdvisor
	Sizer     *sizing.PositionSizer
	Store     *persistence.Store
	Bus       *events.Bus
	Pool      *workers.Pool
}

// New constructs an Engine. When both a Scanner and a Pool are supplied, the
// pool is handed to the scanner so ScanAll runs each platform's scan on its
// own pool-worker goroutine instead of one source at a time (§5).
func New(logger *zap.Logger, config Config, deps Dependencies) *Engine {
	if deps.Scanner != nil && deps.Pool != nil {
		deps.Scanner.SetPool(deps.Pool)
	}
	return &Engine{
		logger:          logger.Named("engine"),
		config:          config.Engine,
		strategy:        config.Strategy,
		scanner:         deps.Scanner,
		executor:        deps.Executor,
		risk:            deps.Risk,
		enricher:        deps.Enricher,
		advisor:         deps.Advisor,
		sizer:           deps.Sizer,
		store:           deps.Store,
		bus:             deps.Bus,
		scannedTokens:   make(map[string]bool),
		activePositions: make(map[string]*types.Position),
		watchlist:       make(map[string]*types.Token),
		blacklist:       make(map[string]bool),
		scansByPlatform: make(map[types.Platform]int),
	}
}

// Start launches the scan and monitor loops (§5). Each has its own
// goroutine derived from ctx; Stop tears both down with a bounded drain.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	if e.stats.StartedAt.IsZero() {
		e.stats.StartedAt = time.Now()
	}
	e.mu.Unlock()

	e.logger.Info("starting engine", zap.String("mode", string(e.config.Mode)))

	e.wg.Add(2)
	go e.scanLoop(ctx)
	go e.monitorLoop(ctx)

	return nil
}

// Stop signals both loops to exit and waits up to LoopDrainTimeout for them
// to finish, then, in live mode, closes every open position.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine: not running")
	}
	e.running = false
	close(e.stopChan)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timeout := e.config.LoopDrainTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		e.logger.Warn("engine stop: loop drain timed out")
	}

	if e.config.Mode == types.ModeLive {
		e.ForceCloseAll(context.Background(), "engine stop", nil)
	}

	e.logger.Info("engine stopped")
	return nil
}

// GetStatus reports the engine's current lifecycle/composition snapshot,
// win rate, net P&L, per-platform scan counters, and open-position summary
// (§6.6 get_status).
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	scans := make(map[types.Platform]int, len(e.scansByPlatform))
	for platform, count := range e.scansByPlatform {
		scans[platform] = count
	}

	now := time.Now()
	positions := make([]PositionSummary, 0, len(e.activePositions))
	for _, p := range e.activePositions {
		positions = append(positions, PositionSummary{
			Symbol:      p.Symbol,
			EntryPrice:  p.EntryPrice,
			MinutesHeld: p.MinutesHeld(now),
		})
	}

	return Status{
		Running:         e.running,
		Mode:            e.config.Mode,
		OpenPositions:   len(e.activePositions),
		WatchlistSize:   len(e.watchlist),
		BlacklistSize:   len(e.blacklist),
		WinRate:         e.stats.WinRate(),
		NetPnL:          e.stats.TotalPnL,
		ScansByPlatform: scans,
		ActivePositions: positions,
	}
}

// GetStats reports cumulative trading statistics (§6.6 get_stats).
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// RealizedPnL reports cumulative realized P&L across all closed positions,
// the figure the agent's capital tracking marks to (§4.3).
func (e *Engine) RealizedPnL() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats.TotalPnL
}

// ActivePositions returns a snapshot slice of currently tracked positions,
// used by the agent's state discretization (§4.3) and the API layer.
func (e *Engine) ActivePositions() []*types.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Position, 0, len(e.activePositions))
	for _, p := range e.activePositions {
		out = append(out, p)
	}
	return out
}

// UpdateStrategy swaps in a new Strategy, the hook C3's optimizer uses to
// tune entry/exit/sizing parameters (§4.3).
func (e *Engine) UpdateStrategy(s types.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
}

// Strategy returns the currently active strategy.
func (e *Engine) Strategy() types.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy
}

func (e *Engine) publishError(source string, err error) {
	if e.bus == nil || err == nil {
		return
	}
	e.bus.Publish(events.NewErrorEvent(source, err.Error()))
}

// defaultBuyAmount resolves the strategy's base trade size, using 0.1 when
// it is zero; the position sizer is not consulted.
func (e *Engine) defaultBuyAmount() decimal.Decimal {
	e.mu.RLock()
	base := e.strategy.Sizing.BaseAmountSOL
	e.mu.RUnlock()
	if base.IsZero() {
		return decimal.NewFromFloat(0.1)
	}
	return base
}

func generatePositionID() string { return utils.GenerateID("pos") }
