package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/internal/persistence"
	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

const (
	qtableBlobKey     = "agent_qtable"
	strategyBlobKey   = "agent_strategy"
	performanceBlobKey = "agent_performance"

	optimizerEvery = 10 // §4.3 "every 10 recorded trades"
)

// TradingEngine is the narrow slice of internal/engine.Engine the agent
// observes and acts through (§5: "the agent interacts... through
// well-defined getters", plus the direct actuation authority over exits
// and strategy tuning that §4.3/§5 grant it). A plain interface keeps
// internal/agent testable without spinning up a real Engine.
type TradingEngine interface {
	ActivePositions() []*types.Position
	Strategy() types.Strategy
	UpdateStrategy(types.Strategy)
	ForceCloseAll(ctx context.Context, reason string, filter func(*types.Position) bool) int
	UnrealizedPnL(filter func(*types.Position) bool) decimal.Decimal
	EnterFromWatchlist(ctx context.Context, sizeMultiplier, stopLossMultiplier, takeProfitMultiplier decimal.Decimal) (*types.Position, error)
	RealizedPnL() decimal.Decimal
}

// DecisionRecord is one logged state/action/reward tuple (§6.7 "decision-log
// entries").
type DecisionRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	State     string          `json:"state"`
	Action    Action          `json:"action"`
	Reward    float64         `json:"reward"`
	Epsilon   float64         `json:"epsilon"`
}

// Performance is the §4.3 get_performance summary.
type Performance struct {
	TotalTrades       int             `json:"totalTrades"`
	WinningTrades     int             `json:"winningTrades"`
	LosingTrades      int             `json:"losingTrades"`
	WinRate           decimal.Decimal `json:"winRate"`
	StartingCapital   decimal.Decimal `json:"startingCapital"`
	CurrentCapital    decimal.Decimal `json:"currentCapital"`
	PeakCapital       decimal.Decimal `json:"peakCapital"`
	ROI               decimal.Decimal `json:"roi"`
	QTableSize        int             `json:"qTableSize"`
	Epsilon           float64         `json:"epsilon"`
}

// persistedState is the snapshot §4.3 "Persistence" writes on stop and
// periodically: qtable entries and strategy. Performance metrics are saved
// by saveSnapshot as their own blob. Recent trades are covered separately by internal/persistence.Store's shared
// trade ledger (the same one C2 appends to).
type persistedState struct {
	QTable   []Record        `json:"qtable"`
	Strategy types.Strategy  `json:"strategy"`
}

// Agent is C3: the autonomous decision agent.
type Agent struct {
	mu     sync.RWMutex
	logger *zap.Logger

	cfg              types.AgentConfig
	decisionInterval time.Duration

	qtable *QTable
	store  *persistence.Store
	bus    *events.Bus
	engine TradingEngine
	rng    *rand.Rand

	mode            types.EngineMode
	epsilon         float64
	startingCapital decimal.Decimal
	currentCapital  decimal.Decimal
	peakCapital     decimal.Decimal

	totalTrades       int
	winningTrades     int
	losingTrades      int
	consecutiveWins   int
	consecutiveLosses int
	tradesSinceOptimize     int
	tradesSinceDeepOptimize int

	history []DecisionRecord

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	eventSub *events.Subscription
}

// Config configures an Agent.
type Config struct {
	Agent            types.AgentConfig
	DecisionInterval time.Duration // default 10s
	HistoryLimit     int           // not read: the decision history always keeps the latest 500 records
}

// New constructs an Agent. rngSeed pins the epsilon-greedy random source
// for reproducible tests; pass time.Now().UnixNano() for production use.
func New(logger *zap.Logger, cfg Config, store *persistence.Store, bus *events.Bus, engine TradingEngine, rngSeed int64) *Agent {
	interval := cfg.DecisionInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Agent{
		logger:           logger.Named("agent"),
		cfg:              cfg.Agent,
		decisionInterval: interval,
		qtable:           NewQTable(),
		store:            store,
		bus:              bus,
		engine:           engine,
		rng:              rand.New(rand.NewSource(rngSeed)),
		epsilon:          cfg.Agent.ExplorationRate,
	}
}

// Start loads any prior QTable/strategy snapshot, spawns the decision loop,
// and subscribes to position-close events to drive the periodic optimizer
// (§4.3).
func (a *Agent) Start(ctx context.Context, mode types.EngineMode, startingCapital decimal.Decimal) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent: already running")
	}
	a.running = true
	a.mode = mode
	a.startingCapital = startingCapital
	a.currentCapital = startingCapital
	a.peakCapital = startingCapital
	a.stopChan = make(chan struct{})
	a.mu.Unlock()

	a.loadSnapshot()

	if a.bus != nil {
		a.eventSub = a.bus.Subscribe(events.TopicPositionClosed, a.onPositionClosed)
	}

	a.wg.Add(1)
	go a.loop(ctx)

	a.logger.Info("agent started", zap.String("mode", string(mode)), zap.String("startingCapital", startingCapital.String()))
	return nil
}

// Stop saves the QTable/strategy/performance snapshot, closes all positions
// when running in simulation mode (§4.3: "in scope: simulated"), and
// returns the final performance summary.
func (a *Agent) Stop(ctx context.Context) (Performance, error) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return Performance{}, fmt.Errorf("agent: not running")
	}
	a.running = false
	close(a.stopChan)
	mode := a.mode
	a.mu.Unlock()

	a.wg.Wait()

	if a.bus != nil && a.eventSub != nil {
		a.bus.Unsubscribe(a.eventSub)
	}

	if mode == types.ModeSimulation && a.engine != nil {
		a.engine.ForceCloseAll(ctx, "agent stop", nil)
	}

	a.saveSnapshot()

	return a.GetPerformance(), nil
}

// GetPerformance returns the current performance summary (§4.3).
func (a *Agent) GetPerformance() Performance {
	a.mu.RLock()
	defer a.mu.RUnlock()

	winRate := decimal.Zero
	if a.totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(a.winningTrades)).Div(decimal.NewFromInt(int64(a.totalTrades)))
	}
	roi := decimal.Zero
	if a.startingCapital.IsPositive() {
		roi = a.currentCapital.Sub(a.startingCapital).Div(a.startingCapital)
	}

	return Performance{
		TotalTrades:     a.totalTrades,
		WinningTrades:   a.winningTrades,
		LosingTrades:    a.losingTrades,
		WinRate:         winRate,
		StartingCapital: a.startingCapital,
		CurrentCapital:  a.currentCapital,
		PeakCapital:     a.peakCapital,
		ROI:             roi,
		QTableSize:      a.qtable.Len(),
		Epsilon:         a.epsilon,
	}
}

// GetDecisionHistory returns the most recent n decision records, oldest
// first within the returned slice.
func (a *Agent) GetDecisionHistory(n int) []DecisionRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if n <= 0 || n > len(a.history) {
		n = len(a.history)
	}
	out := make([]DecisionRecord, n)
	copy(out, a.history[len(a.history)-n:])
	return out
}

func (a *Agent) loop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.decisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.step(ctx)
		}
	}
}

// step runs one observe->select->act->observe'->update iteration (§5:
// "the simplest correct implementation serializes observe→select→act→
// observe'→update per iteration").
func (a *Agent) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent step panicked, resuming next tick", zap.Any("panic", r))
		}
	}()

	strategy := a.engine.Strategy()
	state := a.observe(strategy.Sizing.MaxPositions)
	available := AvailableActions(len(a.engine.ActivePositions()), strategy.Sizing.MaxPositions)

	a.mu.RLock()
	epsilon := a.epsilon
	a.mu.RUnlock()

	action := SelectAction(a.qtable, state, available, epsilon, a.rng)
	reward := a.execute(ctx, action, strategy)

	nextStrategy := a.engine.Strategy()
	nextState := a.observe(nextStrategy.Sizing.MaxPositions)
	nextAvailable := AvailableActions(len(a.engine.ActivePositions()), nextStrategy.Sizing.MaxPositions)

	a.qtable.Update(state, action, reward, a.cfg.LearningRate, a.cfg.DiscountFactor, nextState, nextAvailable)

	a.mu.Lock()
	a.epsilon = DecayEpsilon(a.epsilon, a.cfg.ExplorationDecay, a.cfg.MinExploration)
	a.history = append(a.history, DecisionRecord{Timestamp: time.Now(), State: state.Key(), Action: action, Reward: reward, Epsilon: a.epsilon})
	if limit := 500; len(a.history) > limit {
		a.history = a.history[len(a.history)-limit:]
	}
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.NewDecisionLoggedEvent("", string(action)))
	}
}

// observe builds the Observation the current tick's state is discretized
// from. currentCapital marks positions to market: starting capital plus
// realized P&L already folded into a.currentCapital by onPositionClosed,
// plus any still-open unrealized P&L.
func (a *Agent) observe(maxPositions int) State {
	positions := a.engine.ActivePositions()
	unrealized := a.engine.UnrealizedPnL(nil)

	a.mu.Lock()
	markedCapital := a.currentCapital.Add(unrealized)
	if markedCapital.GreaterThan(a.peakCapital) {
		a.peakCapital = markedCapital
	}
	winRate := decimal.Zero
	if a.totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(a.winningTrades)).Div(decimal.NewFromInt(int64(a.totalTrades)))
	}
	obs := Observation{
		OpenPositions:     len(positions),
		StartingCapital:   a.startingCapital,
		CurrentCapital:    markedCapital,
		PeakCapital:       a.peakCapital,
		WinRate:           winRate,
		ConsecutiveWins:   a.consecutiveWins,
		ConsecutiveLosses: a.consecutiveLosses,
		Now:               time.Now(),
	}
	a.mu.Unlock()

	return Discretize(obs)
}

// execute runs action's side effects and returns its reward, per §4.3's
// reward model. Any panic during execution is converted into the §4.3
// failure reward rather than propagating.
func (a *Agent) execute(ctx context.Context, action Action, strategy types.Strategy) (reward float64) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("action execution panicked", zap.String("action", string(action)), zap.Any("panic", r))
			reward = failureReward
		}
	}()

	if fixed, ok := fixedReward(action); ok && action != ActionWait {
		a.tuneStrategy(action, strategy)
		return fixed
	}
	if action == ActionWait {
		return waitPenalty
	}

	baseAmount := strategy.Sizing.BaseAmountSOL

	switch action {
	case ActionEnterAggressive:
		// synthetic outcome: entry price equals current price at the instant
		// of the fill, so the realized reward is zero regardless of whether
		// a candidate was available; real signal arrives via a later exit_*.
		if _, err := a.engine.EnterFromWatchlist(ctx, decimal.NewFromFloat(1.5), decimal.NewFromFloat(1.2), decimal.NewFromFloat(1.3)); err != nil {
			return failureReward
		}
		return rewardForEnter(decimal.Zero, baseAmount)

	case ActionEnterConservative:
		if _, err := a.engine.EnterFromWatchlist(ctx, decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.7), decimal.NewFromFloat(0.7)); err != nil {
			return failureReward
		}
		return rewardForEnter(decimal.Zero, baseAmount)

	case ActionExitAll:
		total := a.engine.UnrealizedPnL(nil)
		a.engine.ForceCloseAll(ctx, "agent exit_all", nil)
		return rewardForExitAll(total, baseAmount)

	case ActionExitLosers:
		isLoser := func(p *types.Position) bool { return p.CurrentPrice.LessThan(p.EntryPrice) }
		sum := a.engine.UnrealizedPnL(isLoser)
		a.engine.ForceCloseAll(ctx, "agent exit_losers", isLoser)
		return rewardForExitLosers(sum, baseAmount)

	case ActionExitWinners:
		isWinner := func(p *types.Position) bool { return p.CurrentPrice.GreaterThan(p.EntryPrice) }
		sum := a.engine.UnrealizedPnL(isWinner)
		a.engine.ForceCloseAll(ctx, "agent exit_winners", isWinner)
		return rewardForExitWinners(sum, baseAmount)
	}

	return 0
}

// tuneStrategy applies the four strategy-tuner actions' side effects: the
// agent is the sole writer of strategy parameters it's allowed to move
// (§5), expressed here as multiplicative nudges on the engine's live
// Strategy.
func (a *Agent) tuneStrategy(action Action, strategy types.Strategy) {
	switch action {
	case ActionTightenStops:
		strategy.Exit.StopLossFrac = strategy.Exit.StopLossFrac.Mul(decimal.NewFromFloat(0.9))
		strategy.Exit.TrailingStopFrac = strategy.Exit.TrailingStopFrac.Mul(decimal.NewFromFloat(0.9))
	case ActionLoosenStops:
		strategy.Exit.StopLossFrac = strategy.Exit.StopLossFrac.Mul(decimal.NewFromFloat(1.1))
		strategy.Exit.TrailingStopFrac = strategy.Exit.TrailingStopFrac.Mul(decimal.NewFromFloat(1.1))
	case ActionIncreaseSize:
		strategy.Sizing.BaseAmountSOL = strategy.Sizing.BaseAmountSOL.Mul(decimal.NewFromFloat(1.1))
	case ActionDecreaseSize:
		strategy.Sizing.BaseAmountSOL = strategy.Sizing.BaseAmountSOL.Mul(decimal.NewFromFloat(0.9))
	default:
		return
	}
	a.engine.UpdateStrategy(strategy)
}

// onPositionClosed updates realized-capital bookkeeping and the win/loss
// streak whenever any position closes, whether via the monitor loop's own
// exit check or one of the agent's own exit_* actions, then runs the
// adaptive optimizer every optimizerEvery trades and the deeper
// walk-forward/Monte Carlo pass every deepOptimizeEvery trades (§4.3).
func (a *Agent) onPositionClosed(ev events.Event) error {
	closed, ok := ev.(*events.PositionClosedEvent)
	if !ok {
		return nil
	}

	a.mu.Lock()
	a.totalTrades++
	a.tradesSinceOptimize++
	a.tradesSinceDeepOptimize++
	if closed.Outcome == string(types.OutcomeWin) {
		a.winningTrades++
		a.consecutiveWins++
		a.consecutiveLosses = 0
	} else {
		a.losingTrades++
		a.consecutiveLosses++
		a.consecutiveWins = 0
	}
	shouldOptimize := a.tradesSinceOptimize >= optimizerEvery
	if shouldOptimize {
		a.tradesSinceOptimize = 0
	}
	shouldDeepOptimize := a.tradesSinceDeepOptimize >= deepOptimizeEvery
	if shouldDeepOptimize {
		a.tradesSinceDeepOptimize = 0
	}
	a.mu.Unlock()

	if a.engine != nil {
		realized := a.engine.RealizedPnL()
		a.mu.Lock()
		a.currentCapital = a.startingCapital.Add(realized)
		if a.currentCapital.GreaterThan(a.peakCapital) {
			a.peakCapital = a.currentCapital
		}
		a.mu.Unlock()
	}

	if shouldOptimize {
		a.runOptimizer()
	}
	if shouldDeepOptimize {
		a.runDeepOptimizer()
	}
	return nil
}

// runOptimizer applies §4.3's adaptive strategy optimizer over the last
// persisted trades every 10 recorded closes.
func (a *Agent) runOptimizer() {
	if a.store == nil || a.engine == nil {
		return
	}
	recent, err := a.store.RecentTrades()
	if err != nil || len(recent) == 0 {
		return
	}

	var pnls, returns []decimal.Decimal
	for _, t := range recent {
		if t.PnL == nil {
			continue
		}
		pnls = append(pnls, *t.PnL)
		if t.Amount.IsPositive() {
			returns = append(returns, t.PnL.Div(t.Amount))
		}
	}
	if len(pnls) == 0 {
		return
	}

	winRate := utils.CalculateWinRate(pnls)
	sharpe := utils.CalculateSharpeRatio(returns, decimal.Zero, 365)

	a.mu.RLock()
	consecutiveLosses := a.consecutiveLosses
	a.mu.RUnlock()

	strategy := a.engine.Strategy()
	changed := false

	if winRate.LessThan(decimal.NewFromFloat(0.4)) {
		strategy.Exit.StopLossFrac = strategy.Exit.StopLossFrac.Mul(decimal.NewFromFloat(0.95))
		strategy.Sizing.BaseAmountSOL = strategy.Sizing.BaseAmountSOL.Mul(decimal.NewFromFloat(0.9))
		changed = true
	} else if winRate.GreaterThan(decimal.NewFromFloat(0.6)) && sharpe.GreaterThan(decimal.NewFromFloat(1.5)) {
		strategy.Sizing.BaseAmountSOL = strategy.Sizing.BaseAmountSOL.Mul(decimal.NewFromFloat(1.05))
		changed = true
	}
	if consecutiveLosses >= 3 {
		strategy.Entry.MinLiquidity = strategy.Entry.MinLiquidity.Mul(decimal.NewFromFloat(1.2))
		changed = true
	}

	if changed {
		a.engine.UpdateStrategy(strategy)
		a.logger.Info("adaptive strategy optimizer adjusted strategy",
			zap.String("winRate", winRate.String()), zap.String("sharpe", sharpe.String()))
	}

	a.saveSnapshot()
}

func (a *Agent) loadSnapshot() {
	if a.store == nil {
		return
	}
	var snap persistedState
	if err := a.store.LoadBlob(qtableBlobKey, &snap); err != nil {
		return
	}
	a.qtable.LoadRecords(snap.QTable)
	if a.engine != nil && snap.Strategy.Sizing.BaseAmountSOL.IsPositive() {
		a.engine.UpdateStrategy(snap.Strategy)
	}
}

func (a *Agent) saveSnapshot() {
	if a.store == nil {
		return
	}
	var strategy types.Strategy
	if a.engine != nil {
		strategy = a.engine.Strategy()
	}
	snap := persistedState{QTable: a.qtable.Records(), Strategy: strategy}
	if err := a.store.SaveBlob(qtableBlobKey, snap); err != nil {
		a.logger.Warn("failed to persist qtable snapshot", zap.Error(err))
	}
	if err := a.store.SaveBlob(strategyBlobKey, strategy); err != nil {
		a.logger.Warn("failed to persist strategy snapshot", zap.Error(err))
	}
	if err := a.store.SaveBlob(performanceBlobKey, a.GetPerformance()); err != nil {
		a.logger.Warn("failed to persist performance snapshot", zap.Error(err))
	}
}
