package agent

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// deepOptimizeEvery is the cadence of §4.3's supplemental deeper pass: a
// walk-forward consistency check over recent closed trades, gated by a
// viability check and a Monte Carlo robustness check on their returns.
// It runs far less often than the every-10-trades adaptive optimizer and
// only ever proposes further tightening on top of it, never loosening.
const deepOptimizeEvery = 50

// viabilityThresholds gates whether a walk-forward window's out-of-sample
// performance is trustworthy enough to act on.
type viabilityThresholds struct {
	MinWinRate     decimal.Decimal
	MinSharpe      decimal.Decimal
	MaxDrawdown    decimal.Decimal
	MinSampleTrades int
}

func defaultViabilityThresholds() viabilityThresholds {
	return viabilityThresholds{
		MinWinRate:      decimal.NewFromFloat(0.35),
		MinSharpe:       decimal.NewFromFloat(0.5),
		MaxDrawdown:     decimal.NewFromFloat(0.4),
		MinSampleTrades: 10,
	}
}

// isViable reports whether m clears every threshold in v.
func (v viabilityThresholds) isViable(m types.PerformanceMetrics) bool {
	return m.TotalTrades >= v.MinSampleTrades &&
		m.WinRate.GreaterThanOrEqual(v.MinWinRate) &&
		m.SharpeRatio.GreaterThanOrEqual(v.MinSharpe) &&
		m.MaxDrawdown.LessThanOrEqual(v.MaxDrawdown)
}

// computeMetrics summarizes a contiguous slice of closed trades into a
// PerformanceMetrics snapshot, reusing the same pkg/utils statistics the
// adaptive optimizer's win-rate/Sharpe check already calls.
func computeMetrics(trades []*types.Trade) types.PerformanceMetrics {
	var pnls, returns, equity []decimal.Decimal
	running := decimal.Zero
	wins, losses := 0, 0
	var largestWin, largestLoss decimal.Decimal

	for _, t := range trades {
		if t.PnL == nil {
			continue
		}
		pnl := *t.PnL
		pnls = append(pnls, pnl)
		running = running.Add(pnl)
		equity = append(equity, running)
		if t.Amount.IsPositive() {
			returns = append(returns, pnl.Div(t.Amount))
		}
		if pnl.IsPositive() {
			wins++
			if pnl.GreaterThan(largestWin) {
				largestWin = pnl
			}
		} else {
			losses++
			if pnl.LessThan(largestLoss) {
				largestLoss = pnl
			}
		}
	}

	total := wins + losses
	m := types.PerformanceMetrics{
		TotalReturn:   running,
		SharpeRatio:   utils.CalculateSharpeRatio(returns, decimal.Zero, 365),
		MaxDrawdown:   utils.CalculateMaxDrawdown(equity),
		WinRate:       utils.CalculateWinRate(pnls),
		ProfitFactor:  utils.CalculateProfitFactor(pnls),
		TotalTrades:   total,
		WinningTrades: wins,
		LosingTrades:  losses,
		LargestWin:    largestWin,
		LargestLoss:   largestLoss,
	}
	if total > 0 {
		m.Expectancy = running.Div(decimal.NewFromInt(int64(total)))
	}
	return m
}

// walkForward splits trades chronologically into a fixed number of
// in-sample/out-of-sample window pairs and reports how consistently
// out-of-sample performance tracked in-sample performance (§4.3's deeper
// pass). Each window uses the first two-thirds of its slice as in-sample
// and the remainder as out-of-sample.
func walkForward(trades []*types.Trade, windows int) types.WalkForwardResult {
	if windows <= 0 || len(trades) < windows*6 {
		return types.WalkForwardResult{}
	}

	windowSize := len(trades) / windows
	result := types.WalkForwardResult{Windows: make([]types.WalkForwardWindow, 0, windows)}

	var consistencyScores []decimal.Decimal
	for i := 0; i < windows; i++ {
		start := i * windowSize
		end := start + windowSize
		if end > len(trades) {
			end = len(trades)
		}
		chunk := trades[start:end]
		if len(chunk) < 6 {
			continue
		}

		splitAt := len(chunk) * 2 / 3
		inSample := chunk[:splitAt]
		outSample := chunk[splitAt:]
		inMetrics := computeMetrics(inSample)
		outMetrics := computeMetrics(outSample)

		result.Windows = append(result.Windows, types.WalkForwardWindow{
			InSampleStart:    inSample[0].Timestamp,
			InSampleEnd:      inSample[len(inSample)-1].Timestamp,
			OutSampleStart:   outSample[0].Timestamp,
			OutSampleEnd:     outSample[len(outSample)-1].Timestamp,
			InSampleMetrics:  &inMetrics,
			OutSampleMetrics: &outMetrics,
		})

		// A window is "consistent" when out-of-sample win rate holds up to
		// at least half of in-sample win rate — a cheap proxy for overfit
		// parameters that only work on the data that produced them.
		if inMetrics.WinRate.IsPositive() {
			consistencyScores = append(consistencyScores, utils.MinDecimal(
				decimal.NewFromInt(1),
				outMetrics.WinRate.Div(inMetrics.WinRate),
			))
		}
	}

	if len(consistencyScores) > 0 {
		result.Robustness = utils.CalculateMean(consistencyScores)
	}
	return result
}

// monteCarloRobustness bootstraps iterations resamplings (with
// replacement) of trade returns and reports the resulting return
// distribution, the §4.3 deeper pass's robustness check on whether the
// observed edge survives reshuffled trade order.
func monteCarloRobustness(returns []decimal.Decimal, iterations int, rng *rand.Rand) types.MonteCarloResult {
	if len(returns) == 0 || iterations <= 0 {
		return types.MonteCarloResult{}
	}

	totals := make([]decimal.Decimal, iterations)
	ruinCount := 0
	worstDrawdown := decimal.Zero

	for i := 0; i < iterations; i++ {
		running := decimal.Zero
		peak := decimal.Zero
		maxDD := decimal.Zero
		for range returns {
			r := returns[rng.Intn(len(returns))]
			running = running.Add(r)
			if running.GreaterThan(peak) {
				peak = running
			}
			dd := peak.Sub(running)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
		totals[i] = running
		if maxDD.GreaterThan(worstDrawdown) {
			worstDrawdown = maxDD
		}
		if running.LessThan(decimal.NewFromFloat(-0.5)) {
			ruinCount++
		}
	}

	sorted := append([]decimal.Decimal(nil), totals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].LessThan(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	return types.MonteCarloResult{
		Iterations:      iterations,
		MedianReturn:    percentile(sorted, 0.5),
		P5Return:        percentile(sorted, 0.05),
		P95Return:       percentile(sorted, 0.95),
		ProbabilityRuin: decimal.NewFromInt(int64(ruinCount)).Div(decimal.NewFromInt(int64(iterations))),
		MaxDrawdownP95:  worstDrawdown,
		Distribution:    sorted,
	}
}

func percentile(sorted []decimal.Decimal, p float64) decimal.Decimal {
	if len(sorted) == 0 {
		return decimal.Zero
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// runDeepOptimizer implements §4.3's supplemental deeper pass: a
// walk-forward consistency check gated by a viability threshold, followed
// by a Monte Carlo robustness check, before ever tightening the strategy
// further than the every-10-trades optimizer already has. Never loosens.
func (a *Agent) runDeepOptimizer() {
	if a.store == nil || a.engine == nil {
		return
	}
	recent, err := a.store.RecentTrades()
	if err != nil || len(recent) < 12 {
		return
	}

	closed := make([]*types.Trade, 0, len(recent))
	var returns []decimal.Decimal
	for _, t := range recent {
		if t.PnL == nil {
			continue
		}
		closed = append(closed, t)
		if t.Amount.IsPositive() {
			returns = append(returns, t.PnL.Div(t.Amount))
		}
	}
	if len(closed) < 12 {
		return
	}

	wf := walkForward(closed, 3)
	if len(wf.Windows) == 0 {
		return
	}
	overall := computeMetrics(closed)

	thresholds := defaultViabilityThresholds()
	if !thresholds.isViable(overall) {
		a.logger.Info("deep optimizer: overall performance not viable, skipping",
			zap.String("winRate", overall.WinRate.String()), zap.String("sharpe", overall.SharpeRatio.String()))
		return
	}

	// A dedicated RNG, not a.rng: onPositionClosed runs on the event bus's
	// async dispatch goroutine, while a.rng is owned by the decision
	// loop's step() goroutine and isn't safe to share across the two.
	mcRng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mc := monteCarloRobustness(returns, 500, mcRng)
	if mc.ProbabilityRuin.GreaterThan(decimal.NewFromFloat(0.05)) || mc.P5Return.LessThan(decimal.NewFromFloat(-0.3)) {
		a.logger.Info("deep optimizer: monte carlo robustness check failed, skipping",
			zap.String("probabilityRuin", mc.ProbabilityRuin.String()), zap.String("p5Return", mc.P5Return.String()))
		return
	}

	if wf.Robustness.LessThan(decimal.NewFromFloat(0.5)) {
		a.logger.Info("deep optimizer: walk-forward robustness too low, skipping",
			zap.String("robustness", wf.Robustness.String()))
		return
	}

	// Every gate passed: the strategy has survived a consistency check
	// across time windows and a bootstrap reshuffle of its own trade
	// returns. Apply one further tightening notch on top of whatever the
	// every-10-trades optimizer already did.
	strategy := a.engine.Strategy()
	strategy.Exit.StopLossFrac = strategy.Exit.StopLossFrac.Mul(decimal.NewFromFloat(0.97))
	strategy.Sizing.BaseAmountSOL = strategy.Sizing.BaseAmountSOL.Mul(decimal.NewFromFloat(0.97))
	a.engine.UpdateStrategy(strategy)

	a.logger.Info("deep optimizer: walk-forward + monte carlo checks passed, tightening further",
		zap.String("walkForwardRobustness", wf.Robustness.String()),
		zap.String("monteCarloMedianReturn", mc.MedianReturn.String()))

	a.saveSnapshot()
}
