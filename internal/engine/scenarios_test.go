package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/execution"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// TestRiskScoreMatchesScenarioS1 encodes spec.md §8 scenario S1's literal
// risk-score arithmetic.
func TestRiskScoreMatchesScenarioS1(t *testing.T) {
	token := &types.Token{}
	token.SetLiquidity(d(8))
	token.SetMarketCap(d(50))
	token.SetHolders(40)
	token.SetVolume24h(d(3))
	token.SetVerified(true)

	score := riskScore(token)
	want := d(0.3625)
	if score.Sub(want).Abs().GreaterThan(d(0.0001)) {
		t.Fatalf("expected risk score ~0.3625, got %s", score)
	}
}

// TestScanLoopScenarioS1SimulatesStopLossExit runs the full buy-then-exit
// path for scenario S1: a favorable token is admitted, bought in simulation
// mode, and the monitor loop closes it on a stop-loss hit with the exact
// expected PnL.
func TestScanLoopScenarioS1SimulatesStopLossExit(t *testing.T) {
	logger := zap.NewNop()
	sim := execution.NewSimulator(logger, execution.SimulatorConfig{
		BaseSlippageBps:  decimal.Zero,
		ImpactFactor:     decimal.Zero,
		FallbackPriceUSD: d(0.001),
	})
	executor := execution.New(logger, execution.Config{Mode: types.ModeSimulation}, sim)

	strategy := types.DefaultStrategy()

	e := New(logger, Config{Engine: types.DefaultEngineConfig(), Strategy: strategy}, Dependencies{Executor: executor})

	token := &types.Token{Address: "tok1", Platform: types.PlatformPumpFun, DiscoveredAt: time.Now(), PriceUSD: d(0.001)}
	token.SetLiquidity(d(8))
	token.SetMarketCap(d(50))
	token.SetHolders(40)
	token.SetVolume24h(d(3))
	token.SetVerified(true)

	e.admitToken(context.Background(), token)

	positions := e.ActivePositions()
	if len(positions) != 1 {
		t.Fatalf("expected one open position after admitting a favorable token, got %d", len(positions))
	}
	pos := positions[0]
	if !pos.StopLoss.Equal(d(0.00075)) {
		t.Fatalf("expected stop_loss=0.00075, got %s", pos.StopLoss)
	}
	if !pos.TakeProfit.Equal(d(0.002)) {
		t.Fatalf("expected take_profit=0.002, got %s", pos.TakeProfit)
	}

	// Force a price below the stop loss and run the monitor tick.
	sim.Fill(&types.Trade{Kind: types.OrderSideSell, TokenAddress: "tok1"}, d(0.00070))
	pos.CurrentPrice = d(0.00070)

	e.evaluatePosition(context.Background(), pos, strategy.Exit)

	stats := e.GetStats()
	if stats.PositionsClosed != 1 || stats.LosingTrades != 1 {
		t.Fatalf("expected one losing closed trade, got stats=%+v", stats)
	}
	wantPnL := d(-0.03)
	if stats.TotalPnL.Sub(wantPnL).Abs().GreaterThan(d(0.0001)) {
		t.Fatalf("expected pnl ~ -0.03, got %s", stats.TotalPnL)
	}
	if stats.WorstTrade.Sub(wantPnL).Abs().GreaterThan(d(0.0001)) {
		t.Fatalf("expected worst_trade ~ -0.03, got %s", stats.WorstTrade)
	}
	if !stats.BestTrade.Equal(stats.WorstTrade) {
		t.Fatalf("expected best_trade to equal worst_trade with a single closed trade, got best=%s worst=%s", stats.BestTrade, stats.WorstTrade)
	}
}

// TestTrailingStopScenarioS2 encodes spec.md §8 scenario S2.
func TestTrailingStopScenarioS2(t *testing.T) {
	position := &types.Position{
		EntryPrice:       d(1.0),
		HighestSeenPrice: d(1.0),
		StopLoss:         d(0.75),
		TakeProfit:       d(2.0),
		EntryTime:        time.Now(),
	}
	trailingFrac := d(0.15)

	for _, price := range []float64{1.0, 1.5, 1.8, 1.55} {
		updateTrailingStop(position, d(price), trailingFrac)
	}

	if !position.HighestSeenPrice.Equal(d(1.8)) {
		t.Fatalf("expected highest_seen=1.8, got %s", position.HighestSeenPrice)
	}
	if position.TrailingStopRef == nil || position.TrailingStopRef.Sub(d(1.53)).Abs().GreaterThan(d(0.0001)) {
		t.Fatalf("expected trailing_ref~1.53, got %v", position.TrailingStopRef)
	}

	reason, exit := exitReason(position, d(1.55), 60, time.Now())
	if exit {
		t.Fatalf("expected no exit at 1.55, got %q", reason)
	}

	updateTrailingStop(position, d(1.52), trailingFrac)
	reason, exit = exitReason(position, d(1.52), 60, time.Now())
	if !exit || reason != "Trailing stop hit" {
		t.Fatalf("expected trailing stop hit at 1.52, got exit=%v reason=%q", exit, reason)
	}
}

// TestAIOverlayVetoScenarioS6 encodes spec.md §8 scenario S6: a confident
// "avoid" decision vetoes a buy the risk-score rule alone would have taken.
func TestAIOverlayVetoScenarioS6(t *testing.T) {
	score := d(0.45)
	decision := &types.AIDecision{Decision: "avoid", Confidence: d(0.82)}

	buy, _, _ := evaluateBuyDecision(decision, score, d(0.1))
	if buy {
		t.Fatal("expected the confident avoid decision to veto the buy")
	}
}

func TestExitReasonPriorityOrder(t *testing.T) {
	position := &types.Position{
		EntryPrice:       d(1.0),
		StopLoss:         d(0.8),
		TakeProfit:       d(1.5),
		HighestSeenPrice: d(1.0),
	}
	ref := d(0.9)
	position.TrailingStopRef = &ref

	reason, exit := exitReason(position, d(0.75), 60, time.Now())
	if !exit || reason != "Stop loss hit" {
		t.Fatalf("expected stop loss to take priority, got %q", reason)
	}

	reason, exit = exitReason(position, d(1.6), 60, time.Now())
	if !exit || reason != "Take profit hit" {
		t.Fatalf("expected take profit, got %q", reason)
	}
}
