package execution_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/execution"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func TestSimulationFillAppliesSlippageBySide(t *testing.T) {
	sim := execution.NewSimulator(zap.NewNop(), execution.DefaultSimulatorConfig())
	ex := execution.New(zap.NewNop(), execution.Config{Mode: types.ModeSimulation}, sim)

	buy := &types.Trade{Kind: types.OrderSideBuy, TokenAddress: "tok1", Amount: decimal.NewFromFloat(10)}
	fillPrice, sig, err := ex.ExecuteTrade(context.Background(), "pump.fun", buy, decimal.NewFromFloat(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == "" {
		t.Fatal("expected a synthesized signature")
	}
	if !fillPrice.GreaterThan(decimal.NewFromFloat(1)) {
		t.Fatalf("expected buy fill above quote price due to slippage, got %s", fillPrice)
	}

	sell := &types.Trade{Kind: types.OrderSideSell, TokenAddress: "tok1", Amount: decimal.NewFromFloat(10)}
	sellFill, _, err := ex.ExecuteTrade(context.Background(), "pump.fun", sell, decimal.NewFromFloat(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sellFill.LessThan(decimal.NewFromFloat(1)) {
		t.Fatalf("expected sell fill below quote price due to slippage, got %s", sellFill)
	}
}

func TestSimulationQuoteFallsBackToPlaceholder(t *testing.T) {
	sim := execution.NewSimulator(zap.NewNop(), execution.DefaultSimulatorConfig())
	price := sim.Quote("unknown-token", decimal.Zero)
	if !price.Equal(decimal.NewFromFloat(0.001)) {
		t.Fatalf("expected the spec's 0.001 placeholder, got %s", price)
	}
}

func TestRiskManagerTripsOnDailyLoss(t *testing.T) {
	limits := types.RiskLimits{
		MaxDailyLoss:         decimal.NewFromInt(1),
		MaxConsecutiveLosses: 100,
		CooldownPeriod:       time.Hour,
	}
	rm := execution.NewRiskManager(zap.NewNop(), limits)
	now := time.Now()

	if !rm.CanOpenPosition(now) {
		t.Fatal("expected trading permitted before any losses")
	}

	rm.RecordTrade(now, decimal.NewFromFloat(-1.5))

	if rm.CanOpenPosition(now) {
		t.Fatal("expected kill switch engaged after breaching daily loss limit")
	}
}

func TestRiskManagerTripsOnConsecutiveLosses(t *testing.T) {
	limits := types.RiskLimits{
		MaxDailyLoss:         decimal.NewFromInt(1000),
		MaxConsecutiveLosses: 3,
		CooldownPeriod:       time.Hour,
	}
	rm := execution.NewRiskManager(zap.NewNop(), limits)
	now := time.Now()

	rm.RecordTrade(now, decimal.NewFromFloat(-0.1))
	rm.RecordTrade(now, decimal.NewFromFloat(-0.1))
	if !rm.CanOpenPosition(now) {
		t.Fatal("should not trip before reaching the consecutive-loss limit")
	}
	rm.RecordTrade(now, decimal.NewFromFloat(-0.1))

	if rm.CanOpenPosition(now) {
		t.Fatal("expected kill switch engaged after 3 consecutive losses")
	}
}
