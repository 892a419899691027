package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/marketdata"
	"github.com/atlas-desktop/nova-trader/internal/ml"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

type fakeMarket struct {
	quotes map[string]types.Quote
	history map[string][]types.HistoricalPoint
}

func (f *fakeMarket) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	return f.quotes[symbol], nil
}

func (f *fakeMarket) GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval marketdata.Interval) ([]types.HistoricalPoint, error) {
	return f.history[symbol], nil
}

type fakePattern struct{ matches []ml.PatternMatch }

func (f *fakePattern) Detect(history []ml.HistoryPoint) []ml.PatternMatch { return f.matches }

type fakeSentiment struct{ result ml.SentimentResult }

func (f *fakeSentiment) Analyze(history []ml.HistoryPoint, currentPrice decimal.Decimal) ml.SentimentResult {
	return f.result
}

type fakeAnomaly struct{ result ml.AnomalyResult }

func (f *fakeAnomaly) Detect(history []ml.HistoryPoint, currentPrice decimal.Decimal) ml.AnomalyResult {
	return f.result
}

func newTestManager(market *fakeMarket, pattern ml.PatternRecognizer, sentiment ml.SentimentAnalyzer, anomaly ml.AnomalyDetector, onTrigger OnTrigger) *Manager {
	return New(zap.NewNop(), Dependencies{
		Market:    market,
		Pattern:   pattern,
		Sentiment: sentiment,
		Anomaly:   anomaly,
	}, onTrigger)
}

func TestAddAlertAssignsIDAndRegisters(t *testing.T) {
	m := newTestManager(&fakeMarket{}, nil, nil, nil, nil)
	defer m.Stop()

	id, err := m.AddAlert(context.Background(), types.Alert{Type: types.AlertTypePrice, Symbol: "BTC", Op: types.OpGreater, Threshold: decimal.NewFromInt(50000)})
	if err != nil {
		t.Fatalf("AddAlert returned error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated alert ID")
	}

	alerts := m.GetAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Triggered {
		t.Error("new alert should not start triggered")
	}
}

func TestRemoveAlertStopsMonitoringWhenEmpty(t *testing.T) {
	m := newTestManager(&fakeMarket{}, nil, nil, nil, nil)
	id, _ := m.AddAlert(context.Background(), types.Alert{Type: types.AlertTypePrice, Symbol: "BTC"})

	if err := m.RemoveAlert(id); err != nil {
		t.Fatalf("RemoveAlert returned error: %v", err)
	}
	if len(m.GetAlerts()) != 0 {
		t.Error("expected alert list to be empty after removal")
	}
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if running {
		t.Error("expected monitoring to stop once the last alert is removed")
	}
	if err := m.RemoveAlert(id); err == nil {
		t.Error("expected error removing an already-removed alert")
	}
}

func TestEvaluatePriceTriggersOnThresholdCross(t *testing.T) {
	market := &fakeMarket{quotes: map[string]types.Quote{"BTC": {Price: decimal.NewFromInt(49950)}}}
	m := newTestManager(market, nil, nil, nil, nil)
	alert := &types.Alert{ID: "a1", Type: types.AlertTypePrice, Symbol: "BTC", Op: types.OpGreater, Threshold: decimal.NewFromInt(50000)}

	triggered, _, err := m.evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if triggered {
		t.Fatal("should not trigger below threshold")
	}

	market.quotes["BTC"] = types.Quote{Price: decimal.NewFromInt(50005)}
	triggered, data, err := m.evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if !triggered {
		t.Fatal("expected trigger once price crosses threshold")
	}
	if data["price"] == "" {
		t.Error("expected trigger data to include price")
	}
}

func TestFireOnlyTriggersOnce(t *testing.T) {
	calls := 0
	m := newTestManager(&fakeMarket{}, nil, nil, nil, func(alert types.Alert, data map[string]any) { calls++ })

	alert := &types.Alert{ID: "a2", Type: types.AlertTypePrice, Symbol: "BTC"}
	m.mu.Lock()
	m.alerts[alert.ID] = alert
	m.mu.Unlock()

	m.fire(alert, map[string]any{"x": 1})
	m.fire(alert, map[string]any{"x": 2}) // second call must be a no-op

	if calls != 1 {
		t.Errorf("onTrigger called %d times, want 1", calls)
	}

	alerts := m.GetAlerts()
	if !alerts[0].Triggered || alerts[0].TriggeredAt == nil {
		t.Error("expected alert to be marked triggered with a timestamp")
	}
}

func TestEvaluatePatternMatchesSubstringCaseInsensitive(t *testing.T) {
	market := &fakeMarket{history: map[string][]types.HistoricalPoint{"SOL": {{Timestamp: time.Now(), Price: decimal.NewFromInt(100)}}}}
	pattern := &fakePattern{matches: []ml.PatternMatch{{Name: "Uptrend Breakout", Confidence: decimal.NewFromFloat(0.8)}}}
	m := newTestManager(market, pattern, nil, nil, nil)

	alert := &types.Alert{ID: "a3", Type: types.AlertTypePattern, Symbol: "SOL", TargetSubstring: "breakout"}
	triggered, data, err := m.evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if !triggered {
		t.Fatal("expected pattern match to trigger")
	}
	if data["pattern"] != "Uptrend Breakout" {
		t.Errorf("unexpected trigger data: %v", data)
	}
}

func TestEvaluateAnomalyRequiresPositiveCount(t *testing.T) {
	market := &fakeMarket{
		quotes:  map[string]types.Quote{"ETH": {Price: decimal.NewFromInt(2000)}},
		history: map[string][]types.HistoricalPoint{"ETH": {{Timestamp: time.Now(), Price: decimal.NewFromInt(2000)}}},
	}
	anomaly := &fakeAnomaly{result: ml.AnomalyResult{TotalAnomalies: 0}}
	m := newTestManager(market, nil, nil, anomaly, nil)

	alert := &types.Alert{ID: "a4", Type: types.AlertTypeAnomaly, Symbol: "ETH"}
	triggered, _, err := m.evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if triggered {
		t.Fatal("zero anomalies should not trigger")
	}

	anomaly.result = ml.AnomalyResult{TotalAnomalies: 2, Descriptions: []string{"volume spike"}}
	triggered, data, err := m.evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("evaluate returned error: %v", err)
	}
	if !triggered {
		t.Fatal("expected anomaly count > 0 to trigger")
	}
	if data["totalAnomalies"] != 2 {
		t.Errorf("unexpected trigger data: %v", data)
	}
}

func TestGetAlertStatsCountsByTypeAndTriggerState(t *testing.T) {
	m := newTestManager(&fakeMarket{}, nil, nil, nil, nil)
	defer m.Stop()
	ctx := context.Background()
	id1, _ := m.AddAlert(ctx, types.Alert{Type: types.AlertTypePrice, Symbol: "BTC"})
	_, _ = m.AddAlert(ctx, types.Alert{Type: types.AlertTypeAnomaly, Symbol: "ETH"})

	m.mu.Lock()
	m.alerts[id1].Triggered = true
	m.mu.Unlock()

	stats := m.GetAlertStats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", stats.Triggered)
	}
	if stats.Pending != 1 {
		t.Errorf("Pending = %d, want 1", stats.Pending)
	}
	if stats.ByType[types.AlertTypePrice] != 1 || stats.ByType[types.AlertTypeAnomaly] != 1 {
		t.Errorf("unexpected ByType breakdown: %+v", stats.ByType)
	}
}

func TestClearAllRemovesEverything(t *testing.T) {
	m := newTestManager(&fakeMarket{}, nil, nil, nil, nil)
	ctx := context.Background()
	_, _ = m.AddAlert(ctx, types.Alert{Type: types.AlertTypePrice, Symbol: "BTC"})
	_, _ = m.AddAlert(ctx, types.Alert{Type: types.AlertTypePrice, Symbol: "ETH"})

	m.ClearAll()

	if len(m.GetAlerts()) != 0 {
		t.Error("expected no alerts after ClearAll")
	}
}
