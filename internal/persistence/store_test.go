package persistence_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/persistence"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func TestSaveAndLoadBlob(t *testing.T) {
	store, err := persistence.Open(zap.NewNop(), filepath.Join(t.TempDir(), "nova.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	strategy := types.DefaultStrategy()
	if err := store.SaveBlob("strategy", strategy); err != nil {
		t.Fatalf("SaveBlob failed: %v", err)
	}

	var loaded types.Strategy
	if err := store.LoadBlob("strategy", &loaded); err != nil {
		t.Fatalf("LoadBlob failed: %v", err)
	}
	if !loaded.Entry.MinLiquidity.Equal(strategy.Entry.MinLiquidity) {
		t.Fatalf("expected min liquidity %s, got %s", strategy.Entry.MinLiquidity, loaded.Entry.MinLiquidity)
	}
}

func TestAppendTradeTrimsToMax(t *testing.T) {
	store, err := persistence.Open(zap.NewNop(), filepath.Join(t.TempDir(), "nova.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	for i := 0; i < 105; i++ {
		trade := &types.Trade{
			Kind:         types.OrderSideSell,
			TokenAddress: "tok",
			Amount:       decimal.NewFromInt(1),
			Price:        decimal.NewFromInt(int64(i)),
			Timestamp:    time.Now(),
		}
		if err := store.AppendTrade(trade); err != nil {
			t.Fatalf("AppendTrade failed: %v", err)
		}
	}

	trades, err := store.RecentTrades()
	if err != nil {
		t.Fatalf("RecentTrades failed: %v", err)
	}
	if len(trades) != 100 {
		t.Fatalf("expected ledger trimmed to 100, got %d", len(trades))
	}
}

func TestAlertRoundTrip(t *testing.T) {
	store, err := persistence.Open(zap.NewNop(), filepath.Join(t.TempDir(), "nova.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	alert := &types.Alert{
		ID:        "alt_1",
		Type:      types.AlertTypePrice,
		Symbol:    "SOL",
		Op:        types.OpGreater,
		Threshold: decimal.NewFromInt(200),
		CreatedAt: time.Now(),
	}
	if err := store.SaveAlert(alert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	loaded, err := store.LoadAlerts()
	if err != nil {
		t.Fatalf("LoadAlerts failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "alt_1" {
		t.Fatalf("expected one alert with id alt_1, got %+v", loaded)
	}

	if err := store.DeleteAlert("alt_1"); err != nil {
		t.Fatalf("DeleteAlert failed: %v", err)
	}
	loaded, err = store.LoadAlerts()
	if err != nil {
		t.Fatalf("LoadAlerts failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no alerts after delete, got %d", len(loaded))
	}
}
