// Package execution implements the trade execution backend behind C2's
// buy/sell suspension points (§6.4): a live-mode path through per-platform
// adapters, and a simulation-mode path that synthesizes a realistic fill.
package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Adapter places an order on one venue and reports the current price of a
// symbol/address on that venue — no order book or streaming, since the
// engine only ever needs "buy/sell now" and "price now".
type Adapter interface {
	Name() string
	PlaceOrder(ctx context.Context, order *types.Trade) (fillPrice decimal.Decimal, signature string, err error)
	GetPrice(ctx context.Context, symbolOrAddress string) (decimal.Decimal, error)
}

// Config configures the Executor.
type Config struct {
	Mode types.EngineMode
}

// Metrics tracks cumulative execution outcomes.
type Metrics struct {
	OrdersPlaced int64
	OrdersFailed int64
}

// Executor routes a buy/sell through the adapter registered for the given
// platform name, or through the simulator in simulation mode (§4.2.4).
type Executor struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	config   Config
	adapters map[string]Adapter
	sim      *Simulator
	metrics  Metrics
}

// New constructs an Executor.
func New(logger *zap.Logger, config Config, sim *Simulator) *Executor {
	return &Executor{
		logger:   logger,
		config:   config,
		adapters: make(map[string]Adapter),
		sim:      sim,
	}
}

// AddAdapter registers an adapter under its own name.
func (e *Executor) AddAdapter(adapter Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapters[adapter.Name()] = adapter
}

// ExecuteTrade places order via the named venue adapter, or synthesizes a
// fill in simulation mode. adapterName is typically the token's platform.
func (e *Executor) ExecuteTrade(ctx context.Context, adapterName string, order *types.Trade, currentPrice decimal.Decimal) (fillPrice decimal.Decimal, signature string, err error) {
	if e.config.Mode == types.ModeSimulation {
		fillPrice, signature, err = e.sim.Fill(order, currentPrice)
	} else {
		e.mu.RLock()
		adapter, ok := e.adapters[adapterName]
		e.mu.RUnlock()
		if !ok {
			return decimal.Zero, "", fmt.Errorf("execution: no adapter registered for %q", adapterName)
		}
		fillPrice, signature, err = adapter.PlaceOrder(ctx, order)
	}

	e.mu.Lock()
	if err != nil {
		e.metrics.OrdersFailed++
	} else {
		e.metrics.OrdersPlaced++
	}
	e.mu.Unlock()

	return fillPrice, signature, err
}

// GetCurrentPrice is the price-fetch suspension point used by the monitor
// loop (§6.4). In simulation mode it defers to the simulator's price model;
// in live mode it asks the named adapter.
func (e *Executor) GetCurrentPrice(ctx context.Context, adapterName, symbolOrAddress string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if e.config.Mode == types.ModeSimulation {
		return e.sim.Quote(symbolOrAddress, fallback), nil
	}

	e.mu.RLock()
	adapter, ok := e.adapters[adapterName]
	e.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("execution: no adapter registered for %q", adapterName)
	}
	return adapter.GetPrice(ctx, symbolOrAddress)
}

// GetMetrics returns a snapshot of cumulative order outcomes.
func (e *Executor) GetMetrics() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}
