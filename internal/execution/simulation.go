package execution

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// SimulatorConfig tunes the synthetic slippage model: a base spread plus an
// impact term that grows with order notional (amount × price); the token's
// liquidity is not used.
type SimulatorConfig struct {
	BaseSlippageBps   decimal.Decimal
	ImpactFactor      decimal.Decimal
	FallbackPriceUSD  decimal.Decimal
}

// DefaultSimulatorConfig returns conservative simulated-market friction.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		BaseSlippageBps:  decimal.NewFromInt(30),  // 0.30%
		ImpactFactor:     decimal.NewFromFloat(0.5),
		FallbackPriceUSD: decimal.NewFromFloat(0.001), // §4.2.4 "token.price ?? 0.001"
	}
}

// Simulator synthesizes fills and price quotes in simulation mode,
// remembering the last simulated price per symbol so successive fills walk
// forward from it rather than re-rolling from scratch.
type Simulator struct {
	mu          sync.RWMutex
	logger      *zap.Logger
	config      SimulatorConfig
	lastPrices  map[string]decimal.Decimal
}

// NewSimulator constructs a Simulator.
func NewSimulator(logger *zap.Logger, config SimulatorConfig) *Simulator {
	return &Simulator{
		logger:     logger,
		config:     config,
		lastPrices: make(map[string]decimal.Decimal),
	}
}

// Quote returns the last simulated price for a symbol, falling back to the
// caller-supplied price (the token's last known quote) and finally to the
// spec's literal placeholder of 0.001 if nothing is known at all.
func (s *Simulator) Quote(symbol string, fallback decimal.Decimal) decimal.Decimal {
	s.mu.RLock()
	p, ok := s.lastPrices[symbol]
	s.mu.RUnlock()
	if ok {
		return p
	}
	if !fallback.IsZero() {
		return fallback
	}
	return s.config.FallbackPriceUSD
}

// Fill synthesizes a buy/sell fill price by applying slippage against the
// current price, always succeeding (simulation never fails an order) and
// recording the resulting price as the new "market" price for the symbol.
func (s *Simulator) Fill(order *types.Trade, currentPrice decimal.Decimal) (decimal.Decimal, string, error) {
	price := currentPrice
	if price.IsZero() {
		price = s.config.FallbackPriceUSD
	}

	slippage := s.slippageFraction(order)
	var fillPrice decimal.Decimal
	switch order.Kind {
	case types.OrderSideBuy:
		fillPrice = price.Mul(decimal.NewFromInt(1).Add(slippage))
	default:
		fillPrice = price.Mul(decimal.NewFromInt(1).Sub(slippage))
	}

	s.mu.Lock()
	s.lastPrices[order.TokenAddress] = fillPrice
	s.mu.Unlock()

	return fillPrice, fmt.Sprintf("sim-%s", utils.GenerateTradeID()), nil
}

// slippageFraction scales the base slippage by order notional as a
// volume-weighted impact term, without requiring a live order book
// (simulation mode has none).
func (s *Simulator) slippageFraction(order *types.Trade) decimal.Decimal {
	base := s.config.BaseSlippageBps.Div(decimal.NewFromInt(10000))
	notionalImpact := order.Amount.Mul(order.Price).Mul(s.config.ImpactFactor).Div(decimal.NewFromInt(10000))
	return base.Add(notionalImpact)
}
