package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// ForceClosePosition closes one open position out of band from the monitor
// loop's own exit-condition check, the actuation path C3's exit_all/
// exit_losers/exit_winners actions use (§4.3, §5 "agent owns writes to
// QTable and strategy parameters" — closing positions is the one action
// exception the spec grants the agent direct authority over).
func (e *Engine) ForceClosePosition(ctx context.Context, id string, reason string) error {
	e.mu.Lock()
	position, ok := e.activePositions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("engine: no active position %q", id)
	}
	if position.State != types.PositionOpen {
		e.mu.Unlock()
		return fmt.Errorf("engine: position %q not open (state=%s)", id, position.State)
	}
	position.State = types.PositionClosing
	position.PendingCloseReason = reason
	e.mu.Unlock()

	e.closePosition(ctx, position, reason)
	return nil
}

// ForceCloseAll closes every open position matching filter (nil matches
// all), returning how many were closed. Used by exit_all/exit_losers/
// exit_winners and by Stop()'s live-mode close-all.
func (e *Engine) ForceCloseAll(ctx context.Context, reason string, filter func(*types.Position) bool) int {
	e.mu.RLock()
	var targets []*types.Position
	for _, p := range e.activePositions {
		if p.State == types.PositionOpen && (filter == nil || filter(p)) {
			targets = append(targets, p)
		}
	}
	e.mu.RUnlock()

	for _, p := range targets {
		e.mu.Lock()
		p.State = types.PositionClosing
		p.PendingCloseReason = reason
		e.mu.Unlock()
		e.closePosition(ctx, p, reason)
	}
	return len(targets)
}

// UnrealizedPnL sums (currentPrice-entryPrice)*tokensOwned across open
// positions matching filter (nil matches all) — the figure C3's exit_*
// reward formulas are computed from (§4.3).
func (e *Engine) UnrealizedPnL(filter func(*types.Position) bool) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := decimal.Zero
	for _, p := range e.activePositions {
		if p.State != types.PositionOpen || (filter != nil && !filter(p)) {
			continue
		}
		pnl := p.CurrentPrice.Sub(p.EntryPrice).Mul(p.TokensOwned)
		total = total.Add(pnl)
	}
	return total
}

// WatchlistCandidate pops and returns one declined-but-watched token (map
// iteration order, so "one of the current candidates" rather than a
// ranked pick), used by EnterFromWatchlist. Returns false if the watchlist
// is empty.
func (e *Engine) WatchlistCandidate() (*types.Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for addr, token := range e.watchlist {
		delete(e.watchlist, addr)
		return token, true
	}
	return nil, false
}

// EnterFromWatchlist executes a buy against one watchlist candidate (see
// WatchlistCandidate) with sizing/exit bands scaled by the caller's risk posture,
// the actuation path behind C3's enter_aggressive/enter_conservative
// actions. Returns (nil, nil) when the watchlist has nothing to offer —
// not an error, just nothing to act on this tick.
func (e *Engine) EnterFromWatchlist(ctx context.Context, sizeMultiplier, stopLossMultiplier, takeProfitMultiplier decimal.Decimal) (*types.Position, error) {
	token, ok := e.WatchlistCandidate()
	if !ok {
		return nil, nil
	}

	e.mu.RLock()
	strategy := e.strategy
	openCount := len(e.activePositions)
	e.mu.RUnlock()
	if strategy.Sizing.MaxPositions > 0 && openCount >= strategy.Sizing.MaxPositions {
		return nil, nil
	}
	if e.risk != nil && !e.risk.CanOpenPosition(time.Now()) {
		return nil, nil
	}

	amount := strategy.Sizing.BaseAmountSOL.Mul(sizeMultiplier)
	exit := types.ExitBands{
		StopLossFrac:     strategy.Exit.StopLossFrac.Mul(stopLossMultiplier),
		TakeProfitFrac:   strategy.Exit.TakeProfitFrac.Mul(takeProfitMultiplier),
		TrailingStopFrac: strategy.Exit.TrailingStopFrac,
		MaxHoldMinutes:   strategy.Exit.MaxHoldMinutes,
	}

	entryPrice := token.PriceUSD
	if entryPrice.IsZero() {
		entryPrice = decimal.NewFromFloat(0.001)
	}
	trade := &types.Trade{
		Kind:         types.OrderSideBuy,
		TokenAddress: token.Address,
		Amount:       amount,
		Price:        entryPrice,
		Timestamp:    time.Now(),
	}

	fillPrice, signature, err := e.executor.ExecuteTrade(ctx, string(token.Platform), trade, entryPrice)
	if err != nil {
		e.mu.Lock()
		e.blacklist[token.Address] = true
		e.stats.FailedTrades++
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: watchlist entry buy failed: %w", err)
	}

	position := &types.Position{
		ID:               generatePositionID(),
		TokenAddress:     token.Address,
		Platform:         token.Platform,
		Symbol:           token.Symbol,
		EntryPrice:       fillPrice,
		CurrentPrice:     fillPrice,
		EntryTime:        time.Now(),
		NotionalSOL:      amount,
		TokensOwned:      amount.Div(fillPrice),
		StopLoss:         fillPrice.Mul(decimal.NewFromInt(1).Sub(exit.StopLossFrac)),
		TakeProfit:       fillPrice.Mul(decimal.NewFromInt(1).Add(exit.TakeProfitFrac)),
		HighestSeenPrice: fillPrice,
		Signature:        signature,
		StrategyTag:      "agent_entry",
		State:            types.PositionOpen,
	}

	e.mu.Lock()
	e.activePositions[position.ID] = position
	e.stats.PositionsOpened++
	e.mu.Unlock()

	if e.store != nil {
		_ = e.store.AppendTrade(trade)
	}

	return position, nil
}
