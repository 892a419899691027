package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// monitorLoop evaluates exit conditions on every open position each tick,
// implementing §4.2.5/§4.2.6. A per-position failure never aborts the
// tick; other positions still get evaluated.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.config.MonitorInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runMonitorTick(ctx)
		}
	}
}

func (e *Engine) runMonitorTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("monitor tick panicked, resuming next tick", zap.Any("panic", r))
		}
	}()

	e.mu.RLock()
	positions := make([]*types.Position, 0, len(e.activePositions))
	for _, p := range e.activePositions {
		positions = append(positions, p)
	}
	exit := e.strategy.Exit
	e.mu.RUnlock()

	for _, position := range positions {
		e.evaluatePosition(ctx, position, exit)
	}
}

// evaluatePosition fetches the current price, updates trailing-stop
// bookkeeping, and — if an exit condition matches — closes the position.
// A failed price fetch is transient and silently retried next tick
// (§4.2.7).
func (e *Engine) evaluatePosition(ctx context.Context, position *types.Position, exit types.ExitBands) {
	if position.State == types.PositionClosing {
		e.retryClose(ctx, position)
		return
	}
	if position.State != types.PositionOpen {
		return
	}

	currentPrice, err := e.executor.GetCurrentPrice(ctx, string(position.Platform), position.TokenAddress, position.CurrentPrice)
	if err != nil {
		e.logger.Debug("price fetch failed, retrying next tick", zap.String("position", position.ID), zap.Error(err))
		return
	}

	e.mu.Lock()
	position.CurrentPrice = currentPrice
	updateTrailingStop(position, currentPrice, exit.TrailingStopFrac)
	e.mu.Unlock()

	reason, shouldExit := exitReason(position, currentPrice, exit.MaxHoldMinutes, time.Now())
	if !shouldExit {
		return
	}

	e.mu.Lock()
	position.State = types.PositionClosing
	position.PendingCloseReason = reason
	e.mu.Unlock()

	e.closePosition(ctx, position, reason)
}

// exitReason implements §4.2.5's fixed priority order exactly: stop loss,
// then take profit, then trailing stop, then max hold time.
func exitReason(position *types.Position, currentPrice decimal.Decimal, maxHoldMinutes float64, now time.Time) (string, bool) {
	switch {
	case currentPrice.LessThanOrEqual(position.StopLoss):
		return "Stop loss hit", true
	case currentPrice.GreaterThanOrEqual(position.TakeProfit):
		return "Take profit hit", true
	case position.TrailingStopRef != nil && currentPrice.LessThanOrEqual(*position.TrailingStopRef):
		return "Trailing stop hit", true
	case position.MinutesHeld(now) > maxHoldMinutes:
		return "Max hold time", true
	default:
		return "", false
	}
}

// updateTrailingStop implements §4.2.5's trailing-stop bookkeeping and I3:
// whenever a new high is made, the reference price ratchets up with it and
// never moves down.
func updateTrailingStop(position *types.Position, currentPrice, trailingStopFrac decimal.Decimal) {
	if currentPrice.GreaterThan(position.HighestSeenPrice) {
		position.HighestSeenPrice = currentPrice
		ref := currentPrice.Mul(decimal.NewFromInt(1).Sub(trailingStopFrac))
		position.TrailingStopRef = &ref
	}
}

// closePosition executes the sell. On success the position moves to
// Closed, the trade is recorded, and on_position_closed/on_decision_logged
// fire. On failure the position stays in Closing and remains in
// activePositions for the next tick to retry (§4.2.6/§4.2.7) — it is never
// dropped on a sell failure.
func (e *Engine) closePosition(ctx context.Context, position *types.Position, reason string) {
	trade := &types.Trade{
		Kind:         types.OrderSideSell,
		TokenAddress: position.TokenAddress,
		Amount:       position.TokensOwned,
		Price:        position.CurrentPrice,
		Timestamp:    time.Now(),
		CloseReason:  reason,
	}

	fillPrice, signature, err := e.executor.ExecuteTrade(ctx, string(position.Platform), trade, position.CurrentPrice)
	if err != nil {
		e.mu.Lock()
		position.FailedSellAttempts++
		e.mu.Unlock()
		e.logger.Warn("sell execution failed, will retry", zap.String("position", position.ID), zap.Error(err))
		e.publishError("engine.sell", err)
		return
	}

	pnl := fillPrice.Sub(position.EntryPrice).Mul(position.TokensOwned)
	outcome := types.OutcomeLoss
	if pnl.IsPositive() {
		outcome = types.OutcomeWin
	}
	trade.Price = fillPrice
	trade.Signature = signature
	trade.PnL = &pnl
	trade.Outcome = outcome

	e.mu.Lock()
	position.State = types.PositionClosed
	delete(e.activePositions, position.ID)
	firstClose := e.stats.PositionsClosed == 0
	e.stats.PositionsClosed++
	e.stats.TotalPnL = e.stats.TotalPnL.Add(pnl)
	if outcome == types.OutcomeWin {
		e.stats.WinningTrades++
	} else {
		e.stats.LosingTrades++
	}
	if firstClose || pnl.GreaterThan(e.stats.BestTrade) {
		e.stats.BestTrade = pnl
	}
	if firstClose || pnl.LessThan(e.stats.WorstTrade) {
		e.stats.WorstTrade = pnl
	}
	e.mu.Unlock()

	if e.risk != nil {
		e.risk.RecordTrade(time.Now(), pnl)
	}
	if e.store != nil {
		if err := e.store.AppendTrade(trade); err != nil {
			e.logger.Warn("failed to persist sell trade", zap.Error(err))
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.NewPositionClosedEvent(position.ID, string(outcome), reason))
		e.bus.Publish(events.NewDecisionLoggedEvent(position.ID, "exit:"+reason))
	}

	e.logger.Info("position closed", zap.String("position", position.ID), zap.String("reason", reason), zap.String("pnl", pnl.String()))
}

// retryClose re-attempts the sell for a position stuck in Closing after a
// prior sell failure (§4.2.7), using the exit reason recorded when the
// position first entered Closing.
func (e *Engine) retryClose(ctx context.Context, position *types.Position) {
	if position.FailedSellAttempts == 0 {
		return
	}
	e.closePosition(ctx, position, position.PendingCloseReason)
}
