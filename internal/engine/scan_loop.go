package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// aiConfidenceThreshold is the §4.2.3 step 6 overlay veto/accept threshold.
var aiConfidenceThreshold = decimal.NewFromFloat(0.7)

// riskScoreBuyThreshold is the §4.2.3 step 6 fallback buy threshold.
var riskScoreBuyThreshold = decimal.NewFromFloat(0.6)

// scanLoop runs the admission pipeline of §4.2.3 on every configured
// platform until ctx is cancelled or Stop is called. A per-tick failure
// (scan, enrich, or buy) is logged and a panic inside a tick is recovered;
// the loop resumes on the next tick with no added backoff delay and never
// exits.
func (e *Engine) scanLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.config.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Second
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
			e.runScanTick(ctx)
		}
	}
}

func (e *Engine) runScanTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scan tick panicked, resuming next tick", zap.Any("panic", r))
		}
	}()

	if e.scanner == nil {
		return
	}

	tokens := e.scanner.ScanAll(ctx)

	e.mu.Lock()
	e.stats.TokensScanned += len(tokens)
	for _, token := range tokens {
		e.scansByPlatform[token.Platform]++
	}
	e.mu.Unlock()

	for _, token := range tokens {
		e.admitToken(ctx, token)
	}
}

// admitToken runs one token through §4.2.3 steps 2-7: admit-once, enrich,
// filter, risk score, AI overlay, and finally the buy decision/execution.
func (e *Engine) admitToken(ctx context.Context, token *types.Token) {
	e.mu.Lock()
	if e.scannedTokens[token.Address] || e.blacklist[token.Address] {
		e.mu.Unlock()
		return
	}
	e.scannedTokens[token.Address] = true
	e.stats.TokensAdmitted++
	e.mu.Unlock()

	if e.enricher != nil {
		if err := e.enricher.Enrich(ctx, token); err != nil {
			e.logger.Debug("enrich failed, continuing with partial data", zap.String("token", token.Address), zap.Error(err))
		}
	}

	e.mu.RLock()
	strategy := e.strategy
	e.mu.RUnlock()

	if !passesEntryFilters(token, strategy.Entry, token.AgeSeconds(time.Now())) {
		return
	}

	if e.bus != nil {
		e.bus.Publish(events.NewTokenDiscoveredEvent(token.Address, string(token.Platform)))
	}

	score := riskScore(token)

	var decision *types.AIDecision
	if e.config.UseAIAnalysis && e.advisor != nil {
		d, err := e.advisor.Analyze(ctx, token, score)
		if err != nil {
			e.logger.Debug("ai overlay failed, falling back to risk-score rule", zap.Error(err))
		} else {
			decision = d
		}
	}

	buy, buyAmount, decisionRef := evaluateBuyDecision(decision, score, strategy.Sizing.BaseAmountSOL)
	if !buy {
		e.mu.Lock()
		e.watchlist[token.Address] = token
		e.mu.Unlock()
		return
	}

	if e.risk != nil && !e.risk.CanOpenPosition(time.Now()) {
		e.logger.Debug("risk manager kill switch active, skipping buy", zap.String("token", token.Address))
		return
	}

	e.mu.RLock()
	openCount := len(e.activePositions)
	maxPositions := strategy.Sizing.MaxPositions
	e.mu.RUnlock()
	if maxPositions > 0 && openCount >= maxPositions {
		return
	}

	e.executeBuy(ctx, token, decision, buyAmount, decisionRef, strategy.Exit)
}

// evaluateBuyDecision implements §4.2.3 step 6 exactly: a confident AI
// overlay either vetoes or accepts (never falls through to the risk-score
// rule); absent or unconfident AI output falls back to the risk-score rule.
func evaluateBuyDecision(decision *types.AIDecision, score decimal.Decimal, baseAmount decimal.Decimal) (buy bool, amount decimal.Decimal, decisionRef string) {
	if decision != nil && decision.Confidence.GreaterThanOrEqual(aiConfidenceThreshold) {
		if decision.IsBuySignal() {
			amt := baseAmount
			if decision.SuggestedBuyAmountSOL != nil {
				amt = *decision.SuggestedBuyAmountSOL
			}
			return true, amt, decision.Decision
		}
		return false, decimal.Zero, decision.Decision
	}
	if score.LessThan(riskScoreBuyThreshold) {
		return true, baseAmount, ""
	}
	return false, decimal.Zero, ""
}

// executeBuy runs §4.2.4: place the buy, and on success open a Position
// with stop-loss/take-profit derived from the strategy (AI overrides take
// precedence); on failure, blacklist the token permanently for this
// session and never transition the position out of Opening/Failed.
func (e *Engine) executeBuy(ctx context.Context, token *types.Token, decision *types.AIDecision, amount decimal.Decimal, decisionRef string, exit types.ExitBands) {
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
		e.logger.Warn("buy execution failed, blacklisting token", zap.String("token", token.Address), zap.Error(err))
		e.publishError("engine.buy", err)
		return
	}

	stopLossFrac := exit.StopLossFrac
	takeProfitFrac := exit.TakeProfitFrac
	if decision != nil {
		if decision.SuggestedStopLossPct != nil {
			stopLossFrac = *decision.SuggestedStopLossPct
		}
		if decision.SuggestedTakeProfitPct != nil {
			takeProfitFrac = *decision.SuggestedTakeProfitPct
		}
	}

	position := &types.Position{
		ID:              generatePositionID(),
		TokenAddress:    token.Address,
		Platform:        token.Platform,
		Symbol:          token.Symbol,
		EntryPrice:      fillPrice,
		CurrentPrice:    fillPrice,
		EntryTime:       time.Now(),
		NotionalSOL:     amount,
		TokensOwned:     amount.Div(fillPrice),
		StopLoss:        fillPrice.Mul(decimal.NewFromInt(1).Sub(stopLossFrac)),
		TakeProfit:      fillPrice.Mul(decimal.NewFromInt(1).Add(takeProfitFrac)),
		HighestSeenPrice: fillPrice,
		Signature:       signature,
		AIDecisionRef:   decisionRef,
		State:           types.PositionOpen,
	}

	e.mu.Lock()
	e.activePositions[position.ID] = position
	e.stats.PositionsOpened++
	e.stats.DeployedCapital = e.stats.DeployedCapital.Add(position.NotionalSOL)
	e.mu.Unlock()

	e.logger.Info("position opened", zap.String("token", token.Address), zap.String("id", position.ID))

	if e.bus != nil {
		e.bus.Publish(events.NewTradeExecutedEvent(token.Address, string(trade.Kind), signature))
	}
	if e.store != nil {
		if err := e.store.AppendTrade(trade); err != nil {
			e.logger.Warn("failed to persist buy trade", zap.Error(err))
		}
	}
}
