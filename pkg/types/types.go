// Package types provides shared type definitions for the trading core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TradeOutcome labels a closed trade as a win or a loss.
type TradeOutcome string

const (
	OutcomeWin  TradeOutcome = "win"
	OutcomeLoss TradeOutcome = "loss"
)

// ProviderTier distinguishes providers required for core function from
// no-cost fallbacks.
type ProviderTier string

const (
	TierPrimary  ProviderTier = "primary"
	TierOptional ProviderTier = "optional"
)

// Platform identifies a launchpad a token was discovered on.
type Platform string

const (
	PlatformPumpFun Platform = "pump.fun"
	PlatformBonkFun Platform = "bonk.fun"
)

// Timeframe represents historical-series granularity.
type Timeframe string

const (
	TimeframeHourly Timeframe = "hourly"
	TimeframeDaily  Timeframe = "daily"
	TimeframeWeekly Timeframe = "weekly"
)

// AlertType enumerates the condition families the monitor engine evaluates.
type AlertType string

const (
	AlertTypePrice     AlertType = "price"
	AlertTypePattern   AlertType = "pattern"
	AlertTypeSentiment AlertType = "sentiment"
	AlertTypeAnomaly   AlertType = "anomaly"
)

// CompareOp is the comparison operator a price alert is evaluated with.
type CompareOp string

const (
	OpGreater      CompareOp = ">"
	OpLess         CompareOp = "<"
	OpGreaterEqual CompareOp = ">="
	OpLessEqual    CompareOp = "<="
)

// PositionState is the lifecycle state of a Position (§4.2.6).
type PositionState string

const (
	PositionOpening PositionState = "opening"
	PositionOpen    PositionState = "open"
	PositionClosing PositionState = "closing"
	PositionClosed  PositionState = "closed"
	PositionFailed  PositionState = "failed"
)

// Token is a discovered candidate, enriched over time, never mutated once
// admitted to a Position (§3).
type Token struct {
	Address       string          `json:"address"`
	Platform      Platform        `json:"platform"`
	DiscoveredAt  time.Time       `json:"discoveredAt"`
	Name          string          `json:"name,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	LiquiditySOL  decimal.Decimal `json:"liquiditySol,omitempty"`
	MarketCapSOL  decimal.Decimal `json:"marketCapSol,omitempty"`
	Holders       int             `json:"holders,omitempty"`
	Volume24hSOL  decimal.Decimal `json:"volume24hSol,omitempty"`
	PriceUSD      decimal.Decimal `json:"priceUsd,omitempty"`
	IsVerified    bool            `json:"isVerified,omitempty"`
	hasLiquidity  bool
	hasMarketCap  bool
	hasHolders    bool
	hasVolume     bool
	hasVerified   bool
}

// SetLiquidity records an observed liquidity figure; fields left unset stay
// nil-like for the filter/risk-score pipeline (§4.2.3).
func (t *Token) SetLiquidity(v decimal.Decimal) { t.LiquiditySOL = v; t.hasLiquidity = true }
func (t *Token) SetMarketCap(v decimal.Decimal)  { t.MarketCapSOL = v; t.hasMarketCap = true }
func (t *Token) SetHolders(v int)                { t.Holders = v; t.hasHolders = true }
func (t *Token) SetVolume24h(v decimal.Decimal)  { t.Volume24hSOL = v; t.hasVolume = true }
func (t *Token) SetVerified(v bool)              { t.IsVerified = v; t.hasVerified = true }

func (t *Token) HasLiquidity() bool { return t.hasLiquidity }
func (t *Token) HasMarketCap() bool { return t.hasMarketCap }
func (t *Token) HasHolders() bool   { return t.hasHolders }
func (t *Token) HasVolume() bool    { return t.hasVolume }
func (t *Token) HasVerified() bool  { return t.hasVerified }

// AgeSeconds returns the token's age relative to now.
func (t *Token) AgeSeconds(now time.Time) float64 {
	return now.Sub(t.DiscoveredAt).Seconds()
}

// Position is an owned token quantity resulting from a buy (§3).
type Position struct {
	ID                  string          `json:"id"`
	TokenAddress        string          `json:"tokenAddress"`
	Platform            Platform        `json:"platform,omitempty"`
	Symbol              string          `json:"symbol,omitempty"`
	EntryPrice          decimal.Decimal `json:"entryPrice"`
	CurrentPrice        decimal.Decimal `json:"currentPrice"`
	EntryTime           time.Time       `json:"entryTime"`
	NotionalSOL         decimal.Decimal `json:"notionalSol"`
	TokensOwned         decimal.Decimal `json:"tokensOwned"`
	StopLoss            decimal.Decimal `json:"stopLoss"`
	TakeProfit          decimal.Decimal `json:"takeProfit"`
	TrailingStopRef     *decimal.Decimal `json:"trailingStopRef,omitempty"`
	HighestSeenPrice    decimal.Decimal `json:"highestSeenPrice"`
	Signature           string          `json:"signature"`
	StrategyTag         string          `json:"strategyTag,omitempty"`
	AIDecisionRef       string          `json:"aiDecisionRef,omitempty"`
	DBPositionID        string          `json:"dbPositionId,omitempty"`
	State               PositionState   `json:"state"`
	FailedSellAttempts  int             `json:"failedSellAttempts"`
	PendingCloseReason  string          `json:"pendingCloseReason,omitempty"`
}

// MinutesHeld returns how long the position has been open relative to now.
func (p *Position) MinutesHeld(now time.Time) float64 {
	return now.Sub(p.EntryTime).Minutes()
}

// Trade is an append-only execution record (§3).
type Trade struct {
	Kind          OrderSide       `json:"kind"`
	TokenAddress  string          `json:"tokenAddress"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"timestamp"`
	Signature     string          `json:"signature"`
	PnL           *decimal.Decimal `json:"pnl,omitempty"`
	Outcome       TradeOutcome    `json:"outcome,omitempty"`
	CloseReason   string          `json:"closeReason,omitempty"`
}

// Quote is the normalized market-data shape produced by provider
// normalization (§6.2).
type Quote struct {
	Price           decimal.Decimal `json:"price"`
	Change24h       decimal.Decimal `json:"change24h"`
	Volume24h       decimal.Decimal `json:"volume24h"`
	MarketCap       decimal.Decimal `json:"marketCap"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// HistoricalPoint is one normalized historical-series sample (§6.2).
type HistoricalPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
}

// Listing is a ranked market listing entry (§6.2 getListings).
type Listing struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Rank   int    `json:"rank"`
	Quote  Quote  `json:"quote"`
}

// GlobalMetrics mirrors §6.2 getGlobalMetrics.
type GlobalMetrics struct {
	Quote                  Quote           `json:"quote"`
	BTCDominance           decimal.Decimal `json:"btcDominance"`
	ETHDominance           decimal.Decimal `json:"ethDominance"`
	ActiveCryptocurrencies int             `json:"activeCryptocurrencies"`
}

// Metadata mirrors §6.2 getMetadata.
type Metadata struct {
	Description string            `json:"description"`
	URLs        map[string][]string `json:"urls,omitempty"`
}

// AIDecision is the structured overlay decision of §4.2.3 step 6.
type AIDecision struct {
	Decision              string          `json:"decision"` // strong_buy|buy|hold|avoid|strong_avoid
	Confidence            decimal.Decimal `json:"confidence"`
	RiskScore0To10        decimal.Decimal `json:"riskScore0To10"`
	RedFlags              []string        `json:"redFlags,omitempty"`
	GreenFlags            []string        `json:"greenFlags,omitempty"`
	SuggestedBuyAmountSOL *decimal.Decimal `json:"suggestedBuyAmountSol,omitempty"`
	SuggestedStopLossPct  *decimal.Decimal `json:"suggestedStopLossPct,omitempty"`
	SuggestedTakeProfitPct *decimal.Decimal `json:"suggestedTakeProfitPct,omitempty"`
	Reasoning             string          `json:"reasoning,omitempty"`
}

// IsBuySignal reports whether the decision recommends entering.
func (d *AIDecision) IsBuySignal() bool {
	return d.Decision == "buy" || d.Decision == "strong_buy"
}

// Alert is a user-declared condition evaluated periodically by C4 (§4.4).
type Alert struct {
	ID                 string          `json:"id"`
	Type               AlertType       `json:"type"`
	Symbol             string          `json:"symbol"`
	Op                 CompareOp       `json:"op,omitempty"`
	Threshold          decimal.Decimal `json:"threshold,omitempty"`
	TargetSubstring    string          `json:"targetSubstring,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastCheck          *time.Time      `json:"lastCheck,omitempty"`
	Triggered          bool            `json:"triggered"`
	TriggeredAt        *time.Time      `json:"triggeredAt,omitempty"`
	TriggerData         map[string]any `json:"triggerData,omitempty"`
}

// PerformanceMetrics is a general-purpose performance summary, reused by
// the agent (§4.3 get_performance) and the optimizer's viability gate.
type PerformanceMetrics struct {
	TotalReturn      decimal.Decimal `json:"totalReturn"`
	AnnualizedReturn decimal.Decimal `json:"annualizedReturn"`
	SharpeRatio      decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio     decimal.Decimal `json:"sortinoRatio"`
	MaxDrawdown      decimal.Decimal `json:"maxDrawdown"`
	WinRate          decimal.Decimal `json:"winRate"`
	ProfitFactor     decimal.Decimal `json:"profitFactor"`
	TotalTrades      int             `json:"totalTrades"`
	WinningTrades    int             `json:"winningTrades"`
	LosingTrades     int             `json:"losingTrades"`
	AvgWin           decimal.Decimal `json:"avgWin"`
	AvgLoss          decimal.Decimal `json:"avgLoss"`
	LargestWin       decimal.Decimal `json:"largestWin"`
	LargestLoss      decimal.Decimal `json:"largestLoss"`
	Expectancy       decimal.Decimal `json:"expectancy"`
	CalmarRatio      decimal.Decimal `json:"calmarRatio"`
}

// MonteCarloResult represents Monte Carlo simulation results, reused by the
// agent's optimizer robustness check (§4.3).
type MonteCarloResult struct {
	Iterations      int               `json:"iterations"`
	MedianReturn    decimal.Decimal   `json:"medianReturn"`
	P5Return        decimal.Decimal   `json:"p5Return"`
	P95Return       decimal.Decimal   `json:"p95Return"`
	ProbabilityRuin decimal.Decimal   `json:"probabilityRuin"`
	MaxDrawdownP95  decimal.Decimal   `json:"maxDrawdownP95"`
	Distribution    []decimal.Decimal `json:"distribution"`
}

// WalkForwardResult represents walk-forward analysis results, reused by the
// agent's deeper optimization pass (§4.3).
type WalkForwardResult struct {
	Windows        []WalkForwardWindow `json:"windows"`
	Robustness     decimal.Decimal     `json:"robustness"`
}

// WalkForwardWindow is a single walk-forward window.
type WalkForwardWindow struct {
	InSampleStart    time.Time            `json:"inSampleStart"`
	InSampleEnd      time.Time            `json:"inSampleEnd"`
	OutSampleStart   time.Time            `json:"outSampleStart"`
	OutSampleEnd     time.Time            `json:"outSampleEnd"`
	InSampleMetrics  *PerformanceMetrics  `json:"inSampleMetrics"`
	OutSampleMetrics *PerformanceMetrics  `json:"outSampleMetrics"`
}
