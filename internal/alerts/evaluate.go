package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/marketdata"
	"github.com/atlas-desktop/nova-trader/internal/ml"
	"github.com/atlas-desktop/nova-trader/internal/mlcache"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// patternHistoryDays / sentimentHistoryDays / anomalyHistoryDays are the
// lookback windows §4.4 specifies per condition family.
const (
	patternHistoryDays   = 60
	sentimentHistoryDays = 30
	anomalyHistoryDays   = 30
)

// MarketData is the narrow slice of internal/marketdata.Chain alert
// evaluation needs — a quote and a historical series, by symbol.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
	GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval marketdata.Interval) ([]types.HistoricalPoint, error)
}

// evaluate dispatches to the condition evaluator matching alert.Type (§4.4).
func (m *Manager) evaluate(ctx context.Context, alert *types.Alert) (bool, map[string]any, error) {
	switch alert.Type {
	case types.AlertTypePrice:
		return m.evaluatePrice(ctx, alert)
	case types.AlertTypePattern:
		return m.evaluatePattern(ctx, alert)
	case types.AlertTypeSentiment:
		return m.evaluateSentiment(ctx, alert)
	case types.AlertTypeAnomaly:
		return m.evaluateAnomaly(ctx, alert)
	default:
		return false, nil, fmt.Errorf("alerts: unknown alert type %q", alert.Type)
	}
}

// evaluatePrice refreshes the spot price and compares it against the
// alert's threshold using its operator (§4.4 price).
func (m *Manager) evaluatePrice(ctx context.Context, alert *types.Alert) (bool, map[string]any, error) {
	if m.market == nil {
		return false, nil, fmt.Errorf("alerts: no market data source configured")
	}
	quote, err := m.market.GetQuote(ctx, alert.Symbol)
	if err != nil {
		return false, nil, err
	}

	var matched bool
	switch alert.Op {
	case types.OpGreater:
		matched = quote.Price.GreaterThan(alert.Threshold)
	case types.OpLess:
		matched = quote.Price.LessThan(alert.Threshold)
	case types.OpGreaterEqual:
		matched = quote.Price.GreaterThanOrEqual(alert.Threshold)
	case types.OpLessEqual:
		matched = quote.Price.LessThanOrEqual(alert.Threshold)
	default:
		return false, nil, fmt.Errorf("alerts: unknown comparison operator %q", alert.Op)
	}

	if !matched {
		return false, nil, nil
	}
	return true, map[string]any{"price": quote.Price.String(), "threshold": alert.Threshold.String(), "op": string(alert.Op)}, nil
}

func (m *Manager) history(ctx context.Context, symbol string, days int) ([]ml.HistoryPoint, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	points, err := m.market.GetHistoricalQuotes(ctx, symbol, start, end, marketdata.IntervalDaily)
	if err != nil {
		return nil, err
	}
	out := make([]ml.HistoryPoint, 0, len(points))
	for _, p := range points {
		out = append(out, ml.HistoryPoint{Timestamp: p.Timestamp, Price: p.Price, Volume: p.Volume})
	}
	return out, nil
}

// detectPatterns serves a cached result if present (§6.5/I7: all four ML
// result kinds flow through internal/mlcache before being used), recomputing
// and repopulating the cache on a miss or when no cache is configured.
func (m *Manager) detectPatterns(ctx context.Context, symbol string, history []ml.HistoryPoint) []ml.PatternMatch {
	if m.cache == nil {
		return m.pattern.Detect(history)
	}
	var cached []ml.PatternMatch
	if err := m.cache.Get(ctx, mlcache.KindPattern, symbol, &cached); err == nil {
		return cached
	} else if !mlcache.IsMiss(err) {
		m.logger.Warn("pattern cache read failed", zap.Error(err))
	}
	matches := m.pattern.Detect(history)
	if err := m.cache.Set(ctx, mlcache.KindPattern, symbol, matches); err != nil {
		m.logger.Warn("pattern cache write failed", zap.Error(err))
	}
	return matches
}

// evaluatePattern fetches ~60 days of history and triggers if any detected
// pattern's name contains the user's target substring, case-insensitive
// (§4.4 pattern).
func (m *Manager) evaluatePattern(ctx context.Context, alert *types.Alert) (bool, map[string]any, error) {
	if m.market == nil || m.pattern == nil {
		return false, nil, fmt.Errorf("alerts: pattern evaluation not configured")
	}
	history, err := m.history(ctx, alert.Symbol, patternHistoryDays)
	if err != nil {
		return false, nil, err
	}
	matches := m.detectPatterns(ctx, alert.Symbol, history)
	for _, match := range matches {
		if strings.Contains(strings.ToLower(match.Name), strings.ToLower(alert.TargetSubstring)) {
			return true, map[string]any{"pattern": match.Name, "confidence": match.Confidence.String()}, nil
		}
	}
	return false, nil, nil
}

// evaluateSentiment fetches ~30 days of history plus the current quote,
// computes composite sentiment, and triggers if the label contains the
// user's target substring, case-insensitive (§4.4 sentiment).
func (m *Manager) evaluateSentiment(ctx context.Context, alert *types.Alert) (bool, map[string]any, error) {
	if m.market == nil || m.sentiment == nil {
		return false, nil, fmt.Errorf("alerts: sentiment evaluation not configured")
	}
	history, err := m.history(ctx, alert.Symbol, sentimentHistoryDays)
	if err != nil {
		return false, nil, err
	}
	quote, err := m.market.GetQuote(ctx, alert.Symbol)
	if err != nil {
		return false, nil, err
	}
	result := m.analyzeSentiment(ctx, alert.Symbol, history, quote.Price)
	if !strings.Contains(strings.ToLower(result.Label), strings.ToLower(alert.TargetSubstring)) {
		return false, nil, nil
	}
	return true, map[string]any{"label": result.Label, "score": result.Score.String()}, nil
}

func (m *Manager) analyzeSentiment(ctx context.Context, symbol string, history []ml.HistoryPoint, price decimal.Decimal) ml.SentimentResult {
	if m.cache == nil {
		return m.sentiment.Analyze(history, price)
	}
	var cached ml.SentimentResult
	if err := m.cache.Get(ctx, mlcache.KindSentiment, symbol, &cached); err == nil {
		return cached
	} else if !mlcache.IsMiss(err) {
		m.logger.Warn("sentiment cache read failed", zap.Error(err))
	}
	result := m.sentiment.Analyze(history, price)
	if err := m.cache.Set(ctx, mlcache.KindSentiment, symbol, result); err != nil {
		m.logger.Warn("sentiment cache write failed", zap.Error(err))
	}
	return result
}

// evaluateAnomaly fetches ~30 days of history plus the current quote and
// triggers if any statistical anomaly is found (§4.4 anomaly).
func (m *Manager) evaluateAnomaly(ctx context.Context, alert *types.Alert) (bool, map[string]any, error) {
	if m.market == nil || m.anomaly == nil {
		return false, nil, fmt.Errorf("alerts: anomaly evaluation not configured")
	}
	history, err := m.history(ctx, alert.Symbol, anomalyHistoryDays)
	if err != nil {
		return false, nil, err
	}
	quote, err := m.market.GetQuote(ctx, alert.Symbol)
	if err != nil {
		return false, nil, err
	}
	result := m.detectAnomalies(ctx, alert.Symbol, history, quote.Price)
	if result.TotalAnomalies <= 0 {
		return false, nil, nil
	}
	return true, map[string]any{"totalAnomalies": result.TotalAnomalies, "descriptions": result.Descriptions}, nil
}

func (m *Manager) detectAnomalies(ctx context.Context, symbol string, history []ml.HistoryPoint, price decimal.Decimal) ml.AnomalyResult {
	if m.cache == nil {
		return m.anomaly.Detect(history, price)
	}
	var cached ml.AnomalyResult
	if err := m.cache.Get(ctx, mlcache.KindAnomaly, symbol, &cached); err == nil {
		return cached
	} else if !mlcache.IsMiss(err) {
		m.logger.Warn("anomaly cache read failed", zap.Error(err))
	}
	result := m.anomaly.Detect(history, price)
	if err := m.cache.Set(ctx, mlcache.KindAnomaly, symbol, result); err != nil {
		m.logger.Warn("anomaly cache write failed", zap.Error(err))
	}
	return result
}
