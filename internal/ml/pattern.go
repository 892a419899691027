package ml

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PatternConfig tunes the thresholds TrendPatternRecognizer classifies
// against.
type PatternConfig struct {
	VolThreshold   float64
	TrendThreshold float64
	MRThreshold    float64
	ConfidenceMin  decimal.Decimal
}

// DefaultPatternConfig returns conservative classification thresholds.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		VolThreshold:   0.25,
		TrendThreshold: 0.3,
		MRThreshold:    -0.1,
		ConfidenceMin:  decimal.NewFromFloat(0.6),
	}
}

// TrendPatternRecognizer classifies a history window into named chart
// patterns from trend/volatility/mean-reversion statistics computed over
// the window, without carrying any state across calls.
type TrendPatternRecognizer struct {
	logger *zap.Logger
	config PatternConfig
}

// NewTrendPatternRecognizer constructs a recognizer with config.
func NewTrendPatternRecognizer(logger *zap.Logger, config PatternConfig) *TrendPatternRecognizer {
	return &TrendPatternRecognizer{logger: logger, config: config}
}

// Detect computes returns from history and reports every pattern whose
// classification threshold is met; an empty slice means no named pattern
// stood out.
func (r *TrendPatternRecognizer) Detect(history []HistoryPoint) []PatternMatch {
	returns := toReturns(history)
	if len(returns) < 2 {
		return nil
	}

	trend := trendStrength(returns)
	vol := volatility(returns) * math.Sqrt(252)
	mr := meanReversion(returns)

	var matches []PatternMatch

	if trend >= r.config.TrendThreshold {
		matches = append(matches, PatternMatch{Name: "uptrend", Confidence: confidenceFrom(trend)})
	} else if trend <= -r.config.TrendThreshold {
		matches = append(matches, PatternMatch{Name: "downtrend", Confidence: confidenceFrom(-trend)})
	}

	if vol >= r.config.VolThreshold {
		matches = append(matches, PatternMatch{Name: "high_volatility_breakout", Confidence: confidenceFrom(vol)})
	} else if vol > 0 && vol < r.config.VolThreshold/4 {
		matches = append(matches, PatternMatch{Name: "low_volatility_consolidation", Confidence: confidenceFrom(1 - vol)})
	}

	if mr <= r.config.MRThreshold {
		matches = append(matches, PatternMatch{Name: "mean_reversion", Confidence: confidenceFrom(-mr)})
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Confidence.GreaterThanOrEqual(r.config.ConfidenceMin) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func toReturns(history []HistoryPoint) []float64 {
	if len(history) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev, _ := history[i-1].Price.Float64()
		cur, _ := history[i].Price.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	return returns
}

func volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

func trendStrength(returns []float64) float64 {
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	vol := volatility(returns)
	if vol == 0 {
		return 0
	}
	trend := sum / (vol * math.Sqrt(float64(len(returns))))
	if trend > 1 {
		return 1
	}
	if trend < -1 {
		return -1
	}
	return trend
}

func meanReversion(returns []float64) float64 {
	n := len(returns)
	if n < 3 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	autocovariance, variance := 0.0, 0.0
	for i := 1; i < n; i++ {
		autocovariance += (returns[i] - mean) * (returns[i-1] - mean)
		variance += (returns[i] - mean) * (returns[i] - mean)
	}
	if variance == 0 {
		return 0
	}
	return autocovariance / variance
}

func confidenceFrom(magnitude float64) decimal.Decimal {
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > 1 {
		magnitude = 1
	}
	return decimal.NewFromFloat(magnitude)
}
