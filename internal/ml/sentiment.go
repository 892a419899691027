package ml

import (
	"math"

	"github.com/shopspring/decimal"
)

// SentimentConfig weights the signal components consensus is built from.
type SentimentConfig struct {
	MomentumWeight decimal.Decimal
	VolumeWeight   decimal.Decimal
	RangeWeight    decimal.Decimal
}

// DefaultSentimentConfig splits weight evenly across the three components.
func DefaultSentimentConfig() SentimentConfig {
	third := decimal.NewFromFloat(1.0 / 3.0)
	return SentimentConfig{MomentumWeight: third, VolumeWeight: third, RangeWeight: third}
}

// ConsensusSentimentAnalyzer computes a single composite sentiment score by
// combining three weighted signals — momentum, volume, and range position —
// into one synchronous call over a history window and the current quote
// (§4.4).
type ConsensusSentimentAnalyzer struct {
	config SentimentConfig
}

// NewConsensusSentimentAnalyzer constructs an analyzer with config.
func NewConsensusSentimentAnalyzer(config SentimentConfig) *ConsensusSentimentAnalyzer {
	return &ConsensusSentimentAnalyzer{config: config}
}

// Analyze blends momentum (trend of price), volume trend, and position
// within the recent high/low range into one score in [-1, 1], then labels it.
func (a *ConsensusSentimentAnalyzer) Analyze(history []HistoryPoint, currentPrice decimal.Decimal) SentimentResult {
	if len(history) < 2 {
		return SentimentResult{Label: "neutral", Score: decimal.Zero}
	}

	momentum := momentumScore(history)
	volumeTrend := volumeTrendScore(history)
	rangePos := rangePositionScore(history, currentPrice)

	score := momentum.Mul(a.config.MomentumWeight).
		Add(volumeTrend.Mul(a.config.VolumeWeight)).
		Add(rangePos.Mul(a.config.RangeWeight))

	return SentimentResult{Label: labelFor(score), Score: score}
}

func momentumScore(history []HistoryPoint) decimal.Decimal {
	first, _ := history[0].Price.Float64()
	last, _ := history[len(history)-1].Price.Float64()
	if first == 0 {
		return decimal.Zero
	}
	change := (last - first) / first
	return clampUnit(change * 5) // amplify small % moves into a usable [-1,1] range
}

func volumeTrendScore(history []HistoryPoint) decimal.Decimal {
	mid := len(history) / 2
	if mid == 0 {
		return decimal.Zero
	}
	var firstHalf, secondHalf float64
	for i := 0; i < mid; i++ {
		v, _ := history[i].Volume.Float64()
		firstHalf += v
	}
	for i := mid; i < len(history); i++ {
		v, _ := history[i].Volume.Float64()
		secondHalf += v
	}
	if firstHalf == 0 {
		return decimal.Zero
	}
	change := (secondHalf - firstHalf) / firstHalf
	return clampUnit(change)
}

func rangePositionScore(history []HistoryPoint, currentPrice decimal.Decimal) decimal.Decimal {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, p := range history {
		v, _ := p.Price.Float64()
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return decimal.Zero
	}
	cur, _ := currentPrice.Float64()
	position := (cur - lo) / (hi - lo) // 0 at range low, 1 at range high
	return clampUnit(position*2 - 1)
}

func clampUnit(v float64) decimal.Decimal {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return decimal.NewFromFloat(v)
}

func labelFor(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.2)):
		return "bullish"
	case score.LessThanOrEqual(decimal.NewFromFloat(-0.2)):
		return "bearish"
	default:
		return "neutral"
	}
}
