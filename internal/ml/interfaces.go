// Package ml provides the pattern/sentiment/anomaly/prediction analyzers C4
// evaluates alerts with (§4.4) and that C2's AI overlay step can draw on when
// enriching a decision. Each analyzer is a narrow, synchronous contract:
// "compute now, for this history" calls matching how alerts are evaluated on
// a periodic tick rather than a live feed.
package ml

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryPoint is one sample of a symbol's price/volume history, matching
// the normalized shape of types.HistoricalPoint.
type HistoryPoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
}

// PatternMatch is one recognized chart pattern.
type PatternMatch struct {
	Name       string          `json:"name"`
	Confidence decimal.Decimal `json:"confidence"`
}

// PatternRecognizer detects named chart patterns over ~60 days of history
// (§4.4 pattern alerts).
type PatternRecognizer interface {
	Detect(history []HistoryPoint) []PatternMatch
}

// SentimentResult is the composite sentiment computed from history plus the
// current quote.
type SentimentResult struct {
	Label string          `json:"label"` // e.g. "bullish", "bearish", "neutral"
	Score decimal.Decimal `json:"score"` // -1..1
}

// SentimentAnalyzer computes a composite sentiment label (§4.4 sentiment alerts).
type SentimentAnalyzer interface {
	Analyze(history []HistoryPoint, currentPrice decimal.Decimal) SentimentResult
}

// AnomalyResult reports how many statistical anomalies were found.
type AnomalyResult struct {
	TotalAnomalies int      `json:"totalAnomalies"`
	Descriptions   []string `json:"descriptions,omitempty"`
}

// AnomalyDetector flags statistical outliers in price/volume history (§4.4
// anomaly alerts).
type AnomalyDetector interface {
	Detect(history []HistoryPoint, currentPrice decimal.Decimal) AnomalyResult
}

// PricePrediction is a single forward price estimate.
type PricePrediction struct {
	PredictedPrice decimal.Decimal `json:"predictedPrice"`
	Confidence     decimal.Decimal `json:"confidence"`
}

// PricePredictor forecasts the next price sample from recent history. The
// spec treats any underlying model as a replaceable internal detail — this
// interface is the only part of it that other packages depend on.
type PricePredictor interface {
	Predict(history []HistoryPoint) PricePrediction
}
