package ml

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// AnomalyConfig sets the z-score threshold beyond which a sample counts as
// an anomaly.
type AnomalyConfig struct {
	ZScoreThreshold float64
}

// DefaultAnomalyConfig flags samples more than 3 standard deviations from
// the window mean, a conventional outlier threshold.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{ZScoreThreshold: 3.0}
}

// ZScoreAnomalyDetector flags returns whose magnitude departs sharply from
// the recent mean/volatility.
type ZScoreAnomalyDetector struct {
	config AnomalyConfig
}

// NewZScoreAnomalyDetector constructs a detector with config.
func NewZScoreAnomalyDetector(config AnomalyConfig) *ZScoreAnomalyDetector {
	return &ZScoreAnomalyDetector{config: config}
}

// Detect reports every return whose z-score exceeds the configured
// threshold. currentPrice is accepted to satisfy the shared AnomalyDetector
// contract but the history window already includes the latest sample by the
// time C4 calls this (§4.4).
func (d *ZScoreAnomalyDetector) Detect(history []HistoryPoint, currentPrice decimal.Decimal) AnomalyResult {
	returns := toReturns(history)
	if len(returns) < 3 {
		return AnomalyResult{}
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	vol := volatility(returns)
	if vol == 0 {
		return AnomalyResult{}
	}

	var descriptions []string
	for i, r := range returns {
		z := (r - mean) / vol
		if math.Abs(z) >= d.config.ZScoreThreshold {
			descriptions = append(descriptions, fmt.Sprintf("return[%d] z-score %.2f", i, z))
		}
	}

	return AnomalyResult{TotalAnomalies: len(descriptions), Descriptions: descriptions}
}
