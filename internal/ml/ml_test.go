package ml_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/ml"
)

func syntheticHistory(prices []float64) []ml.HistoryPoint {
	out := make([]ml.HistoryPoint, len(prices))
	now := time.Now().Add(-time.Duration(len(prices)) * time.Hour)
	for i, p := range prices {
		out[i] = ml.HistoryPoint{
			Timestamp: now.Add(time.Duration(i) * time.Hour),
			Price:     decimal.NewFromFloat(p),
			Volume:    decimal.NewFromFloat(1000 + float64(i)*10),
		}
	}
	return out
}

func TestTrendPatternRecognizerDetectsUptrend(t *testing.T) {
	prices := make([]float64, 60)
	price := 1.0
	for i := range prices {
		price *= 1.02
		prices[i] = price
	}

	recognizer := ml.NewTrendPatternRecognizer(zap.NewNop(), ml.DefaultPatternConfig())
	matches := recognizer.Detect(syntheticHistory(prices))

	found := false
	for _, m := range matches {
		if m.Name == "uptrend" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an uptrend pattern among %+v", matches)
	}
}

func TestConsensusSentimentAnalyzerLabelsBullish(t *testing.T) {
	prices := make([]float64, 30)
	price := 1.0
	for i := range prices {
		price *= 1.03
		prices[i] = price
	}
	history := syntheticHistory(prices)

	analyzer := ml.NewConsensusSentimentAnalyzer(ml.DefaultSentimentConfig())
	result := analyzer.Analyze(history, decimal.NewFromFloat(price))

	if result.Label != "bullish" {
		t.Fatalf("expected bullish label, got %s (score %s)", result.Label, result.Score)
	}
}

func TestZScoreAnomalyDetectorFlagsSpike(t *testing.T) {
	prices := []float64{1, 1.01, 0.99, 1.0, 1.02, 0.98, 1.0, 1.01, 0.99, 1.0, 1.02, 0.98, 1.0, 5.0, 1.0, 1.01}
	history := syntheticHistory(prices)

	detector := ml.NewZScoreAnomalyDetector(ml.DefaultAnomalyConfig())
	result := detector.Detect(history, decimal.NewFromFloat(1.01))

	if result.TotalAnomalies == 0 {
		t.Fatal("expected at least one anomaly flagged for the price spike")
	}
}

func TestEMAPricePredictorConverges(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 100
	}
	history := syntheticHistory(prices)

	predictor := ml.NewEMAPricePredictor(10)
	pred := predictor.Predict(history)

	if !pred.PredictedPrice.Sub(decimal.NewFromInt(100)).Abs().LessThan(decimal.NewFromFloat(0.01)) {
		t.Fatalf("expected prediction to converge to flat price 100, got %s", pred.PredictedPrice)
	}
	if !pred.Confidence.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected full confidence with ample history, got %s", pred.Confidence)
	}
}
