package engine

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// passesEntryFilters applies the admission thresholds of §4.2.3 step 4. A
// factor absent on the token (HasX() false) never disqualifies it — only
// observed factors are checked.
func passesEntryFilters(token *types.Token, thresholds types.EntryThresholds, ageSeconds float64) bool {
	if ageSeconds > thresholds.MaxAgeSec {
		return false
	}
	if token.HasLiquidity() && token.LiquiditySOL.LessThan(thresholds.MinLiquidity) {
		return false
	}
	if token.HasMarketCap() && token.MarketCapSOL.GreaterThan(thresholds.MaxMarketCap) {
		return false
	}
	if token.HasVolume() && token.Volume24hSOL.LessThan(thresholds.MinVolume24h) {
		return false
	}
	if token.HasHolders() && token.Holders < thresholds.MinHolders {
		return false
	}
	if thresholds.RequireVerified && token.HasVerified() && !token.IsVerified {
		return false
	}
	return true
}

// riskScore computes the §4.2.3 step 5 composite risk score: the mean of
// whichever numeric factors were actually observed on the token, plus a
// fixed penalty if the token is known to be unverified. A token with no
// observed factors at all scores the neutral default of 0.5.
func riskScore(token *types.Token) decimal.Decimal {
	var factors []decimal.Decimal

	if token.HasLiquidity() {
		v := decimal.NewFromInt(1).Sub(token.LiquiditySOL.Div(decimal.NewFromInt(10)))
		factors = append(factors, utils.MaxDecimal(decimal.Zero, v))
	}
	if token.HasMarketCap() {
		v := token.MarketCapSOL.Div(decimal.NewFromInt(200))
		factors = append(factors, utils.MinDecimal(decimal.NewFromInt(1), v))
	}
	if token.HasHolders() {
		v := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(token.Holders)).Div(decimal.NewFromInt(100)))
		factors = append(factors, utils.MaxDecimal(decimal.Zero, v))
	}
	if token.HasVolume() {
		v := decimal.NewFromInt(1).Sub(token.Volume24hSOL.Div(decimal.NewFromInt(5)))
		factors = append(factors, utils.MaxDecimal(decimal.Zero, v))
	}

	var base decimal.Decimal
	if len(factors) == 0 {
		base = decimal.NewFromFloat(0.5)
	} else {
		sum := decimal.Zero
		for _, f := range factors {
			sum = sum.Add(f)
		}
		base = sum.Div(decimal.NewFromInt(int64(len(factors))))
	}

	if token.HasVerified() && !token.IsVerified {
		base = base.Add(decimal.NewFromFloat(0.3))
	}

	return utils.ClampDecimal(base, decimal.Zero, decimal.NewFromInt(1))
}
