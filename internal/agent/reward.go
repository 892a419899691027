package agent

import "github.com/shopspring/decimal"

// waitPenalty, tightenReward, loosenReward, decreaseReward are the fixed
// rewards §4.3 assigns to actions whose outcome isn't a realized P&L.
const (
	waitPenalty    = -0.01
	tightenReward  = 0.01
	loosenReward   = -0.01
	increaseReward = 0.0
	decreaseReward = 0.01
	failureReward  = -1.0
)

// rewardFraction divides pnl by baseAmount, the §4.3 "/base_amount"
// normalization shared by every P&L-driven reward. Returns 0 if baseAmount
// is non-positive (nothing to normalize against).
func rewardFraction(pnl, baseAmount decimal.Decimal) float64 {
	if !baseAmount.IsPositive() {
		return 0
	}
	v, _ := pnl.Div(baseAmount).Float64()
	return v
}

// rewardForEnter computes an enter_* action's reward from its synthetic
// outcome pnl (§4.3 "enter_* yields pnl/base_amount for the synthetic
// outcome"). pnl is zero when no watchlist candidate was available to act
// on, yielding a neutral reward rather than penalizing the agent for lack
// of opportunity.
func rewardForEnter(pnl, baseAmount decimal.Decimal) float64 {
	return rewardFraction(pnl, baseAmount)
}

// rewardForExitAll computes exit_all's reward: the full unrealized P&L
// across open positions, normalized.
func rewardForExitAll(unrealizedTotal, baseAmount decimal.Decimal) float64 {
	return rewardFraction(unrealizedTotal, baseAmount)
}

// rewardForExitLosers computes exit_losers' reward: half the magnitude of
// the losers' combined P&L, normalized — §4.3 "rewards cutting losses"
// without rewarding it as strongly as a fully profitable exit.
func rewardForExitLosers(losersSum, baseAmount decimal.Decimal) float64 {
	magnitude := losersSum
	if magnitude.IsPositive() {
		magnitude = magnitude.Neg()
	}
	return rewardFraction(magnitude.Abs(), baseAmount) * 0.5
}

// rewardForExitWinners computes exit_winners' reward: the winners' combined
// P&L, normalized.
func rewardForExitWinners(winnersSum, baseAmount decimal.Decimal) float64 {
	return rewardFraction(winnersSum, baseAmount)
}

// fixedReward returns the constant reward §4.3 assigns to the four
// strategy-tuning actions, and to wait.
func fixedReward(a Action) (float64, bool) {
	switch a {
	case ActionWait:
		return waitPenalty, true
	case ActionTightenStops:
		return tightenReward, true
	case ActionLoosenStops:
		return loosenReward, true
	case ActionIncreaseSize:
		return increaseReward, true
	case ActionDecreaseSize:
		return decreaseReward, true
	}
	return 0, false
}
