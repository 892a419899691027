package engine

import (
	"testing"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func TestPassesEntryFiltersOnlyChecksObservedFactors(t *testing.T) {
	thresholds := types.DefaultStrategy().Entry

	unobserved := &types.Token{}
	if !passesEntryFilters(unobserved, thresholds, 10) {
		t.Fatal("a token with no observed factors should pass filters")
	}

	tooIlliquid := &types.Token{}
	tooIlliquid.SetLiquidity(d(1))
	if passesEntryFilters(tooIlliquid, thresholds, 10) {
		t.Fatal("expected low liquidity to fail the filter")
	}

	stale := &types.Token{}
	if passesEntryFilters(stale, thresholds, thresholds.MaxAgeSec+1) {
		t.Fatal("expected a stale token to fail the age filter")
	}

	unverified := &types.Token{}
	unverified.SetVerified(false)
	strictThresholds := thresholds
	strictThresholds.RequireVerified = true
	if passesEntryFilters(unverified, strictThresholds, 10) {
		t.Fatal("expected an unverified token to fail when verification is required")
	}
}

func TestRiskScoreDefaultsWhenNoFactorsObserved(t *testing.T) {
	token := &types.Token{}
	score := riskScore(token)
	if !score.Equal(d(0.5)) {
		t.Fatalf("expected default risk score of 0.5, got %s", score)
	}
}

func TestRiskScoreAddsUnverifiedPenalty(t *testing.T) {
	verified := &types.Token{}
	verified.SetLiquidity(d(8))
	verified.SetVerified(true)

	unverified := &types.Token{}
	unverified.SetLiquidity(d(8))
	unverified.SetVerified(false)

	diff := riskScore(unverified).Sub(riskScore(verified))
	if !diff.Equal(d(0.3)) {
		t.Fatalf("expected the unverified penalty to add exactly 0.3, got delta %s", diff)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to types.PositionState
		want     bool
	}{
		{types.PositionOpening, types.PositionOpen, true},
		{types.PositionOpening, types.PositionFailed, true},
		{types.PositionOpening, types.PositionClosing, false},
		{types.PositionOpen, types.PositionClosing, true},
		{types.PositionOpen, types.PositionClosed, false},
		{types.PositionClosing, types.PositionClosed, true},
		{types.PositionClosing, types.PositionFailed, true},
		{types.PositionClosed, types.PositionOpen, false},
	}
	for _, c := range cases {
		if got := canTransition(c.from, c.to); got != c.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
