// Package agent implements C3, the autonomous decision agent: a tabular
// Q-learning controller that observes a discretized portfolio/market state,
// chooses a high-level action under epsilon-greedy exploration, and updates
// its policy from realized reward (spec.md §4.3). Built around a
// mutex-guarded metrics struct and a stopChan+sync.WaitGroup loop lifecycle
// with a last-100-records persistence cadence, driving pkg/types.Strategy
// and internal/engine.Engine.
package agent

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Streak classifies the agent's recent trade run.
type Streak string

const (
	StreakHot     Streak = "hot"
	StreakCold    Streak = "cold"
	StreakNeutral Streak = "neutral"
)

// TimeOfDay buckets the wall clock into the four bands §3 lists.
type TimeOfDay string

const (
	TimeNight     TimeOfDay = "night"
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
)

// capitalLevelBounds, drawdownLevelBounds, winRateLevelBounds are the fixed
// bucket boundaries §4.3 specifies. bucketIndex(value, bounds) returns the
// index of the highest boundary value has reached.
var (
	capitalLevelBounds  = []float64{0, 0.5, 0.8, 1.0, 1.5}
	drawdownLevelBounds = []float64{0, 0.1, 0.2, 0.3}
	winRateLevelBounds  = []float64{0, 0.3, 0.5, 0.7}
)

// State is the discretized AgentState of §3, serving as the Q-table key.
type State struct {
	OpenPositions  int
	CapitalLevel   int
	DrawdownLevel  int
	WinRateLevel   int
	Streak         Streak
	TimeOfDay      TimeOfDay
}

// Key renders State into the flat string the Q-table is keyed by.
func (s State) Key() string {
	return fmt.Sprintf("op=%d|cap=%d|dd=%d|wr=%d|streak=%s|tod=%s",
		s.OpenPositions, s.CapitalLevel, s.DrawdownLevel, s.WinRateLevel, s.Streak, s.TimeOfDay)
}

// bucketIndex returns the highest index i such that value >= bounds[i], or
// 0 when value is below every bound.
func bucketIndex(value float64, bounds []float64) int {
	idx := 0
	for i, b := range bounds {
		if value >= b {
			idx = i
		}
	}
	return idx
}

// Observation is the raw portfolio/market signal Discretize buckets into a
// State. CurrentCapital/StartingCapital gives capital_level; PeakCapital
// versus CurrentCapital gives drawdown_level; WinRate is trailing win rate
// over recorded trades; ConsecutiveWins/ConsecutiveLosses drive Streak.
type Observation struct {
	OpenPositions     int
	StartingCapital   decimal.Decimal
	CurrentCapital    decimal.Decimal
	PeakCapital       decimal.Decimal
	WinRate           decimal.Decimal
	ConsecutiveWins   int
	ConsecutiveLosses int
	Now               time.Time
}

// Discretize buckets an Observation into a State per §4.3's fixed
// boundaries and streak/time-of-day rules.
func Discretize(obs Observation) State {
	openPositions := obs.OpenPositions
	if openPositions > 5 {
		openPositions = 5
	}
	if openPositions < 0 {
		openPositions = 0
	}

	capitalRatio := 1.0
	if obs.StartingCapital.IsPositive() {
		ratio, _ := obs.CurrentCapital.Div(obs.StartingCapital).Float64()
		capitalRatio = ratio
	}

	drawdown := 0.0
	if obs.PeakCapital.IsPositive() {
		dd, _ := obs.PeakCapital.Sub(obs.CurrentCapital).Div(obs.PeakCapital).Float64()
		if dd > 0 {
			drawdown = dd
		}
	}

	winRate, _ := obs.WinRate.Float64()

	streak := StreakNeutral
	switch {
	case obs.ConsecutiveWins >= 3:
		streak = StreakHot
	case obs.ConsecutiveLosses >= 3:
		streak = StreakCold
	}

	return State{
		OpenPositions: openPositions,
		CapitalLevel:  bucketIndex(capitalRatio, capitalLevelBounds),
		DrawdownLevel: bucketIndex(drawdown, drawdownLevelBounds),
		WinRateLevel:  bucketIndex(winRate, winRateLevelBounds),
		Streak:        streak,
		TimeOfDay:     timeOfDay(obs.Now),
	}
}

func timeOfDay(t time.Time) TimeOfDay {
	hour := t.Hour()
	switch {
	case hour < 6:
		return TimeNight
	case hour < 12:
		return TimeMorning
	case hour < 18:
		return TimeAfternoon
	default:
		return TimeEvening
	}
}
