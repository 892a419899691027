package agent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDiscretizeBucketsCapitalLevel(t *testing.T) {
	base := Observation{
		StartingCapital: decimal.NewFromInt(100),
		PeakCapital:     decimal.NewFromInt(100),
		Now:             time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name    string
		current int64
		want    int
	}{
		{"below starting", 40, 0},  // ratio 0.4 < 0.5
		{"mid", 90, 2},              // ratio 0.9 in [0.8,1.0)
		{"at par", 100, 3},          // ratio 1.0 in [1.0,1.5)
		{"well above", 200, 4},      // ratio 2.0 >= 1.5
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := base
			obs.CurrentCapital = decimal.NewFromInt(tc.current)
			state := Discretize(obs)
			if state.CapitalLevel != tc.want {
				t.Errorf("CapitalLevel = %d, want %d", state.CapitalLevel, tc.want)
			}
		})
	}
}

func TestDiscretizeStreak(t *testing.T) {
	base := Observation{
		StartingCapital: decimal.NewFromInt(100),
		CurrentCapital:  decimal.NewFromInt(100),
		PeakCapital:     decimal.NewFromInt(100),
		Now:             time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	hot := base
	hot.ConsecutiveWins = 3
	if got := Discretize(hot).Streak; got != StreakHot {
		t.Errorf("expected hot streak, got %s", got)
	}

	cold := base
	cold.ConsecutiveLosses = 4
	if got := Discretize(cold).Streak; got != StreakCold {
		t.Errorf("expected cold streak, got %s", got)
	}

	neutral := base
	neutral.ConsecutiveWins = 1
	if got := Discretize(neutral).Streak; got != StreakNeutral {
		t.Errorf("expected neutral streak, got %s", got)
	}
}

func TestDiscretizeTimeOfDay(t *testing.T) {
	cases := []struct {
		hour int
		want TimeOfDay
	}{
		{3, TimeNight},
		{9, TimeMorning},
		{15, TimeAfternoon},
		{21, TimeEvening},
	}
	for _, tc := range cases {
		obs := Observation{Now: time.Date(2026, 1, 1, tc.hour, 0, 0, 0, time.UTC)}
		if got := Discretize(obs).TimeOfDay; got != tc.want {
			t.Errorf("hour %d: TimeOfDay = %s, want %s", tc.hour, got, tc.want)
		}
	}
}

func TestAvailableActionsRespectsPortfolioState(t *testing.T) {
	// no positions, room to enter: no exit_* actions, enter_* present.
	actions := AvailableActions(0, 5)
	assertContains(t, actions, ActionEnterAggressive)
	assertContains(t, actions, ActionEnterConservative)
	assertNotContains(t, actions, ActionExitAll)

	// at max positions: no enter_* actions.
	actions = AvailableActions(5, 5)
	assertNotContains(t, actions, ActionEnterAggressive)
	assertNotContains(t, actions, ActionEnterConservative)

	// open positions: exit_* actions present.
	actions = AvailableActions(2, 5)
	assertContains(t, actions, ActionExitAll)
	assertContains(t, actions, ActionExitLosers)
	assertContains(t, actions, ActionExitWinners)

	// wait and the four tuners are always available.
	for _, a := range []Action{ActionWait, ActionTightenStops, ActionLoosenStops, ActionIncreaseSize, ActionDecreaseSize} {
		assertContains(t, actions, a)
	}
}

func assertContains(t *testing.T, actions []Action, want Action) {
	t.Helper()
	for _, a := range actions {
		if a == want {
			return
		}
	}
	t.Errorf("expected %s to be available in %v", want, actions)
}

func assertNotContains(t *testing.T, actions []Action, unwanted Action) {
	t.Helper()
	for _, a := range actions {
		if a == unwanted {
			t.Errorf("expected %s to be unavailable in %v", unwanted, actions)
		}
	}
}

func TestSelectActionGreedyPicksHighestQ(t *testing.T) {
	q := NewQTable()
	state := State{OpenPositions: 1, Streak: StreakNeutral, TimeOfDay: TimeMorning}
	available := []Action{ActionWait, ActionExitAll, ActionExitWinners}

	q.Set(state, ActionWait, 0.1)
	q.Set(state, ActionExitAll, 0.9)
	q.Set(state, ActionExitWinners, 0.4)

	rng := rand.New(rand.NewSource(1))
	got := SelectAction(q, state, available, 0.0, rng) // epsilon 0 forces greedy
	if got != ActionExitAll {
		t.Errorf("SelectAction = %s, want %s", got, ActionExitAll)
	}
}

func TestSelectActionExploresWithFullEpsilon(t *testing.T) {
	q := NewQTable()
	state := State{}
	available := []Action{ActionWait}

	rng := rand.New(rand.NewSource(2))
	got := SelectAction(q, state, available, 1.0, rng)
	if got != ActionWait {
		t.Errorf("SelectAction with single available action = %s, want %s", got, ActionWait)
	}
}

func TestDecayEpsilonFloorsAtMin(t *testing.T) {
	e := 0.06
	for i := 0; i < 50; i++ {
		e = DecayEpsilon(e, 0.9, 0.05)
	}
	if e < 0.05 {
		t.Errorf("epsilon decayed below floor: %f", e)
	}
	if e != 0.05 {
		t.Errorf("epsilon should have converged to floor 0.05, got %f", e)
	}
}

func TestQTableUpdateConvergesTowardReward(t *testing.T) {
	q := NewQTable()
	state := State{OpenPositions: 1}
	action := ActionExitWinners
	nextState := State{OpenPositions: 0}

	value := 0.0
	for i := 0; i < 500; i++ {
		value = q.Update(state, action, 1.0, 0.1, 0.9, nextState, []Action{ActionWait})
	}

	// With a constant reward of 1.0 and a terminal next-state max of 0, the
	// fixed point is Q = reward = 1.0 (alpha*(1 - Q) == 0 when Q == 1).
	if value < 0.95 || value > 1.05 {
		t.Errorf("Q-value did not converge near reward: got %f", value)
	}
}

func TestQTableUpdateTouchesOnlyItsOwnEntry(t *testing.T) {
	q := NewQTable()
	s1 := State{OpenPositions: 1}
	s2 := State{OpenPositions: 2}

	q.Update(s1, ActionWait, 1.0, 0.5, 0.9, s1, []Action{ActionWait})

	if v := q.Value(s2, ActionWait); v != 0 {
		t.Errorf("unrelated state/action was touched: Value(s2, wait) = %f", v)
	}
	if v := q.Value(s1, ActionExitAll); v != 0 {
		t.Errorf("unrelated action in same state was touched: Value(s1, exit_all) = %f", v)
	}
}

func TestQTablePersistenceRoundTrip(t *testing.T) {
	q := NewQTable()
	state := State{OpenPositions: 2, Streak: StreakHot, TimeOfDay: TimeEvening}
	q.Set(state, ActionTightenStops, 0.42)
	q.Set(state, ActionLoosenStops, -0.2)

	records := q.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	restored := NewQTable()
	restored.LoadRecords(records)

	if v := restored.Value(state, ActionTightenStops); v != 0.42 {
		t.Errorf("restored tighten_stops value = %f, want 0.42", v)
	}
	if v := restored.Value(state, ActionLoosenStops); v != -0.2 {
		t.Errorf("restored loosen_stops value = %f, want -0.2", v)
	}
}

func TestQTableLoadRecordsMergesRatherThanReplaces(t *testing.T) {
	q := NewQTable()
	state := State{OpenPositions: 1}
	q.Set(state, ActionWait, 1.0)

	q.LoadRecords([]Record{{StateKey: state.Key(), Action: string(ActionExitAll), Value: 0.5}})

	if v := q.Value(state, ActionWait); v != 1.0 {
		t.Errorf("LoadRecords clobbered existing entry: Value(wait) = %f, want 1.0", v)
	}
	if v := q.Value(state, ActionExitAll); v != 0.5 {
		t.Errorf("LoadRecords did not apply new entry: Value(exit_all) = %f, want 0.5", v)
	}
}

func TestRewardForExitLosersHalvesMagnitude(t *testing.T) {
	loss := decimal.NewFromFloat(-10)
	base := decimal.NewFromFloat(100)
	got := rewardForExitLosers(loss, base)
	want := 0.05 // |(-10)/100| * 0.5
	if got < want-0.0001 || got > want+0.0001 {
		t.Errorf("rewardForExitLosers = %f, want %f", got, want)
	}
}

func TestFixedRewardsMatchSpecConstants(t *testing.T) {
	cases := map[Action]float64{
		ActionWait:         waitPenalty,
		ActionTightenStops: tightenReward,
		ActionLoosenStops:  loosenReward,
		ActionIncreaseSize: increaseReward,
		ActionDecreaseSize: decreaseReward,
	}
	for action, want := range cases {
		got, ok := fixedReward(action)
		if !ok {
			t.Errorf("fixedReward(%s) reported not fixed", action)
		}
		if got != want {
			t.Errorf("fixedReward(%s) = %f, want %f", action, got, want)
		}
	}

	if _, ok := fixedReward(ActionExitAll); ok {
		t.Errorf("exit_all should not be a fixed-reward action")
	}
}
