package engine

import "github.com/atlas-desktop/nova-trader/pkg/types"

// validTransitions enumerates the legal Position state machine edges of
// §4.2.6. Opening->Open happens on buy confirmation, Open->Closing when an
// exit condition matches, Closing->Closed on sell success, Closing->Failed
// on sell error (the position is never dropped on a sell failure — it stays
// in activePositions for the next monitor tick to retry), and
// Opening->Failed on a buy error (which blacklists the token instead).
// The monitor loop does not take the Closing->Failed edge: a position whose
// sell failed stays in Closing with FailedSellAttempts incremented and is
// retried on the next tick.
var validTransitions = map[types.PositionState][]types.PositionState{
	types.PositionOpening: {types.PositionOpen, types.PositionFailed},
	types.PositionOpen:    {types.PositionClosing},
	types.PositionClosing: {types.PositionClosed, types.PositionFailed},
}

// canTransition reports whether from->to is a legal edge.
func canTransition(from, to types.PositionState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
