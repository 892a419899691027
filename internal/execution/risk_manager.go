package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// RiskManager is the ambient safety net layered under the spec's
// per-position stop-loss/take-profit/trailing-stop/max-hold rules: it can
// refuse a *new* buy once the day's losses or consecutive-loss streak trip
// a threshold, but it never blocks the monitor loop from closing an
// existing position.
type RiskManager struct {
	mu     sync.Mutex
	logger *zap.Logger
	limits types.RiskLimits

	dailyPnL          decimal.Decimal
	consecutiveLosses int
	dayStart          time.Time
	disabledUntil     time.Time
}

// NewRiskManager constructs a RiskManager.
func NewRiskManager(logger *zap.Logger, limits types.RiskLimits) *RiskManager {
	return &RiskManager{logger: logger, limits: limits, dayStart: time.Now().UTC()}
}

// CanOpenPosition reports whether a new buy is currently permitted.
func (r *RiskManager) CanOpenPosition(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDay(now)
	return now.After(r.disabledUntil)
}

// RecordTrade updates running daily P&L and the consecutive-loss streak,
// tripping the kill switch when either breaches its configured limit.
func (r *RiskManager) RecordTrade(now time.Time, pnl decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDay(now)

	r.dailyPnL = r.dailyPnL.Add(pnl)
	if pnl.IsNegative() {
		r.consecutiveLosses++
	} else {
		r.consecutiveLosses = 0
	}

	if r.dailyPnL.Neg().GreaterThanOrEqual(r.limits.MaxDailyLoss) {
		r.trip(now, "daily loss limit reached")
		return
	}
	if r.consecutiveLosses >= r.limits.MaxConsecutiveLosses {
		r.trip(now, "consecutive loss limit reached")
	}
}

func (r *RiskManager) trip(now time.Time, reason string) {
	r.disabledUntil = now.Add(r.limits.CooldownPeriod)
	r.logger.Warn("risk manager kill switch engaged", zap.String("reason", reason), zap.Time("until", r.disabledUntil))
}

// rollDay resets the daily counters at a UTC day boundary.
func (r *RiskManager) rollDay(now time.Time) {
	if now.UTC().YearDay() != r.dayStart.YearDay() || now.UTC().Year() != r.dayStart.Year() {
		r.dayStart = now.UTC()
		r.dailyPnL = decimal.Zero
	}
}

// IsDisabled reports whether the kill switch is currently engaged.
func (r *RiskManager) IsDisabled(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Before(r.disabledUntil)
}
