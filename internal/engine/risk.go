package engine

import (
	"time"

	"traderbot/internal/util"
)

// DailyRiskManager is a daily drawdown circuit breaker. When equity falls
// below the day's starting equity by more than maxDailyLossFraction, the
// breaker trips and blocks new entries until the next UTC calendar day.
// Liquidations are never blocked; the breaker gates entries only.
type DailyRiskManager struct {
	maxDailyLossFraction float64

	dayStartEquity float64
	baselineSet    bool
	circuitBreaker bool
	currentDay     time.Time
}

// NewDailyRiskManager creates a DailyRiskManager with the given maximum
// daily loss fraction (e.g. 0.05 for 5%).
func NewDailyRiskManager(maxDailyLossFraction float64) *DailyRiskManager {
	return &DailyRiskManager{maxDailyLossFraction: maxDailyLossFraction}
}

// Update records the equity observed at ts. Crossing into a new UTC calendar
// day resets the baseline and clears the breaker; afterwards the breaker
// trips if equity has fallen below the daily loss threshold.
func (rm *DailyRiskManager) Update(ts time.Time, equity float64) {
	day := util.DayUTC(ts)
	if !rm.currentDay.Equal(day) {
		rm.currentDay = day
		rm.dayStartEquity = equity
		rm.baselineSet = true
		rm.circuitBreaker = false
	}
	if rm.baselineSet && equity < rm.dayStartEquity*(1-rm.maxDailyLossFraction) {
		rm.circuitBreaker = true
	}
}

// AllowTrading reports whether new entries are currently permitted.
func (rm *DailyRiskManager) AllowTrading() bool {
	return !rm.circuitBreaker
}
