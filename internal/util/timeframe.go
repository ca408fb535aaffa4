package util

import (
	"fmt"
	"strconv"
	"time"

	"traderbot/internal/domain"
)

// TimeframeMinutes parses a timeframe string like "1m", "4h" or "1d" into
// minutes per bar.
func TimeframeMinutes(timeframe string) (int, error) {
	if len(timeframe) < 2 {
		return 0, fmt.Errorf("unsupported timeframe: %q", timeframe)
	}
	value, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("unsupported timeframe: %q", timeframe)
	}
	switch timeframe[len(timeframe)-1] {
	case 'm':
		return value, nil
	case 'h':
		return value * 60, nil
	case 'd':
		return value * 60 * 24, nil
	}
	return 0, fmt.Errorf("unsupported timeframe: %q", timeframe)
}

// BarsPerYear returns the approximate number of bars per year for a
// timeframe. Used to annualize return-based metrics.
func BarsPerYear(timeframe string) (int, error) {
	minutes, err := TimeframeMinutes(timeframe)
	if err != nil {
		return 0, err
	}
	return 365 * 24 * 60 / minutes, nil
}

// TimeframeDuration returns the bar interval as a time.Duration.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	minutes, err := TimeframeMinutes(timeframe)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// ApplySlippage adjusts a price adversely by bps basis points: buys execute
// above the quoted price, sells below it.
func ApplySlippage(price, bps float64, side domain.TradeSide) float64 {
	sign := 1.0
	if side == domain.TradeSideSell {
		sign = -1.0
	}
	return price * (1 + sign*bps/10000)
}

// DayUTC truncates a timestamp to its UTC calendar date.
func DayUTC(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
