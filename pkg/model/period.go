// Package model defines the canonical data types shared by the aggregation engine.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies an analysis window for percent-change data.
type Period string

// Supported analysis periods.
const (
	Period1H   Period = "1h"
	Period24H  Period = "24h"
	Period7D   Period = "7d"
	Period30D  Period = "30d"
	Period60D  Period = "60d"
	Period90D  Period = "90d"
	Period180D Period = "180d"
	Period270D Period = "270d"
	Period365D Period = "365d"
)

var periodDurations = map[Period]time.Duration{
	Period1H:   time.Hour,
	Period24H:  24 * time.Hour,
	Period7D:   7 * 24 * time.Hour,
	Period30D:  30 * 24 * time.Hour,
	Period60D:  60 * 24 * time.Hour,
	Period90D:  90 * 24 * time.Hour,
	Period180D: 180 * 24 * time.Hour,
	Period270D: 270 * 24 * time.Hour,
	Period365D: 365 * 24 * time.Hour,
}

// periodOrder lists periods from shortest to longest.
var periodOrder = []Period{
	Period1H, Period24H, Period7D, Period30D, Period60D,
	Period90D, Period180D, Period270D, Period365D,
}

// Periods returns all supported periods ordered from shortest to longest.
func Periods() []Period {
	out := make([]Period, len(periodOrder))
	copy(out, periodOrder)
	return out
}

// Duration returns the wall-clock length of the period.
func (p Period) Duration() time.Duration {
	return periodDurations[p]
}

// Valid reports whether the period is one of the supported windows.
func (p Period) Valid() bool {
	_, ok := periodDurations[p]
	return ok
}

// ParsePeriod parses a period string such as "24h" or "7d".
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
	return p, nil
}
