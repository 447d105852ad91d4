// Package analytics derives efficiency figures from the order store and the
// downtime ledger. Everything here is read-only and recomputed on demand.
package analytics

import "time"

// Trend labels for period-over-period comparison.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Window bounds a reporting period. From is inclusive, To exclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.To.Sub(w.From) }

// Minutes returns the window length in minutes.
func (w Window) Minutes() float64 { return w.Duration().Minutes() }

// Previous returns the equal-length window immediately before this one,
// used for trend comparison.
func (w Window) Previous() Window {
	return Window{From: w.From.Add(-w.Duration()), To: w.From}
}

// ratio divides n by d, clamped to [0, 1]. A non-positive denominator means
// there is nothing to measure yet and yields 0 rather than an error.
func ratio(n, d float64) float64 {
	if d <= 0 {
		return 0
	}
	r := n / d
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Availability is the fraction of planned time the equipment was not down.
func Availability(plannedMinutes, downtimeMinutes float64) float64 {
	return ratio(plannedMinutes-downtimeMinutes, plannedMinutes)
}

// Performance is the fraction of available time spent actually producing.
func Performance(runMinutes, plannedMinutes, downtimeMinutes float64) float64 {
	return ratio(runMinutes, plannedMinutes-downtimeMinutes)
}

// Quality is the fraction of the planned quantity that was produced.
func Quality(actualQuantity, targetQuantity float64) float64 {
	return ratio(actualQuantity, targetQuantity)
}

// OEE is the product of the three component ratios.
func OEE(availability, performance, quality float64) float64 {
	return availability * performance * quality
}

// MTBF is the mean time between failures over the window. With no incidents
// the window itself is the neutral answer.
func MTBF(windowMinutes float64, incidents int) float64 {
	if incidents == 0 {
		return windowMinutes
	}
	return windowMinutes / float64(incidents)
}

// MTTR is the mean time to repair across resolved incidents.
func MTTR(downtimeMinutes float64, resolved int) float64 {
	if resolved == 0 {
		return 0
	}
	return downtimeMinutes / float64(resolved)
}

// Trend compares the current value against the previous period. Movement
// within ten percent either way counts as stable.
func Trend(current, previous float64) string {
	switch {
	case current > previous*1.1:
		return TrendIncreasing
	case current < previous*0.9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
