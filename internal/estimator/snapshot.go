package estimator

import "time"

// StatusSnapshot is the immutable composition handed to display clients.
// Known is false before enough data has accumulated; the display must then
// render an explicit unknown state.
type StatusSnapshot struct {
	CounterID   string
	Known       bool
	Rate        RateState
	Flags       []AnomalyFlag
	Estimate    WaitEstimate
	GeneratedAt time.Time
}

// Snapshot composes the three pipeline outputs into a status snapshot. Pure
// composition: the caller guarantees all inputs were computed against the
// same window state.
func Snapshot(counterID string, rate RateState, flags []AnomalyFlag, estimate WaitEstimate, at time.Time) StatusSnapshot {
	return StatusSnapshot{
		CounterID:   counterID,
		Known:       true,
		Rate:        rate,
		Flags:       append([]AnomalyFlag(nil), flags...),
		Estimate:    estimate,
		GeneratedAt: at,
	}
}

// UnknownSnapshot is the explicit placeholder published while the rate is
// still undefined. Anomaly flags may already be present (a stalled counter
// with a single recorded event still stalls).
func UnknownSnapshot(counterID string, flags []AnomalyFlag, at time.Time) StatusSnapshot {
	return StatusSnapshot{
		CounterID:   counterID,
		Known:       false,
		Flags:       append([]AnomalyFlag(nil), flags...),
		Estimate:    WaitEstimate{Confidence: ConfidenceLow},
		GeneratedAt: at,
	}
}
