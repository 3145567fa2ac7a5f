// Package display renders status snapshots into the four-line public
// display contract. It consumes snapshots; it never computes them.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"queue-wait-monitor/internal/estimator"
)

// clockFormat matches what a wall-mounted display shows.
const clockFormat = "15:04"

// TrendLabel maps a trend classification to its public wording.
func TrendLabel(tr estimator.Trend) string {
	switch tr {
	case estimator.TrendAccelerating:
		return "SPEEDING UP"
	case estimator.TrendDecelerating:
		return "SLOWING DOWN"
	default:
		return "STABLE"
	}
}

// ConfidenceLabel maps a confidence level to its public wording.
func ConfidenceLabel(c estimator.Confidence) string {
	return strings.ToUpper(string(c))
}

// WaitLabel renders the wait-time line value: whole minutes, or "unknown"
// when no estimate exists. Fabricated numbers are never shown.
func WaitLabel(snap estimator.StatusSnapshot) string {
	if !snap.Known {
		return "unknown"
	}
	minutes := decimal.NewFromFloat(snap.Estimate.Minutes).Round(0)
	return fmt.Sprintf("%s minutes", minutes.String())
}

// Render produces the four-line display text:
//
//	CURRENT WAIT TIME: 25 minutes
//	SERVICE STATUS: SLOWING DOWN
//	CONFIDENCE: MEDIUM
//	LAST UPDATED: 14:30
func Render(snap estimator.StatusSnapshot) string {
	status := "STABLE"
	confidence := ConfidenceLabel(estimator.ConfidenceLow)
	if snap.Known {
		status = TrendLabel(snap.Rate.Trend)
		confidence = ConfidenceLabel(snap.Estimate.Confidence)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT WAIT TIME: %s\n", WaitLabel(snap))
	fmt.Fprintf(&b, "SERVICE STATUS: %s\n", status)
	fmt.Fprintf(&b, "CONFIDENCE: %s\n", confidence)
	fmt.Fprintf(&b, "LAST UPDATED: %s\n", snap.GeneratedAt.Format(clockFormat))
	return b.String()
}

// RenderUninitialized is shown before the first completion event.
func RenderUninitialized(now time.Time) string {
	var b strings.Builder
	b.WriteString("CURRENT WAIT TIME: unknown\n")
	b.WriteString("SERVICE STATUS: NO DATA\n")
	b.WriteString("CONFIDENCE: LOW\n")
	fmt.Fprintf(&b, "LAST UPDATED: %s\n", now.Format(clockFormat))
	return b.String()
}
