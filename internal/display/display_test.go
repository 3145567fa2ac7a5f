package display

import (
	"strings"
	"testing"
	"time"

	"queue-wait-monitor/internal/estimator"
)

func TestRenderKnownSnapshot(t *testing.T) {
	snap := estimator.StatusSnapshot{
		CounterID: "counter-1",
		Known:     true,
		Rate:      estimator.RateState{Rate: 0.2, Trend: estimator.TrendDecelerating},
		Estimate: estimator.WaitEstimate{
			Minutes:    25.2,
			Confidence: estimator.ConfidenceMedium,
		},
		GeneratedAt: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	}

	got := Render(snap)
	want := "CURRENT WAIT TIME: 25 minutes\n" +
		"SERVICE STATUS: SLOWING DOWN\n" +
		"CONFIDENCE: MEDIUM\n" +
		"LAST UPDATED: 14:30\n"
	if got != want {
		t.Fatalf("unexpected rendering:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderUnknownSnapshot(t *testing.T) {
	snap := estimator.StatusSnapshot{
		CounterID:   "counter-1",
		Known:       false,
		GeneratedAt: time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC),
	}

	got := Render(snap)
	if !strings.Contains(got, "CURRENT WAIT TIME: unknown") {
		t.Fatalf("unknown state must say unknown, got:\n%s", got)
	}
	if !strings.Contains(got, "CONFIDENCE: LOW") {
		t.Fatalf("unknown state must carry low confidence, got:\n%s", got)
	}
}

func TestRenderUninitialized(t *testing.T) {
	got := RenderUninitialized(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "SERVICE STATUS: NO DATA") {
		t.Fatalf("expected NO DATA status, got:\n%s", got)
	}
	if !strings.Contains(got, "LAST UPDATED: 08:00") {
		t.Fatalf("expected clock line, got:\n%s", got)
	}
}

func TestTrendLabels(t *testing.T) {
	cases := map[estimator.Trend]string{
		estimator.TrendAccelerating: "SPEEDING UP",
		estimator.TrendStable:       "STABLE",
		estimator.TrendDecelerating: "SLOWING DOWN",
	}
	for trend, want := range cases {
		if got := TrendLabel(trend); got != want {
			t.Fatalf("TrendLabel(%s) = %s, want %s", trend, got, want)
		}
	}
}
