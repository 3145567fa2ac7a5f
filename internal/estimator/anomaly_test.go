package estimator

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func testAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		SlowdownSigma:    1.5,
		StallMultiple:    3,
		InstabilityRatio: 2,
	}
}

func newTestDetector(t *testing.T) *AnomalyDetector {
	t.Helper()
	d, err := NewAnomalyDetector(testAnomalyConfig())
	if err != nil {
		t.Fatalf("NewAnomalyDetector: %v", err)
	}
	return d
}

func lastEnd(w *RollingWindow) time.Time {
	newest, _ := w.Newest()
	return newest.EndTime
}

func TestAnomalyQuietWindowRaisesNothing(t *testing.T) {
	d := newTestDetector(t)
	w := windowOf(t, 5, seconds(30, 32, 31, 29, 30)...)

	flags := d.Evaluate(w, lastEnd(w))
	if len(flags) != 0 {
		t.Fatalf("expected no flags on a quiet window, got %v", flags)
	}
}

func TestAnomalySlowdownRaised(t *testing.T) {
	d := newTestDetector(t)
	w := windowOf(t, 5, seconds(30, 30, 30, 90, 95)...)

	flags := d.Evaluate(w, lastEnd(w))
	if !HasFlag(flags, AnomalySlowdown) {
		t.Fatalf("expected slowdown flag, got %v", flags)
	}
	for _, f := range flags {
		if f.Kind == AnomalySlowdown && f.Severity < SeverityWarning {
			t.Fatalf("slowdown severity must be at least warning, got %v", f.Severity)
		}
	}
}

func TestAnomalyStallRaisedAfterLongSilence(t *testing.T) {
	d := newTestDetector(t)
	w := windowOf(t, 5, seconds(30, 30, 30, 30, 30)...)

	// Ten times the expected interval with no completion.
	now := lastEnd(w).Add(300 * time.Second)
	flags := d.Evaluate(w, now)
	if !HasFlag(flags, AnomalyStall) {
		t.Fatalf("expected stall flag after 10x expected interval, got %v", flags)
	}
	for _, f := range flags {
		if f.Kind == AnomalyStall && f.Severity != SeverityCritical {
			t.Fatalf("10x the expected interval should be critical, got %v", f.Severity)
		}
	}

	// Immediately after a completion there is no stall.
	if flags := d.Evaluate(w, lastEnd(w)); HasFlag(flags, AnomalyStall) {
		t.Fatal("stall must clear when evaluated right after a completion")
	}
}

func TestAnomalyInstabilityRaisedOnSpreadGrowth(t *testing.T) {
	d := newTestDetector(t)
	// Steady first half, oscillating second half.
	w := windowOf(t, 8, seconds(30, 31, 30, 29, 10, 90, 12, 85)...)

	flags := d.Evaluate(w, lastEnd(w))
	if !HasFlag(flags, AnomalyInstability) {
		t.Fatalf("expected instability flag, got %v", flags)
	}
}

func TestAnomalyEvaluateIsIdempotent(t *testing.T) {
	d := newTestDetector(t)
	w := windowOf(t, 5, seconds(30, 30, 30, 90, 95)...)
	now := lastEnd(w).Add(45 * time.Second)

	first := d.Evaluate(w, now)
	second := d.Evaluate(w, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluate must be idempotent on an unchanged window: %v vs %v", first, second)
	}
}

func TestAnomalyFlagsClearWhenConditionPasses(t *testing.T) {
	d := newTestDetector(t)
	w := windowOf(t, 5, seconds(30, 30, 30, 90, 95)...)
	if !HasFlag(d.Evaluate(w, lastEnd(w)), AnomalySlowdown) {
		t.Fatal("precondition: slowdown expected")
	}

	// Service recovers; the slow samples age out of the window.
	ts := lastEnd(w)
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Second)
		w.Push(IntervalSample{Duration: 30 * time.Second, EndTime: ts})
	}
	if flags := d.Evaluate(w, lastEnd(w)); len(flags) != 0 {
		t.Fatalf("flags must clear once the condition no longer holds, got %v", flags)
	}
}

func TestAnomalyConfigValidation(t *testing.T) {
	cases := []AnomalyConfig{
		{SlowdownSigma: 0, StallMultiple: 3, InstabilityRatio: 2},
		{SlowdownSigma: 1.5, StallMultiple: 0, InstabilityRatio: 2},
		{SlowdownSigma: 1.5, StallMultiple: 3, InstabilityRatio: -1},
	}
	for i, cfg := range cases {
		if _, err := NewAnomalyDetector(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
