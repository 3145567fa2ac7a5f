package estimator

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testRateConfig() RateConfig {
	return RateConfig{
		HalfLife:          10 * time.Minute,
		TrendThresholdPct: 15,
		MinInterval:       time.Second,
	}
}

// windowOf builds a window holding the given interval durations, laid out
// back to back starting at trackerBase.
func windowOf(t *testing.T, capacity int, durations ...time.Duration) *RollingWindow {
	t.Helper()
	w := newTestWindow(t, capacity)
	ts := trackerBase
	for _, d := range durations {
		ts = ts.Add(d)
		w.Push(IntervalSample{Duration: d, EndTime: ts})
	}
	return w
}

func seconds(vals ...float64) []time.Duration {
	out := make([]time.Duration, len(vals))
	for i, v := range vals {
		out[i] = time.Duration(v * float64(time.Second))
	}
	return out
}

func TestRateEstimatorInsufficientData(t *testing.T) {
	est, err := NewRateEstimator(testRateConfig())
	if err != nil {
		t.Fatalf("NewRateEstimator: %v", err)
	}

	for _, durations := range [][]time.Duration{nil, {30 * time.Second}} {
		w := windowOf(t, 5, durations...)
		if _, err := est.Update(w); !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("with %d samples expected ErrInsufficientData, got %v", len(durations), err)
		}
	}
}

func TestRateEstimatorPositiveRate(t *testing.T) {
	est, _ := NewRateEstimator(testRateConfig())

	w := windowOf(t, 5, seconds(30, 32, 31, 29, 30)...)
	state, err := est.Update(w)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.Rate <= 0 {
		t.Fatalf("rate must be positive, got %f", state.Rate)
	}
	// Roughly two completions per minute for ~30s intervals.
	if math.Abs(state.Rate-2.0) > 0.2 {
		t.Fatalf("expected rate near 2/min, got %f", state.Rate)
	}
	if state.Trend != TrendStable {
		t.Fatalf("low-variance window should be stable, got %s", state.Trend)
	}
}

func TestRateEstimatorTrendDecelerating(t *testing.T) {
	est, _ := NewRateEstimator(testRateConfig())

	w := windowOf(t, 5, seconds(30, 30, 30, 90, 95)...)
	state, err := est.Update(w)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.Trend != TrendDecelerating {
		t.Fatalf("expected decelerating trend, got %s", state.Trend)
	}
}

func TestRateEstimatorTrendAccelerating(t *testing.T) {
	est, _ := NewRateEstimator(testRateConfig())

	w := windowOf(t, 6, seconds(90, 92, 88, 30, 31, 29)...)
	state, err := est.Update(w)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.Trend != TrendAccelerating {
		t.Fatalf("expected accelerating trend, got %s", state.Trend)
	}
}

func TestRateEstimatorWeighsRecentSamplesMore(t *testing.T) {
	cfg := testRateConfig()
	cfg.HalfLife = 30 * time.Second
	est, _ := NewRateEstimator(cfg)

	// Same durations, different order. The run ending in slow intervals
	// must report a lower rate than the run ending in fast ones.
	slowTail, err := est.Update(windowOf(t, 6, seconds(30, 30, 30, 30, 120, 120)...))
	if err != nil {
		t.Fatalf("Update slow tail: %v", err)
	}
	fastTail, err := est.Update(windowOf(t, 6, seconds(120, 120, 30, 30, 30, 30)...))
	if err != nil {
		t.Fatalf("Update fast tail: %v", err)
	}
	if slowTail.Rate >= fastTail.Rate {
		t.Fatalf("recent slowdown should depress the rate: slow tail %f, fast tail %f", slowTail.Rate, fastTail.Rate)
	}
}

func TestRateEstimatorClampsNearZeroMean(t *testing.T) {
	cfg := testRateConfig()
	cfg.MinInterval = 5 * time.Second
	est, _ := NewRateEstimator(cfg)

	w := windowOf(t, 4, seconds(0.01, 0.02, 0.01, 0.02)...)
	state, err := est.Update(w)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.MeanInterval < cfg.MinInterval {
		t.Fatalf("mean interval must be clamped to %s, got %s", cfg.MinInterval, state.MeanInterval)
	}
	if state.Rate > 60.0/cfg.MinInterval.Seconds() {
		t.Fatalf("rate must respect the clamp, got %f", state.Rate)
	}
}

func TestRateConfigValidation(t *testing.T) {
	cases := []RateConfig{
		{HalfLife: 0, TrendThresholdPct: 15, MinInterval: time.Second},
		{HalfLife: time.Minute, TrendThresholdPct: 0, MinInterval: time.Second},
		{HalfLife: time.Minute, TrendThresholdPct: 15, MinInterval: 0},
	}
	for i, cfg := range cases {
		if _, err := NewRateEstimator(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
