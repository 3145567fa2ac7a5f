package estimator

import (
	"errors"
	"testing"
	"time"
)

func testPredictorConfig() PredictorConfig {
	return PredictorConfig{
		ReferenceDepth:  5,
		TrendAdjustment: 0.25,
	}
}

func newTestPredictor(t *testing.T) *WaitPredictor {
	t.Helper()
	p, err := NewWaitPredictor(testPredictorConfig())
	if err != nil {
		t.Fatalf("NewWaitPredictor: %v", err)
	}
	return p
}

func calmStats() WindowStats {
	return WindowStats{Count: 5, Mean: 30 * time.Second, StdDev: time.Second}
}

func TestPredictDeceleratingExceedsStable(t *testing.T) {
	p := newTestPredictor(t)

	stable := RateState{Rate: 2, Trend: TrendStable}
	decel := RateState{Rate: 2, Trend: TrendDecelerating}
	accel := RateState{Rate: 2, Trend: TrendAccelerating}

	stableEst, err := p.Predict(stable, nil, calmStats(), 1)
	if err != nil {
		t.Fatalf("Predict stable: %v", err)
	}
	decelEst, err := p.Predict(decel, nil, calmStats(), 1)
	if err != nil {
		t.Fatalf("Predict decelerating: %v", err)
	}
	accelEst, err := p.Predict(accel, nil, calmStats(), 1)
	if err != nil {
		t.Fatalf("Predict accelerating: %v", err)
	}

	if decelEst.Minutes <= stableEst.Minutes {
		t.Fatalf("decelerating wait %f must exceed stable wait %f", decelEst.Minutes, stableEst.Minutes)
	}
	if accelEst.Minutes >= stableEst.Minutes {
		t.Fatalf("accelerating wait %f must be below stable wait %f", accelEst.Minutes, stableEst.Minutes)
	}
	if stableEst.Minutes != 2.5 {
		t.Fatalf("5 deep at 2/min should wait 2.5 minutes, got %f", stableEst.Minutes)
	}
}

func TestPredictPropagatesInsufficientData(t *testing.T) {
	p := newTestPredictor(t)
	if _, err := p.Predict(RateState{}, nil, WindowStats{}, 0); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestPredictConfidenceLevels(t *testing.T) {
	p := newTestPredictor(t)
	rate := RateState{Rate: 2, Trend: TrendStable}
	now := time.Now()

	// Full window, low variance, no flags.
	est, err := p.Predict(rate, nil, calmStats(), 1)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if est.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", est.Confidence)
	}

	// Partially filled window.
	est, _ = p.Predict(rate, nil, calmStats(), 0.6)
	if est.Confidence != ConfidenceMedium {
		t.Fatalf("expected medium confidence on a partial window, got %s", est.Confidence)
	}

	// Single mild anomaly.
	mild := []AnomalyFlag{{Kind: AnomalySlowdown, Severity: SeverityWarning, DetectedAt: now}}
	est, _ = p.Predict(rate, mild, calmStats(), 1)
	if est.Confidence != ConfidenceMedium {
		t.Fatalf("expected medium confidence with one mild anomaly, got %s", est.Confidence)
	}

	// Instability forces low confidence.
	unstable := []AnomalyFlag{{Kind: AnomalyInstability, Severity: SeverityWarning, DetectedAt: now}}
	est, _ = p.Predict(rate, unstable, calmStats(), 1)
	if est.Confidence != ConfidenceLow {
		t.Fatalf("expected low confidence under instability, got %s", est.Confidence)
	}

	// A critical flag forces low confidence too.
	critical := []AnomalyFlag{{Kind: AnomalyStall, Severity: SeverityCritical, DetectedAt: now}}
	est, _ = p.Predict(rate, critical, calmStats(), 1)
	if est.Confidence != ConfidenceLow {
		t.Fatalf("expected low confidence with a critical flag, got %s", est.Confidence)
	}
}

func TestPredictorConfigValidation(t *testing.T) {
	cases := []PredictorConfig{
		{ReferenceDepth: 0, TrendAdjustment: 0.25},
		{ReferenceDepth: 5, TrendAdjustment: 0},
		{ReferenceDepth: 5, TrendAdjustment: 0.9},
	}
	for i, cfg := range cases {
		if _, err := NewWaitPredictor(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
