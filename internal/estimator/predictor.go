package estimator

import "fmt"

// Confidence is the qualitative reliability label attached to a wait
// estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// WaitEstimate is the expected wait for a new arrival joining the queue now.
type WaitEstimate struct {
	Minutes    float64
	Confidence Confidence
}

// PredictorConfig tunes the wait predictor.
type PredictorConfig struct {
	// ReferenceDepth is the assumed queue depth the wait is computed for.
	// With no arrival data this is an explicit, externally tunable
	// assumption, not a measurement.
	ReferenceDepth float64
	// TrendAdjustment is the bounded fraction by which a decelerating trend
	// inflates (and an accelerating trend deflates) the estimate.
	TrendAdjustment float64
}

// maximum trend adjustment; keeps short-term noise from doubling or
// zeroing the estimate.
const maxTrendAdjustment = 0.5

// scale-free spread below which a full window counts as low variance.
const lowVarianceCV = 0.3

// Validate fails fast on out-of-range tunables.
func (c PredictorConfig) Validate() error {
	if c.ReferenceDepth <= 0 {
		return fmt.Errorf("%w: reference queue depth must be positive", ErrInvalidConfig)
	}
	if c.TrendAdjustment <= 0 || c.TrendAdjustment > maxTrendAdjustment {
		return fmt.Errorf("%w: trend adjustment must be in (0, %.1f]", ErrInvalidConfig, maxTrendAdjustment)
	}
	return nil
}

// WaitPredictor turns the current service rate into an expected wait. The
// wait is reference depth divided by rate, adjusted by a bounded trend
// multiplier; no arrival data exists, so this is an indirect inference.
type WaitPredictor struct {
	cfg PredictorConfig
}

// NewWaitPredictor constructs a wait predictor.
func NewWaitPredictor(cfg PredictorConfig) (*WaitPredictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WaitPredictor{cfg: cfg}, nil
}

// Predict computes the wait estimate from the rate state, the active
// anomaly flags, and the window statistics backing both. Propagates
// ErrInsufficientData when no usable rate exists; callers must render an
// explicit unknown state instead of a number.
func (p *WaitPredictor) Predict(rate RateState, flags []AnomalyFlag, stats WindowStats, fill float64) (WaitEstimate, error) {
	if rate.Rate <= 0 {
		return WaitEstimate{}, fmt.Errorf("%w: no current service rate", ErrInsufficientData)
	}

	minutes := p.cfg.ReferenceDepth / rate.Rate
	switch rate.Trend {
	case TrendDecelerating:
		minutes *= 1 + p.cfg.TrendAdjustment
	case TrendAccelerating:
		minutes *= 1 - p.cfg.TrendAdjustment
	}

	return WaitEstimate{
		Minutes:    minutes,
		Confidence: p.confidence(flags, stats, fill),
	}, nil
}

func (p *WaitPredictor) confidence(flags []AnomalyFlag, stats WindowStats, fill float64) Confidence {
	if HasFlag(flags, AnomalyInstability) {
		return ConfidenceLow
	}
	for _, f := range flags {
		if f.Severity >= SeverityCritical {
			return ConfidenceLow
		}
	}
	if len(flags) > 1 {
		return ConfidenceLow
	}
	if fill >= 1 && len(flags) == 0 && stats.CoefficientOfVariation() < lowVarianceCV {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
