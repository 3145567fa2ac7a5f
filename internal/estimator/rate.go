package estimator

import (
	"fmt"
	"math"
	"time"
)

// Trend classifies the direction of recent service-rate change.
type Trend string

const (
	TrendAccelerating Trend = "accelerating"
	TrendStable       Trend = "stable"
	TrendDecelerating Trend = "decelerating"
)

// RateState is the single current belief about service speed for one
// counter. Rate is completions per minute.
type RateState struct {
	Rate         float64
	MeanInterval time.Duration
	Trend        Trend
	ComputedAt   time.Time
}

// RateConfig tunes the rate estimator.
type RateConfig struct {
	// HalfLife controls the exponential decay of sample weights: a sample
	// this much older than the newest one carries half its weight.
	HalfLife time.Duration
	// TrendThresholdPct is the relative rate change (percent) between the
	// recent and preceding sub-windows beyond which the trend leaves STABLE.
	TrendThresholdPct float64
	// MinInterval clamps the weighted mean; durations below it are treated
	// as measurement noise rather than a genuine near-infinite rate.
	MinInterval time.Duration
}

// Validate fails fast on non-positive tunables.
func (c RateConfig) Validate() error {
	if c.HalfLife <= 0 {
		return fmt.Errorf("%w: rate half-life must be positive", ErrInvalidConfig)
	}
	if c.TrendThresholdPct <= 0 {
		return fmt.Errorf("%w: trend threshold must be positive", ErrInvalidConfig)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("%w: minimum interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// RateEstimator converts the rolling interval window into a smoothed
// service-rate estimate and its trend classification.
//
// The smoothing formula is an exponentially decayed weighted mean of the
// interval durations: sample i gets weight 0.5^(age_i / half_life) where
// age_i is measured from the newest sample's end time. The rate is the
// reciprocal of the weighted mean. Recent slowdowns therefore move the
// estimate quickly while a single abnormal transaction is damped.
type RateEstimator struct {
	cfg RateConfig
}

// NewRateEstimator constructs a rate estimator.
func NewRateEstimator(cfg RateConfig) (*RateEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RateEstimator{cfg: cfg}, nil
}

// Update recomputes the rate state from the window. Fewer than 2 samples
// yields ErrInsufficientData; with enough samples the returned rate is
// always positive.
func (e *RateEstimator) Update(window *RollingWindow) (RateState, error) {
	samples := window.Samples()
	if len(samples) < 2 {
		return RateState{}, fmt.Errorf("%w: need at least 2 interval samples, have %d", ErrInsufficientData, len(samples))
	}

	newest := samples[len(samples)-1].EndTime

	var weightedSum, weightTotal float64
	for _, s := range samples {
		age := newest.Sub(s.EndTime)
		weight := math.Exp2(-age.Seconds() / e.cfg.HalfLife.Seconds())
		weightedSum += weight * s.Duration.Seconds()
		weightTotal += weight
	}

	meanSeconds := weightedSum / weightTotal
	if min := e.cfg.MinInterval.Seconds(); meanSeconds < min {
		meanSeconds = min
	}

	state := RateState{
		Rate:         60.0 / meanSeconds,
		MeanInterval: time.Duration(meanSeconds * float64(time.Second)),
		Trend:        e.classifyTrend(samples),
		ComputedAt:   newest,
	}
	return state, nil
}

// classifyTrend compares the plain mean interval of the recent half of the
// window against the preceding half. Too few samples for two sub-windows
// reads as STABLE.
func (e *RateEstimator) classifyTrend(samples []IntervalSample) Trend {
	if len(samples) < 4 {
		return TrendStable
	}

	mid := len(samples) / 2
	older := meanSeconds(samples[:mid])
	recent := meanSeconds(samples[mid:])
	if older <= 0 || recent <= 0 {
		return TrendStable
	}

	// Rates are reciprocals of the mean intervals, so the relative rate
	// change is older/recent - 1.
	change := (older/recent - 1) * 100
	switch {
	case change > e.cfg.TrendThresholdPct:
		return TrendAccelerating
	case change < -e.cfg.TrendThresholdPct:
		return TrendDecelerating
	default:
		return TrendStable
	}
}

func meanSeconds(samples []IntervalSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Duration.Seconds()
	}
	return sum / float64(len(samples))
}
