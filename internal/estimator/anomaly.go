package estimator

import (
	"fmt"
	"time"
)

// AnomalyKind identifies a class of abnormal service behaviour.
type AnomalyKind string

const (
	AnomalySlowdown    AnomalyKind = "slowdown"
	AnomalyStall       AnomalyKind = "stall"
	AnomalyInstability AnomalyKind = "instability"
)

// Severity orders anomaly flags by urgency.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	default:
		return "warning"
	}
}

// AnomalyFlag signals that current service behaviour deviates from recent
// normal patterns. Flags are recomputed from scratch on every evaluation;
// none is sticky.
type AnomalyFlag struct {
	Kind       AnomalyKind
	Severity   Severity
	DetectedAt time.Time
	Detail     string
}

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	// SlowdownSigma is the k in "newest interval > mean + k*stddev".
	SlowdownSigma float64
	// StallMultiple scales the expected interval; exceeding it with no new
	// completion raises STALL.
	StallMultiple float64
	// InstabilityRatio is how much the recent spread must exceed the
	// preceding spread before INSTABILITY is raised.
	InstabilityRatio float64
}

// Validate fails fast on non-positive tunables.
func (c AnomalyConfig) Validate() error {
	if c.SlowdownSigma <= 0 {
		return fmt.Errorf("%w: slowdown sigma must be positive", ErrInvalidConfig)
	}
	if c.StallMultiple <= 0 {
		return fmt.Errorf("%w: stall multiple must be positive", ErrInvalidConfig)
	}
	if c.InstabilityRatio <= 0 {
		return fmt.Errorf("%w: instability ratio must be positive", ErrInvalidConfig)
	}
	return nil
}

// minimum scale-free spread before INSTABILITY is considered at all.
const instabilityCVFloor = 0.2

// stdDevFloorFraction guards the slowdown check against near-zero variance
// baselines, where any tiny wobble would clear mean + k*stddev.
const stdDevFloorFraction = 0.1

// AnomalyDetector monitors interval statistics for outlier and instability
// patterns. Evaluate is a pure function of (window, now): calling it twice
// on an unchanged window yields the same flag set.
type AnomalyDetector struct {
	cfg AnomalyConfig
}

// NewAnomalyDetector constructs an anomaly detector.
func NewAnomalyDetector(cfg AnomalyConfig) (*AnomalyDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AnomalyDetector{cfg: cfg}, nil
}

// Evaluate recomputes the full anomaly flag set from the current window
// state. now is the evaluation instant, used for the stall check.
func (d *AnomalyDetector) Evaluate(window *RollingWindow, now time.Time) []AnomalyFlag {
	samples := window.Samples()
	if len(samples) == 0 {
		return nil
	}

	var flags []AnomalyFlag
	if f, ok := d.checkSlowdown(samples, now); ok {
		flags = append(flags, f)
	}
	if f, ok := d.checkStall(samples, now); ok {
		flags = append(flags, f)
	}
	if f, ok := d.checkInstability(samples, now); ok {
		flags = append(flags, f)
	}
	return flags
}

// checkSlowdown compares the newest interval against the spread of the
// preceding ones. The baseline excludes the newest sample so an in-progress
// slowdown cannot mask itself.
func (d *AnomalyDetector) checkSlowdown(samples []IntervalSample, now time.Time) (AnomalyFlag, bool) {
	if len(samples) < 3 {
		return AnomalyFlag{}, false
	}

	newest := samples[len(samples)-1]
	baseline := statsOf(samples[:len(samples)-1])

	spread := baseline.StdDev
	if floor := time.Duration(stdDevFloorFraction * float64(baseline.Mean)); spread < floor {
		spread = floor
	}

	threshold := baseline.Mean + time.Duration(d.cfg.SlowdownSigma*float64(spread))
	if newest.Duration <= threshold {
		return AnomalyFlag{}, false
	}

	severity := SeverityWarning
	critical := baseline.Mean + time.Duration(2*d.cfg.SlowdownSigma*float64(spread))
	if newest.Duration > critical {
		severity = SeverityCritical
	}

	return AnomalyFlag{
		Kind:       AnomalySlowdown,
		Severity:   severity,
		DetectedAt: now,
		Detail: fmt.Sprintf("latest interval %s exceeds %s (mean %s + %.1f sigma)",
			newest.Duration.Round(time.Second), threshold.Round(time.Second),
			baseline.Mean.Round(time.Second), d.cfg.SlowdownSigma),
	}, true
}

// checkStall raises when the elapsed time since the last completion exceeds
// a multiple of the expected interval. Whether the counter is legitimately
// idle or broken is for the operator to disambiguate.
func (d *AnomalyDetector) checkStall(samples []IntervalSample, now time.Time) (AnomalyFlag, bool) {
	stats := statsOf(samples)
	if stats.Mean <= 0 {
		return AnomalyFlag{}, false
	}

	lastCompletion := samples[len(samples)-1].EndTime
	elapsed := now.Sub(lastCompletion)
	threshold := time.Duration(d.cfg.StallMultiple * float64(stats.Mean))
	if elapsed <= threshold {
		return AnomalyFlag{}, false
	}

	severity := SeverityWarning
	if elapsed > 2*threshold {
		severity = SeverityCritical
	}

	return AnomalyFlag{
		Kind:       AnomalyStall,
		Severity:   severity,
		DetectedAt: now,
		Detail: fmt.Sprintf("no completion for %s, expected one roughly every %s",
			elapsed.Round(time.Second), stats.Mean.Round(time.Second)),
	}, true
}

// checkInstability compares the scale-free spread of the recent half of the
// window against the preceding half. An oscillating service rate shows up
// as spread growth rather than a single slow outlier.
func (d *AnomalyDetector) checkInstability(samples []IntervalSample, now time.Time) (AnomalyFlag, bool) {
	if len(samples) < 4 {
		return AnomalyFlag{}, false
	}

	mid := len(samples) / 2
	older := statsOf(samples[:mid]).CoefficientOfVariation()
	recent := statsOf(samples[mid:]).CoefficientOfVariation()

	if recent < instabilityCVFloor {
		return AnomalyFlag{}, false
	}
	if older > 0 && recent < d.cfg.InstabilityRatio*older {
		return AnomalyFlag{}, false
	}

	severity := SeverityWarning
	if older > 0 && recent > 2*d.cfg.InstabilityRatio*older {
		severity = SeverityCritical
	}

	return AnomalyFlag{
		Kind:       AnomalyInstability,
		Severity:   severity,
		DetectedAt: now,
		Detail:     fmt.Sprintf("interval spread rose from %.2f to %.2f of the mean", older, recent),
	}, true
}

// HasFlag reports whether kind is present in flags.
func HasFlag(flags []AnomalyFlag, kind AnomalyKind) bool {
	for _, f := range flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
