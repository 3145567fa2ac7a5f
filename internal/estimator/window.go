package estimator

import (
	"fmt"
	"math"
	"time"
)

// IntervalSample is the elapsed time between two consecutive completion
// events. Duration is always positive; EndTime is the timestamp of the
// later event.
type IntervalSample struct {
	Duration time.Duration
	EndTime  time.Time
}

// RollingWindow is a count-based bounded FIFO of interval samples. Samples
// are held in non-decreasing EndTime order; when the window is full the
// oldest sample is evicted first. A count-based policy was chosen over a
// time-based one so the window fills predictably on sparse streams.
type RollingWindow struct {
	capacity int
	samples  []IntervalSample
}

// NewRollingWindow constructs a window holding up to capacity samples.
func NewRollingWindow(capacity int) (*RollingWindow, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("%w: window capacity must be at least 2, got %d", ErrInvalidConfig, capacity)
	}
	return &RollingWindow{capacity: capacity, samples: make([]IntervalSample, 0, capacity)}, nil
}

// Push appends a sample, evicting the oldest when at capacity.
func (w *RollingWindow) Push(s IntervalSample) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)
}

// Len reports the number of held samples.
func (w *RollingWindow) Len() int { return len(w.samples) }

// Capacity reports the configured maximum sample count.
func (w *RollingWindow) Capacity() int { return w.capacity }

// Full reports whether the window is at capacity.
func (w *RollingWindow) Full() bool { return len(w.samples) == w.capacity }

// Fill reports how full the window is in [0, 1].
func (w *RollingWindow) Fill() float64 {
	return float64(len(w.samples)) / float64(w.capacity)
}

// Samples returns the held samples oldest-first. The slice is shared with
// the window and must not be mutated by callers.
func (w *RollingWindow) Samples() []IntervalSample { return w.samples }

// Newest returns the most recent sample.
func (w *RollingWindow) Newest() (IntervalSample, bool) {
	if len(w.samples) == 0 {
		return IntervalSample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// WindowStats summarises interval durations currently in a window.
type WindowStats struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
}

// CoefficientOfVariation is StdDev/Mean, the scale-free spread used for
// confidence and instability checks. Zero when the mean is zero.
func (s WindowStats) CoefficientOfVariation() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return float64(s.StdDev) / float64(s.Mean)
}

// Stats computes mean and standard deviation over all held samples.
func (w *RollingWindow) Stats() WindowStats {
	return statsOf(w.samples)
}

func statsOf(samples []IntervalSample) WindowStats {
	n := len(samples)
	if n == 0 {
		return WindowStats{}
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s.Duration)
	}
	mean := sum / float64(n)

	var sq float64
	for _, s := range samples {
		d := float64(s.Duration) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))

	return WindowStats{
		Count:  n,
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
	}
}
