package estimator

import (
	"fmt"
	"time"
)

// IntervalTracker derives inter-completion intervals from the event stream
// and feeds the rolling window. It is the only writer of the window.
type IntervalTracker struct {
	window *RollingWindow
	last   time.Time
	primed bool
}

// NewIntervalTracker constructs a tracker over the given window.
func NewIntervalTracker(window *RollingWindow) *IntervalTracker {
	return &IntervalTracker{window: window}
}

// Record computes the interval between ev and the previously recorded
// event and pushes it into the rolling window. The boolean is false on the
// very first event, when no prior reference point exists. Returns
// ErrOutOfOrderEvent when ev does not strictly advance the stream; the
// window is left untouched in that case.
func (t *IntervalTracker) Record(ev CompletionEvent) (IntervalSample, bool, error) {
	if t.primed && !ev.Timestamp.After(t.last) {
		return IntervalSample{}, false, fmt.Errorf("%w: %s is not after %s",
			ErrOutOfOrderEvent, ev.Timestamp.Format(time.RFC3339Nano), t.last.Format(time.RFC3339Nano))
	}

	if !t.primed {
		t.primed = true
		t.last = ev.Timestamp
		return IntervalSample{}, false, nil
	}

	sample := IntervalSample{
		Duration: ev.Timestamp.Sub(t.last),
		EndTime:  ev.Timestamp,
	}
	t.last = ev.Timestamp
	t.window.Push(sample)
	return sample, true, nil
}

// Window exposes the tracked rolling window for downstream estimators.
func (t *IntervalTracker) Window() *RollingWindow { return t.window }

// LastCompletion returns the timestamp of the most recently recorded event.
func (t *IntervalTracker) LastCompletion() (time.Time, bool) {
	return t.last, t.primed
}
