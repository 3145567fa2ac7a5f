package estimator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config bundles the tunables for one counter's estimation pipeline.
type Config struct {
	WindowCapacity    int
	EventLogRetention int
	Rate              RateConfig
	Anomaly           AnomalyConfig
	Predictor         PredictorConfig
}

// Validate fails fast at construction time.
func (c Config) Validate() error {
	if c.WindowCapacity < 2 {
		return fmt.Errorf("%w: window capacity must be at least 2", ErrInvalidConfig)
	}
	if c.EventLogRetention <= 0 {
		return fmt.Errorf("%w: event log retention must be positive", ErrInvalidConfig)
	}
	if err := c.Rate.Validate(); err != nil {
		return err
	}
	if err := c.Anomaly.Validate(); err != nil {
		return err
	}
	return c.Predictor.Validate()
}

// Monitor owns the full estimation pipeline for a single counter: event
// log, interval tracker, rate estimator, anomaly detector, and wait
// predictor. Each incoming completion event triggers one synchronous
// recomputation producing a new published snapshot.
//
// Ingest and Refresh take the write lock; Status takes the read lock and
// only ever touches the last published immutable snapshot.
type Monitor struct {
	counterID string

	mu        sync.RWMutex
	log       *EventLog
	tracker   *IntervalTracker
	rates     *RateEstimator
	anomalies *AnomalyDetector
	predictor *WaitPredictor
	last      StatusSnapshot
	published bool

	logger zerolog.Logger
}

// NewMonitor constructs an isolated pipeline instance for one counter.
func NewMonitor(counterID string, cfg Config, logger zerolog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := NewEventLog(cfg.EventLogRetention)
	if err != nil {
		return nil, err
	}
	window, err := NewRollingWindow(cfg.WindowCapacity)
	if err != nil {
		return nil, err
	}
	rates, err := NewRateEstimator(cfg.Rate)
	if err != nil {
		return nil, err
	}
	anomalies, err := NewAnomalyDetector(cfg.Anomaly)
	if err != nil {
		return nil, err
	}
	predictor, err := NewWaitPredictor(cfg.Predictor)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		counterID: counterID,
		log:       log,
		tracker:   NewIntervalTracker(window),
		rates:     rates,
		anomalies: anomalies,
		predictor: predictor,
		logger:    logger.With().Str("component", "monitor").Str("counter", counterID).Logger(),
	}, nil
}

// Ingest appends a completion event and runs the recomputation pipeline.
// An out-of-order event is rejected with ErrOutOfOrderEvent; the window,
// rate state, and published snapshot are left unchanged. The returned
// event carries its assigned sequence number.
func (m *Monitor) Ingest(ev CompletionEvent) (CompletionEvent, StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.CounterID = m.counterID
	recorded, err := m.log.Append(ev)
	if err != nil {
		return CompletionEvent{}, StatusSnapshot{}, err
	}

	if _, _, err := m.tracker.Record(recorded); err != nil {
		// The event log accepted the timestamp, so the tracker must too.
		return CompletionEvent{}, StatusSnapshot{}, err
	}

	snap := m.recompute(recorded.Timestamp)
	m.publish(snap)
	return recorded, snap, nil
}

// Refresh re-evaluates anomaly flags and the estimate at the given instant
// without a new event. This is what lets STALL surface while the stream is
// silent.
func (m *Monitor) Refresh(now time.Time) (StatusSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tracker.LastCompletion(); !ok {
		return StatusSnapshot{}, false
	}

	snap := m.recompute(now)
	m.publish(snap)
	return snap, true
}

// Status returns the most recently published snapshot. The boolean is
// false before the first event has been ingested.
func (m *Monitor) Status() (StatusSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.published
}

// recompute runs the synchronous pipeline against the current window
// state. Callers hold the write lock.
func (m *Monitor) recompute(now time.Time) StatusSnapshot {
	window := m.tracker.Window()
	flags := m.anomalies.Evaluate(window, now)

	rate, err := m.rates.Update(window)
	if err != nil {
		if !errors.Is(err, ErrInsufficientData) {
			m.logger.Error().Err(err).Msg("rate update failed")
		}
		return UnknownSnapshot(m.counterID, flags, now)
	}

	estimate, err := m.predictor.Predict(rate, flags, window.Stats(), window.Fill())
	if err != nil {
		return UnknownSnapshot(m.counterID, flags, now)
	}

	return Snapshot(m.counterID, rate, flags, estimate, now)
}

func (m *Monitor) publish(snap StatusSnapshot) {
	m.last = snap
	m.published = true
}

// Registry keys isolated Monitor instances by counter identifier. No
// mutable pipeline state is shared across counters.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   zerolog.Logger
	monitors map[string]*Monitor
}

// NewRegistry constructs a registry that builds monitors on demand from
// the shared configuration.
func NewRegistry(cfg Config, logger zerolog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		monitors: make(map[string]*Monitor),
	}, nil
}

// Monitor returns the pipeline for counterID, creating it on first use.
func (r *Registry) Monitor(counterID string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[counterID]; ok {
		return m
	}
	m, err := NewMonitor(counterID, r.cfg, r.logger)
	if err != nil {
		// Config was validated at registry construction.
		panic(err)
	}
	r.monitors[counterID] = m
	return m
}

// All returns the registered monitors in no particular order.
func (r *Registry) All() []*Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m)
	}
	return out
}

// Lookup returns the monitor for counterID without creating one.
func (r *Registry) Lookup(counterID string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[counterID]
	return m, ok
}

// CounterID reports which counter this monitor observes.
func (m *Monitor) CounterID() string { return m.counterID }
