package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"queue-wait-monitor/internal/alerting"
	"queue-wait-monitor/internal/config"
	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/metrics"
	"queue-wait-monitor/internal/storage"
)

// Service orchestrates ingestion, estimation, persistence, and alerting.
// All estimation happens inside per-counter monitors; the service adds the
// side effects around them.
type Service struct {
	registry  *estimator.Registry
	events    storage.EventStore
	snapshots storage.SnapshotStore
	alerts    storage.AlertStore
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	alertsOn    bool
	minSeverity estimator.Severity
	cooldown    time.Duration
	channels    []string

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, registry *estimator.Registry, events storage.EventStore, snapshots storage.SnapshotStore, alerts storage.AlertStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		registry:    registry,
		events:      events,
		snapshots:   snapshots,
		alerts:      alerts,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With().Str("component", "service").Logger(),
		alertsOn:    cfg.Alerting.Enabled,
		minSeverity: parseSeverity(cfg.Alerting.MinSeverity),
		cooldown:    cfg.Alerting.Cooldown,
		channels:    cfg.Alerting.Channels,
		lastAlert:   make(map[string]time.Time),
	}
}

func parseSeverity(v string) estimator.Severity {
	if strings.EqualFold(v, "critical") {
		return estimator.SeverityCritical
	}
	return estimator.SeverityWarning
}

// Ingest runs one completion event through the counter's pipeline and
// performs the surrounding side effects. Out-of-order events are rejected
// with estimator.ErrOutOfOrderEvent and leave all state unchanged; the
// stream continues afterwards.
func (s *Service) Ingest(ctx context.Context, counterID string, ev estimator.CompletionEvent) (estimator.StatusSnapshot, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	monitor := s.registry.Monitor(counterID)
	recorded, snap, err := monitor.Ingest(ev)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.WithLabelValues(counterID, "out_of_order").Inc()
		}
		return estimator.StatusSnapshot{}, err
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(counterID).Inc()
		s.metrics.ObserveSnapshot(snap)
	}

	s.persistEvent(ctx, recorded)
	s.persistSnapshot(ctx, snap)
	s.dispatchAlerts(ctx, snap)

	s.logger.Debug().
		Str("counter", counterID).
		Uint64("seq", recorded.Sequence).
		Bool("known", snap.Known).
		Msg("event ingested")

	return snap, nil
}

// Refresh re-evaluates every monitored counter at the given instant. This
// is how STALL surfaces while no events arrive. Snapshots are persisted
// only when the active flag set changed, so a quiet counter does not fill
// the snapshot table with identical rows.
func (s *Service) Refresh(ctx context.Context, now time.Time) error {
	if s.metrics != nil {
		s.metrics.Refreshes.Inc()
	}

	for _, monitor := range s.registry.All() {
		prev, hadPrev := monitor.Status()
		snap, ok := monitor.Refresh(now)
		if !ok {
			continue
		}
		if s.metrics != nil {
			s.metrics.ObserveSnapshot(snap)
		}
		if !hadPrev || flagsChanged(prev.Flags, snap.Flags) {
			s.persistSnapshot(ctx, snap)
		}
		s.dispatchAlerts(ctx, snap)
	}
	return nil
}

// Status returns the latest published snapshot for a counter. The boolean
// is false while the counter is uninitialized.
func (s *Service) Status(counterID string) (estimator.StatusSnapshot, bool) {
	monitor, ok := s.registry.Lookup(counterID)
	if !ok {
		return estimator.StatusSnapshot{}, false
	}
	return monitor.Status()
}

// Counters lists the counter IDs seen so far.
func (s *Service) Counters() []string {
	monitors := s.registry.All()
	out := make([]string, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.CounterID())
	}
	return out
}

func flagsChanged(prev, next []estimator.AnomalyFlag) bool {
	if len(prev) != len(next) {
		return true
	}
	seen := make(map[estimator.AnomalyKind]estimator.Severity, len(prev))
	for _, f := range prev {
		seen[f.Kind] = f.Severity
	}
	for _, f := range next {
		if sev, ok := seen[f.Kind]; !ok || sev != f.Severity {
			return true
		}
	}
	return false
}

func (s *Service) persistEvent(ctx context.Context, ev estimator.CompletionEvent) {
	if s.events == nil {
		return
	}

	var metadata json.RawMessage
	if len(ev.Metadata) > 0 {
		if raw, err := json.Marshal(ev.Metadata); err == nil {
			metadata = raw
		}
	}

	record := storage.EventRecord{
		CounterID: ev.CounterID,
		Sequence:  int64(ev.Sequence),
		EventID:   ev.ID,
		Timestamp: ev.Timestamp,
		Metadata:  metadata,
	}
	if err := s.events.InsertEvent(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("counter", ev.CounterID).Msg("failed to persist completion event")
	}
}

func (s *Service) persistSnapshot(ctx context.Context, snap estimator.StatusSnapshot) {
	if s.snapshots == nil {
		return
	}

	record := storage.SnapshotRecord{
		CounterID:   snap.CounterID,
		GeneratedAt: snap.GeneratedAt,
		Known:       snap.Known,
		Confidence:  string(snap.Estimate.Confidence),
		Flags:       flagNames(snap.Flags),
	}
	if snap.Known {
		record.RatePerMin = decimal.NewFromFloat(snap.Rate.Rate)
		record.MeanInterval = decimal.NewFromFloat(snap.Rate.MeanInterval.Seconds())
		record.Trend = string(snap.Rate.Trend)
		record.WaitMinutes = decimal.NewFromFloat(snap.Estimate.Minutes)
	}

	if _, err := s.snapshots.InsertSnapshot(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("counter", snap.CounterID).Msg("failed to persist snapshot")
	}
}

func flagNames(flags []estimator.AnomalyFlag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, string(f.Kind))
	}
	return out
}

// dispatchAlerts notifies operators about active anomaly flags at or above
// the configured severity, honouring the per-kind cooldown.
func (s *Service) dispatchAlerts(ctx context.Context, snap estimator.StatusSnapshot) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	for _, flag := range snap.Flags {
		if flag.Severity < s.minSeverity {
			continue
		}
		if !s.shouldAlert(snap.CounterID, flag.Kind, flag.DetectedAt) {
			continue
		}

		note := alerting.Notification{
			CounterID:  snap.CounterID,
			Kind:       flag.Kind,
			Severity:   flag.Severity,
			Detail:     flag.Detail,
			DetectedAt: flag.DetectedAt,
			Channels:   s.channels,
			WaitKnown:  snap.Known,
		}
		if snap.Known {
			note.Rate = decimal.NewFromFloat(snap.Rate.Rate)
			note.WaitMinutes = decimal.NewFromFloat(snap.Estimate.Minutes)
			note.Trend = snap.Rate.Trend
		}

		if s.alerts != nil {
			record := storage.AlertRecord{
				CounterID:  snap.CounterID,
				Kind:       string(flag.Kind),
				Severity:   flag.Severity.String(),
				Detail:     flag.Detail,
				DetectedAt: flag.DetectedAt,
				Channels:   s.channels,
			}
			if _, err := s.alerts.InsertAlert(ctx, record); err != nil {
				s.logger.Error().Err(err).Str("counter", snap.CounterID).Msg("failed to persist alert record")
			}
		}

		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("counter", snap.CounterID).Str("kind", string(flag.Kind)).Msg("failed to dispatch alert")
		}
	}
}

// shouldAlert enforces the cooldown per counter and anomaly kind.
func (s *Service) shouldAlert(counterID string, kind estimator.AnomalyKind, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterID + "/" + string(kind)
	if last, ok := s.lastAlert[key]; ok && at.Sub(last) < s.cooldown {
		return false
	}
	s.lastAlert[key] = at
	return true
}
