package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"queue-wait-monitor/internal/alerting"
	"queue-wait-monitor/internal/config"
	"queue-wait-monitor/internal/estimator"
	"queue-wait-monitor/internal/metrics"
	"queue-wait-monitor/internal/storage"
)

var serviceBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeEventStore struct {
	events []storage.EventRecord
}

func (f *fakeEventStore) InsertEvent(_ context.Context, ev storage.EventRecord) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) ListEventsBetween(context.Context, string, time.Time, time.Time) ([]storage.EventRecord, error) {
	return nil, nil
}

type fakeSnapshotStore struct {
	snapshots []storage.SnapshotRecord
}

func (f *fakeSnapshotStore) InsertSnapshot(_ context.Context, snap storage.SnapshotRecord) (int64, error) {
	f.snapshots = append(f.snapshots, snap)
	return int64(len(f.snapshots)), nil
}

func (f *fakeSnapshotStore) ListSnapshotsBetween(context.Context, string, time.Time, time.Time) ([]storage.SnapshotRecord, error) {
	return nil, nil
}

func (f *fakeSnapshotStore) ListRecentSnapshots(context.Context, string, int) ([]storage.SnapshotRecord, error) {
	return nil, nil
}

type fakeAlertStore struct {
	alerts []storage.AlertRecord
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlertStore) LastAlertAt(context.Context, string, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeAlertStore) DeleteAlertsBefore(context.Context, time.Time) error {
	return nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return nil
}

func testEstimatorConfig() estimator.Config {
	return estimator.Config{
		WindowCapacity:    5,
		EventLogRetention: 50,
		Rate: estimator.RateConfig{
			HalfLife:          10 * time.Minute,
			TrendThresholdPct: 15,
			MinInterval:       time.Second,
		},
		Anomaly: estimator.AnomalyConfig{
			SlowdownSigma:    1.5,
			StallMultiple:    3,
			InstabilityRatio: 2,
		},
		Predictor: estimator.PredictorConfig{
			ReferenceDepth:  5,
			TrendAdjustment: 0.25,
		},
	}
}

type fixture struct {
	svc      *Service
	events   *fakeEventStore
	snaps    *fakeSnapshotStore
	alerts   *fakeAlertStore
	notifier *fakeNotifier
}

func newFixture(t *testing.T, minSeverity string) *fixture {
	t.Helper()

	registry, err := estimator.NewRegistry(testEstimatorConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cfg := &config.Config{}
	cfg.Alerting.Enabled = true
	cfg.Alerting.MinSeverity = minSeverity
	cfg.Alerting.Cooldown = 10 * time.Minute
	cfg.Alerting.Channels = []string{"ops"}

	f := &fixture{
		events:   &fakeEventStore{},
		snaps:    &fakeSnapshotStore{},
		alerts:   &fakeAlertStore{},
		notifier: &fakeNotifier{},
	}
	f.svc = New(cfg, registry, f.events, f.snaps, f.alerts, f.notifier, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	return f
}

// feed ingests a chain of completions separated by the given gaps.
func feed(t *testing.T, svc *Service, counterID string, start time.Time, gaps ...time.Duration) time.Time {
	t.Helper()

	ts := start
	if _, err := svc.Ingest(context.Background(), counterID, estimator.CompletionEvent{Timestamp: ts}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	for _, gap := range gaps {
		ts = ts.Add(gap)
		if _, err := svc.Ingest(context.Background(), counterID, estimator.CompletionEvent{Timestamp: ts}); err != nil {
			t.Fatalf("Ingest at %v: %v", ts, err)
		}
	}
	return ts
}

func TestIngestPersistsEventAndSnapshot(t *testing.T) {
	f := newFixture(t, "warning")

	snap, err := f.svc.Ingest(context.Background(), "counter-1", estimator.CompletionEvent{Timestamp: serviceBase})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if snap.Known {
		t.Fatal("first event should produce an unknown snapshot")
	}
	if len(f.events.events) != 1 {
		t.Fatalf("persisted events = %d, want 1", len(f.events.events))
	}
	if f.events.events[0].EventID == "" {
		t.Fatal("missing event ID should be generated")
	}
	if f.events.events[0].Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", f.events.events[0].Sequence)
	}
	if len(f.snaps.snapshots) != 1 {
		t.Fatalf("persisted snapshots = %d, want 1", len(f.snaps.snapshots))
	}
	if f.snaps.snapshots[0].Known {
		t.Fatal("persisted snapshot should be unknown")
	}
}

func TestIngestRejectsOutOfOrderWithoutSideEffects(t *testing.T) {
	f := newFixture(t, "warning")

	feed(t, f.svc, "counter-1", serviceBase, 30*time.Second)
	persisted := len(f.events.events)

	_, err := f.svc.Ingest(context.Background(), "counter-1", estimator.CompletionEvent{Timestamp: serviceBase.Add(-time.Minute)})
	if !errors.Is(err, estimator.ErrOutOfOrderEvent) {
		t.Fatalf("err = %v, want ErrOutOfOrderEvent", err)
	}
	if len(f.events.events) != persisted {
		t.Fatal("rejected event must not be persisted")
	}
}

func TestSlowdownDispatchesAlertOnce(t *testing.T) {
	f := newFixture(t, "warning")

	gap := 30 * time.Second
	feed(t, f.svc, "counter-1", serviceBase, gap, gap, gap, gap, 90*time.Second)

	if len(f.notifier.notes) != 1 {
		t.Fatalf("dispatched alerts = %d, want 1", len(f.notifier.notes))
	}
	note := f.notifier.notes[0]
	if note.Kind != estimator.AnomalySlowdown {
		t.Fatalf("kind = %s, want slowdown", note.Kind)
	}
	if len(f.alerts.alerts) != 1 {
		t.Fatalf("persisted alerts = %d, want 1", len(f.alerts.alerts))
	}

	// Another slow completion within the cooldown must stay quiet.
	last := serviceBase.Add(4*gap + 90*time.Second)
	if _, err := f.svc.Ingest(context.Background(), "counter-1", estimator.CompletionEvent{Timestamp: last.Add(95 * time.Second)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(f.notifier.notes) != 1 {
		t.Fatalf("alerts after cooldown suppression = %d, want 1", len(f.notifier.notes))
	}
}

func TestMinSeverityFiltersWarnings(t *testing.T) {
	f := newFixture(t, "critical")

	gap := 30 * time.Second
	feed(t, f.svc, "counter-1", serviceBase, gap, gap, gap, gap, 90*time.Second)

	if len(f.notifier.notes) != 0 {
		t.Fatalf("dispatched alerts = %d, want 0 with critical-only routing", len(f.notifier.notes))
	}
}

func TestRefreshSurfacesStallAndSkipsUnchangedSnapshots(t *testing.T) {
	f := newFixture(t, "warning")

	gap := 30 * time.Second
	last := feed(t, f.svc, "counter-1", serviceBase, gap, gap, gap, gap, gap)
	persisted := len(f.snaps.snapshots)

	// No flag change yet; the refresh result is not worth a new row.
	if err := f.svc.Refresh(context.Background(), last.Add(10*time.Second)); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(f.snaps.snapshots) != persisted {
		t.Fatalf("persisted snapshots = %d, want %d after quiet refresh", len(f.snaps.snapshots), persisted)
	}

	// Ten mean intervals of silence is a critical stall.
	if err := f.svc.Refresh(context.Background(), last.Add(300*time.Second)); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(f.snaps.snapshots) != persisted+1 {
		t.Fatalf("persisted snapshots = %d, want %d after stall", len(f.snaps.snapshots), persisted+1)
	}
	if len(f.notifier.notes) != 1 {
		t.Fatalf("dispatched alerts = %d, want 1", len(f.notifier.notes))
	}
	if f.notifier.notes[0].Kind != estimator.AnomalyStall {
		t.Fatalf("kind = %s, want stall", f.notifier.notes[0].Kind)
	}
	if f.notifier.notes[0].Severity != estimator.SeverityCritical {
		t.Fatalf("severity = %s, want critical", f.notifier.notes[0].Severity)
	}
}

func TestCountersAndStatus(t *testing.T) {
	f := newFixture(t, "warning")

	feed(t, f.svc, "counter-1", serviceBase, 30*time.Second, 30*time.Second)
	feed(t, f.svc, "counter-2", serviceBase, 45*time.Second)

	counters := f.svc.Counters()
	if len(counters) != 2 {
		t.Fatalf("counters = %v, want 2 entries", counters)
	}

	snap, ok := f.svc.Status("counter-1")
	if !ok {
		t.Fatal("counter-1 should have a published snapshot")
	}
	if !snap.Known {
		t.Fatal("counter-1 snapshot should be known after three events")
	}
	if _, ok := f.svc.Status("missing"); ok {
		t.Fatal("unknown counter should report no status")
	}
}
