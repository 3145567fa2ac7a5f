package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertEventSQL = `INSERT INTO completion_events (
        counter_id,
        seq,
        event_id,
        ts,
        metadata
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (counter_id, seq) DO NOTHING;`

	listEventsBetweenSQL = `SELECT
        counter_id,
        seq,
        event_id,
        ts,
        metadata,
        created_at
    FROM completion_events
    WHERE counter_id = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY seq;`

	insertSnapshotSQL = `INSERT INTO status_snapshots (
        counter_id,
        generated_at,
        known,
        rate_per_min,
        mean_interval_seconds,
        trend,
        wait_minutes,
        confidence,
        flags
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    ) RETURNING id;`

	listSnapshotsBetweenSQL = `SELECT
        id,
        counter_id,
        generated_at,
        known,
        rate_per_min,
        mean_interval_seconds,
        trend,
        wait_minutes,
        confidence,
        flags,
        created_at
    FROM status_snapshots
    WHERE counter_id = $1
      AND generated_at >= $2
      AND generated_at < $3
    ORDER BY generated_at;`

	listRecentSnapshotsSQL = `SELECT
        id,
        counter_id,
        generated_at,
        known,
        rate_per_min,
        mean_interval_seconds,
        trend,
        wait_minutes,
        confidence,
        flags,
        created_at
    FROM status_snapshots
    WHERE counter_id = $1
    ORDER BY generated_at DESC
    LIMIT $2;`

	insertAlertSQL = `INSERT INTO anomaly_alerts (
        counter_id,
        kind,
        severity,
        detail,
        detected_at,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    ) RETURNING id, counter_id, kind, severity, detail, detected_at, channels, created_at;`

	lastAlertSQL = `SELECT created_at
    FROM anomaly_alerts
    WHERE counter_id = $1
      AND kind = $2
    ORDER BY created_at DESC
    LIMIT 1;`

	deleteAlertsBeforeSQL = `DELETE FROM anomaly_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// EventStore defines operations for completion event persistence.
type EventStore interface {
	InsertEvent(ctx context.Context, event EventRecord) error
	ListEventsBetween(ctx context.Context, counterID string, from, to time.Time) ([]EventRecord, error)
}

// SnapshotStore defines operations for status snapshot persistence.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snap SnapshotRecord) (int64, error)
	ListSnapshotsBetween(ctx context.Context, counterID string, from, to time.Time) ([]SnapshotRecord, error)
	ListRecentSnapshots(ctx context.Context, counterID string, limit int) ([]SnapshotRecord, error)
}

// AlertStore defines operations for alert auditing and cooldowns.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LastAlertAt(ctx context.Context, counterID, kind string) (time.Time, bool, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to events, snapshots, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertEvent appends a completion event to the durable log. Replays of an
// already-persisted sequence number are silently ignored.
func (s *Store) InsertEvent(ctx context.Context, event EventRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var metadata interface{}
	if len(event.Metadata) > 0 {
		metadata = []byte(event.Metadata)
	}

	if _, err := pool.Exec(ctx, insertEventSQL,
		event.CounterID,
		event.Sequence,
		event.EventID,
		event.Timestamp,
		metadata,
	); err != nil {
		return fmt.Errorf("insert completion event: %w", err)
	}
	return nil
}

// ListEventsBetween returns the persisted events for a counter within
// [from, to), ordered by sequence.
func (s *Store) ListEventsBetween(ctx context.Context, counterID string, from, to time.Time) ([]EventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEventsBetweenSQL, counterID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list events between: %w", queryErr)
	}
	defer rows.Close()

	events := make([]EventRecord, 0)
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.CounterID, &ev.Sequence, &ev.EventID, &ev.Timestamp, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// InsertSnapshot persists one status snapshot and returns its row id.
func (s *Store) InsertSnapshot(ctx context.Context, snap SnapshotRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var rate, meanInterval, wait, trend interface{}
	if snap.Known {
		rate = snap.RatePerMin.String()
		meanInterval = snap.MeanInterval.String()
		wait = snap.WaitMinutes.String()
		trend = snap.Trend
	}

	var id int64
	if err := pool.QueryRow(ctx, insertSnapshotSQL,
		snap.CounterID,
		snap.GeneratedAt,
		snap.Known,
		rate,
		meanInterval,
		trend,
		wait,
		snap.Confidence,
		snap.Flags,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// ListSnapshotsBetween lists snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, counterID string, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, counterID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, 0)
}

// ListRecentSnapshots lists the most recent snapshots ordered by descending
// generation time.
func (s *Store) ListRecentSnapshots(ctx context.Context, counterID string, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, counterID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, limit)
}

func collectSnapshots(rows pgx.Rows, sizeHint int) ([]SnapshotRecord, error) {
	snaps := make([]SnapshotRecord, 0, sizeHint)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

func scanSnapshot(row pgx.Row) (SnapshotRecord, error) {
	var (
		snap         SnapshotRecord
		rate         *string
		meanInterval *string
		trend        *string
		wait         *string
	)
	if err := row.Scan(
		&snap.ID,
		&snap.CounterID,
		&snap.GeneratedAt,
		&snap.Known,
		&rate,
		&meanInterval,
		&trend,
		&wait,
		&snap.Confidence,
		&snap.Flags,
		&snap.CreatedAt,
	); err != nil {
		return SnapshotRecord{}, fmt.Errorf("scan snapshot: %w", err)
	}

	var err error
	if snap.RatePerMin, err = parseDecimal(rate); err != nil {
		return SnapshotRecord{}, err
	}
	if snap.MeanInterval, err = parseDecimal(meanInterval); err != nil {
		return SnapshotRecord{}, err
	}
	if snap.WaitMinutes, err = parseDecimal(wait); err != nil {
		return SnapshotRecord{}, err
	}
	if trend != nil {
		snap.Trend = *trend
	}
	return snap, nil
}

func parseDecimal(v *string) (decimal.Decimal, error) {
	if v == nil || *v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric column: %w", err)
	}
	return d, nil
}

// InsertAlert records a dispatched alert.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var out AlertRecord
	if err := pool.QueryRow(ctx, insertAlertSQL,
		alert.CounterID,
		alert.Kind,
		alert.Severity,
		alert.Detail,
		alert.DetectedAt,
		alert.Channels,
	).Scan(&out.ID, &out.CounterID, &out.Kind, &out.Severity, &out.Detail, &out.DetectedAt, &out.Channels, &out.CreatedAt); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return out, nil
}

// LastAlertAt returns when an alert of the given kind was last dispatched
// for the counter. The boolean is false when none exists.
func (s *Store) LastAlertAt(ctx context.Context, counterID, kind string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var at time.Time
	err = pool.QueryRow(ctx, lastAlertSQL, counterID, kind).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last alert: %w", err)
	}
	return at, true, nil
}

// DeleteAlertsBefore prunes alert audit rows older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns
// a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ EventStore     = (*Store)(nil)
	_ SnapshotStore  = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
