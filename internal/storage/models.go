package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is a persisted completion event. The durable log is append
// only; rows are never updated.
type EventRecord struct {
	CounterID string
	Sequence  int64
	EventID   string
	Timestamp time.Time
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// SnapshotRecord is a persisted status snapshot, one row per pipeline
// recomputation. Unknown snapshots carry Known=false and null numerics.
type SnapshotRecord struct {
	ID           int64
	CounterID    string
	GeneratedAt  time.Time
	Known        bool
	RatePerMin   decimal.Decimal
	MeanInterval decimal.Decimal
	Trend        string
	WaitMinutes  decimal.Decimal
	Confidence   string
	Flags        []string
	CreatedAt    time.Time
}

// AlertRecord captures a dispatched anomaly alert for auditing and
// cooldown bookkeeping.
type AlertRecord struct {
	ID         int64
	CounterID  string
	Kind       string
	Severity   string
	Detail     string
	DetectedAt time.Time
	Channels   []string
	CreatedAt  time.Time
}
