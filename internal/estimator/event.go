package estimator

import (
	"fmt"
	"time"
)

// CompletionEvent marks the moment a service transaction finished at a
// counter. Events are immutable once recorded.
type CompletionEvent struct {
	ID        string
	CounterID string
	Timestamp time.Time
	Sequence  uint64
	Metadata  map[string]string
}

// EventLog is an append-only ordered sequence of completion events. It
// assigns strictly increasing sequence numbers and enforces monotonic
// timestamps. The log keeps at most maxRetained events in memory; durable
// history is a storage concern, not the log's.
type EventLog struct {
	events      []CompletionEvent
	nextSeq     uint64
	maxRetained int
}

// NewEventLog constructs an event log retaining up to maxRetained events.
func NewEventLog(maxRetained int) (*EventLog, error) {
	if maxRetained <= 0 {
		return nil, fmt.Errorf("%w: event log retention must be positive, got %d", ErrInvalidConfig, maxRetained)
	}
	return &EventLog{nextSeq: 1, maxRetained: maxRetained}, nil
}

// Append records a new completion event, assigning its sequence number.
// Returns ErrOutOfOrderEvent when the timestamp does not strictly advance.
func (l *EventLog) Append(ev CompletionEvent) (CompletionEvent, error) {
	if last, ok := l.Last(); ok && !ev.Timestamp.After(last.Timestamp) {
		return CompletionEvent{}, fmt.Errorf("%w: %s is not after %s",
			ErrOutOfOrderEvent, ev.Timestamp.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
	}

	ev.Sequence = l.nextSeq
	l.nextSeq++

	l.events = append(l.events, ev)
	if len(l.events) > l.maxRetained {
		l.events = l.events[len(l.events)-l.maxRetained:]
	}
	return ev, nil
}

// Last returns the most recently appended event.
func (l *EventLog) Last() (CompletionEvent, bool) {
	if len(l.events) == 0 {
		return CompletionEvent{}, false
	}
	return l.events[len(l.events)-1], true
}

// Len reports how many events are currently retained.
func (l *EventLog) Len() int {
	return len(l.events)
}
