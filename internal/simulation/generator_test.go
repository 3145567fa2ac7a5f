package simulation

import (
	"testing"
	"time"
)

var simStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	a := NewGenerator(8, 4*time.Minute, 42).Generate(simStart)
	b := NewGenerator(8, 4*time.Minute, 42).Generate(simStart)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Fatalf("timestamps diverge at %d: %v vs %v", i, a[i].Timestamp, b[i].Timestamp)
		}
	}
}

func TestGenerateTimestampsStrictlyIncrease(t *testing.T) {
	completions := NewGenerator(8, 4*time.Minute, 7).Generate(simStart)

	if len(completions) == 0 {
		t.Fatal("expected a non-empty stream")
	}
	prev := simStart
	for i, c := range completions {
		if !c.Timestamp.After(prev) {
			t.Fatalf("timestamp %d does not advance: %v after %v", i, c.Timestamp, prev)
		}
		prev = c.Timestamp
	}
}

func TestGenerateCustomerCountsFollowPattern(t *testing.T) {
	completions := NewGenerator(8, 4*time.Minute, 7).Generate(simStart)

	// 2h morning at 15/h, 3h midday at 8/h, 2h afternoon at 12/h, 1h evening at 14/h.
	want := 2*15 + 3*8 + 2*12 + 1*14
	if len(completions) != want {
		t.Fatalf("completions = %d, want %d", len(completions), want)
	}
	for i, c := range completions {
		if c.CustomerID != i+1 {
			t.Fatalf("customer ID at %d = %d, want %d", i, c.CustomerID, i+1)
		}
	}
}

func TestGenerateServiceTimesWithinBounds(t *testing.T) {
	completions := NewGenerator(8, 4*time.Minute, 11).Generate(simStart)

	base := 4 * time.Minute
	for i, c := range completions {
		// Fastest case: morning multiplier 0.8 at minimum complexity 0.7.
		min := time.Duration(float64(base) * 0.8 * 0.7)
		// Slowest case: midday multiplier 1.5 at maximum complexity 1.3,
		// plus a possible ten-minute interruption.
		max := time.Duration(float64(base)*1.5*1.3) + 10*time.Minute
		if c.ServiceTime < min || c.ServiceTime > max {
			t.Fatalf("service time %d out of bounds: %v", i, c.ServiceTime)
		}
	}
}
