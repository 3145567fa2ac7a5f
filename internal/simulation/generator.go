package simulation

import (
	"math/rand"
	"time"
)

// dayPeriod captures how a counter behaves during part of a shift. Staff
// are fast in the morning, fatigued at midday, recovered but uneven in the
// afternoon, and rushing near closing time.
type dayPeriod struct {
	fromHour          int
	toHour            int
	serviceMultiplier float64
	customersPerHour  int
}

var shiftPattern = []dayPeriod{
	{fromHour: 0, toHour: 2, serviceMultiplier: 0.8, customersPerHour: 15},
	{fromHour: 2, toHour: 5, serviceMultiplier: 1.5, customersPerHour: 8},
	{fromHour: 5, toHour: 7, serviceMultiplier: 1.0, customersPerHour: 12},
	{fromHour: 7, toHour: 24, serviceMultiplier: 0.9, customersPerHour: 14},
}

const (
	complexityMin = 0.7
	complexityMax = 1.3

	interruptionChance = 0.05
	interruptionDelay  = 10 * time.Minute
)

// Completion is one synthetic service completion. ServiceTime is the hidden
// ground truth a real deployment never observes; only Timestamp is fed to
// the pipeline.
type Completion struct {
	CustomerID  int
	Timestamp   time.Time
	ServiceTime time.Duration
}

// Generator produces completion timestamps for a simulated counter shift.
// The same seed always yields the same stream.
type Generator struct {
	hours           int
	baseServiceTime time.Duration
	rng             *rand.Rand
}

// NewGenerator builds a generator for a shift of the given length. A zero
// or negative seed is replaced with the current time so ad-hoc runs differ.
func NewGenerator(hours int, baseServiceTime time.Duration, seed int64) *Generator {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		hours:           hours,
		baseServiceTime: baseServiceTime,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

func periodFor(hour int) dayPeriod {
	for _, p := range shiftPattern {
		if hour >= p.fromHour && hour < p.toHour {
			return p
		}
	}
	return shiftPattern[len(shiftPattern)-1]
}

// Generate produces the full completion stream starting at the given shift
// opening time. Timestamps are strictly increasing.
func (g *Generator) Generate(start time.Time) []Completion {
	var out []Completion
	current := start
	customerID := 1

	for hour := 0; hour < g.hours; hour++ {
		period := periodFor(hour)

		for i := 0; i < period.customersPerHour; i++ {
			complexity := complexityMin + g.rng.Float64()*(complexityMax-complexityMin)
			serviceTime := time.Duration(float64(g.baseServiceTime) * period.serviceMultiplier * complexity)

			if g.rng.Float64() < interruptionChance {
				serviceTime += interruptionDelay
			}

			current = current.Add(serviceTime)
			out = append(out, Completion{
				CustomerID:  customerID,
				Timestamp:   current,
				ServiceTime: serviceTime,
			})
			customerID++
		}
	}
	return out
}
