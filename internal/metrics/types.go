// Package metrics implements the real-time statistics pipeline: latency
// histograms, rolling throughput, status/error classification, check
// tallies and the periodic Snapshot the rest of the engine observes.
package metrics

import "time"

// Phase mirrors the PhaseController's current state as seen by the
// aggregator, published in every Snapshot.
type Phase string

const (
	PhaseWarmup   Phase = "Warmup"
	PhaseRamping  Phase = "Ramping"
	PhaseSteady   Phase = "Steady"
	PhaseDraining Phase = "Draining"
	PhaseDone     Phase = "Done"
)

// LatencyStats is a point-in-time percentile summary of a single
// LatencyHistogram, expressed in microseconds.
type LatencyStats struct {
	Min, Max, Mean                      int64
	P50, P75, P90, P95, P99, P999 int64
	Count                                int64
}

// CheckStat is the pass/total tally for one named check.
type CheckStat struct {
	Passed int64
	Total  int64
}

// ScenarioStat is the request/error tally for one scenario, keyed by its
// index into the plan's Scenarios slice.
type ScenarioStat struct {
	Count      int64
	ErrorCount int64
}

func (c CheckStat) PassRate() float64 {
	if c.Total == 0 {
		return 1.0
	}
	return float64(c.Passed) / float64(c.Total)
}

// Snapshot is the periodic read-only view the Aggregator publishes.
type Snapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration
	Phase     Phase

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	BytesReceived      int64

	RPS           float64 // rolling, 1s window
	CumulativeRPS float64
	ErrorRate     float64

	// Latency is the "active" latency series: corrected if
	// LatencyCorrection is enabled, wallclock otherwise.
	Latency          LatencyStats
	WallclockLatency LatencyStats
	CorrectedLatency LatencyStats
	QueueLatency     LatencyStats
	Corrected        bool

	StatusCodes map[int]int64
	Errors      map[string]int64

	Checks            map[string]CheckStat
	OverallCheckPassRate float64

	Scenarios map[int]ScenarioStat

	Sparkline []float64 // last 120 RPS samples

	ActiveVUs        int
	MaxVUs           int
	DroppedIterations int64
}
