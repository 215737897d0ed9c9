// Package engine orchestrates one run end to end: it builds the executor
// matching the plan's load model, runs it alongside the metrics aggregator,
// drives the live console while the run is in flight, evaluates thresholds
// once it finishes, and assembles the serialized RunResult.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/kaioken/internal/console"
	"github.com/wesleyorama2/kaioken/internal/executor"
	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/threshold"
	"github.com/wesleyorama2/kaioken/internal/vu"
)

// schemaVersion is the RunResult JSON schema version this engine writes.
const schemaVersion = 1

// ToolVersion is the engine's own version string, reported in every
// RunResult so two files can be correlated back to the binary that
// produced them. Overridden at build time via -ldflags if desired.
var ToolVersion = "dev"

// Options controls one Run invocation beyond what's already pinned in the
// plan itself.
type Options struct {
	Console     *console.Console // nil disables live progress entirely
	SnapshotInterval time.Duration
}

// Run executes plan p to completion (or until ctx is canceled) and returns
// the assembled result. A non-nil error here is always an engine-internal
// error (exit 1 territory); per-request failures never surface as err,
// they're folded into the result's counters.
func Run(ctx context.Context, p *plan.RunPlan, exec vu.RequestExecutor, opts Options) (*Result, error) {
	startedAt := time.Now()

	aggCfg := metrics.Config{
		SnapshotInterval:   opts.SnapshotInterval,
		WarmupDuration:     p.Load.Warmup,
		CountNon2xxAsError: p.CountNon2xxAsError,
		FailOnCheck:        p.FailOnCheck,
		LatencyCorrection:  p.LatencyCorrection,
		MaxRequests:        p.Load.MaxRequests,
	}
	maxVUs := p.Load.VUs
	if p.Load.Kind == plan.LoadOpen {
		maxVUs = p.Load.MaxVUs
	}
	agg := metrics.NewAggregator(aggCfg, maxVUs)

	ex := executor.New(executor.Deps{Plan: p, Executor: exec, Seed: p.Seed})

	outcomes := make(chan metrics.Outcome, metrics.OutcomeQueueCapacity)
	snapshots := make(chan metrics.Snapshot, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	aggDone := make(chan struct{})
	go func() {
		agg.Run(runCtx, outcomes, snapshots)
		close(aggDone)
	}()

	if opts.Console != nil {
		opts.Console.PrintHeader(p.Load.Kind)
	}

	var lastSnapshot metrics.Snapshot
	snapDrain := make(chan struct{})
	go func() {
		defer close(snapDrain)
		totalDuration := p.Load.TotalDuration()
		for snap := range snapshots {
			agg.SetActiveVUs(ex.ActiveVUs())
			lastSnapshot = snap
			if opts.Console != nil {
				progress := ex.Progress()
				stats := console.FromSnapshot(snap, progress, totalDuration, maxVUs)
				opts.Console.Update(stats)
			}
			if p.FailFast && len(p.Thresholds) > 0 {
				if _, passed := threshold.EvaluateAll(p.Thresholds, snap); !passed {
					cancel()
				}
			}
		}
	}()

	runErr := ex.Run(runCtx, outcomes, agg)
	close(outcomes)

	<-aggDone
	<-snapDrain

	finishedAt := time.Now()

	results, passed := threshold.EvaluateAll(p.Thresholds, lastSnapshot)

	result := &Result{
		SchemaVersion: schemaVersion,
		ToolVersion:   ToolVersion,
		RunID:         uuid.NewString(),
		LoadModel:     loadModelLabel(p.Load.Kind),
		TargetURL:     p.Target.BaseURL,
		Method:        p.Target.Method,

		Concurrency: p.Load.VUs,
		ArrivalRate: p.Load.RPS,
		MaxVUs:      maxVUs,

		DurationSecs: p.Load.TotalDuration().Seconds(),
		WarmupSecs:   p.Load.Warmup.Seconds(),
		RampUpSecs:   p.Load.RampUp.Seconds(),

		TotalRequests:      lastSnapshot.TotalRequests,
		SuccessfulRequests: lastSnapshot.SuccessfulRequests,
		FailedRequests:     lastSnapshot.FailedRequests,
		BytesReceived:      lastSnapshot.BytesReceived,
		RPS:                lastSnapshot.CumulativeRPS,
		ErrorRate:          lastSnapshot.ErrorRate,

		LatencyUs:          latencyMap(lastSnapshot.Latency),
		CorrectedLatencyUs: optionalLatencyMap(p.LatencyCorrection, lastSnapshot.CorrectedLatency),
		QueueTimeUs:        optionalLatencyMap(p.Load.Kind == plan.LoadOpen, lastSnapshot.QueueLatency),

		StatusCodes: statusCodeMap(lastSnapshot.StatusCodes),
		Errors:      errorMap(lastSnapshot.Errors),

		DroppedIterations: lastSnapshot.DroppedIterations,

		Scenarios: scenarioSummaries(p.Scenarios, lastSnapshot.Scenarios),
		Checks:    checkSummary(lastSnapshot.Checks, lastSnapshot.OverallCheckPassRate),
		Thresholds: ThresholdSummary{
			Passed:  passed,
			Results: results,
		},

		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	if opts.Console != nil {
		opts.Console.PrintSummary(console.Summary{
			Name:       p.Name,
			Duration:   finishedAt.Sub(startedAt),
			Passed:     passed,
			Metrics:    lastSnapshot,
			Thresholds: results,
		})
	}

	if runErr != nil {
		return result, fmt.Errorf("run: %w", runErr)
	}
	return result, nil
}

func loadModelLabel(k plan.LoadKind) string {
	if k == plan.LoadOpen {
		return "open"
	}
	return "closed"
}

func latencyMap(s metrics.LatencyStats) map[string]int64 {
	return map[string]int64{
		"p50": s.P50, "p75": s.P75, "p90": s.P90,
		"p95": s.P95, "p99": s.P99, "p999": s.P999,
		"mean": s.Mean, "max": s.Max,
	}
}

func optionalLatencyMap(enabled bool, s metrics.LatencyStats) map[string]int64 {
	if !enabled {
		return nil
	}
	return latencyMap(s)
}

func statusCodeMap(m map[int]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for code, count := range m {
		out[fmt.Sprintf("%d", code)] = count
	}
	return out
}

func errorMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for kind, count := range m {
		out[kind] = count
	}
	return out
}

func scenarioSummaries(scenarios []plan.Scenario, stats map[int]metrics.ScenarioStat) []ScenarioSummary {
	out := make([]ScenarioSummary, 0, len(scenarios))
	for i, sc := range scenarios {
		st := stats[i]
		out = append(out, ScenarioSummary{
			Name:       sc.Name,
			Weight:     sc.Weight,
			Tags:       sc.Tags,
			Count:      st.Count,
			ErrorCount: st.ErrorCount,
		})
	}
	return out
}

func checkSummary(checks map[string]metrics.CheckStat, overallPassRate float64) ChecksSummary {
	results := make(map[string]CheckResult, len(checks))
	for name, cs := range checks {
		results[name] = CheckResult{Passed: cs.Passed, Total: cs.Total, PassRate: cs.PassRate()}
	}
	return ChecksSummary{OverallPassRate: overallPassRate, Results: results}
}
