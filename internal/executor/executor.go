// Package executor implements the two load models: a closed-loop
// (concurrency) executor where each VU immediately starts its next
// iteration as soon as the previous one finishes, and an open-loop
// (arrival-rate) executor where iterations are scheduled at a target rate
// regardless of how long prior iterations take, exposing coordinated
// omission rather than hiding it.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/vu"
)

// ErrAggregatorStalled is returned by Run when a worker gave up delivering
// an outcome because the aggregator's queue stayed full past its abort
// timeout, signaling the aggregator goroutine has fallen fatally behind.
var ErrAggregatorStalled = errors.New("executor: aggregator stalled, outcome queue stayed full")

// Executor generates load according to one load model and reports outcomes
// to the given outcome channel until ctx is canceled or the plan's duration
// elapses.
type Executor interface {
	// Run blocks until the load model completes or ctx is canceled,
	// publishing outcomes via metrics.Submit.
	Run(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) error

	// Progress returns 0.0-1.0 completion for display purposes.
	Progress() float64

	// ActiveVUs returns the current worker count.
	ActiveVUs() int
}

// Deps bundles what every executor needs to build VUs.
type Deps struct {
	Plan     *plan.RunPlan
	Executor vu.RequestExecutor
	Seed     int64
}

// New builds the Executor matching plan.Load.Kind.
func New(deps Deps) Executor {
	switch deps.Plan.Load.Kind {
	case plan.LoadOpen:
		return NewOpenExecutor(deps)
	case plan.LoadStages:
		return NewPhaseController(deps)
	default:
		return NewClosedExecutor(deps)
	}
}

// newVU is the shared VU constructor every executor implementation calls,
// so the seed derivation and check/flag wiring stay in one place.
func newVU(id int, deps Deps) *vu.VirtualUser {
	return vu.New(
		id,
		deps.Plan.Target.BaseURL,
		deps.Plan.Scenarios,
		deps.Seed+int64(id),
		deps.Executor,
		deps.Plan.Checks,
		deps.Plan.CountNon2xxAsError,
		deps.Plan.FailOnCheck,
		deps.Plan.CookieJar,
	)
}

// submit pushes a VU's outcomes onto the channel, invoking onStall and
// abandoning the remainder of results if the aggregator stalls on any one
// of them (metrics.Submit giving up after its bounded wait). Delivery does
// not depend on ctx being live, so an outcome that finishes after the run
// was canceled is still counted. onStall is expected to cancel the run
// context so every other worker unwinds too.
func submit(ctx context.Context, outcomes chan<- metrics.Outcome, results []metrics.Outcome, onStall func()) {
	for _, o := range results {
		if !metrics.Submit(context.WithoutCancel(ctx), outcomes, o) {
			if ctx.Err() == nil {
				onStall()
			}
			return
		}
	}
}

// gracefulStopTimeout bounds how long Run waits for in-flight VUs to finish
// their current iteration once ctx is canceled or the duration elapses.
const gracefulStopTimeout = 10 * time.Second
