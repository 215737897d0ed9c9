package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/ratelimit"
	"github.com/wesleyorama2/kaioken/internal/vu"
)

// ClosedExecutor implements the concurrency (closed-loop) load model: a
// fixed pool of VUs, each running iterations back to back as fast as it
// can, optionally capped by a token bucket and bounded by a total request
// count in addition to the duration.
type ClosedExecutor struct {
	deps Deps

	bucket *ratelimit.TokenBucket

	startTime time.Time
	activeVUs atomic.Int32
	requests  atomic.Int64
	running   atomic.Bool
	stalled   atomic.Bool
	cancel    context.CancelFunc

	vusMu  sync.Mutex
	vus    []*vu.VirtualUser
	nextID atomic.Int32

	wg sync.WaitGroup
}

// NewClosedExecutor builds a ClosedExecutor from the plan's Load.VUs /
// Duration / Rate / MaxRequests / Warmup / ThinkTime fields.
func NewClosedExecutor(deps Deps) *ClosedExecutor {
	e := &ClosedExecutor{deps: deps}
	if deps.Plan.Load.Rate > 0 {
		e.bucket = ratelimit.NewTokenBucket(deps.Plan.Load.Rate, deps.Plan.Load.Rate)
	}
	return e
}

// Run spawns Load.VUs workers (ramping up over Load.RampUp if set, using
// the same piecewise target math as the Stages load model) and lets each
// run iterations until ctx is canceled, the plan's duration elapses, or
// MaxRequests is reached.
func (e *ClosedExecutor) Run(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) error {
	load := e.deps.Plan.Load
	e.running.Store(true)
	e.startTime = time.Now()
	defer e.running.Store(false)

	var runCtx context.Context
	var cancel context.CancelFunc
	if load.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, load.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	e.cancel = cancel

	if load.RampUp > 0 {
		e.runRamped(runCtx, outcomes, agg, load)
	} else {
		agg.SetActiveVUs(load.VUs)
		for i := 0; i < load.VUs; i++ {
			e.spawn(runCtx, i, outcomes, agg, load.ThinkTime, load.MaxRequests)
		}
	}

	e.wg.Wait()

	if e.stalled.Load() {
		return ErrAggregatorStalled
	}
	return nil
}

// runRamped drives the VU count up to load.VUs over load.RampUp using the
// same rampTarget/phaseForStage math the Stages load model uses, then holds
// steady for the remainder of the run.
func (e *ClosedExecutor) runRamped(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, load plan.Load) {
	stages := []plan.Stage{{Duration: load.RampUp, Target: float64(load.VUs)}}

	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	e.adjustVUs(ctx, 0, outcomes, agg, load.ThinkTime, load.MaxRequests)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target, stageIdx := rampTarget(stages, time.Since(e.startTime))
			e.adjustVUs(ctx, int(target+0.5), outcomes, agg, load.ThinkTime, load.MaxRequests)
			agg.SetPhase(phaseForStage(stages, stageIdx))
			if time.Since(e.startTime) >= load.RampUp && e.activeVUs.Load() >= int32(load.VUs) {
				return
			}
		}
	}
}

// adjustVUs grows or shrinks the worker pool to target, spawning new
// workers via spawn and politely stopping the excess when shrinking.
func (e *ClosedExecutor) adjustVUs(ctx context.Context, target int, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, thinkTime time.Duration, maxRequests int64) {
	e.vusMu.Lock()
	current := len(e.vus)
	e.vusMu.Unlock()

	if target > current {
		for i := current; i < target; i++ {
			e.spawn(ctx, int(e.nextID.Add(1)), outcomes, agg, thinkTime, maxRequests)
		}
	} else if target < current {
		e.vusMu.Lock()
		for i := current - 1; i >= target; i-- {
			e.vus[i].Stop()
		}
		e.vus = e.vus[:target]
		e.vusMu.Unlock()
	}
	agg.SetActiveVUs(int(e.activeVUs.Load()))
}

func (e *ClosedExecutor) spawn(ctx context.Context, id int, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, thinkTime time.Duration, maxRequests int64) {
	worker := newVU(id, e.deps)
	e.vusMu.Lock()
	e.vus = append(e.vus, worker)
	e.vusMu.Unlock()

	e.wg.Add(1)
	go e.runWorker(ctx, worker, outcomes, agg, thinkTime, maxRequests)
}

func (e *ClosedExecutor) runWorker(ctx context.Context, worker *vu.VirtualUser, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, thinkTime time.Duration, maxRequests int64) {
	defer e.wg.Done()
	defer worker.Retire()

	e.activeVUs.Add(1)
	agg.SetActiveVUs(int(e.activeVUs.Load()))
	defer func() {
		e.activeVUs.Add(-1)
		agg.SetActiveVUs(int(e.activeVUs.Load()))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if worker.Stopped() {
			return
		}

		if maxRequests > 0 {
			// CAS guard: allows the run to finish in-flight iterations
			// already past the limit (at-least-N, at-most-N+active_vus)
			// rather than cutting a VU off mid-chain.
			for {
				cur := e.requests.Load()
				if cur >= maxRequests {
					return
				}
				if e.requests.CompareAndSwap(cur, cur+1) {
					break
				}
			}
		}

		if e.bucket != nil {
			if err := e.bucket.Acquire(ctx); err != nil {
				return
			}
		}

		results := worker.RunIteration(ctx, time.Time{}, thinkTime)
		submit(ctx, outcomes, results, func() {
			e.stalled.Store(true)
			e.cancel()
		})

		if thinkTime > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(thinkTime):
			}
		}
	}
}

// Progress returns elapsed/duration, capped at 1.0. Executors with no fixed
// duration (iteration-bounded runs) always report 0, matching the teacher's own "not applicable" handling for iteration-based
// executors.
func (e *ClosedExecutor) Progress() float64 {
	load := e.deps.Plan.Load
	if load.Duration <= 0 {
		return 0
	}
	if !e.running.Load() {
		if e.startTime.IsZero() {
			return 0
		}
		return 1.0
	}
	p := float64(time.Since(e.startTime)) / float64(load.Duration)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// ActiveVUs returns the current worker count.
func (e *ClosedExecutor) ActiveVUs() int { return int(e.activeVUs.Load()) }

var _ Executor = (*ClosedExecutor)(nil)
