package executor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/ratelimit"
	"github.com/wesleyorama2/kaioken/internal/vu"
)

// idleRetireAfter is how long a pooled VU can sit unused before the
// reaper retires it, and idleReapInterval is how often it looks.
const (
	idleRetireAfter  = 10 * time.Second
	idleReapInterval = 2 * time.Second
)

// pooledVU tracks how long a free VU has been sitting in the pool so the
// idle reaper knows which ones are past idleRetireAfter.
type pooledVU struct {
	worker    *vu.VirtualUser
	idleSince time.Time
}

// OpenExecutor implements the arrival-rate (open-loop) load model:
// iterations are scheduled at a fixed rate regardless of how long prior
// iterations take, using a bounded VU pool to run them. If the pool is
// exhausted at MaxVUs when a new iteration comes due, the iteration is
// abandoned and counted as dropped rather than making the scheduler wait —
// waiting here would silently convert the open model back into a closed
// one exactly when it matters most (the system is saturated).
type OpenExecutor struct {
	deps Deps

	pacer *ratelimit.Pacer

	vuPoolMu   sync.Mutex
	vuPool     []pooledVU
	allVUs     []*vu.VirtualUser
	currentVUs atomic.Int32

	startTime time.Time
	running   atomic.Bool
	stalled   atomic.Bool
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewOpenExecutor builds an OpenExecutor from the plan's Load.RPS /
// Load.MaxVUs / Load.Duration fields.
func NewOpenExecutor(deps Deps) *OpenExecutor {
	return &OpenExecutor{
		deps:  deps,
		pacer: ratelimit.NewPacer(deps.Plan.Load.RPS),
	}
}

// Run schedules iterations at Load.RPS until ctx is canceled or
// Load.Duration elapses, executing each on a pooled VU (growing the pool up
// to Load.MaxVUs) and abandoning-and-counting any iteration that arrives
// with no VU free.
func (e *OpenExecutor) Run(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) error {
	load := e.deps.Plan.Load
	maxVUs := load.MaxVUs
	if maxVUs <= 0 {
		maxVUs = 1
	}

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

	preAllocated := maxVUs
	if preAllocated > 16 {
		preAllocated = 16
	}
	for i := 0; i < preAllocated; i++ {
		worker := newVU(i, e.deps)
		e.allVUs = append(e.allVUs, worker)
		e.vuPool = append(e.vuPool, pooledVU{worker: worker, idleSince: time.Now()})
		e.currentVUs.Add(1)
	}
	agg.SetActiveVUs(int(e.currentVUs.Load()))

	floor := int(math.Ceil(load.RPS * 0.1))
	if floor < 1 {
		floor = 1
	}

	e.wg.Add(1)
	go e.schedule(runCtx, maxVUs, outcomes, agg, load.ThinkTime)

	e.wg.Add(1)
	go e.reapIdle(runCtx, agg, floor)

	<-runCtx.Done()
	e.wg.Wait()
	e.requestAllStop()

	if e.stalled.Load() {
		return ErrAggregatorStalled
	}
	return nil
}

// reapIdle retires VUs that have sat unused in the pool for longer than
// idleRetireAfter, never shrinking the pool below floor so a burst after a
// quiet stretch doesn't have to pay full cold-start cost.
func (e *OpenExecutor) reapIdle(ctx context.Context, agg *metrics.Aggregator, floor int) {
	defer e.wg.Done()

	ticker := time.NewTicker(idleReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.retireIdleVUs(agg, floor)
		}
	}
}

func (e *OpenExecutor) retireIdleVUs(agg *metrics.Aggregator, floor int) {
	now := time.Now()

	e.vuPoolMu.Lock()
	kept := e.vuPool[:0]
	var retired []*vu.VirtualUser
	for _, p := range e.vuPool {
		if int(e.currentVUs.Load())-len(retired) > floor && now.Sub(p.idleSince) >= idleRetireAfter {
			retired = append(retired, p.worker)
			continue
		}
		kept = append(kept, p)
	}
	e.vuPool = kept
	e.vuPoolMu.Unlock()

	if len(retired) == 0 {
		return
	}

	retiredSet := make(map[*vu.VirtualUser]bool, len(retired))
	for _, w := range retired {
		w.Stop()
		w.Retire()
		retiredSet[w] = true
	}
	e.currentVUs.Add(int32(-len(retired)))

	e.vuPoolMu.Lock()
	remaining := e.allVUs[:0]
	for _, w := range e.allVUs {
		if !retiredSet[w] {
			remaining = append(remaining, w)
		}
	}
	e.allVUs = remaining
	e.vuPoolMu.Unlock()

	agg.SetActiveVUs(int(e.currentVUs.Load()))
}

func (e *OpenExecutor) schedule(ctx context.Context, maxVUs int, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, thinkTime time.Duration) {
	defer e.wg.Done()

	for {
		if err := e.pacer.Wait(ctx); err != nil {
			return
		}
		scheduledAt := time.Now()

		worker, ok := e.acquireVU(maxVUs)
		if !ok {
			agg.RecordDropped()
			continue
		}

		e.wg.Add(1)
		go e.runIteration(ctx, worker, scheduledAt, outcomes, agg, thinkTime)
	}
}

// acquireVU pulls a free VU from the pool, growing the pool up to maxVUs.
// It never blocks: if the pool is empty and already at capacity, ok is
// false and the caller must treat the iteration as dropped.
func (e *OpenExecutor) acquireVU(maxVUs int) (*vu.VirtualUser, bool) {
	e.vuPoolMu.Lock()
	defer e.vuPoolMu.Unlock()

	if n := len(e.vuPool); n > 0 {
		worker := e.vuPool[n-1].worker
		e.vuPool = e.vuPool[:n-1]
		return worker, true
	}

	if int(e.currentVUs.Load()) < maxVUs {
		worker := newVU(int(e.currentVUs.Load()), e.deps)
		e.allVUs = append(e.allVUs, worker)
		e.currentVUs.Add(1)
		return worker, true
	}

	return nil, false
}

func (e *OpenExecutor) returnVU(worker *vu.VirtualUser) {
	if worker.Stopped() {
		return
	}
	e.vuPoolMu.Lock()
	e.vuPool = append(e.vuPool, pooledVU{worker: worker, idleSince: time.Now()})
	e.vuPoolMu.Unlock()
}

func (e *OpenExecutor) runIteration(ctx context.Context, worker *vu.VirtualUser, scheduledAt time.Time, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator, thinkTime time.Duration) {
	defer e.wg.Done()
	defer e.returnVU(worker)

	results := worker.RunIteration(ctx, scheduledAt, thinkTime)
	submit(ctx, outcomes, results, func() {
		e.stalled.Store(true)
		e.cancel()
	})
	agg.SetActiveVUs(int(e.currentVUs.Load()))
}

func (e *OpenExecutor) requestAllStop() {
	e.vuPoolMu.Lock()
	vus := make([]*vu.VirtualUser, len(e.allVUs))
	copy(vus, e.allVUs)
	e.vuPoolMu.Unlock()

	for _, worker := range vus {
		worker.Stop()
	}

	done := make(chan struct{})
	go func() {
		for _, worker := range vus {
			worker.WaitRetired(gracefulStopTimeout)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulStopTimeout):
	}
}

// Progress returns elapsed/duration, capped at 1.0.
func (e *OpenExecutor) Progress() float64 {
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

// ActiveVUs returns the current pool size (not all of which may be busy at
// this instant).
func (e *OpenExecutor) ActiveVUs() int { return int(e.currentVUs.Load()) }

var _ Executor = (*OpenExecutor)(nil)
