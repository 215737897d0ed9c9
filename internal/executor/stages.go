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

// phaseTickInterval is how often the controller recalculates the target
// and adjusts VUs, matching the teacher's 100ms ramp-smoothing cadence.
const phaseTickInterval = 100 * time.Millisecond

// PhaseController implements the piecewise-linear Stages load model,
// either ramping a VU count (closed-loop) or a request rate
// (open-loop-with-pacer) depending on plan.Load.StagesAreRates.
type PhaseController struct {
	deps Deps

	startTime    time.Time
	currentStage atomic.Int32
	running      atomic.Bool
	stalled      atomic.Bool
	cancel       context.CancelFunc

	vusMu sync.Mutex
	vus   []*vu.VirtualUser

	pacer  *ratelimit.Pacer
	nextID atomic.Int32

	wg sync.WaitGroup
}

// NewPhaseController builds a PhaseController over plan.Load.Stages.
func NewPhaseController(deps Deps) *PhaseController {
	c := &PhaseController{deps: deps}
	if deps.Plan.Load.StagesAreRates {
		c.pacer = ratelimit.NewPacer(1) // retargeted every tick
	}
	return c
}

func (c *PhaseController) totalDuration() time.Duration {
	return c.deps.Plan.Load.TotalDuration()
}

// Run drives the ramp until every stage elapses or ctx is canceled.
func (c *PhaseController) Run(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) error {
	c.running.Store(true)
	c.startTime = time.Now()
	defer c.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, c.totalDuration())
	defer cancel()
	c.cancel = cancel

	controllerDone := make(chan struct{})
	go func() {
		c.controlLoop(runCtx, outcomes, agg)
		close(controllerDone)
	}()

	if c.deps.Plan.Load.StagesAreRates {
		c.wg.Add(1)
		go c.rateSchedule(runCtx, outcomes, agg)
	}

	<-runCtx.Done()
	<-controllerDone
	c.gracefulShutdown()

	if c.stalled.Load() {
		return ErrAggregatorStalled
	}
	return nil
}

func (c *PhaseController) onStall() {
	c.stalled.Store(true)
	c.cancel()
}

// rateSchedule runs only when the stages ramp a request rate rather than a
// VU count: it draws iterations off the shared pacer (retargeted every
// tick by controlLoop) and executes them on a small elastic VU pool, the
// same abandon-and-count-drops contract as OpenExecutor.
func (c *PhaseController) rateSchedule(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) {
	defer c.wg.Done()

	maxVUs := c.deps.Plan.Load.MaxVUs
	if maxVUs <= 0 {
		maxVUs = 64
	}

	var poolMu sync.Mutex
	var pool []*vu.VirtualUser

	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return
		}
		scheduledAt := time.Now()

		poolMu.Lock()
		var worker *vu.VirtualUser
		if n := len(pool); n > 0 {
			worker = pool[n-1]
			pool = pool[:n-1]
		} else if int(c.nextID.Load()) < maxVUs {
			id := int(c.nextID.Add(1))
			worker = newVU(id, c.deps)
			c.vusMu.Lock()
			c.vus = append(c.vus, worker)
			c.vusMu.Unlock()
		}
		poolMu.Unlock()

		if worker == nil {
			agg.RecordDropped()
			continue
		}

		c.wg.Add(1)
		go func(worker *vu.VirtualUser) {
			defer c.wg.Done()
			results := worker.RunIteration(ctx, scheduledAt, c.deps.Plan.Load.ThinkTime)
			submit(ctx, outcomes, results, c.onStall)
			if !worker.Stopped() {
				poolMu.Lock()
				pool = append(pool, worker)
				poolMu.Unlock()
			}
		}(worker)
	}
}

func (c *PhaseController) controlLoop(ctx context.Context, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) {
	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := c.targetAt(time.Since(c.startTime))
			if c.deps.Plan.Load.StagesAreRates {
				c.pacer.SetRate(target)
			} else {
				c.adjustVUs(ctx, int(target+0.5), outcomes, agg)
			}
			agg.SetActiveVUs(c.activeVUCount())
			agg.SetPhase(phaseForStage(c.deps.Plan.Load.Stages, int(c.currentStage.Load())))
		}
	}
}

// targetAt linearly interpolates the stage target (VU count or RPS) at the
// given elapsed time, matching the teacher's calculateTargetVUs logic
// generalized to a float64 target so it serves both load shapes.
func (c *PhaseController) targetAt(elapsed time.Duration) float64 {
	target, stage := rampTarget(c.deps.Plan.Load.Stages, elapsed)
	c.currentStage.Store(int32(stage))
	return target
}

// rampTarget linearly interpolates a piecewise target (VU count or RPS)
// across stages at the given elapsed time, along with the index of the
// stage currently in effect. Shared by PhaseController's full Stages load
// model and ClosedExecutor's single-stage RampUp ramp, so both walk the
// same ramp math rather than keeping two copies in sync.
func rampTarget(stages []plan.Stage, elapsed time.Duration) (float64, int) {
	var stageStart time.Duration
	prevTarget := 0.0

	for i, stage := range stages {
		stageEnd := stageStart + stage.Duration
		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}
			if progress > 1 {
				progress = 1
			}
			return prevTarget + (stage.Target-prevTarget)*progress, i
		}
		prevTarget = stage.Target
		stageStart = stageEnd
	}

	if len(stages) > 0 {
		return stages[len(stages)-1].Target, len(stages) - 1
	}
	return 0, -1
}

// adjustVUs spawns or retires VUs to match target, used only in the
// VU-count stage mode.
func (c *PhaseController) adjustVUs(ctx context.Context, target int, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) {
	c.vusMu.Lock()
	defer c.vusMu.Unlock()

	current := len(c.vus)
	if target > current {
		for i := current; i < target; i++ {
			id := int(c.nextID.Add(1))
			worker := newVU(id, c.deps)
			c.vus = append(c.vus, worker)
			c.wg.Add(1)
			go c.runWorker(ctx, worker, outcomes, agg)
		}
	} else if target < current {
		for i := current - 1; i >= target; i-- {
			c.vus[i].Stop()
		}
		c.vus = c.vus[:target]
	}
}

func (c *PhaseController) runWorker(ctx context.Context, worker *vu.VirtualUser, outcomes chan<- metrics.Outcome, agg *metrics.Aggregator) {
	defer c.wg.Done()
	defer worker.Retire()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if worker.Stopped() {
			return
		}
		results := worker.RunIteration(ctx, time.Time{}, c.deps.Plan.Load.ThinkTime)
		submit(ctx, outcomes, results, c.onStall)
	}
}

func (c *PhaseController) activeVUCount() int {
	c.vusMu.Lock()
	defer c.vusMu.Unlock()
	return len(c.vus)
}

func (c *PhaseController) gracefulShutdown() {
	c.vusMu.Lock()
	for _, worker := range c.vus {
		worker.Stop()
	}
	c.vusMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulStopTimeout):
	}
}

// Progress returns elapsed/total, capped at 1.0.
func (c *PhaseController) Progress() float64 {
	if !c.running.Load() {
		if c.startTime.IsZero() {
			return 0
		}
		return 1.0
	}
	total := c.totalDuration()
	if total <= 0 {
		return 0
	}
	p := float64(time.Since(c.startTime)) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// ActiveVUs returns the current worker count: the stage-driven VUs in VU
// mode, and the pool workers started so far in rate mode.
func (c *PhaseController) ActiveVUs() int { return c.activeVUCount() }

var _ Executor = (*PhaseController)(nil)

// phaseForStage reports which metrics.Phase a stage index corresponds to,
// mirroring the teacher's updatePhase heuristic (first ramp-up stage,
// last ramp-down stage, otherwise compare against the previous target).
func phaseForStage(stages []plan.Stage, idx int) metrics.Phase {
	if idx < 0 || idx >= len(stages) {
		return metrics.PhaseSteady
	}
	stage := stages[idx]
	prevTarget := 0.0
	if idx > 0 {
		prevTarget = stages[idx-1].Target
	}
	switch {
	case idx == 0 && stage.Target > 0:
		return metrics.PhaseRamping
	case idx == len(stages)-1 && stage.Target == 0:
		return metrics.PhaseDraining
	case stage.Target == prevTarget:
		return metrics.PhaseSteady
	default:
		return metrics.PhaseRamping
	}
}
