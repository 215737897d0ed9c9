package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// maxTrackedErrorKinds bounds the Errors map in a Snapshot; once distinct
// kinds exceed this the overflow is folded into ErrOther so a pathological
// target can't make the snapshot unbounded.
const maxTrackedErrorKinds = 32

// maxTrackedStatusCodes bounds the StatusCodes map the same way.
const maxTrackedStatusCodes = 32

// OutcomeQueueCapacity is the bounded channel size workers publish into.
// Sized well above any single tick's expected throughput so a momentary
// burst doesn't apply backpressure to request dispatch.
const OutcomeQueueCapacity = 1024

// stallAbortTimeout is how long Submit waits for room in the queue before
// giving up and reporting a stall to its caller rather than blocking the
// run forever.
const stallAbortTimeout = 2 * time.Second

// Config controls Aggregator behavior.
type Config struct {
	SnapshotInterval   time.Duration
	WarmupDuration     time.Duration
	CountNon2xxAsError bool
	FailOnCheck        bool
	LatencyCorrection  bool
	MaxRequests        int64
}

// Aggregator is the single consumer of Outcome values published by every
// worker. It owns all histograms and counters; nothing outside its Run
// goroutine touches them, so no field needs a lock beyond what the
// individual histogram/counter types already provide for cross-goroutine
// publication.
type Aggregator struct {
	cfg Config

	start      time.Time
	warmedUp   bool
	warmupEnds time.Time

	wallclock *LatencyHistogram
	corrected *LatencyHistogram
	queue     *LatencyHistogram

	rps       *RollingRPS
	sparkline *Sparkline

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	bytesReceived      int64

	statusCodes map[int]int64
	errors      map[string]int64

	checks map[string]CheckStat

	scenarios map[int]ScenarioStat

	activeVUs         atomic.Int32
	maxVUs            int
	droppedIterations atomic.Int64

	phase Phase
	mu    sync.Mutex // guards statusCodes, errors, checks, phase
}

// NewAggregator builds an Aggregator ready to consume outcomes.
func NewAggregator(cfg Config, maxVUs int) *Aggregator {
	return &Aggregator{
		cfg:         cfg,
		wallclock:   NewLatencyHistogram(),
		corrected:   NewLatencyHistogram(),
		queue:       NewLatencyHistogram(),
		rps:         NewRollingRPS(),
		sparkline:   NewSparkline(),
		statusCodes: make(map[int]int64),
		errors:      make(map[string]int64),
		checks:      make(map[string]CheckStat),
		scenarios:   make(map[int]ScenarioStat),
		maxVUs:      maxVUs,
		phase:       PhaseWarmup,
	}
}

// SetActiveVUs lets the executor publish its current worker count without
// routing it through the outcome channel.
func (a *Aggregator) SetActiveVUs(n int) { a.activeVUs.Store(int32(n)) }

// SetPhase lets a ramping executor publish which leg of its stages it's
// currently in, once warmup has completed (warmup always wins until it's
// over, regardless of what the executor reports).
func (a *Aggregator) SetPhase(p Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.warmedUp {
		return
	}
	a.phase = p
}

// RecordDropped counts one abandoned open-loop iteration (VU pool exhausted
// at the arrival rate's target concurrency).
func (a *Aggregator) RecordDropped() { a.droppedIterations.Add(1) }

// Run drains outcomes until the channel closes or ctx is canceled,
// publishing a Snapshot on snapshots every SnapshotInterval and a final one
// on return. It also runs the 100ms RollingRPS tick independently of
// snapshot cadence so RPS stays smooth even with a coarse snapshot
// interval. The snapshots channel is closed once Run returns.
func (a *Aggregator) Run(ctx context.Context, outcomes <-chan Outcome, snapshots chan<- Snapshot) {
	defer close(snapshots)

	a.start = time.Now()
	if a.cfg.WarmupDuration > 0 {
		a.warmupEnds = a.start.Add(a.cfg.WarmupDuration)
	} else {
		a.warmedUp = true
		a.phase = PhaseSteady
	}

	tickInterval := time.Duration(tickResolutionMs) * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	snapInterval := a.cfg.SnapshotInterval
	if snapInterval <= 0 {
		snapInterval = time.Second
	}
	snapTicker := time.NewTicker(snapInterval)
	defer snapTicker.Stop()

	lastTickRPS := 0.0

	for {
		select {
		case <-ctx.Done():
			snapshots <- a.snapshot(lastTickRPS)
			return

		case o, ok := <-outcomes:
			if !ok {
				snapshots <- a.snapshot(lastTickRPS)
				return
			}
			a.record(o)

		case <-ticker.C:
			a.checkWarmup()
			lastTickRPS = a.rps.Tick()

		case <-snapTicker.C:
			snapshots <- a.snapshot(lastTickRPS)
			if a.cfg.MaxRequests > 0 && a.totalRequestsSnapshot() >= a.cfg.MaxRequests {
				return
			}
		}
	}
}

func (a *Aggregator) totalRequestsSnapshot() int64 {
	return atomic.LoadInt64(&a.totalRequests)
}

func (a *Aggregator) checkWarmup() {
	if a.warmedUp || a.warmupEnds.IsZero() {
		return
	}
	if time.Now().Before(a.warmupEnds) {
		return
	}
	a.warmedUp = true
	a.resetForSteadyState()
}

// resetForSteadyState discards everything measured during warmup so the
// reported totals reflect only the steady-state window.
func (a *Aggregator) resetForSteadyState() {
	a.wallclock.Reset()
	a.corrected.Reset()
	a.queue.Reset()

	a.mu.Lock()
	atomic.StoreInt64(&a.totalRequests, 0)
	atomic.StoreInt64(&a.successfulRequests, 0)
	atomic.StoreInt64(&a.failedRequests, 0)
	atomic.StoreInt64(&a.bytesReceived, 0)
	a.statusCodes = make(map[int]int64)
	a.errors = make(map[string]int64)
	a.checks = make(map[string]CheckStat)
	a.scenarios = make(map[int]ScenarioStat)
	a.phase = PhaseSteady
	a.mu.Unlock()
}

// record folds one Outcome into every counter and histogram it touches.
func (a *Aggregator) record(o Outcome) {
	atomic.AddInt64(&a.totalRequests, 1)

	ok := o.Success(a.cfg.CountNon2xxAsError, a.cfg.FailOnCheck)
	if ok {
		atomic.AddInt64(&a.successfulRequests, 1)
	} else {
		atomic.AddInt64(&a.failedRequests, 1)
	}
	atomic.AddInt64(&a.bytesReceived, o.BytesIn)

	a.wallclock.Record(o.WallclockLatency())
	a.corrected.Record(o.CorrectedLatency())
	if !o.ScheduledAt.IsZero() {
		a.queue.Record(o.QueueLatency())
	}
	a.rps.Record(1)

	a.mu.Lock()
	if o.StatusCode > 0 {
		if len(a.statusCodes) < maxTrackedStatusCodes || a.statusCodes[o.StatusCode] > 0 {
			a.statusCodes[o.StatusCode]++
		} else {
			a.statusCodes[0]++ // overflow bucket
		}
	}
	if o.Kind != ResultHTTPResponse {
		kind := string(o.ErrKind)
		if len(a.errors) < maxTrackedErrorKinds || a.errors[kind] > 0 {
			a.errors[kind]++
		} else {
			a.errors[string(ErrOther)]++
		}
	}
	for name, passed := range o.CheckResults {
		cs := a.checks[name]
		cs.Total++
		if passed {
			cs.Passed++
		}
		a.checks[name] = cs
	}
	ss := a.scenarios[o.ScenarioIndex]
	ss.Count++
	if !ok {
		ss.ErrorCount++
	}
	a.scenarios[o.ScenarioIndex] = ss
	a.mu.Unlock()
}

// snapshot builds a read-only Snapshot from current state. tickRPS is the
// most recent RollingRPS.Tick() reading; it's threaded through rather than
// recomputed so a snapshot fired between ticks doesn't see a stale window
// shift.
func (a *Aggregator) snapshot(tickRPS float64) Snapshot {
	a.sparkline.Push(tickRPS)

	a.mu.Lock()
	statusCodes := make(map[int]int64, len(a.statusCodes))
	for k, v := range a.statusCodes {
		statusCodes[k] = v
	}
	errs := make(map[string]int64, len(a.errors))
	for k, v := range a.errors {
		errs[k] = v
	}
	checks := make(map[string]CheckStat, len(a.checks))
	var passedTotal, checkTotal int64
	for k, v := range a.checks {
		checks[k] = v
		passedTotal += v.Passed
		checkTotal += v.Total
	}
	scenarios := make(map[int]ScenarioStat, len(a.scenarios))
	for k, v := range a.scenarios {
		scenarios[k] = v
	}
	phase := a.phase
	a.mu.Unlock()

	total := atomic.LoadInt64(&a.totalRequests)
	success := atomic.LoadInt64(&a.successfulRequests)
	failed := atomic.LoadInt64(&a.failedRequests)
	bytesRecv := atomic.LoadInt64(&a.bytesReceived)

	elapsed := time.Since(a.start)
	errRate := 0.0
	if total > 0 {
		errRate = float64(failed) / float64(total)
	}
	cumRPS := 0.0
	if elapsed > 0 {
		cumRPS = float64(a.rps.Total()) / elapsed.Seconds()
	}
	passRate := 1.0
	if checkTotal > 0 {
		passRate = float64(passedTotal) / float64(checkTotal)
	}

	wall := a.wallclock.Stats()
	corr := a.corrected.Stats()
	active := wall
	if a.cfg.LatencyCorrection {
		active = corr
	}

	return Snapshot{
		Timestamp: time.Now(),
		Elapsed:   elapsed,
		Phase:     phase,

		TotalRequests:      total,
		SuccessfulRequests: success,
		FailedRequests:     failed,
		BytesReceived:      bytesRecv,

		RPS:           tickRPS,
		CumulativeRPS: cumRPS,
		ErrorRate:     errRate,

		Latency:          active,
		WallclockLatency: wall,
		CorrectedLatency: corr,
		QueueLatency:     a.queue.Stats(),
		Corrected:        a.cfg.LatencyCorrection,

		StatusCodes: statusCodes,
		Errors:      errs,

		Checks:               checks,
		OverallCheckPassRate: passRate,

		Scenarios: scenarios,

		Sparkline: a.sparkline.Values(),

		ActiveVUs:         int(a.activeVUs.Load()),
		MaxVUs:            a.maxVUs,
		DroppedIterations: a.droppedIterations.Load(),
	}
}

// Submit pushes an outcome into the channel with a bounded wait and reports
// whether it was delivered; if the channel stays full for longer than
// stallAbortTimeout, or ctx is done first, it returns false rather than
// blocking the caller indefinitely. Workers normally have ample headroom; this only engages if
// the aggregator goroutine itself falls badly behind.
func Submit(ctx context.Context, outcomes chan<- Outcome, o Outcome) bool {
	timer := time.NewTimer(stallAbortTimeout)
	defer timer.Stop()

	select {
	case outcomes <- o:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}
