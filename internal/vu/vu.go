// Package vu implements the Virtual User: the unit that repeatedly selects
// a scenario, runs its request chain through a pluggable executor, records
// check results, and feeds outcomes to the metrics aggregator.
package vu

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/scenario"
)

// State is the Virtual User lifecycle as seen by the executor that owns it.
type State int32

const (
	StateIdle State = iota
	StateExecuting
	StateReaping
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateReaping:
		return "reaping"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// RequestExecutor is the pluggable transport contract a VU drives. The
// transport itself (net/http, http3, a mock for tests) is supplied by the
// caller; the VU only knows how to build requests from a plan.Scenario and
// interpret what comes back.
type RequestExecutor interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, []byte, error)
	Classify(err error) metrics.ErrorKind
}

// VirtualUser drives one logical worker: pick a scenario, run its chain,
// report the outcome, repeat until told to stop.
type VirtualUser struct {
	ID        int
	baseURL   string
	scenarios []plan.Scenario
	byName    map[string]int

	executor RequestExecutor
	selector *scenario.Selector
	checkers *CheckSet
	chain    *scenario.ChainContext
	jar      http.CookieJar

	countNon2xxAsError bool
	failOnCheck        bool

	state     atomic.Int32
	iteration atomic.Int64
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds a VirtualUser. seed should be derived from the plan's base
// seed plus the VU's own id so every VU draws scenarios independently but
// reproducibly. baseURL is joined with any scenario request URL that isn't
// already absolute. When cookieJar is set, the VU keeps its own
// net/http/cookiejar.Jar (never shared with other VUs) and carries cookies
// across every request in its chain, matching a browser session scoped to
// one user rather than one shared across the whole run.
func New(id int, baseURL string, scenarios []plan.Scenario, seed int64, executor RequestExecutor, checks []plan.Check, countNon2xxAsError, failOnCheck, cookieJar bool) *VirtualUser {
	byName := make(map[string]int, len(scenarios))
	for i, sc := range scenarios {
		byName[sc.Name] = i
	}
	var jar http.CookieJar
	if cookieJar {
		jar, _ = cookiejar.New(nil)
	}
	return &VirtualUser{
		ID:                 id,
		baseURL:            baseURL,
		scenarios:          scenarios,
		byName:             byName,
		executor:           executor,
		selector:           scenario.NewSelector(scenarios, seed),
		checkers:           NewCheckSet(checks),
		chain:              scenario.NewChainContext(),
		jar:                jar,
		countNon2xxAsError: countNon2xxAsError,
		failOnCheck:        failOnCheck,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// State returns the VU's current lifecycle state.
func (v *VirtualUser) State() State { return State(v.state.Load()) }

// Stop requests a graceful stop; the VU finishes its current iteration (if
// any) and then retires.
func (v *VirtualUser) Stop() {
	if v.state.CompareAndSwap(int32(StateExecuting), int32(StateReaping)) ||
		v.state.CompareAndSwap(int32(StateIdle), int32(StateReaping)) {
		close(v.stopCh)
	}
}

// Stopped reports whether Stop has been requested.
func (v *VirtualUser) Stopped() bool {
	select {
	case <-v.stopCh:
		return true
	default:
		return false
	}
}

// Retire marks the VU fully done; called by the owning executor once its
// goroutine has returned.
func (v *VirtualUser) Retire() {
	v.state.Store(int32(StateRetired))
	select {
	case <-v.doneCh:
	default:
		close(v.doneCh)
	}
}

// WaitRetired blocks until Retire is called or timeout elapses.
func (v *VirtualUser) WaitRetired(timeout time.Duration) bool {
	select {
	case <-v.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// resolveChain expands a scenario's DependsOn into an ordered list ending
// with the scenario itself, so a request that depends on an auth call runs
// the auth call first. Cycles and missing names are dropped rather than
// erroring an iteration; a malformed plan should have been rejected at load
// time, not mid-run.
func (v *VirtualUser) resolveChain(idx int) []int {
	var order []int
	seen := make(map[int]bool)

	var visit func(i int)
	visit = func(i int) {
		if seen[i] {
			return
		}
		seen[i] = true
		for _, dep := range v.scenarios[i].DependsOn {
			if depIdx, ok := v.byName[dep]; ok {
				visit(depIdx)
			}
		}
		order = append(order, i)
	}
	visit(idx)
	return order
}

// RunIteration executes one scenario's full request chain (the selected
// scenario plus anything reachable via DependsOn, each run once in
// dependency order), interleaving think time and variable extraction, and
// returns the outcomes for each request so the caller can submit them to
// the aggregator.
func (v *VirtualUser) RunIteration(ctx context.Context, scheduled time.Time, thinkTime time.Duration) []metrics.Outcome {
	v.state.Store(int32(StateExecuting))
	defer func() {
		if !v.Stopped() {
			v.state.Store(int32(StateIdle))
		}
	}()

	iter := v.iteration.Add(1)
	idx := v.selector.Next()
	if idx < 0 {
		return nil
	}

	requestID := scenario.RequestID(v.ID, iter)

	order := v.resolveChain(idx)
	outcomes := make([]metrics.Outcome, 0, len(order))

	for i, scIdx := range order {
		select {
		case <-ctx.Done():
			return outcomes
		default:
		}
		if v.Stopped() {
			return outcomes
		}

		outcome := v.runRequest(ctx, scIdx, scheduled, requestID, v.chain)
		outcomes = append(outcomes, outcome)

		if i < len(order)-1 && thinkTime > 0 {
			v.sleep(ctx, thinkTime)
		}
	}

	return outcomes
}

// resolveURL joins a scenario's request URL against the target's base URL
// when it isn't already absolute, so scenarios can reference paths
// ("/cart/checkout") while the base URL and its scheme/host live in one
// place.
func (v *VirtualUser) resolveURL(raw string) string {
	if v.baseURL == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() {
		return raw
	}
	base, err := url.Parse(v.baseURL)
	if err != nil {
		return raw
	}
	return base.ResolveReference(parsed).String()
}

func (v *VirtualUser) runRequest(ctx context.Context, scIdx int, scheduled time.Time, requestID string, chainCtx *scenario.ChainContext) metrics.Outcome {
	sc := v.scenarios[scIdx]
	started := time.Now()

	resolver := &plan.VariableResolver{
		Builtins: scenario.Builtins(requestID, started),
		Chain:    chainCtx.Snapshot(),
	}

	reqURL := v.resolveURL(resolver.Resolve(sc.Request.URL))
	body := resolver.Resolve(sc.Request.Body)

	var bodyReader *strings.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	var httpReq *http.Request
	var err error
	if bodyReader != nil {
		httpReq, err = http.NewRequestWithContext(ctx, sc.Request.Method, reqURL, bodyReader)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, sc.Request.Method, reqURL, nil)
	}
	if err != nil {
		return v.errorOutcome(scIdx, sc.Name, scheduled, started, metrics.ErrOther)
	}
	for k, val := range sc.Request.Headers {
		httpReq.Header.Set(k, resolver.Resolve(val))
	}
	if v.jar != nil {
		for _, cookie := range v.jar.Cookies(httpReq.URL) {
			httpReq.AddCookie(cookie)
		}
	}

	resp, respBody, err := v.executor.Execute(ctx, httpReq)
	finished := time.Now()

	if err != nil {
		kind := v.executor.Classify(err)
		return metrics.Outcome{
			ScenarioIndex: scIdx,
			RequestName:   sc.Name,
			ScheduledAt:   scheduled,
			StartedAt:     started,
			FinishedAt:    finished,
			Kind:          resultKindForError(kind),
			ErrKind:       kind,
		}
	}

	if v.jar != nil {
		if setCookies := resp.Cookies(); len(setCookies) > 0 {
			v.jar.SetCookies(httpReq.URL, setCookies)
		}
	}

	checkResults := v.checkers.Evaluate(sc, resp, respBody)
	scenario.ApplyExtractions(sc.Extract, resp, respBody, chainCtx)

	return metrics.Outcome{
		ScenarioIndex: scIdx,
		RequestName:   sc.Name,
		ScheduledAt:   scheduled,
		StartedAt:     started,
		FinishedAt:    finished,
		Kind:          metrics.ResultHTTPResponse,
		StatusCode:    resp.StatusCode,
		BytesIn:       int64(len(respBody)),
		CheckResults:  checkResults,
	}
}

func (v *VirtualUser) errorOutcome(scIdx int, name string, scheduled, started time.Time, kind metrics.ErrorKind) metrics.Outcome {
	return metrics.Outcome{
		ScenarioIndex: scIdx,
		RequestName:   name,
		ScheduledAt:   scheduled,
		StartedAt:     started,
		FinishedAt:    time.Now(),
		Kind:          metrics.ResultNetworkError,
		ErrKind:       kind,
	}
}

func resultKindForError(kind metrics.ErrorKind) metrics.ResultKind {
	switch kind {
	case metrics.ErrTimeout:
		return metrics.ResultTimeout
	case metrics.ErrCanceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultNetworkError
	}
}

func (v *VirtualUser) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-v.stopCh:
	case <-time.After(d):
	}
}
