// Package plan defines the frozen, validated description of a load test run.
//
// A RunPlan is produced by config.Load and consumed by the engine. Once
// built it is never mutated; executors and scenario selection read from it
// concurrently without locking.
package plan

import "time"

// LoadKind identifies which load model a plan uses.
type LoadKind string

const (
	LoadClosed LoadKind = "closed"
	LoadOpen   LoadKind = "open"
	LoadStages LoadKind = "stages"
)

// Target describes the HTTP destination and transport-level options shared
// by every request the plan issues.
type Target struct {
	BaseURL            string
	Method             string
	Headers            map[string]string
	Body               string
	InsecureSkipVerify bool
	FollowRedirects    bool
	ProxyURL           string
	ConnectTimeout     time.Duration
	Timeout            time.Duration
	KeepAlive          bool
	Auth               Auth
	ClientCertFile     string
	ClientKeyFile      string
}

// AuthKind selects which default credential, if any, is applied to every
// request that doesn't already carry its own Authorization header (a
// scenario-level header, e.g. one built from an extracted token, always
// wins).
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
)

// Auth is the target-wide default credential. It is a convenience for
// endpoints that gate every request behind one static credential; a
// scenario needing a dynamic, per-chain credential (a token extracted from
// an earlier response) still sets its own Authorization header instead.
type Auth struct {
	Kind     AuthKind
	Token    string // bearer
	Username string // basic
	Password string // basic
}

// Load captures whichever load model the plan selected. Exactly one of the
// three embedded configs is meaningful, discriminated by Kind.
type Load struct {
	Kind LoadKind

	// Concurrency (closed-loop).
	VUs          int
	Duration     time.Duration
	MaxRequests  int64
	Rate         float64 // 0 = uncapped
	RampUp       time.Duration
	Warmup       time.Duration
	ThinkTime    time.Duration

	// ArrivalRate (open-loop).
	RPS    float64
	MaxVUs int

	// Stages (either model, piecewise-linear targets).
	Stages       []Stage
	StagesAreRates bool
}

// Stage is one leg of a piecewise-linear ramp. Target is a VU count when the
// plan's stage targets are worker counts, or a requests-per-second figure
// when they are rate targets; Load.StagesAreRates records which.
type Stage struct {
	Duration time.Duration
	Target   float64
}

// TotalDuration returns the sum of every stage's duration, or the plan's
// single Duration field for non-staged load models.
func (l *Load) TotalDuration() time.Duration {
	if l.Kind != LoadStages {
		return l.Duration
	}
	var total time.Duration
	for _, s := range l.Stages {
		total += s.Duration
	}
	return total
}

// Scenario is a named request template with a weight in the traffic mix.
type Scenario struct {
	Name       string
	Weight     float64
	DependsOn  []string
	Request    RequestTemplate
	Extract    []Extraction
	Tags       map[string]string
}

// RequestTemplate is the uninterpolated request shape attached to a
// Scenario; VariableResolver fills in ${...} tokens per iteration.
type RequestTemplate struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Extraction describes how to pull one variable out of a response.
type Extraction struct {
	Name   string
	Source string // "json", "regex", "header", "body"
	Path   string
	Regex  string
	Group  int
}

// Check is a named boolean predicate evaluated against every outcome.
type Check struct {
	Name       string
	Expression string
}

// ThresholdOp is a relational operator used by both check conditions and
// threshold expressions.
type ThresholdOp string

const (
	OpLT ThresholdOp = "<"
	OpLE ThresholdOp = "<="
	OpGT ThresholdOp = ">"
	OpGE ThresholdOp = ">="
	OpEQ ThresholdOp = "=="
)

// Threshold is a relational constraint over a final metric. Bound is
// stored in milliseconds for latency metrics (p50, p95, avg, ...) and as a
// plain number for rate/count metrics (error_rate, rps, check_pass_rate),
// matching whichever unit the metric's own field uses.
type Threshold struct {
	Metric string
	Op     ThresholdOp
	Bound  float64
	// Raw is the original expression text, kept for reporting.
	Raw string
}

// RunPlan is the complete, immutable input to the engine.
type RunPlan struct {
	Name               string
	Target             Target
	Load               Load
	Scenarios          []Scenario
	Checks             []Check
	Thresholds         []Threshold
	CookieJar          bool
	LatencyCorrection  bool
	CountNon2xxAsError bool
	FailFast           bool
	FailOnCheck        bool
	Seed               int64
}
