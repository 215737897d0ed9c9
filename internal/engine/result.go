package engine

import (
	"time"

	"github.com/wesleyorama2/kaioken/internal/threshold"
)

// ScenarioSummary is one scenario's share of the traffic mix and its
// outcome tally.
type ScenarioSummary struct {
	Name       string            `json:"name"`
	Weight     float64           `json:"weight"`
	Tags       map[string]string `json:"tags,omitempty"`
	Count      int64             `json:"count"`
	ErrorCount int64             `json:"error_count"`
}

// CheckResult is one named check's pass tally.
type CheckResult struct {
	Passed   int64   `json:"passed"`
	Total    int64   `json:"total"`
	PassRate float64 `json:"pass_rate"`
}

// ChecksSummary bundles every check's result with the overall pass rate
// across all checks combined.
type ChecksSummary struct {
	OverallPassRate float64                `json:"overall_pass_rate"`
	Results         map[string]CheckResult `json:"results"`
}

// ThresholdSummary bundles every threshold's verdict with the combined
// pass/fail result used to decide the run's exit code.
type ThresholdSummary struct {
	Passed  bool                `json:"passed"`
	Results []threshold.Result  `json:"results"`
}

// Result is the serialized RunResult: the complete, self-contained record
// of one run, suitable for writing to disk and later feeding to compare.
type Result struct {
	SchemaVersion int    `json:"schema_version"`
	ToolVersion   string `json:"tool_version"`
	RunID         string `json:"run_id"`

	LoadModel string `json:"load_model"`
	TargetURL string `json:"target_url"`
	Method    string `json:"method"`

	Concurrency int     `json:"concurrency,omitempty"`
	ArrivalRate float64 `json:"arrival_rate,omitempty"`
	MaxVUs      int     `json:"max_vus"`

	DurationSecs float64 `json:"duration_secs"`
	WarmupSecs   float64 `json:"warmup_secs"`
	RampUpSecs   float64 `json:"ramp_up_secs"`

	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	BytesReceived      int64 `json:"bytes_received"`

	RPS       float64 `json:"rps"`
	ErrorRate float64 `json:"error_rate"`

	LatencyUs          map[string]int64 `json:"latency_us"`
	CorrectedLatencyUs map[string]int64 `json:"corrected_latency_us,omitempty"`
	QueueTimeUs        map[string]int64 `json:"queue_time_us,omitempty"`

	StatusCodes map[string]int64 `json:"status_codes"`
	Errors      map[string]int64 `json:"errors"`

	DroppedIterations int64 `json:"dropped_iterations"`

	Scenarios  []ScenarioSummary `json:"scenarios"`
	Checks     ChecksSummary     `json:"checks"`
	Thresholds ThresholdSummary  `json:"thresholds"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
