// Package compare implements the regression comparator: loading two
// RunResult JSON files and reporting which metrics moved, which moves
// exceed a configurable regression threshold, and which differences are
// merely informational.
package compare

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RunResult mirrors the subset of the engine's exported RunResult JSON this
// package needs to read back. It intentionally does not import
// internal/engine: a comparison runs against files on disk, possibly
// produced by a different binary version, so it decodes its own
// minimal view rather than depending on the live result type.
type RunResult struct {
	LoadModel     string           `json:"load_model"`
	Concurrency   int              `json:"concurrency"`
	ArrivalRate   float64          `json:"arrival_rate"`
	MaxVUs        int              `json:"max_vus"`
	TargetURL     string           `json:"target_url"`
	Method        string           `json:"method"`
	TotalRequests int64            `json:"total_requests"`
	RPS           float64          `json:"rps"`
	ErrorRate     float64          `json:"error_rate"`
	LatencyUs     map[string]int64 `json:"latency_us"`
	StatusCodes   map[string]int64 `json:"status_codes"`
}

// MetricComparison is one row of the comparison table.
type MetricComparison struct {
	Name      string  `json:"name"`
	Baseline  float64 `json:"baseline"`
	Current   float64 `json:"current"`
	Delta     float64 `json:"delta"`
	DeltaPct  float64 `json:"delta_pct"`
	Unit      string  `json:"unit"`
	Improved  bool    `json:"improved"`
	Regressed bool    `json:"regressed"`
}

// Regression is a metric whose regression exceeded its threshold.
type Regression struct {
	Metric       string  `json:"metric"`
	Baseline     float64 `json:"baseline"`
	Current      float64 `json:"current"`
	DeltaPct     float64 `json:"delta_pct"`
	ThresholdPct float64 `json:"threshold_pct"`
}

// Result is the full comparator output.
type Result struct {
	BaselineFile   string              `json:"baseline_file"`
	CurrentFile    string              `json:"current_file"`
	Metrics        []MetricComparison  `json:"metrics"`
	Regressions    []Regression        `json:"regressions"`
	Warnings       []string            `json:"warnings"`
	HasRegressions bool                `json:"has_regressions"`
}

// Thresholds bundles the regression thresholds a comparison is run
// against; each is a percent-change bound except ErrorRate, which
// is a relative-change percent as original_source computes it.
type Thresholds struct {
	RPS       float64
	ErrorRate float64
	P99       float64 // shared by p50/p90/p95/p99
	P999      float64
	Force     bool
}

// Compare loads two RunResult JSON files and produces a Result.
func Compare(baselinePath, currentPath string, th Thresholds) (*Result, []string, error) {
	baseline, err := loadResult(baselinePath)
	if err != nil {
		return nil, nil, err
	}
	current, err := loadResult(currentPath)
	if err != nil {
		return nil, nil, err
	}

	var metrics []MetricComparison
	var regressions []Regression
	var warnings []string

	baselineOpen := baseline.LoadModel == "open"
	currentOpen := current.LoadModel == "open"

	modelDescription := []string{describeModel(baseline), describeModel(current)}

	if baselineOpen != currentOpen {
		if !th.Force {
			return nil, modelDescription, fmt.Errorf(
				"cannot compare %s vs %s runs; pass Force to compare anyway",
				loadModelLabel(baselineOpen), loadModelLabel(currentOpen))
		}
		warnings = append(warnings, fmt.Sprintf("load models differ: %s vs %s (forced comparison)",
			loadModelLabel(baselineOpen), loadModelLabel(currentOpen)))
	}

	switch {
	case baselineOpen && currentOpen:
		if baseline.ArrivalRate != current.ArrivalRate {
			warnings = append(warnings, fmt.Sprintf("target RPS differs: %v vs %v",
				baseline.ArrivalRate, current.ArrivalRate))
		}
		if baseline.MaxVUs != current.MaxVUs {
			warnings = append(warnings, fmt.Sprintf("max VUs differs: %d vs %d",
				baseline.MaxVUs, current.MaxVUs))
		}
	case !baselineOpen && !currentOpen:
		if baseline.Concurrency != current.Concurrency {
			warnings = append(warnings, fmt.Sprintf("concurrency differs: %d vs %d",
				baseline.Concurrency, current.Concurrency))
		}
	}

	if baseline.TargetURL != current.TargetURL {
		warnings = append(warnings, fmt.Sprintf("URL differs: %q vs %q",
			baseline.TargetURL, current.TargetURL))
	}
	if baseline.Method != current.Method {
		warnings = append(warnings, fmt.Sprintf("method differs: %s vs %s",
			baseline.Method, current.Method))
	}

	// RPS: higher is better.
	rpsCmp := compareMetric("Requests/sec", baseline.RPS, current.RPS, "req/s", true)
	if rpsCmp.Regressed && absf(rpsCmp.DeltaPct) > th.RPS {
		regressions = append(regressions, Regression{"Requests/sec", rpsCmp.Baseline, rpsCmp.Current, rpsCmp.DeltaPct, th.RPS})
	}
	metrics = append(metrics, rpsCmp)

	// Total requests: informational only.
	metrics = append(metrics, compareMetric("Total requests", float64(baseline.TotalRequests), float64(current.TotalRequests), "", true))

	// Error rate: lower is better, gated on relative change vs baseline.
	errCmp := compareMetric("Error rate", baseline.ErrorRate*100, current.ErrorRate*100, "%", false)
	if errCmp.Regressed && current.ErrorRate > 0 {
		relative := 100.0
		if baseline.ErrorRate > 0 {
			relative = (current.ErrorRate - baseline.ErrorRate) / baseline.ErrorRate * 100
		}
		if relative > th.ErrorRate {
			regressions = append(regressions, Regression{"Error rate", errCmp.Baseline, errCmp.Current, relative, th.ErrorRate})
		}
	}
	metrics = append(metrics, errCmp)

	latencyMetrics := []struct {
		name             string
		baseUs, currUs   int64
		thresholdPercent float64
	}{
		{"p50 latency", baseline.LatencyUs["p50"], current.LatencyUs["p50"], th.P99},
		{"p90 latency", baseline.LatencyUs["p90"], current.LatencyUs["p90"], th.P99},
		{"p95 latency", baseline.LatencyUs["p95"], current.LatencyUs["p95"], th.P99},
		{"p99 latency", baseline.LatencyUs["p99"], current.LatencyUs["p99"], th.P99},
		{"p99.9 latency", baseline.LatencyUs["p999"], current.LatencyUs["p999"], th.P999},
	}
	for _, lm := range latencyMetrics {
		baseMs := float64(lm.baseUs) / 1000.0
		currMs := float64(lm.currUs) / 1000.0
		cmp := compareMetric(lm.name, baseMs, currMs, "ms", false)
		if cmp.Regressed && cmp.DeltaPct > lm.thresholdPercent {
			regressions = append(regressions, Regression{lm.name, baseMs, currMs, cmp.DeltaPct, lm.thresholdPercent})
		}
		metrics = append(metrics, cmp)
	}

	codes := mergedStatusCodes(baseline.StatusCodes, current.StatusCodes)
	for _, code := range codes {
		baseCount := float64(baseline.StatusCodes[code])
		currCount := float64(current.StatusCodes[code])
		if baseCount == 0 && currCount == 0 {
			continue
		}
		higherIsBetter := !isErrorStatus(code)
		metrics = append(metrics, compareMetric("Status "+code, baseCount, currCount, "", higherIsBetter))
	}

	return &Result{
		BaselineFile:   baselinePath,
		CurrentFile:    currentPath,
		Metrics:        metrics,
		Regressions:    regressions,
		Warnings:       warnings,
		HasRegressions: len(regressions) > 0,
	}, modelDescription, nil
}

func compareMetric(name string, baseline, current float64, unit string, higherIsBetter bool) MetricComparison {
	delta := current - baseline
	var deltaPct float64
	switch {
	case baseline != 0:
		deltaPct = delta / baseline * 100
	case current != 0:
		deltaPct = 100
	default:
		deltaPct = 0
	}

	improved := delta < 0
	regressed := delta > 0
	if higherIsBetter {
		improved = delta > 0
		regressed = delta < 0
	}

	return MetricComparison{
		Name: name, Baseline: baseline, Current: current,
		Delta: delta, DeltaPct: deltaPct, Unit: unit,
		Improved: improved, Regressed: regressed,
	}
}

func loadResult(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return &r, nil
}

func loadModelLabel(open bool) string {
	if open {
		return "Open"
	}
	return "Closed"
}

func describeModel(r *RunResult) string {
	if r.LoadModel == "open" {
		return fmt.Sprintf("Open (arrival rate)  target=%v  max_vus=%d", r.ArrivalRate, r.MaxVUs)
	}
	return fmt.Sprintf("Closed (VU-driven)   vus=%d", r.Concurrency)
}

func mergedStatusCodes(a, b map[string]int64) []string {
	seen := make(map[string]bool)
	var codes []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			codes = append(codes, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			codes = append(codes, k)
		}
	}
	sort.Strings(codes)
	return codes
}

func isErrorStatus(code string) bool {
	return len(code) > 0 && (code[0] == '4' || code[0] == '5')
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
