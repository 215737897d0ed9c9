// Package threshold parses and evaluates the final pass/fail criteria a
// plan attaches to run metrics: expressions like "p95 < 500ms" or
// "error_rate < 0.01" checked against the finished run's snapshot, and
// against every live snapshot when the plan sets FailFast.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

// Result is the outcome of evaluating one threshold. Field names and
// shape match the documented run-result contract ({metric, op, bound,
// actual, passed}); Expression and Message are additive, for human-facing
// rendering and diagnostics.
type Result struct {
	Metric     string            `json:"metric"`
	Op         plan.ThresholdOp  `json:"op"`
	Bound      float64           `json:"bound"`
	Actual     string            `json:"actual"`
	Passed     bool              `json:"passed"`
	Expression string            `json:"expression"`
	Message    string            `json:"message,omitempty"`
}

var exprPattern = regexp.MustCompile(`^(\w+(?:\.\d+)?)\s*([<>=!]+)\s*(.+)$`)

// Parse splits a raw threshold expression into its metric name, operator,
// and bound, e.g. "p95 < 500ms" -> ("p95", "<", "500ms").
func Parse(expr string) (metric, op, value string, err error) {
	expr = strings.TrimSpace(expr)
	m := exprPattern.FindStringSubmatch(expr)
	if len(m) != 4 {
		return "", "", "", fmt.Errorf("invalid threshold expression: %q", expr)
	}
	return m[1], m[2], strings.TrimSpace(m[3]), nil
}

func compare(actual float64, op string, bound float64) bool {
	switch op {
	case "<":
		return actual < bound
	case "<=":
		return actual <= bound
	case ">":
		return actual > bound
	case ">=":
		return actual >= bound
	case "==", "=":
		return actual == bound
	case "!=", "<>":
		return actual != bound
	default:
		return false
	}
}

// durationMetric maps a metric name to the microsecond latency field it
// reads off a Snapshot; these all accept a duration-suffixed bound
// ("500ms", "1s").
func durationMetric(metric string, snap metrics.Snapshot) (time.Duration, bool) {
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	switch metric {
	case "min":
		return us(snap.Latency.Min), true
	case "max":
		return us(snap.Latency.Max), true
	case "avg", "mean":
		return us(snap.Latency.Mean), true
	case "p50", "med":
		return us(snap.Latency.P50), true
	case "p75":
		return us(snap.Latency.P75), true
	case "p90":
		return us(snap.Latency.P90), true
	case "p95":
		return us(snap.Latency.P95), true
	case "p99":
		return us(snap.Latency.P99), true
	case "p999", "p99.9":
		return us(snap.Latency.P999), true
	default:
		return 0, false
	}
}

// rateMetric maps a metric name to a plain float read off a Snapshot;
// these accept a bare-number bound.
func rateMetric(metric string, snap metrics.Snapshot) (float64, bool) {
	switch metric {
	case "error_rate":
		return snap.ErrorRate, true
	case "rps":
		return snap.CumulativeRPS, true
	case "check_pass_rate":
		return snap.OverallCheckPassRate, true
	case "requests", "count":
		return float64(snap.TotalRequests), true
	default:
		return 0, false
	}
}

// Evaluate checks a single threshold against a final snapshot.
func Evaluate(th plan.Threshold, snap metrics.Snapshot) Result {
	result := Result{Metric: th.Metric, Op: th.Op, Bound: th.Bound, Expression: th.Raw}

	if d, ok := durationMetric(th.Metric, snap); ok {
		result.Actual = d.String()
		result.Passed = compare(float64(d), string(th.Op), float64(th.Bound)*float64(time.Millisecond))
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %s, threshold %s %s", th.Metric, d, th.Op, time.Duration(th.Bound)*time.Millisecond)
		}
		return result
	}

	if v, ok := rateMetric(th.Metric, snap); ok {
		result.Actual = strconv.FormatFloat(v, 'f', 4, 64)
		result.Passed = compare(v, string(th.Op), th.Bound)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %s, threshold %s %v", th.Metric, result.Actual, th.Op, th.Bound)
		}
		return result
	}

	result.Message = fmt.Sprintf("unknown threshold metric: %s", th.Metric)
	return result
}

// EvaluateAll evaluates every threshold and reports whether all passed.
func EvaluateAll(thresholds []plan.Threshold, snap metrics.Snapshot) ([]Result, bool) {
	results := make([]Result, 0, len(thresholds))
	passed := true
	for _, th := range thresholds {
		r := Evaluate(th, snap)
		results = append(results, r)
		if !r.Passed {
			passed = false
		}
	}
	return results, passed
}
