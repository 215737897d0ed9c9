package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

func TestParse(t *testing.T) {
	metric, op, value, err := Parse("p95 < 500ms")
	require.NoError(t, err)
	assert.Equal(t, "p95", metric)
	assert.Equal(t, "<", op)
	assert.Equal(t, "500ms", value)

	_, _, _, err = Parse("not an expression")
	assert.Error(t, err)
}

func TestEvaluateLatencyMetric(t *testing.T) {
	snap := metrics.Snapshot{Latency: metrics.LatencyStats{P95: 400_000}} // 400ms in us

	passing := Evaluate(plan.Threshold{Metric: "p95", Op: plan.OpLT, Bound: 500, Raw: "p95 < 500ms"}, snap)
	assert.True(t, passing.Passed)

	failing := Evaluate(plan.Threshold{Metric: "p95", Op: plan.OpLT, Bound: 300, Raw: "p95 < 300ms"}, snap)
	assert.False(t, failing.Passed)
	assert.Equal(t, "400ms", failing.Actual)
	assert.NotEmpty(t, failing.Message)
}

func TestEvaluateRateMetric(t *testing.T) {
	snap := metrics.Snapshot{ErrorRate: 0.02, CumulativeRPS: 120}

	errRate := Evaluate(plan.Threshold{Metric: "error_rate", Op: plan.OpLT, Bound: 0.05, Raw: "error_rate < 0.05"}, snap)
	assert.True(t, errRate.Passed)

	rps := Evaluate(plan.Threshold{Metric: "rps", Op: plan.OpGE, Bound: 200, Raw: "rps >= 200"}, snap)
	assert.False(t, rps.Passed)
}

func TestEvaluateReportsOpAndBound(t *testing.T) {
	snap := metrics.Snapshot{ErrorRate: 0.1}
	result := Evaluate(plan.Threshold{Metric: "error_rate", Op: plan.OpLT, Bound: 0.05, Raw: "error_rate < 0.05"}, snap)

	assert.Equal(t, plan.OpLT, result.Op)
	assert.Equal(t, 0.05, result.Bound)
	assert.Equal(t, "error_rate", result.Metric)
}

func TestEvaluateUnknownMetric(t *testing.T) {
	result := Evaluate(plan.Threshold{Metric: "bogus", Op: plan.OpLT, Bound: 1, Raw: "bogus < 1"}, metrics.Snapshot{})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "unknown threshold metric")
}

func TestEvaluateAllFailsIfAnyThresholdFails(t *testing.T) {
	snap := metrics.Snapshot{ErrorRate: 0.1, Latency: metrics.LatencyStats{P99: int64(200 * time.Millisecond / time.Microsecond)}}

	thresholds := []plan.Threshold{
		{Metric: "error_rate", Op: plan.OpLT, Bound: 0.05, Raw: "error_rate < 0.05"},
		{Metric: "p99", Op: plan.OpLT, Bound: 500, Raw: "p99 < 500ms"},
	}

	results, passed := EvaluateAll(thresholds, snap)
	require.Len(t, results, 2)
	assert.False(t, passed)
	assert.False(t, results[0].Passed)
	assert.True(t, results[1].Passed)
}
