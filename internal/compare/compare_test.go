package compare

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResult(t *testing.T, dir, name string, r RunResult) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func baseClosedResult() RunResult {
	return RunResult{
		LoadModel:     "closed",
		Concurrency:   50,
		TargetURL:     "https://api.example.com/widgets",
		Method:        "GET",
		TotalRequests: 10000,
		RPS:           500,
		ErrorRate:     0.01,
		LatencyUs:     map[string]int64{"p50": 20000, "p90": 40000, "p95": 50000, "p99": 80000, "p999": 120000},
		StatusCodes:   map[string]int64{"200": 9900, "500": 100},
	}
}

func TestCompareNoRegression(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	current := baseClosedResult()
	current.RPS = 520
	currentPath := writeResult(t, dir, "current.json", current)

	result, descriptions, err := Compare(baseline, currentPath, Thresholds{RPS: 10, ErrorRate: 50, P99: 20, P999: 30})
	require.NoError(t, err)
	require.Len(t, descriptions, 2)
	assert.False(t, result.HasRegressions)
	assert.Empty(t, result.Regressions)
}

func TestCompareDetectsRPSRegression(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	current := baseClosedResult()
	current.RPS = 300 // 40% drop
	currentPath := writeResult(t, dir, "current.json", current)

	result, _, err := Compare(baseline, currentPath, Thresholds{RPS: 10, ErrorRate: 50, P99: 20, P999: 30})
	require.NoError(t, err)
	assert.True(t, result.HasRegressions)
	require.NotEmpty(t, result.Regressions)
	assert.Equal(t, "Requests/sec", result.Regressions[0].Metric)
}

func TestCompareDetectsLatencyRegression(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	current := baseClosedResult()
	current.LatencyUs["p99"] = 200000 // +150%
	currentPath := writeResult(t, dir, "current.json", current)

	result, _, err := Compare(baseline, currentPath, Thresholds{RPS: 10, ErrorRate: 50, P99: 20, P999: 30})
	require.NoError(t, err)
	assert.True(t, result.HasRegressions)
	found := false
	for _, r := range result.Regressions {
		if r.Metric == "p99 latency" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompareMismatchedLoadModelRequiresForce(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	open := baseClosedResult()
	open.LoadModel = "open"
	open.ArrivalRate = 200
	open.MaxVUs = 100
	currentPath := writeResult(t, dir, "current.json", open)

	_, _, err := Compare(baseline, currentPath, Thresholds{})
	assert.Error(t, err)

	result, _, err := Compare(baseline, currentPath, Thresholds{Force: true, RPS: 10, ErrorRate: 50, P99: 20, P999: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestCompareWarnsOnURLDifference(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	current := baseClosedResult()
	current.TargetURL = "https://api.example.com/other"
	currentPath := writeResult(t, dir, "current.json", current)

	result, _, err := Compare(baseline, currentPath, Thresholds{RPS: 10, ErrorRate: 50, P99: 20, P999: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestCompareMissingFile(t *testing.T) {
	dir := t.TempDir()
	baseline := writeResult(t, dir, "baseline.json", baseClosedResult())

	_, _, err := Compare(baseline, filepath.Join(dir, "missing.json"), Thresholds{})
	assert.Error(t, err)
}
