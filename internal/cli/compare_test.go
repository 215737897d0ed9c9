package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/kaioken/internal/compare"
)

func TestPrintComparisonTable(t *testing.T) {
	result := &compare.Result{
		BaselineFile: "baseline.json",
		CurrentFile:  "current.json",
		Metrics: []compare.MetricComparison{
			{Name: "Requests/sec", Baseline: 500, Current: 480, Delta: -20, DeltaPct: -4, Unit: "req/s", Regressed: true},
		},
		Warnings:       []string{"URL differs"},
		HasRegressions: false,
	}

	var buf bytes.Buffer
	printComparisonTable(&buf, result, []string{"Closed (VU-driven) vus=50", "Closed (VU-driven) vus=50"})

	out := buf.String()
	assert.Contains(t, out, "baseline.json")
	assert.Contains(t, out, "current.json")
	assert.Contains(t, out, "Requests/sec")
	assert.Contains(t, out, "warnings:")
	assert.Contains(t, out, "URL differs")
}

func TestPrintComparisonTableWithRegressions(t *testing.T) {
	result := &compare.Result{
		BaselineFile: "baseline.json",
		CurrentFile:  "current.json",
		Regressions: []compare.Regression{
			{Metric: "p99 latency", Baseline: 50, Current: 120, DeltaPct: 140, ThresholdPct: 20},
		},
		HasRegressions: true,
	}

	var buf bytes.Buffer
	printComparisonTable(&buf, result, []string{"a", "b"})

	out := buf.String()
	assert.Contains(t, out, "regressions:")
	assert.Contains(t, out, "p99 latency")
}
