package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/threshold"
)

func TestFromSnapshotComputesRemainingFromProgress(t *testing.T) {
	snap := metrics.Snapshot{Elapsed: 10 * time.Second, RPS: 42, TotalRequests: 100}
	s := FromSnapshot(snap, 0.5, 0, 10)

	assert.Equal(t, 10*time.Second, s.Elapsed)
	assert.Equal(t, 10*time.Second, s.Remaining)
	assert.Equal(t, 42.0, s.RPS)
	assert.Equal(t, int64(100), s.TotalRequests)
}

func TestFromSnapshotFallsBackToTotalDuration(t *testing.T) {
	snap := metrics.Snapshot{Elapsed: 4 * time.Second}
	s := FromSnapshot(snap, 0, 10*time.Second, 5)
	assert.Equal(t, 6*time.Second, s.Remaining)
}

func TestUpdateNonTTYWritesOneLinePerTick(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{Name: "smoke", Writer: &buf, NoColor: true})

	c.Update(Stats{Progress: 0.5, ActiveVUs: 4, TargetVUs: 8, TotalRequests: 10, RPS: 5})
	out := buf.String()

	assert.Contains(t, out, "progress=50%")
	assert.Contains(t, out, "vus=4/8")
}

func TestUpdateQuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{Name: "smoke", Writer: &buf, Quiet: true})

	c.Update(Stats{Progress: 0.5})
	assert.Empty(t, buf.String())
}

func TestPrintHeaderIncludesLoadKind(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{Name: "checkout", Writer: &buf, NoColor: true})

	c.PrintHeader(plan.LoadClosed)
	assert.Contains(t, buf.String(), "checkout")
	assert.Contains(t, buf.String(), string(plan.LoadClosed))
}

func TestPrintSummaryQuietPrintsPassFail(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{Name: "checkout", Writer: &buf, Quiet: true})

	c.PrintSummary(Summary{Passed: true})
	assert.Contains(t, buf.String(), "PASSED")

	buf.Reset()
	c.PrintSummary(Summary{Passed: false})
	assert.Contains(t, buf.String(), "FAILED")
}

func TestPrintSummaryReportsLatencyAndThresholds(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{Name: "checkout", Writer: &buf, NoColor: true})

	c.PrintSummary(Summary{
		Name:     "checkout",
		Duration: 5 * time.Second,
		Passed:   false,
		Metrics: metrics.Snapshot{
			TotalRequests: 1000,
			ErrorRate:     0.02,
			Latency:       metrics.LatencyStats{P95: 50000, Max: 100000},
		},
		Thresholds: []threshold.Result{
			{Metric: "p95", Expression: "p95 < 500ms", Passed: false, Actual: "800ms"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Total Reqs:")
	assert.Contains(t, out, "P95:")
	assert.Contains(t, out, "Failed")
}

func TestFormatDurationBuckets(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 05s", formatDuration(2*time.Minute+5*time.Second))
}

func TestFormatDurationShortBuckets(t *testing.T) {
	assert.Equal(t, "0ms", formatDurationShort(500*time.Nanosecond))
	assert.Equal(t, "250µs", formatDurationShort(250*time.Microsecond))
	assert.Equal(t, "15ms", formatDurationShort(15*time.Millisecond))
}

func TestFormatNumberAddsThousandsSeparators(t *testing.T) {
	assert.Equal(t, "123", formatNumber(123))
	assert.Equal(t, "1,234", formatNumber(1234))
	assert.Equal(t, "12,345,678", formatNumber(12345678))
}

func TestStripANSIRemovesEscapeSequences(t *testing.T) {
	assert.Equal(t, "hello", stripANSI("\033[32mhello\033[0m"))
}

func TestRenderProgressBarClampsRange(t *testing.T) {
	assert.Equal(t, "[░░░░░░░░░░]", renderProgressBar(-1, 10))
	assert.Equal(t, "[██████████]", renderProgressBar(2, 10))
}
