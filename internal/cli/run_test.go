package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

func resetRunFlags() {
	runFlags.configPath = ""
	runFlags.method = "GET"
	runFlags.headers = nil
	runFlags.body = ""
	runFlags.concurrency = 10
	runFlags.duration = 0
	runFlags.maxRequests = 0
	runFlags.rate = 0
	runFlags.rampUp = 0
	runFlags.warmup = 0
	runFlags.thinkTime = 0
	runFlags.arrivalRate = 0
	runFlags.maxVUs = 0
	runFlags.noLatencyCorrection = false
	runFlags.noFollowRedirects = false
	runFlags.insecureSkipVerify = false
	runFlags.failFast = false
	runFlags.dryRun = false
	runFlags.output = ""
	runFlags.quiet = false
}

func TestSplitHeader(t *testing.T) {
	name, value, ok := splitHeader("Authorization: Bearer abc123")
	require.True(t, ok)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer abc123", value)

	_, _, ok = splitHeader("not-a-header")
	assert.False(t, ok)

	_, _, ok = splitHeader(": missing name")
	assert.False(t, ok)
}

func TestQuickPlanClosedLoop(t *testing.T) {
	resetRunFlags()
	runFlags.concurrency = 25

	p, err := quickPlan("https://api.example.com/widgets")
	require.NoError(t, err)

	assert.Equal(t, plan.LoadClosed, p.Load.Kind)
	assert.Equal(t, 25, p.Load.VUs)
	assert.Equal(t, "https://api.example.com/widgets", p.Target.BaseURL)
	require.Len(t, p.Scenarios, 1)
	assert.Equal(t, "", p.Scenarios[0].Request.URL)
}

func TestQuickPlanOpenLoop(t *testing.T) {
	resetRunFlags()
	runFlags.arrivalRate = 50
	runFlags.concurrency = 25

	p, err := quickPlan("https://api.example.com/widgets")
	require.NoError(t, err)

	assert.Equal(t, plan.LoadOpen, p.Load.Kind)
	assert.Equal(t, 50.0, p.Load.RPS)
	assert.Equal(t, 25, p.Load.MaxVUs)
	assert.True(t, p.LatencyCorrection)
}

func TestQuickPlanOpenLoopExplicitMaxVUs(t *testing.T) {
	resetRunFlags()
	runFlags.arrivalRate = 50
	runFlags.maxVUs = 200

	p, err := quickPlan("https://api.example.com/widgets")
	require.NoError(t, err)
	assert.Equal(t, 200, p.Load.MaxVUs)
}

func TestQuickPlanInvalidHeader(t *testing.T) {
	resetRunFlags()
	runFlags.headers = []string{"garbage"}

	_, err := quickPlan("https://api.example.com/widgets")
	assert.Error(t, err)
}

func TestBuildPlanRequiresURLOrConfig(t *testing.T) {
	resetRunFlags()
	_, err := buildPlan(nil)
	assert.Error(t, err)
}
