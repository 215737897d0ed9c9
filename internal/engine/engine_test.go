package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/httpexec"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func closedPlan(targetURL string) *plan.RunPlan {
	return &plan.RunPlan{
		Name: "closed-loop smoke test",
		Target: plan.Target{
			BaseURL:   targetURL,
			Method:    http.MethodGet,
			KeepAlive: true,
			Timeout:   5 * time.Second,
		},
		Load: plan.Load{
			Kind:     plan.LoadClosed,
			VUs:      4,
			Duration: 200 * time.Millisecond,
		},
		Scenarios: []plan.Scenario{
			{Name: "default", Weight: 1, Request: plan.RequestTemplate{Method: http.MethodGet, URL: ""}},
		},
		Thresholds: []plan.Threshold{
			{Metric: "error_rate", Op: plan.OpLT, Bound: 0.5, Raw: "error_rate < 0.5"},
		},
	}
}

func TestRunClosedLoopAgainstTestServer(t *testing.T) {
	srv, requests := newTestServer(t)

	p := closedPlan(srv.URL)
	exec := httpexec.New(httpexec.WithTimeout(5 * time.Second))

	result, err := Run(context.Background(), p, exec, Options{SnapshotInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, "closed", result.LoadModel)
	assert.Equal(t, srv.URL, result.TargetURL)
	assert.Greater(t, result.TotalRequests, int64(0))
	assert.Equal(t, requests.Load(), result.TotalRequests)
	assert.True(t, result.Thresholds.Passed)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "default", result.Scenarios[0].Name)
	assert.Equal(t, result.Scenarios[0].Count, result.TotalRequests)
}

func TestRunOpenLoopAgainstTestServer(t *testing.T) {
	srv, _ := newTestServer(t)

	p := closedPlan(srv.URL)
	p.Load = plan.Load{
		Kind:   plan.LoadOpen,
		RPS:    20,
		MaxVUs: 10,
		Duration: 200 * time.Millisecond,
	}
	p.LatencyCorrection = true

	exec := httpexec.New(httpexec.WithTimeout(5 * time.Second))
	result, err := Run(context.Background(), p, exec, Options{SnapshotInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, "open", result.LoadModel)
	assert.NotNil(t, result.CorrectedLatencyUs)
	assert.NotNil(t, result.QueueTimeUs)
}

func TestRunFailFastCancelsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p := closedPlan(srv.URL)
	p.Load.Duration = 5 * time.Second
	p.FailFast = true
	p.CountNon2xxAsError = true
	p.Thresholds = []plan.Threshold{
		{Metric: "error_rate", Op: plan.OpLT, Bound: 0.01, Raw: "error_rate < 0.01"},
	}

	exec := httpexec.New(httpexec.WithTimeout(2 * time.Second))
	started := time.Now()
	result, err := Run(context.Background(), p, exec, Options{SnapshotInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.False(t, result.Thresholds.Passed)
}

func TestRunFailsThresholds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p := closedPlan(srv.URL)
	p.Thresholds = []plan.Threshold{
		{Metric: "error_rate", Op: plan.OpLT, Bound: 0.01, Raw: "error_rate < 0.01"},
	}
	p.CountNon2xxAsError = true

	exec := httpexec.New(httpexec.WithTimeout(5 * time.Second))
	result, err := Run(context.Background(), p, exec, Options{SnapshotInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, result.Thresholds.Passed)
}
