package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/httpexec"
	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

func stagesPlan(targetURL string, stages []plan.Stage, ratesMode bool) *plan.RunPlan {
	p := testPlan(targetURL, plan.Load{Kind: plan.LoadStages, Stages: stages, StagesAreRates: ratesMode})
	return p
}

func TestTargetAtInterpolatesWithinStage(t *testing.T) {
	c := &PhaseController{deps: Deps{Plan: stagesPlan("", []plan.Stage{
		{Duration: 10 * time.Second, Target: 20},
		{Duration: 10 * time.Second, Target: 0},
	}, false)}}

	assert.Equal(t, 0.0, c.targetAt(0))
	assert.InDelta(t, 10.0, c.targetAt(5*time.Second), 0.01)
	assert.InDelta(t, 20.0, c.targetAt(10*time.Second), 0.01)
	assert.InDelta(t, 10.0, c.targetAt(15*time.Second), 0.01)
}

func TestTargetAtPastLastStageHoldsFinalTarget(t *testing.T) {
	c := &PhaseController{deps: Deps{Plan: stagesPlan("", []plan.Stage{
		{Duration: 5 * time.Second, Target: 30},
	}, false)}}

	assert.Equal(t, 30.0, c.targetAt(time.Minute))
}

func TestPhaseForStageFirstStageIsRamping(t *testing.T) {
	stages := []plan.Stage{{Duration: time.Second, Target: 10}, {Duration: time.Second, Target: 10}, {Duration: time.Second, Target: 0}}

	assert.Equal(t, metrics.PhaseRamping, phaseForStage(stages, 0))
	assert.Equal(t, metrics.PhaseSteady, phaseForStage(stages, 1))
	assert.Equal(t, metrics.PhaseDraining, phaseForStage(stages, 2))
	assert.Equal(t, metrics.PhaseSteady, phaseForStage(nil, 5))
}

func TestPhaseControllerRampsVUsAcrossStages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := stagesPlan(srv.URL, []plan.Stage{
		{Duration: 100 * time.Millisecond, Target: 3},
		{Duration: 100 * time.Millisecond, Target: 0},
	}, false)
	exec := httpexec.New(httpexec.WithTimeout(2 * time.Second))
	c := NewPhaseController(Deps{Plan: p, Executor: exec, Seed: 1})

	outcomes := make(chan metrics.Outcome, 256)
	agg := metrics.NewAggregator(metrics.Config{}, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		for range outcomes {
		}
	}()

	err := c.Run(ctx, outcomes, agg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Progress())
}
