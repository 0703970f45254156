/*
scenarios_test.go - Tests for demo scenarios and the warm-up scheduler

PURPOSE:
	Tests that each scenario loads a practice whose matrix matches the
	figures the scenario was designed around, and that the scheduler
	keeps the default matrices warm.
*/
package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capacity-engine/api"
	"github.com/warp/capacity-engine/matrix"
)

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"balanced-practice", "tax-season", "staff-leave"}, ids)
}

func TestLoadScenario_SetsCurrent(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: nothing loaded
	current := decode[map[string]*api.ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Nil(t, current["scenario"])

	// WHEN: loading tax season
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "tax-season"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: it is reported as current
	current = decode[map[string]*api.ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	require.NotNil(t, current["scenario"])
	assert.Equal(t, "tax-season", current["scenario"].ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{}).Code)
}

func TestBalancedPractice_MatrixFigures(t *testing.T) {
	ts := loaded(t, "balanced-practice")

	resp := decode[api.MatrixResponse](t, ts.do(t, http.MethodGet, "/api/matrix", nil))

	for _, month := range resp.Matrix.MonthKeys() {
		junior, _ := resp.Matrix.Point("Junior", month)
		cpa, _ := resp.Matrix.Point("CPA", month)
		assert.Equal(t, 54.0, junior.DemandHours, month)
		assert.Equal(t, 60.0, junior.CapacityHours, month)
		assert.Equal(t, 24.0, cpa.DemandHours, month)
		assert.Equal(t, 30.0, cpa.CapacityHours, month)
	}
}

func TestTaxSeason_AddsAnnualReturns(t *testing.T) {
	balanced := decode[api.MatrixResponse](t, loaded(t, "balanced-practice").do(t, http.MethodGet, "/api/matrix", nil))
	tax := decode[api.MatrixResponse](t, loaded(t, "tax-season").do(t, http.MethodGet, "/api/matrix", nil))

	b, _ := balanced.Matrix.Point("CPA", "2026-03")
	s, _ := tax.Matrix.Point("CPA", "2026-03")
	assert.Equal(t, b.DemandHours+72, s.DemandHours)

	b, _ = balanced.Matrix.Point("CPA", "2026-04")
	s, _ = tax.Matrix.Point("CPA", "2026-04")
	assert.Equal(t, b.DemandHours+48, s.DemandHours)
	assert.Negative(t, s.Gap)
}

func TestResetDatabase(t *testing.T) {
	ts := loaded(t, "balanced-practice")
	ts.do(t, http.MethodGet, "/api/matrix", nil)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, ts.matrices.Len())
	resp := decode[api.MatrixResponse](t, ts.do(t, http.MethodGet, "/api/matrix", nil))
	assert.Empty(t, resp.Matrix.Skills)
	assert.Empty(t, resp.Matrix.DataPoints)
	assert.Len(t, resp.Matrix.Months, matrix.ForecastMonths)
}

func TestWarmUpScheduler_RunNow(t *testing.T) {
	ts := loaded(t, "balanced-practice")
	scheduler := api.NewWarmUpScheduler(ts.handler.Forecast, ts.summaries, nil)

	// WHEN: warming by hand
	loaded := scheduler.RunNow(context.Background())

	// THEN: both default matrices are cached
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, ts.matrices.Len())
	assert.False(t, scheduler.LastRun().IsZero())
	assert.Equal(t, scheduler.LastRun().Add(scheduler.CheckInterval), scheduler.GetNextRunTime())
}

func TestWarmUpScheduler_StartStop(t *testing.T) {
	ts := loaded(t, "balanced-practice")
	scheduler := api.NewWarmUpScheduler(ts.handler.Forecast, nil, nil)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	assert.Eventually(t, func() bool { return ts.matrices.Len() == 2 }, time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}

func TestWarmUpScheduler_Disabled(t *testing.T) {
	ts := loaded(t, "balanced-practice")
	scheduler := api.NewWarmUpScheduler(ts.handler.Forecast, nil, nil)
	scheduler.Enabled = false

	scheduler.Start()
	scheduler.Stop()

	assert.Zero(t, ts.matrices.Len())
	assert.True(t, scheduler.LastRun().IsZero())
}
