package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-optics/pursuit.camera/internal/api"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
)

func defaultWeights() scoreWeights {
	return scoreWeights{Error: 1.0, Capture: 5.0, Slew: 0.2}
}

func TestScoreWeightSigns(t *testing.T) {
	w := defaultWeights()
	base := comboResult{TimeOnTarget: 0.5, Captures: 2, P95ErrPx: 30, MeanSlewPx: 10}

	worseErr := base
	worseErr.P95ErrPx *= 2
	assert.Less(t, w.score(worseErr), w.score(base), "centre error must penalise")

	worseSlew := base
	worseSlew.MeanSlewPx *= 2
	assert.Less(t, w.score(worseSlew), w.score(base), "slew must penalise")

	moreCaptures := base
	moreCaptures.Captures *= 2
	assert.Greater(t, w.score(moreCaptures), w.score(base), "captures must reward")

	moreOnTarget := base
	moreOnTarget.TimeOnTarget = 0.9
	assert.Greater(t, w.score(moreOnTarget), w.score(base), "time on target must reward")
}

func TestRankingPrefersTighterTracking(t *testing.T) {
	w := defaultWeights()
	tight := comboResult{
		comboParams:  comboParams{Strategy: "centered", Smoothing: 0.3},
		TimeOnTarget: 0.9, Captures: 3, P95ErrPx: 25, MeanSlewPx: 12,
	}
	loose := tight
	loose.Strategy = "closest"
	loose.P95ErrPx = 80

	tight.Score = w.score(tight)
	loose.Score = w.score(loose)

	results := []comboResult{loose, tight}
	printRanking(results)
	assert.Equal(t, "centered", results[0].Strategy, "lower p95 centre error must rank first")
}

func TestRankingPrefersMoreCaptures(t *testing.T) {
	w := defaultWeights()
	eager := comboResult{
		comboParams:  comboParams{Strategy: "adaptive", Prediction: 0.5},
		TimeOnTarget: 0.8, Captures: 6, P95ErrPx: 40, MeanSlewPx: 15,
	}
	shy := eager
	shy.Strategy = "threat"
	shy.Captures = 1

	eager.Score = w.score(eager)
	shy.Score = w.score(shy)

	results := []comboResult{shy, eager}
	printRanking(results)
	assert.Equal(t, "adaptive", results[0].Strategy, "higher capture count must rank first")
}

func TestSummarizeCombo(t *testing.T) {
	now := time.Now()
	hit := func(errPx float64) sampleResult {
		return sampleResult{Timestamp: now, HasTarget: true, CenterErrPx: errPx, SlewPx: 5}
	}
	samples := []sampleResult{
		hit(30),
		hit(10),
		hit(40),
		hit(20),
		{Timestamp: now, SlewPx: 5}, // lost the target for one sample
	}
	before := &api.StatusResponse{Engine: pipeline.Snapshot{Ticks: 100, Moves: 40, Captures: 2}}
	after := &api.StatusResponse{Engine: pipeline.Snapshot{Ticks: 250, Moves: 90, Captures: 5}}

	p := comboParams{Strategy: "centered", Smoothing: 0.4, Prediction: 0.5}
	res := summarizeCombo(p, samples, before, after, defaultWeights())

	assert.Equal(t, p, res.comboParams)
	assert.Equal(t, 5, res.Samples)
	assert.Equal(t, uint64(150), res.Ticks)
	assert.Equal(t, uint64(50), res.Moves)
	assert.Equal(t, int64(3), res.Captures)

	assert.InDelta(t, 0.8, res.TimeOnTarget, 1e-9)
	assert.InDelta(t, 25.0, res.MeanErrPx, 1e-9)
	// Empirical quantiles over the sorted errors {10,20,30,40}.
	assert.InDelta(t, 20.0, res.P50ErrPx, 1e-9)
	assert.InDelta(t, 40.0, res.P95ErrPx, 1e-9)
	assert.InDelta(t, 5.0, res.MeanSlewPx, 1e-9)

	// 100*0.8 + 5*3 - 1*40 - 0.2*5
	assert.InDelta(t, 54.0, res.Score, 1e-9)
}

func TestSummarizeComboNoSamples(t *testing.T) {
	st := &api.StatusResponse{Engine: pipeline.Snapshot{Ticks: 10}}
	res := summarizeCombo(comboParams{Strategy: "closest"}, nil, st, st, defaultWeights())

	require.Zero(t, res.Samples)
	assert.Zero(t, res.TimeOnTarget)
	assert.Zero(t, res.MeanErrPx)
	assert.Zero(t, res.P95ErrPx)
	assert.Zero(t, res.MeanSlewPx)
	assert.Zero(t, res.Score)
}
