package p3rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

func rankCam() pursuit.CameraState {
	return pursuit.CameraState{
		Pose:   geom.LookAt(geom.Vec3{}, geom.Vec3{Z: 1}, geom.Vec3{Y: 1}),
		FOVDeg: 90,
		Width:  1920,
		Height: 1080,
	}
}

func TestParseStrategyRoundTrip(t *testing.T) {
	for _, name := range []string{
		config.StrategyClosest, config.StrategyCentered,
		config.StrategyThreat, config.StrategyAdaptive,
	} {
		assert.Equal(t, name, ParseStrategy(name).String())
	}
	assert.Equal(t, StrategyAdaptive, ParseStrategy("bogus"))
}

func TestClosestScore(t *testing.T) {
	cam := rankCam()
	tgt := pursuit.Target{Distance: 10, Visible: true}
	assert.InDelta(t, 100.0, StrategyClosest.Score(tgt, cam), 1e-9)

	// Distances under one metre do not blow the score up.
	tgt.Distance = 0.25
	assert.InDelta(t, 1000.0, StrategyClosest.Score(tgt, cam), 1e-9)
}

func TestCenteredScore(t *testing.T) {
	cam := rankCam()
	tgt := pursuit.Target{
		Distance: 50,
		Screen:   geom.Vec2{X: 960, Y: 290}, // 250 px above centre
		Visible:  true,
	}
	assert.InDelta(t, 4.0, StrategyCentered.Score(tgt, cam), 1e-9)

	tgt.Screen = cam.Center()
	assert.InDelta(t, 1000.0, StrategyCentered.Score(tgt, cam), 1e-9)
}

func TestThreatScore(t *testing.T) {
	cam := rankCam()
	tgt := pursuit.Target{Distance: 100, Visible: true}
	assert.InDelta(t, 95.0, StrategyThreat.Score(tgt, cam), 1e-9)

	// Monotonic decreasing in range and floored at zero.
	far := pursuit.Target{Distance: 3000, Visible: true}
	assert.Equal(t, 0.0, StrategyThreat.Score(far, cam))
	near := pursuit.Target{Distance: 20, Visible: true}
	assert.Greater(t, StrategyThreat.Score(near, cam), StrategyThreat.Score(tgt, cam))
}

func TestAdaptiveScoreBlends(t *testing.T) {
	cam := rankCam()
	tgt := pursuit.Target{Distance: 10, Visible: true}
	// distance factor 10 + visibility bonus 50 + threat 99.5
	assert.InDelta(t, 159.5, StrategyAdaptive.Score(tgt, cam), 1e-9)
}

func TestInvisiblePenalty(t *testing.T) {
	cam := rankCam()
	vis := pursuit.Target{Distance: 10, Visible: true}
	hid := pursuit.Target{Distance: 10, Visible: false}

	assert.InDelta(t, StrategyClosest.Score(vis, cam)*0.1, StrategyClosest.Score(hid, cam), 1e-9)
	assert.InDelta(t, StrategyThreat.Score(vis, cam)*0.1, StrategyThreat.Score(hid, cam), 1e-9)
}

func TestRankSortsDescendingStable(t *testing.T) {
	cam := rankCam()
	r := NewRanker(StrategyClosest)
	targets := []pursuit.Target{
		{ID: "far", Distance: 200, Visible: true},
		{ID: "tie-a", Distance: 50, Visible: true},
		{ID: "tie-b", Distance: 50, Visible: true},
		{ID: "near", Distance: 10, Visible: true},
	}
	ranked := r.Rank(targets, cam)

	require.Len(t, ranked, 4)
	assert.Equal(t, "near", ranked[0].ID)
	// Equal scores keep their scan order.
	assert.Equal(t, "tie-a", ranked[1].ID)
	assert.Equal(t, "tie-b", ranked[2].ID)
	assert.Equal(t, "far", ranked[3].ID)
}

func TestStrategySwitchChangesRanking(t *testing.T) {
	cam := rankCam()
	// Near in world range but far from centre, versus far in range but
	// almost centred.
	nearWorld := pursuit.Target{ID: "near-world", Distance: 10, Screen: geom.Vec2{X: 700, Y: 540}, Visible: true}
	nearCentre := pursuit.Target{ID: "near-centre", Distance: 500, Screen: geom.Vec2{X: 965, Y: 540}, Visible: true}

	r := NewRanker(StrategyClosest)
	ranked := r.Rank([]pursuit.Target{nearWorld, nearCentre}, cam)
	assert.Equal(t, "near-world", ranked[0].ID)

	r.SetStrategy(StrategyCentered)
	ranked = r.Rank([]pursuit.Target{nearWorld, nearCentre}, cam)
	assert.Equal(t, "near-centre", ranked[0].ID)
}

func TestSelectAdoptsTopTarget(t *testing.T) {
	r := NewRanker(StrategyClosest)
	ranked := []pursuit.Target{
		{ID: "a", Distance: 10, Priority: 100},
		{ID: "b", Distance: 20, Priority: 50},
	}
	cur := r.Select(ranked, 400)

	require.NotNil(t, cur)
	assert.Equal(t, "a", cur.ID)
	assert.True(t, cur.Tracked)
	assert.True(t, ranked[0].Tracked)
}

func TestSelectRetainsCurrentWhileValid(t *testing.T) {
	r := NewRanker(StrategyClosest)
	first := r.Select([]pursuit.Target{{ID: "a", Distance: 10, Priority: 100}}, 400)
	require.NotNil(t, first)

	// A newcomer outranks it, but the selection holds while valid.
	for i := 0; i < 10; i++ {
		cur := r.Select([]pursuit.Target{
			{ID: "b", Distance: 5, Priority: 200},
			{ID: "a", Distance: 11, Priority: 90},
		}, 400)
		require.NotNil(t, cur)
		assert.Equal(t, "a", cur.ID)
		// Same logical target, same pointer, tick after tick.
		assert.Same(t, first, cur)
	}
	// Fields refresh from the latest scan.
	assert.InDelta(t, 11.0, r.Current().Distance, 1e-9)
}

func TestSelectReplacesWhenCurrentDisappears(t *testing.T) {
	r := NewRanker(StrategyClosest)
	first := r.Select([]pursuit.Target{{ID: "a", Distance: 10, Priority: 100}}, 400)
	require.NotNil(t, first)

	cur := r.Select([]pursuit.Target{{ID: "b", Distance: 30, Priority: 33}}, 400)
	require.NotNil(t, cur)
	assert.Equal(t, "b", cur.ID)
	assert.NotSame(t, first, cur)
}

func TestSelectReplacesWhenCurrentOutOfRange(t *testing.T) {
	r := NewRanker(StrategyClosest)
	first := r.Select([]pursuit.Target{{ID: "a", Distance: 10, Priority: 100}}, 400)
	require.NotNil(t, first)

	// Still scanned, but now past the distance cutoff. Retention fails
	// and the top-ranked in-range target takes over.
	cur := r.Select([]pursuit.Target{
		{ID: "b", Distance: 50, Priority: 20},
		{ID: "a", Distance: 450, Priority: 2},
	}, 400)
	require.NotNil(t, cur)
	assert.Equal(t, "b", cur.ID)
	assert.NotSame(t, first, cur)
}

func TestSelectClearsOnEmptyList(t *testing.T) {
	r := NewRanker(StrategyClosest)
	r.Select([]pursuit.Target{{ID: "a", Distance: 10, Priority: 100}}, 400)

	cur := r.Select(nil, 400)
	assert.Nil(t, cur)
	assert.Nil(t, r.Current())
}
