package mapping

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

func TestRecorderCommitsAtResolution(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	// 2 mm per tick at 0.1 rad/s: a sample every 5 ticks.
	for i := 0; i < 50; i++ {
		r.Update(0.002, 0.1, 1.0e-3)
	}
	samples := r.Samples()
	require.Len(t, samples, 10)
	for _, s := range samples {
		require.GreaterOrEqual(t, s.DeltaDistance, float32(Resolution))
		require.InDelta(t, 0.1*1.0e-3*5, s.DeltaYaw, 1e-6)
	}
}

func TestRecorderResetDiscardsEverything(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	for i := 0; i < 50; i++ {
		r.Update(0.002, 0, 1.0e-3)
	}
	r.Explored()
	r.Reset()
	require.Empty(t, r.Samples())
	require.False(t, r.IsExplored())
}

func constantSamples(n int, deltaDistance, deltaYaw float32) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{DeltaDistance: deltaDistance, DeltaYaw: deltaYaw}
	}
	return samples
}

func newGeneratedMapper(t *testing.T, samples []Sample, limits []Limit, start, accel, decel float32) *Mapper {
	t.Helper()
	r := NewRecorder()
	r.SetSamples(samples)
	m := NewMapper(r)
	require.NoError(t, m.Generate(limits, start, accel, decel, 0))
	return m
}

func TestGenerateRequiresExploredCourse(t *testing.T) {
	t.Parallel()

	m := NewMapper(NewRecorder())
	err := m.Generate([]Limit{{MinRadius: 0.2, MaxVelocity: 1.0}}, 1, 10, 10, 0)
	require.ErrorIs(t, err, ErrNotExplored)
	require.False(t, m.IsGenerated())
}

func TestGenerateRampsDownIntoTightCurve(t *testing.T) {
	t.Parallel()

	// A fast straight into a 0.05 m radius curve capped at 1.0 m/s. The
	// backward pass must build a braking ramp across the straight: each
	// step toward the curve sheds at most decel·Δd of speed.
	const accel, decel = 10.0, 10.0
	samples := append(constantSamples(20, 0.01, 0), constantSamples(10, 0.01, 0.2)...)
	m := newGeneratedMapper(t, samples,
		[]Limit{{MinRadius: 0.2, MaxVelocity: 1.0}, {MinRadius: 5.0, MaxVelocity: 3.0}},
		0.5, accel, decel)

	table := m.Table()
	require.Len(t, table, 30)
	require.InDelta(t, 0.5, table[0], 1e-6)

	// Every curve entry sits at the raw cap.
	for i := 20; i < 30; i++ {
		require.InDelta(t, 1.0, table[i], 1e-4, "entry %d", i)
	}
	// Entering the curve, the last straight entry may exceed the cap only
	// by what one sample can brake away.
	require.LessOrEqual(t, table[19], float32(1.0)+0.01*decel+1e-4)
	// Before braking, the straight ramps above the curve cap.
	peak := float32(0)
	for _, v := range table {
		peak = math32.Max(peak, v)
	}
	require.Greater(t, peak, float32(1.0))
}

func TestGeneratedTableSatisfiesKinematicBound(t *testing.T) {
	t.Parallel()

	// Mixed course: straight, tight curve, straight.
	samples := append(constantSamples(20, 0.01, 0),
		append(constantSamples(20, 0.01, 0.2), constantSamples(20, 0.01, 0)...)...)
	const accel, decel = 8.0, 12.0
	m := newGeneratedMapper(t, samples,
		[]Limit{{MinRadius: 0.2, MaxVelocity: 0.8}, {MinRadius: 5.0, MaxVelocity: 3.0}},
		0.5, accel, decel)

	table := m.Table()
	// Adjacent entries either already satisfy the v² braking relation or
	// were fixed to the per-sample velocity increment the passes apply.
	for i := 1; i < len(table); i++ {
		dd := samples[i].DeltaDistance
		dv2 := math32.Abs(table[i]*table[i] - table[i-1]*table[i-1])
		dv := math32.Abs(table[i] - table[i-1])
		feasible := dv2 <= 2.0*math32.Max(accel, decel)*dd+1e-3
		fixed := dv <= math32.Max(accel, decel)*dd+1e-4
		require.True(t, feasible || fixed,
			"entry %d: %v -> %v", i, table[i-1], table[i])
	}
}

func TestGenerateAppliesLookAheadShift(t *testing.T) {
	t.Parallel()

	samples := constantSamples(10, 0.01, 0)
	r := NewRecorder()
	r.SetSamples(samples)
	m := NewMapper(r)
	limits := []Limit{{MinRadius: 5.0, MaxVelocity: 3.0}}
	require.NoError(t, m.Generate(limits, 1.0, 10, 10, 0))
	unshifted := append([]float32(nil), m.Table()...)

	require.NoError(t, m.Generate(limits, 1.0, 10, 10, 3))
	shifted := m.Table()
	require.Len(t, shifted, len(unshifted))
	for i := 0; i < len(unshifted)-3; i++ {
		require.Equal(t, unshifted[i+3], shifted[i])
	}
	for i := len(unshifted) - 3; i < len(unshifted); i++ {
		require.Equal(t, unshifted[len(unshifted)-1], shifted[i])
	}
}

func TestMapperWalksTableByDistance(t *testing.T) {
	t.Parallel()

	m := newGeneratedMapper(t,
		constantSamples(10, 0.01, 0),
		[]Limit{{MinRadius: 5.0, MaxVelocity: 2.0}},
		1.0, 100, 100)
	m.ResetRun()
	require.Equal(t, 0, m.Index())

	// 4 mm per tick: the index follows the 10 mm sample grid.
	m.Advance(0.004)
	require.Equal(t, 1, m.Index())
	m.Advance(0.004)
	require.Equal(t, 1, m.Index())
	m.Advance(0.004)
	require.Equal(t, 2, m.Index())

	now, next := m.Velocity()
	require.InDelta(t, 2.0, now, 1e-5)
	require.InDelta(t, 2.0, next, 1e-5)
}

func TestCorrectDistanceMovesIndexForward(t *testing.T) {
	t.Parallel()

	m := newGeneratedMapper(t,
		constantSamples(50, 0.01, 0),
		[]Limit{{MinRadius: 5.0, MaxVelocity: 2.0}},
		1.0, 100, 100)
	m.ResetRun()
	m.Advance(0.02)
	idx := m.Index()

	m.CorrectDistance(0.30)
	require.InDelta(t, 0.30, m.Distance(), 1e-6)
	require.Greater(t, m.Index(), idx)
}

func TestCorrectorMatchesInOrder(t *testing.T) {
	t.Parallel()

	c := NewCorrector()
	for _, d := range []float32{1.000, 2.500, 4.000} {
		c.Store(LandmarkCurveMarker, d)
	}
	c.ResetCursor()

	require.InDelta(t, 1.000, c.Correct(LandmarkCurveMarker, 1.00), 1e-6)
	require.InDelta(t, 2.500, c.Correct(LandmarkCurveMarker, 2.45), 1e-6)
	require.InDelta(t, 4.000, c.Correct(LandmarkCurveMarker, 3.999), 1e-6)
}

func TestCorrectorReturnsMeasurementWhenNothingMatches(t *testing.T) {
	t.Parallel()

	c := NewCorrector()
	c.Store(LandmarkCrossLine, 1.0)
	c.ResetCursor()
	require.InDelta(t, 5.0, c.Correct(LandmarkCrossLine, 5.0), 1e-6)
}

func TestCorrectorCursorNeverRewinds(t *testing.T) {
	t.Parallel()

	c := NewCorrector()
	for _, d := range []float32{1.0, 2.0, 3.0} {
		c.Store(LandmarkCurveMarker, d)
	}
	c.ResetCursor()

	require.InDelta(t, 2.0, c.Correct(LandmarkCurveMarker, 2.05), 1e-6)
	// A later observation near an already-consumed landmark must not
	// match backwards; corrections stay non-decreasing.
	require.InDelta(t, 2.0, c.Correct(LandmarkCurveMarker, 1.95), 1e-6)
	require.InDelta(t, 3.0, c.Correct(LandmarkCurveMarker, 3.01), 1e-6)
}

func TestLandmarkKindsAreIndependent(t *testing.T) {
	t.Parallel()

	c := NewCorrector()
	c.Store(LandmarkCurveMarker, 1.0)
	c.Store(LandmarkCrossLine, 2.0)
	c.ResetCursor()
	require.InDelta(t, 2.0, c.Correct(LandmarkCrossLine, 2.01), 1e-6)
	require.InDelta(t, 1.0, c.Correct(LandmarkCurveMarker, 1.01), 1e-6)
}
