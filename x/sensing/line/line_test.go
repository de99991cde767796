package line

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

var errFetch = errors.New("fetch failed")

func abs32(v float32) float32 { return math32.Abs(v) }

// fakeADC is a settable sensor array.
type fakeADC struct {
	values []uint16
	err    error
}

func (a *fakeADC) Fetch() error          { return a.err }
func (a *fakeADC) Raw(channel int) uint16 { return a.values[channel] }
func (a *fakeADC) Channels() int         { return len(a.values) }

func testCalibration() Calibration {
	var cal Calibration
	for i := range cal.Min {
		cal.Min[i] = 100
		cal.Max[i] = 3100
		cal.Coeff[i] = 1.0 / 3000.0
	}
	return cal
}

func newTestTracker(adc *fakeADC) *Tracker {
	tr := NewTracker(adc)
	tr.SetCalibration(testCalibration())
	return tr
}

func allLow() []uint16 {
	v := make([]uint16, NumChannels)
	for i := range v {
		v[i] = 100
	}
	return v
}

func TestInitialStateIsNormal(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(&fakeADC{values: allLow()})
	require.Equal(t, StateNormal, tr.State())
}

func TestErrorSymmetry(t *testing.T) {
	t.Parallel()

	// The array reads r0..r7 then l0..l7 center-out, so channel k mirrors
	// channel k+8. Mirroring the array negates the raw error signal.
	right := allLow()
	right[2] = 3100
	left := allLow()
	left[2+NumChannels/2] = 3100

	trRight := newTestTracker(&fakeADC{values: right})
	require.True(t, trRight.Update(0))
	trLeft := newTestTracker(&fakeADC{values: left})
	require.True(t, trLeft.Update(0))

	require.InDelta(t, -trRight.Error(), trLeft.Error(), 1e-5)
	require.NotZero(t, trRight.Error())
}

func TestCrossPassedIsOneTickPulse(t *testing.T) {
	t.Parallel()

	adc := &fakeADC{values: allLow()}
	tr := newTestTracker(adc)

	// Full-width reflectance for a while.
	for i := range adc.values {
		adc.values[i] = 3100
	}
	for i := 0; i < 20; i++ {
		require.True(t, tr.Update(0.001*float32(i)))
		require.Equal(t, StateCrossPassing, tr.State())
		require.Zero(t, tr.Error())
	}

	// Back to a normal line: exactly one CrossPassed tick.
	adc.values = allLow()
	adc.values[0] = 3100
	adc.values[8] = 3100
	require.True(t, tr.Update(0.02))
	require.Equal(t, StateCrossPassed, tr.State())
	require.True(t, tr.IsCrossPassed())
	require.True(t, tr.Update(0.021))
	require.Equal(t, StateNormal, tr.State())
}

func TestBrownOutTurnsIntoNoneAfterIgnoreDistance(t *testing.T) {
	t.Parallel()

	adc := &fakeADC{values: allLow()}
	tr := newTestTracker(adc)

	require.True(t, tr.Update(1.000))
	require.Equal(t, StateNoneDetecting, tr.State())

	// Still within the ignore distance.
	require.True(t, tr.Update(1.000+BrownOutIgnoreDistance/2))
	require.Equal(t, StateNoneDetecting, tr.State())
	require.False(t, tr.IsNone())

	require.True(t, tr.Update(1.000+BrownOutIgnoreDistance))
	require.Equal(t, StateNone, tr.State())
	require.True(t, tr.IsNone())
}

func TestLineReappearanceRecovers(t *testing.T) {
	t.Parallel()

	adc := &fakeADC{values: allLow()}
	tr := newTestTracker(adc)
	require.True(t, tr.Update(0))
	require.Equal(t, StateNoneDetecting, tr.State())

	adc.values[0] = 3100
	adc.values[8] = 3100
	require.True(t, tr.Update(0.01))
	require.Equal(t, StateNormal, tr.State())
}

func TestFetchFailureFeedsZeroIntoAverage(t *testing.T) {
	t.Parallel()

	adc := &fakeADC{values: allLow()}
	adc.values[2] = 3100
	tr := newTestTracker(adc)
	require.True(t, tr.Update(0))
	before := tr.Error()
	require.NotZero(t, before)

	adc.err = errFetch
	require.False(t, tr.Update(0.001))
	require.Less(t, abs32(tr.Error()), abs32(before))
}

func TestDetectCountUsesThreshold(t *testing.T) {
	t.Parallel()

	adc := &fakeADC{values: allLow()}
	// 0.6 * max(3100) = 1860
	adc.values[3] = 1900
	adc.values[4] = 1800
	tr := newTestTracker(adc)
	require.True(t, tr.Update(0))
	require.Equal(t, 1, tr.DetectCount())
}
