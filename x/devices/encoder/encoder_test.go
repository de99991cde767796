package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	value uint16
	err   error
}

func (c *fakeCounter) Count() (uint16, error) { return c.value, c.err }

func TestCountDeltaRecoversTrueDelta(t *testing.T) {
	t.Parallel()

	// Any previous count and any true movement below half the range must
	// come back exactly, wrap or not.
	for _, prev := range []uint16{0, 1, 0x7fff, 0x8000, 0xfffe, 0xffff} {
		for _, d := range []int32{-32767, -1000, -1, 0, 1, 1000, 32767} {
			curr := uint16(uint32(prev) + uint32(d))
			require.Equal(t, d, CountDelta(curr, prev), "prev=%d d=%d", prev, d)
		}
	}
}

func TestCountDeltaWrapsForward(t *testing.T) {
	t.Parallel()

	require.Equal(t, int32(3), CountDelta(1, 0xfffe))
	require.Equal(t, int32(-3), CountDelta(0xfffe, 1))
}

func TestUpdateConvertsCountsToWheelAngle(t *testing.T) {
	t.Parallel()

	right := &fakeCounter{}
	left := &fakeCounter{}
	cfg := DefaultConfig()
	cfg.InvertRight = false
	d := New(right, left, cfg)
	require.NoError(t, d.Reset())

	right.value = 100
	left.value = 50
	require.NoError(t, d.Update())

	r, l := d.Delta()
	require.InDelta(t, 100*d.anglePerCount, r, 1e-6)
	require.InDelta(t, 50*d.anglePerCount, l, 1e-6)
}

func TestRightCounterInversionMakesForwardPositive(t *testing.T) {
	t.Parallel()

	right := &fakeCounter{value: 0xffff}
	left := &fakeCounter{value: 0}
	d := New(right, left, DefaultConfig())
	require.NoError(t, d.Reset())

	// The right counter counts down for forward motion.
	right.value = 0xffff - 200
	left.value = 200
	require.NoError(t, d.Update())

	r, l := d.Delta()
	require.Greater(t, r, float32(0))
	require.Greater(t, l, float32(0))
	require.InDelta(t, r, l, 1e-6)
}

func TestResetDropsAccumulatedMovement(t *testing.T) {
	t.Parallel()

	right := &fakeCounter{value: 1000}
	left := &fakeCounter{value: 1000}
	cfg := DefaultConfig()
	cfg.InvertRight = false
	d := New(right, left, cfg)
	require.NoError(t, d.Reset())

	right.value = 5000
	left.value = 5000
	require.NoError(t, d.Reset())
	require.NoError(t, d.Update())

	r, l := d.Delta()
	require.Zero(t, r)
	require.Zero(t, l)
}
