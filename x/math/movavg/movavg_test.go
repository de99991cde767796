package movavg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstSampleFillsWindow(t *testing.T) {
	t.Parallel()

	a := New[float32](4)
	a.Update(8)
	require.InDelta(t, 8.0, a.Get(), 1e-6)
}

func TestRollingAverage(t *testing.T) {
	t.Parallel()

	a := New[float32](4)
	a.Update(0) // window: 0 0 0 0
	a.Update(4) // 4 0 0 0
	a.Update(4) // 4 4 0 0
	require.InDelta(t, 2.0, a.Get(), 1e-6)
	a.Update(4)
	a.Update(4)
	require.InDelta(t, 4.0, a.Get(), 1e-6)
}

func TestResetRestartsPrefill(t *testing.T) {
	t.Parallel()

	a := New[float32](4)
	a.Update(100)
	a.Reset()
	require.Zero(t, a.Get())
	a.Update(2)
	require.InDelta(t, 2.0, a.Get(), 1e-6)
}

func TestIntegerSamples(t *testing.T) {
	t.Parallel()

	a := New[uint16](2)
	a.Update(1000)
	a.Update(2000)
	require.InDelta(t, 1500.0, a.Get(), 1e-6)
}
