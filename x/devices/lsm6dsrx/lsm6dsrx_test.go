package lsm6dsrx

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"

	"github.com/rtrace/linelight/x/devices"
)

// fakeSPI answers register reads and burst reads like the chip does.
type fakeSPI struct {
	whoAmI byte
	raw    [NumValues]int16
	writes [][]byte
}

func (s *fakeSPI) Tx(w, r []byte) error {
	s.writes = append(s.writes, append([]byte(nil), w...))
	if len(w) == 0 || w[0]&readFlag == 0 {
		return nil
	}
	switch w[0] &^ readFlag {
	case RegWhoAmI:
		r[1] = s.whoAmI
	case RegOutTempL:
		for i := 0; i < NumValues && 2+2*i < len(r); i++ {
			v := uint16(s.raw[i])
			r[1+2*i] = byte(v >> 8)
			r[2+2*i] = byte(v)
		}
	}
	return nil
}

func TestConfigureChecksIdentity(t *testing.T) {
	t.Parallel()

	d := New(&fakeSPI{whoAmI: WhoAmIValue})
	require.NoError(t, d.Configure())

	bad := New(&fakeSPI{whoAmI: 0x00})
	require.ErrorIs(t, bad.Configure(), devices.ErrInvalidResponse)
}

func TestFetchDecodesBigEndian(t *testing.T) {
	t.Parallel()

	spi := &fakeSPI{whoAmI: WhoAmIValue}
	spi.raw[GyroZ] = -1234
	spi.raw[AccelY] = 567
	d := New(spi)
	require.NoError(t, d.Fetch())
	require.Equal(t, int16(-1234), d.Raw(GyroZ))
	require.Equal(t, int16(567), d.Raw(AccelY))
}

func TestConversions(t *testing.T) {
	t.Parallel()

	// 1000 LSB at 0.140 deg/s/LSB is 140 deg/s.
	require.InDelta(t, 140.0*math32.Pi/180.0, ConvertRadPerSec(1000), 1e-4)
	// Full positive scale approaches 8 g.
	require.InDelta(t, 8.0, ConvertGravity(32767), 0.01)
	require.InDelta(t, 9.80665, ConvertMeterPerSec2(4098), 0.01)
}

func TestCalibrateSubtractsStationaryBias(t *testing.T) {
	t.Parallel()

	spi := &fakeSPI{whoAmI: WhoAmIValue}
	spi.raw[GyroX] = 12
	spi.raw[GyroY] = -7
	spi.raw[GyroZ] = 40
	d := New(spi)
	require.NoError(t, d.Calibrate(100))

	require.NoError(t, d.Fetch())
	require.Zero(t, d.Raw(GyroX))
	require.Zero(t, d.Raw(GyroY))
	require.Zero(t, d.Raw(GyroZ))
	require.InDelta(t, 0.0, d.YawRate(), 1e-6)
}

func TestCalibrateRejectsNonPositiveCount(t *testing.T) {
	t.Parallel()

	d := New(&fakeSPI{whoAmI: WhoAmIValue})
	require.ErrorIs(t, d.Calibrate(0), devices.ErrInvalidValue)
}
