package power

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeADC struct {
	values [3]uint16
	err    error
}

func (a *fakeADC) Fetch() error          { return a.err }
func (a *fakeADC) Raw(channel int) uint16 { return a.values[channel] }
func (a *fakeADC) Channels() int         { return 3 }

// rawFor converts a desired pin voltage back into ADC counts.
func rawFor(cfg Config, volts float32) uint16 {
	return uint16(volts / cfg.ReferenceVoltage * cfg.AdcMaxValue)
}

func TestBatteryVoltageScaling(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	adc := &fakeADC{}
	adc.values[ChannelBattery] = rawFor(cfg, 12.0/cfg.BatteryGain)
	m := New(adc, cfg)

	require.True(t, m.Update())
	require.InDelta(t, 12.0, m.BatteryVoltage(), 0.05)
	require.InDelta(t, 12.0, m.BatteryVoltageAverage(), 0.05)
}

func TestMidRailReadsZeroCurrent(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	adc := &fakeADC{}
	adc.values[ChannelBattery] = rawFor(cfg, 12.0/cfg.BatteryGain)
	adc.values[ChannelCurrentRight] = rawFor(cfg, cfg.RegulatorVoltage/2)
	adc.values[ChannelCurrentLeft] = rawFor(cfg, cfg.RegulatorVoltage/2)
	m := New(adc, cfg)

	require.True(t, m.Update())
	currents := m.MotorCurrents()
	require.InDelta(t, 0.0, currents[0], 0.01)
	require.InDelta(t, 0.0, currents[1], 0.01)
}

func TestUnderVoltageTimerCountsAndClears(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	adc := &fakeADC{}
	adc.values[ChannelBattery] = rawFor(cfg, 9.0/cfg.BatteryGain)
	m := New(adc, cfg)

	for i := 0; i < 100; i++ {
		require.True(t, m.Update())
	}
	require.Equal(t, uint32(100), m.BatteryErrorTicks())

	// Recovery resets the timer once the average climbs back.
	adc.values[ChannelBattery] = rawFor(cfg, 12.0/cfg.BatteryGain)
	for i := 0; i < BatteryAvgWindow+1; i++ {
		require.True(t, m.Update())
	}
	require.Zero(t, m.BatteryErrorTicks())
}

func TestFetchFailureCountsTowardAdcTimer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	adc := &fakeADC{err: errors.New("dma timeout")}
	m := New(adc, cfg)

	for i := 0; i < 5; i++ {
		require.False(t, m.Update())
	}
	require.Equal(t, uint32(5), m.AdcErrorTicks())

	adc.err = nil
	adc.values[ChannelBattery] = rawFor(cfg, 12.0/cfg.BatteryGain)
	require.True(t, m.Update())
	require.Zero(t, m.AdcErrorTicks())
}

func TestResetClearsTimers(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	adc := &fakeADC{err: errors.New("dma timeout")}
	m := New(adc, cfg)
	m.Update()
	m.Reset()
	require.Zero(t, m.AdcErrorTicks())
	require.Zero(t, m.BatteryErrorTicks())
	require.Zero(t, m.BatteryVoltage())
}
