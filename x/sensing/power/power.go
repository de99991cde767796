// Package power tracks battery voltage and motor currents from the internal
// 3-channel ADC, and times out persistent under-voltage or ADC failures.
package power

import (
	"sync"

	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/math/movavg"
)

// ADC channel order.
const (
	ChannelCurrentRight = 0
	ChannelCurrentLeft  = 1
	ChannelBattery      = 2
)

const (
	// BatteryAvgWindow is the battery voltage moving-average length.
	BatteryAvgWindow = 16

	// BatteryErrorTime is how long [ticks] the averaged voltage may stay
	// below the minimum before the run is aborted.
	BatteryErrorTime = 5000

	// AdcErrorTime is how many consecutive failed fetches [ticks] before
	// the controller brakes and latches the fatal indicator.
	AdcErrorTime = 5000
)

// Config holds the board's analog scaling.
type Config struct {
	ReferenceVoltage float32 // ADC reference [V]
	AdcMaxValue      float32 // full-scale count
	BatteryGain      float32 // divider gain on the battery channel
	BatteryLimitMin  float32 // under-voltage threshold [V]
	RegulatorVoltage float32 // current-sense mid reference [V]
	CurrentDivOhms   float32 // current-sense divider [Ω]
}

// DefaultConfig returns the board's scaling.
func DefaultConfig() Config {
	return Config{
		ReferenceVoltage: 3.298,
		AdcMaxValue:      4095,
		BatteryGain:      4.0,
		BatteryLimitMin:  10.50,
		RegulatorVoltage: 3.298,
		CurrentDivOhms:   4.99e3,
	}
}

// Monitor converts the power ADC channels and maintains the fault timers.
type Monitor struct {
	mu sync.Mutex

	adc devices.ADC
	cfg Config

	batteryVoltage float32
	batteryAvg     *movavg.Average[float32]
	motorCurrent   [2]float32 // right, left [A]

	batteryErrorTicks uint32
	adcErrorTicks     uint32
}

// New creates a power monitor reading the given 3-channel ADC.
func New(adc devices.ADC, config Config) *Monitor {
	if config.AdcMaxValue == 0 {
		config = DefaultConfig()
	}
	m := &Monitor{
		adc:        adc,
		cfg:        config,
		batteryAvg: movavg.New[float32](BatteryAvgWindow),
	}
	return m
}

// Reset clears the averages and fault timers.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batteryAvg.Reset()
	m.batteryVoltage = 0
	m.motorCurrent = [2]float32{}
	m.batteryErrorTicks = 0
	m.adcErrorTicks = 0
}

// Update fetches the power channels. A failed fetch counts toward the ADC
// fault timer, feeds zero into the battery average and returns false.
func (m *Monitor) Update() bool {
	if err := m.adc.Fetch(); err != nil {
		m.mu.Lock()
		m.adcErrorTicks++
		m.batteryAvg.Update(0)
		m.motorCurrent = [2]float32{}
		m.mu.Unlock()
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var volts [3]float32
	for ch := range volts {
		volts[ch] = float32(m.adc.Raw(ch)) * m.cfg.ReferenceVoltage / m.cfg.AdcMaxValue
	}

	m.adcErrorTicks = 0
	m.batteryVoltage = volts[ChannelBattery] * m.cfg.BatteryGain
	m.batteryAvg.Update(m.batteryVoltage)
	if m.batteryAvg.Get() > m.cfg.BatteryLimitMin {
		m.batteryErrorTicks = 0
	} else {
		m.batteryErrorTicks++
	}

	// Shunt amplifiers are referenced to half the regulator rail with a
	// 500:1 transimpedance through the divider.
	m.motorCurrent[0] = (2.0*volts[ChannelCurrentRight] - m.cfg.RegulatorVoltage) / (m.cfg.CurrentDivOhms / 10000.0)
	m.motorCurrent[1] = (2.0*volts[ChannelCurrentLeft] - m.cfg.RegulatorVoltage) / (m.cfg.CurrentDivOhms / 10000.0)
	return true
}

// BatteryVoltage returns the latest instantaneous battery voltage [V].
func (m *Monitor) BatteryVoltage() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batteryVoltage
}

// BatteryVoltageAverage returns the moving-averaged battery voltage [V].
func (m *Monitor) BatteryVoltageAverage() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batteryAvg.Get()
}

// MotorCurrents returns the latest motor currents [A], right then left.
func (m *Monitor) MotorCurrents() [2]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.motorCurrent
}

// BatteryErrorTicks returns how long the averaged voltage has been under
// the minimum [ticks].
func (m *Monitor) BatteryErrorTicks() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batteryErrorTicks
}

// AdcErrorTicks returns the consecutive failed-fetch count [ticks].
func (m *Monitor) AdcErrorTicks() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adcErrorTicks
}
