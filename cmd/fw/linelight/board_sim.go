//go:build !linux || sim

package main

import (
	"sync"
	"time"
)

// The sim board closes the loop without hardware: motor duty drives a
// first-order velocity model, the sensors read a straight bench course
// with a start marker and a goal marker. Useful for exercising the whole
// pipeline on a desk.
const (
	simTick         = 1.0e-3
	simBattery      = 12.0
	simSpeedPerDuty = 3.0  // steady-state speed at full duty [m/s]
	simResponse     = 0.02 // first-order response per tick

	simStartMarker  = 0.5 // [m] from power-on
	simGoalMarker   = 5.5
	simMarkerLength = 0.02

	simWheelRadius   = 23.0e-3 / 2.0
	simAnglePerMeter = 1.0 / simWheelRadius
)

func openBoard() (*board, error) {
	s := &sim{}
	return &board{
		wheels:    (*simWheels)(s),
		imu:       (*simIMU)(s),
		lineADC:   &simLineADC{s: s},
		markerADC: &simMarkerADC{s: s},
		powerADC:  &simPowerADC{},
		storeDev:  newFileStore("linelight.fram"),
		motor:     (*simMotor)(s),
		suction:   &simSuction{},
		operator:  &simOperator{},
	}, nil
}

type sim struct {
	mu sync.Mutex

	enabled    bool
	dutyRight  float32
	dutyLeft   float32
	velocity   float32
	distance   float32
	deltaAngle float32
}

// step advances the physics by one tick; called from the wheel sensor,
// which the controller updates after the power ADC and before the line
// and marker sensors.
func (s *sim) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := float32(0)
	if s.enabled {
		target = (s.dutyRight + s.dutyLeft) / 2.0 * simSpeedPerDuty
	}
	s.velocity += (target - s.velocity) * simResponse
	delta := s.velocity * simTick
	s.distance += delta
	s.deltaAngle = delta * simAnglePerMeter
}

type simWheels sim

func (w *simWheels) Reset() error { return nil }
func (w *simWheels) Update() error {
	(*sim)(w).step()
	return nil
}

func (w *simWheels) Delta() (right, left float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deltaAngle, w.deltaAngle
}

type simIMU sim

func (i *simIMU) Fetch() error              { return nil }
func (i *simIMU) Calibrate(samples int) error { return nil }
func (i *simIMU) YawRate() float32          { return 0 }
func (i *simIMU) AccelY() float32           { return 0 }

// simLineADC reads a centered line: the two innermost channels respond.
// While stationary it also rotates a hot channel across the array so the
// calibration sweep sees the full spread on every channel.
type simLineADC struct {
	s    *sim
	tick int
}

func (a *simLineADC) Fetch() error {
	a.tick++
	return nil
}

func (a *simLineADC) Raw(channel int) uint16 {
	a.s.mu.Lock()
	moving := a.s.velocity > 0.01
	a.s.mu.Unlock()
	hot := channel == 0 || channel == 8
	if !moving {
		hot = channel == (a.tick/300)%16
	}
	if hot {
		return 3000
	}
	return 200
}
func (a *simLineADC) Channels() int { return 16 }

// simMarkerADC raises the right channel over the start and goal strips,
// and flashes both channels while stationary so the calibration sweep
// captures their maxima.
type simMarkerADC struct {
	s    *sim
	tick int
}

func (a *simMarkerADC) Fetch() error {
	a.tick++
	return nil
}

func (a *simMarkerADC) Raw(channel int) uint16 {
	a.s.mu.Lock()
	d := a.s.distance
	moving := a.s.velocity > 0.01
	a.s.mu.Unlock()
	if !moving && a.tick%1000 < 100 {
		return 3500
	}
	if channel == 0 &&
		((d >= simStartMarker && d < simStartMarker+simMarkerLength) ||
			(d >= simGoalMarker && d < simGoalMarker+simMarkerLength)) {
		return 3500
	}
	return 10
}
func (a *simMarkerADC) Channels() int { return 2 }

// simPowerADC reads a full battery and idle motor currents.
type simPowerADC struct{}

func (a *simPowerADC) Fetch() error { return nil }
func (a *simPowerADC) Raw(channel int) uint16 {
	if channel == 2 {
		return 3725 // 12 V through the 4:1 divider
	}
	return 2048 // mid-rail: zero current
}
func (a *simPowerADC) Channels() int { return 3 }

type simMotor sim

func (m *simMotor) SetDuty(right, left float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dutyRight, m.dutyLeft = right, left
}

func (m *simMotor) Brake() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dutyRight, m.dutyLeft = 0, 0
	m.velocity = 0
}

func (m *simMotor) SetEnable(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

type simSuction struct{}

func (s *simSuction) Enable()              {}
func (s *simSuction) Disable()             {}
func (s *simSuction) SetDuty(duty float32) {}

// simOperator always answers a short press.
type simOperator struct{}

func (o *simOperator) SetIndicator(bits, mask uint8)      {}
func (o *simOperator) SetBuzzer(freqHz, durationMs uint16) {}
func (o *simOperator) Pressed() bool                      { return false }
func (o *simOperator) Warn()                              {}
func (o *simOperator) Fatal() {
	panic("operator fatal")
}
func (o *simOperator) WaitPress(timeout time.Duration) time.Duration {
	time.Sleep(100 * time.Millisecond)
	return 200 * time.Millisecond
}
