// Package servo converts a (linear, angular) velocity command into per-wheel
// motor voltages and duty cycles through two PID loops, and latches the
// emergency conditions that must stop the run.
package servo

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/math/control/pid"
)

const (
	// MotorLimitVoltage caps the commanded motor voltage. [V]
	MotorLimitVoltage = 12.6

	// ErrorLinearGain scales the linear target into the minimum measured
	// speed expected while tracking it.
	ErrorLinearGain = 0.5

	// ErrorLinearTime is how long [ticks] the measured speed may stay
	// under that minimum before the servo latches an emergency.
	ErrorLinearTime = 500

	// ErrorAngularGain and ErrorAngularTime are the angular equivalents.
	ErrorAngularGain = 0.5
	ErrorAngularTime = 500
)

// Feed-forward gains. The mass-based feed-forward terms are tuned out;
// the hook stays wired but contributes nothing while both gains are zero.
const (
	FeedForwardLinearGain  = 0.0
	FeedForwardAngularGain = 0.0
)

// Servo drives the two wheel motors from velocity targets.
// Indices are right then left throughout.
type Servo struct {
	mu sync.Mutex

	linear  *pid.PID
	angular *pid.PID

	targetLinear  float32
	targetAngular float32

	feedforward [2]float32
	feedback    [2]float32
	voltage     [2]float32
	duty        [2]float32

	errorLinearTicks  uint32
	errorAngularTicks uint32
	emergency         bool
}

// New creates a servo with zero gains; call SetGains before a run.
func New() *Servo {
	return &Servo{
		linear:  pid.New(pid.Gains{}),
		angular: pid.New(pid.Gains{}),
	}
}

// SetGains installs the linear and angular PID gains, resetting both loops.
func (s *Servo) SetGains(linear, angular pid.Gains) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linear.SetGains(linear)
	s.angular.SetGains(angular)
}

// SetTarget sets the velocity targets [m/s, rad/s].
func (s *Servo) SetTarget(linear, angular float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetLinear = linear
	s.targetAngular = angular
}

// Reset clears the loops, targets, fault timers and the emergency latch.
func (s *Servo) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linear.Reset()
	s.angular.Reset()
	s.targetLinear = 0
	s.targetAngular = 0
	s.feedforward = [2]float32{}
	s.feedback = [2]float32{}
	s.voltage = [2]float32{}
	s.duty = [2]float32{}
	s.errorLinearTicks = 0
	s.errorAngularTicks = 0
	s.emergency = false
}

// Update runs both loops against the measured velocities and recomputes
// the wheel voltages and duties. The PID loops run with dt folded into
// their gains (the design is tuned per tick, not per second).
func (s *Servo) Update(batteryVoltage, measureLinear, measureAngular float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback = [2]float32{
		s.linear.Update(s.targetLinear, measureLinear, 1.0),
		s.angular.Update(s.targetAngular, measureAngular, 1.0),
	}

	s.voltage = [2]float32{
		s.feedforward[0] + s.feedback[0] + s.feedback[1],
		s.feedforward[1] + s.feedback[0] - s.feedback[1],
	}

	if !isFinite(s.voltage[0]) || !isFinite(s.voltage[1]) {
		s.emergency = true
		return
	}

	limit := math32.Min(MotorLimitVoltage, batteryVoltage)
	for i, v := range s.voltage {
		s.voltage[i] = math32.Copysign(math32.Min(math32.Abs(v), limit), v)
		s.duty[i] = s.voltage[i] / batteryVoltage
	}

	if math32.Abs(measureLinear) < math32.Abs(s.targetLinear*ErrorLinearGain) {
		if s.errorLinearTicks++; s.errorLinearTicks >= ErrorLinearTime {
			s.emergency = true
		}
	} else {
		s.errorLinearTicks = 0
	}
	if math32.Abs(measureAngular) < math32.Abs(s.targetAngular*ErrorAngularGain) {
		if s.errorAngularTicks++; s.errorAngularTicks >= ErrorAngularTime {
			s.emergency = true
		}
	} else {
		s.errorAngularTicks = 0
	}
}

// Voltage returns the last commanded wheel voltages [V].
func (s *Servo) Voltage() [2]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

// Duty returns the last commanded wheel duties in [-1, 1].
func (s *Servo) Duty() [2]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

// Feedback returns the last linear and angular loop outputs.
func (s *Servo) Feedback() [2]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback
}

// EmergencyStop latches the emergency state.
func (s *Servo) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergency = true
}

// IsEmergency reports the emergency latch. Only Reset clears it.
func (s *Servo) IsEmergency() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergency
}

func isFinite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
