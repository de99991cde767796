// Package pid implements the scalar PID controller used by the velocity
// servo and the line-following loop.
//
// The integral term uses the trapezoidal rule. The controller keeps its
// last P/I/D contributions readable so the run log can record them.
package pid

// Gains is a (Kp, Ki, Kd) triple.
type Gains [3]float32

// PID is a proportional-integral-derivative controller.
// The zero value is usable with zero gains; call SetGains to configure.
type PID struct {
	kp, ki, kd float32

	p, i, d float32

	prevError float32
	sumError  float32
}

// New creates a controller with the given gains.
func New(gains Gains) *PID {
	c := &PID{}
	c.SetGains(gains)
	return c
}

// SetGains replaces the gains and resets the controller state.
func (c *PID) SetGains(gains Gains) {
	c.kp, c.ki, c.kd = gains[0], gains[1], gains[2]
	c.Reset()
}

// Reset clears the integral, the previous error and the term outputs.
func (c *PID) Reset() {
	c.p, c.i, c.d = 0, 0, 0
	c.prevError = 0
	c.sumError = 0
}

// Update advances the controller by one step of width dt and returns the
// new output. The servo loops run with dt folded into the gains (dt = 1);
// the line-following loop passes the real tick interval.
func (c *PID) Update(target, measured, dt float32) float32 {
	err := target - measured
	c.sumError += (err + c.prevError) * dt / 2.0
	c.p = c.kp * err
	c.i = c.ki * c.sumError
	c.d = c.kd * (err - c.prevError) / dt
	c.prevError = err
	return c.p + c.i + c.d
}

// Output returns the sum of the last computed terms.
func (c *PID) Output() float32 { return c.p + c.i + c.d }

// Proportional returns the last P contribution.
func (c *PID) Proportional() float32 { return c.p }

// Integral returns the last I contribution.
func (c *PID) Integral() float32 { return c.i }

// Derivative returns the last D contribution.
func (c *PID) Derivative() float32 { return c.d }
