// Package encoder reads a pair of free-running 16-bit quadrature counters,
// one per wheel, and converts counter deltas into wheel angle deltas.
//
// The counters are hardware timers clocked by the quadrature signal; they
// wrap at 16 bits and are never reset. The right counter counts down for
// forward motion, so it is inverted in software to make "forward" increase
// both wheels.
package encoder

import (
	"sync"

	"github.com/chewxy/math32"
)

const (
	halfRange = 1 << 15
	fullRange = 1 << 16
)

// Counter is a free-running 16-bit up-counter.
type Counter interface {
	// Count returns the current counter value.
	Count() (uint16, error)
}

// Config holds configuration for a wheel encoder pair.
type Config struct {
	// CountsPerRevolution is the number of counts per motor shaft revolution
	// (quadrature-decoded). Default: 4096.
	CountsPerRevolution int

	// GearRatio is the motor-to-wheel reduction. Default: 42/11.
	GearRatio float32

	// InvertRight inverts the right counter so forward increases it.
	// Default: true.
	InvertRight bool
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		CountsPerRevolution: 4096,
		GearRatio:           42.0 / 11.0,
		InvertRight:         true,
	}
}

// Device tracks two wheel counters and their per-update angle deltas.
type Device struct {
	mu sync.Mutex

	counters      [2]Counter // right, left
	invert        [2]bool
	last          [2]uint16
	diff          [2]float32 // wheel angle delta [rad]
	anglePerCount float32
}

// New creates an encoder pair from the right and left hardware counters.
func New(right, left Counter, config Config) *Device {
	if config.CountsPerRevolution == 0 {
		config.CountsPerRevolution = 4096
	}
	if config.GearRatio == 0 {
		config.GearRatio = 42.0 / 11.0
	}
	return &Device{
		counters:      [2]Counter{right, left},
		invert:        [2]bool{config.InvertRight, false},
		anglePerCount: 2.0 * math32.Pi / (float32(config.CountsPerRevolution) * config.GearRatio),
	}
}

// Reset overwrites the stored counter values with the current hardware
// values and clears the deltas, so the next Update starts from zero motion.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.counters {
		curr, err := d.read(i)
		if err != nil {
			return err
		}
		d.last[i] = curr
	}
	d.diff = [2]float32{}
	return nil
}

// Update latches both counters and computes the wheel angle deltas since the
// previous Update.
func (d *Device) Update() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.counters {
		curr, err := d.read(i)
		if err != nil {
			return err
		}
		d.diff[i] = float32(CountDelta(curr, d.last[i])) * d.anglePerCount
		d.last[i] = curr
	}
	return nil
}

// Delta returns the wheel angle deltas [rad] of the last Update.
func (d *Device) Delta() (right, left float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.diff[0], d.diff[1]
}

// Count returns the latched counter values of the last Update.
func (d *Device) Count() (right, left uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[0], d.last[1]
}

func (d *Device) read(i int) (uint16, error) {
	curr, err := d.counters[i].Count()
	if err != nil {
		return 0, err
	}
	if d.invert[i] {
		curr = ^curr // 0xffff - curr
	}
	return curr, nil
}

// CountDelta computes the signed counter movement between two 16-bit
// readings using the shorter-arc rule: any apparent jump of at least half
// the range is interpreted as a wrap in the other direction.
func CountDelta(curr, prev uint16) int32 {
	delta := int32(curr) - int32(prev)
	if delta >= halfRange {
		delta -= fullRange
	} else if delta < -halfRange {
		delta += fullRange
	}
	return delta
}
