package line

import (
	"fmt"

	"github.com/rtrace/linelight/x/devices"
)

// CalibrationSamples is the default calibration sweep length [ticks].
const CalibrationSamples = 5000

// Calibrator captures per-channel minima and maxima while the operator
// sweeps the array across the line, and derives the normalization
// coefficients from them.
type Calibrator struct {
	min       [NumChannels]uint16
	max       [NumChannels]uint16
	markerMax [NumMarkers]uint16
	samples   int
}

// NewCalibrator starts a fresh sweep.
func NewCalibrator() *Calibrator {
	c := &Calibrator{}
	for i := range c.min {
		c.min[i] = 0xffff
	}
	return c
}

// Update folds one tick of line and marker readings into the sweep.
func (c *Calibrator) Update(lineADC, markerADC devices.ADC) error {
	if err := lineADC.Fetch(); err != nil {
		return err
	}
	if err := markerADC.Fetch(); err != nil {
		return err
	}
	for ch := 0; ch < NumChannels; ch++ {
		raw := lineADC.Raw(ch)
		if raw < c.min[ch] {
			c.min[ch] = raw
		}
		if raw > c.max[ch] {
			c.max[ch] = raw
		}
	}
	for ch := 0; ch < NumMarkers; ch++ {
		if raw := markerADC.Raw(ch); raw > c.markerMax[ch] {
			c.markerMax[ch] = raw
		}
	}
	c.samples++
	return nil
}

// Samples returns how many sweep ticks have been folded in.
func (c *Calibrator) Samples() int { return c.samples }

// Result derives the line calibration and marker thresholds. It fails if
// any channel saw no spread (sensor covered, or the sweep never crossed
// the line).
func (c *Calibrator) Result() (Calibration, [NumMarkers]uint16, error) {
	var cal Calibration
	for ch := 0; ch < NumChannels; ch++ {
		if c.max[ch] <= c.min[ch] {
			return Calibration{}, [NumMarkers]uint16{},
				fmt.Errorf("line channel %d min %d max %d: %w", ch, c.min[ch], c.max[ch], devices.ErrInvalidValue)
		}
		cal.Min[ch] = c.min[ch]
		cal.Max[ch] = c.max[ch]
		cal.Coeff[ch] = 1.0 / float32(c.max[ch]-c.min[ch])
	}
	for ch := 0; ch < NumMarkers; ch++ {
		if c.markerMax[ch] == 0 {
			return Calibration{}, [NumMarkers]uint16{},
				fmt.Errorf("marker channel %d max 0: %w", ch, devices.ErrInvalidValue)
		}
	}
	return cal, c.markerMax, nil
}
