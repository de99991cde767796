// Package line turns the 16-channel reflectance array into a signed lateral
// error and a coarse line-presence state, and tracks the two side marker
// sensors that flag start/goal and curve waypoints.
package line

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/math/movavg"
)

// NumChannels is the number of reflectance channels in the line array.
const NumChannels = 16

const (
	// DetectThreshold scales each channel's calibrated max into its
	// detection threshold.
	DetectThreshold = 0.6

	// CrossDetectNum is the responding-channel count that flags a
	// perpendicular crossing.
	CrossDetectNum = 8

	// BrownOutIgnoreDistance is how far the robot may travel with no
	// responding channel before the line counts as lost. [m]
	BrownOutIgnoreDistance = 0.1

	// ErrorAvgWindow is the lateral error moving-average length.
	ErrorAvgWindow = 4
)

// State is the coarse line-presence state.
type State uint8

const (
	// StateNoneDetecting: no channel responds; waiting out the brown-out
	// ignore distance.
	StateNoneDetecting State = iota
	// StateNone: the line is lost.
	StateNone
	// StateNormal: tracking the line.
	StateNormal
	// StateCrossPassing: a perpendicular crossing is under the array.
	StateCrossPassing
	// StateCrossPassed: one-tick pulse after a crossing clears.
	StateCrossPassed
)

func (s State) String() string {
	switch s {
	case StateNoneDetecting:
		return "none-detecting"
	case StateNone:
		return "none"
	case StateNormal:
		return "normal"
	case StateCrossPassing:
		return "cross-passing"
	case StateCrossPassed:
		return "cross-passed"
	}
	return "unknown"
}

// Calibration holds the per-channel normalization captured by the
// calibration sweep and restored from the store.
type Calibration struct {
	Min   [NumChannels]uint16
	Max   [NumChannels]uint16
	Coeff [NumChannels]float32 // 1/(max-min)
}

// Tracker computes the lateral error signal and the line state.
type Tracker struct {
	mu sync.Mutex

	adc devices.ADC
	cal Calibration

	state            State
	detectCount      int
	values           [NumChannels]float32
	errAvg           *movavg.Average[float32]
	brownOutDistance float32
}

// NewTracker creates a line tracker reading the given 16-channel ADC.
func NewTracker(adc devices.ADC) *Tracker {
	t := &Tracker{
		adc:    adc,
		errAvg: movavg.New[float32](ErrorAvgWindow),
	}
	t.Reset()
	return t
}

// SetCalibration installs the channel normalization.
func (t *Tracker) SetCalibration(cal Calibration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cal = cal
}

// Reset restores the normal state and clears the error average.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateNormal
	t.errAvg.Reset()
}

// Update fetches the array and advances the line state machine. distance
// is the current odometric translation [m]. A failed fetch feeds zero into
// the error average and returns false; the tick proceeds.
func (t *Tracker) Update(distance float32) bool {
	if err := t.adc.Fetch(); err != nil {
		t.mu.Lock()
		t.errAvg.Update(0)
		t.mu.Unlock()
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.detectCount = 0
	for ch := 0; ch < NumChannels; ch++ {
		raw := t.adc.Raw(ch)
		val := clampU16(raw, t.cal.Min[ch], t.cal.Max[ch])
		if float32(val) > float32(t.cal.Max[ch])*DetectThreshold {
			t.detectCount++
		}
		t.values[ch] = t.cal.Coeff[ch] * float32(val-t.cal.Min[ch])
	}

	// Collapse the array into a signed lateral offset: outer channels
	// weigh more, right minus left.
	var diff float32
	for ch := 0; ch < NumChannels/2; ch++ {
		diff += (t.values[ch] - t.values[ch+NumChannels/2]) * float32(ch+1) / 8.0
	}

	switch {
	case t.detectCount == 0:
		switch t.state {
		case StateNormal, StateCrossPassing, StateCrossPassed:
			t.state = StateNoneDetecting
			t.brownOutDistance = distance
		case StateNoneDetecting:
			if math32.Abs(distance-t.brownOutDistance) >= BrownOutIgnoreDistance {
				t.state = StateNone
			}
		}
	case t.detectCount >= CrossDetectNum:
		t.state = StateCrossPassing
	default:
		if t.state == StateCrossPassing {
			t.state = StateCrossPassed
		} else {
			t.state = StateNormal
		}
		t.errAvg.Update(diff)
	}
	return true
}

// Error returns the averaged lateral error. It reads zero while a crossing
// is under the array.
func (t *Tracker) Error() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateCrossPassing {
		return 0
	}
	return t.errAvg.Get()
}

// State returns the current line state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// DetectCount returns how many channels responded on the last update.
func (t *Tracker) DetectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detectCount
}

// Values returns the normalized channel values of the last update.
func (t *Tracker) Values() [NumChannels]float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.values
}

// IsNone reports whether the line is lost.
func (t *Tracker) IsNone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateNone
}

// IsCrossPassed reports the one-tick crossing pulse.
func (t *Tracker) IsCrossPassed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateCrossPassed
}

func clampU16(v, lo, hi uint16) uint16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
