package line

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/math/movavg"
)

// NumMarkers is the number of side marker sensors.
const NumMarkers = 2

// Marker sensor sides.
const (
	MarkerRight = 0 // start/goal side
	MarkerLeft  = 1 // curve side
)

const (
	// MarkerDetectThreshold scales the calibrated max into the detection
	// threshold.
	MarkerDetectThreshold = 0.5

	// MarkerDetectDistance is the minimum marker length; shorter pulses
	// are rejected as noise. [m]
	MarkerDetectDistance = 0.010

	// MarkerAvgWindow is the raw value moving-average length.
	MarkerAvgWindow = 4

	// LineToMarkerDistance is the physical line-array-to-marker-sensor
	// offset along the chassis. [m]
	LineToMarkerDistance = 49.63e-3

	// MarkerIgnoreOffset pads the ignore window after a crossing. [m]
	MarkerIgnoreOffset = 0.05
)

// MarkerState is the per-side marker state.
type MarkerState uint8

const (
	// MarkerIgnoring: suppressing detections right after a crossing.
	MarkerIgnoring MarkerState = iota
	// MarkerWaiting: no strip under the sensor.
	MarkerWaiting
	// MarkerPassing: a strip is under the sensor.
	MarkerPassing
	// MarkerPassed: one-tick pulse after a strip long enough to count.
	MarkerPassed
)

func (s MarkerState) String() string {
	switch s {
	case MarkerIgnoring:
		return "ignoring"
	case MarkerWaiting:
		return "waiting"
	case MarkerPassing:
		return "passing"
	case MarkerPassed:
		return "passed"
	}
	return "unknown"
}

// sideMarker tracks one side sensor.
type sideMarker struct {
	state          MarkerState
	count          uint32
	threshold      float32
	detectDistance float32
	ignoreDistance float32
	avg            *movavg.Average[uint16]
}

func (m *sideMarker) reset() {
	m.state = MarkerWaiting
	m.count = 0
	m.detectDistance = 0
	m.ignoreDistance = 0
	m.avg.Reset()
}

func (m *sideMarker) update(raw uint16, distance float32) {
	m.avg.Update(raw)
	detected := m.avg.Get() > m.threshold
	switch m.state {
	case MarkerIgnoring:
		// A crossing saturates the side sensors; hold off until the marker
		// sensor has physically cleared the crossing line.
		if math32.Abs(distance-m.ignoreDistance) > LineToMarkerDistance+MarkerIgnoreOffset {
			m.state = MarkerWaiting
		}
	case MarkerWaiting:
		if detected {
			m.detectDistance = distance
			m.state = MarkerPassing
		}
	case MarkerPassing:
		if !detected {
			if math32.Abs(distance-m.detectDistance) < MarkerDetectDistance {
				m.state = MarkerWaiting
			} else {
				m.state = MarkerPassed
				m.count++
			}
		}
	case MarkerPassed:
		m.state = MarkerWaiting
	}
}

// Markers tracks both side marker sensors.
type Markers struct {
	mu sync.Mutex

	adc   devices.ADC
	sides [NumMarkers]sideMarker
}

// NewMarkers creates the marker tracker reading the given 2-channel ADC.
func NewMarkers(adc devices.ADC) *Markers {
	m := &Markers{adc: adc}
	for i := range m.sides {
		m.sides[i].avg = movavg.New[uint16](MarkerAvgWindow)
	}
	m.Reset()
	return m
}

// Reset returns both sides to the waiting state and clears the counts.
func (m *Markers) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sides {
		m.sides[i].reset()
	}
}

// SetCalibration installs the per-side detection thresholds from the
// calibrated sensor maxima.
func (m *Markers) SetCalibration(max [NumMarkers]uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sides {
		m.sides[i].threshold = float32(max[i]) * MarkerDetectThreshold
	}
}

// SetIgnore moves both sides to the ignoring state starting at distance.
// Called when the line tracker reports a crossing.
func (m *Markers) SetIgnore(distance float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sides {
		m.sides[i].ignoreDistance = distance
		m.sides[i].state = MarkerIgnoring
	}
}

// Update fetches the side sensors and advances both state machines.
// A failed fetch returns false; the tick proceeds.
func (m *Markers) Update(distance float32) bool {
	if err := m.adc.Fetch(); err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sides {
		m.sides[i].update(m.adc.Raw(i), distance)
	}
	return true
}

// States returns both side states.
func (m *Markers) States() [NumMarkers]MarkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return [NumMarkers]MarkerState{m.sides[0].state, m.sides[1].state}
}

// Counts returns both detection counts.
func (m *Markers) Counts() [NumMarkers]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return [NumMarkers]uint32{m.sides[0].count, m.sides[1].count}
}

// IsStarted reports whether the start/goal marker has been seen at least once.
func (m *Markers) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sides[MarkerRight].count > 0
}

// IsGoaled reports whether the start/goal marker has been seen twice.
func (m *Markers) IsGoaled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sides[MarkerRight].count > 1
}

// IsCurvature reports the one-tick curve marker pulse.
func (m *Markers) IsCurvature() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sides[MarkerLeft].state == MarkerPassed
}
