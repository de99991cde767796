package mapping

import (
	"errors"

	"github.com/chewxy/math32"
)

// Mapper errors.
var (
	ErrNotExplored = errors.New("mapping: course not explored")
	ErrNoLimits    = errors.New("mapping: empty speed limit table")
	ErrNoTable     = errors.New("mapping: velocity table not generated")
)

// Limit caps the target speed below a curve radius. The first entry whose
// MinRadius is at or above the local radius applies; tighter radii first.
type Limit struct {
	MinRadius   float32 `yaml:"min_radius"`   // [m]
	MaxVelocity float32 `yaml:"max_velocity"` // [m/s]
}

// Mapper synthesizes the distance-indexed target-velocity table from the
// recorded samples and walks it during the fast lap.
type Mapper struct {
	recorder *Recorder

	table     []float32
	generated bool

	// Fast lap cursor.
	index        int
	distance     float32
	nextDistance float32
}

// NewMapper creates a mapper over the given recorder.
func NewMapper(recorder *Recorder) *Mapper {
	return &Mapper{recorder: recorder}
}

// Generate builds the velocity table: a raw radius-derived cap per sample,
// a backward pass bounding entry speeds into slow curves by the available
// braking distance, then a forward pass bounding acceleration. The decel
// pass runs first so the accel pass respects the resulting entry speeds.
// shift moves the table left by that many samples as control look-ahead,
// padding the tail with the last value.
func (m *Mapper) Generate(limits []Limit, startVelocity, accel, decel float32, shift int) error {
	if !m.recorder.IsExplored() {
		return ErrNotExplored
	}
	if len(limits) == 0 {
		return ErrNoLimits
	}
	samples := m.recorder.Samples()
	n := len(samples)
	if n == 0 {
		return ErrNotExplored
	}

	last := limits[len(limits)-1].MaxVelocity
	table := make([]float32, 0, n)
	table = append(table, startVelocity)
	for i := 1; i < n; i++ {
		theta := math32.Max(math32.Abs(samples[i].DeltaYaw), MinAngle)
		radius := math32.Min(samples[i].DeltaDistance/theta, MaxRadius)
		v := last
		for _, l := range limits {
			if radius <= l.MinRadius {
				v = l.MaxVelocity
				break
			}
		}
		table = append(table, v)
	}

	// Backward: bound each entry speed by what the next sample's distance
	// can brake away.
	for i := n - 1; i >= 1; i-- {
		if table[i] < table[i-1] {
			s := (table[i-1]*table[i-1] - table[i]*table[i]) / (2.0 * decel)
			if s > samples[i].DeltaDistance {
				table[i-1] = math32.Min(table[i]+samples[i].DeltaDistance*decel, last)
			}
		}
	}
	// Forward: bound each speed increase by the distance available to
	// accelerate over.
	for i := 0; i < n-1; i++ {
		if table[i] < table[i+1] {
			s := (table[i+1]*table[i+1] - table[i]*table[i]) / (2.0 * accel)
			if s > samples[i+1].DeltaDistance {
				table[i+1] = math32.Min(table[i]+samples[i+1].DeltaDistance*accel, last)
			}
		}
	}

	if shift > 0 {
		if shift >= n {
			shift = n - 1
		}
		copy(table, table[shift:])
		for i := n - shift; i < n; i++ {
			table[i] = table[n-shift-1]
		}
	}

	m.table = table
	m.generated = true
	return nil
}

// Table returns the generated velocity table.
func (m *Mapper) Table() []float32 { return m.table }

// IsGenerated reports whether a table is available.
func (m *Mapper) IsGenerated() bool { return m.generated }

// Invalidate discards the table (a fresh exploration obsoletes it).
func (m *Mapper) Invalidate() {
	m.table = nil
	m.generated = false
}

// ResetRun rewinds the fast lap cursor to the course start.
func (m *Mapper) ResetRun() {
	m.index = 0
	m.distance = 0
	m.nextDistance = 0
}

// Advance accumulates one tick of travel and moves the table index when
// the accumulated distance crosses the next sample boundary. Indexing is
// O(1): one boundary comparison per tick.
func (m *Mapper) Advance(deltaDistance float32) {
	m.distance += deltaDistance
	m.advanceIndex()
}

// CorrectDistance snaps the accumulated distance to a landmark-corrected
// value and re-walks the index forward if the correction moved it across
// sample boundaries.
func (m *Mapper) CorrectDistance(distance float32) {
	m.distance = distance
	m.advanceIndex()
}

func (m *Mapper) advanceIndex() {
	samples := m.recorder.Samples()
	for m.distance >= m.nextDistance && m.index < len(samples) {
		m.nextDistance += samples[m.index].DeltaDistance
		m.index++
	}
}

// Velocity returns the current and next table entries. At the table end
// both return the last entry.
func (m *Mapper) Velocity() (now, next float32) {
	if len(m.table) == 0 {
		return 0, 0
	}
	i := min(m.index, len(m.table)-1)
	j := min(m.index+1, len(m.table)-1)
	return m.table[i], m.table[j]
}

// Distance returns the (corrected) accumulated fast lap distance.
func (m *Mapper) Distance() float32 { return m.distance }

// Index returns the current table index.
func (m *Mapper) Index() int { return m.index }
