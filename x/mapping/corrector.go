package mapping

import "github.com/chewxy/math32"

// AllowError is the match window for snapping the odometric distance to a
// recorded landmark. [m]
const AllowError = 0.1

// Landmark identifies a landmark kind.
type Landmark int

const (
	// LandmarkCurveMarker is a curve marker strip on the left side.
	LandmarkCurveMarker Landmark = iota
	// LandmarkCrossLine is a perpendicular crossing of the course line.
	LandmarkCrossLine

	numLandmarks
)

// Corrector stores landmark positions observed during exploration and, on
// the fast lap, matches live observations against them in course order.
type Corrector struct {
	marks  [numLandmarks][]float32
	cursor [numLandmarks]int
}

// NewCorrector creates an empty corrector.
func NewCorrector() *Corrector {
	return &Corrector{}
}

// ResetStored discards all recorded landmarks.
func (c *Corrector) ResetStored() {
	for k := range c.marks {
		c.marks[k] = c.marks[k][:0]
	}
}

// ResetCursor rewinds the per-kind match cursors for a new fast lap.
func (c *Corrector) ResetCursor() {
	c.cursor = [numLandmarks]int{}
}

// Store appends a landmark observation at the given distance. Positions
// arrive in travel order, so each list stays non-decreasing.
func (c *Corrector) Store(kind Landmark, distance float32) {
	c.marks[kind] = append(c.marks[kind], distance)
}

// Landmarks returns the recorded positions of a kind.
func (c *Corrector) Landmarks(kind Landmark) []float32 {
	return c.marks[kind]
}

// SetLandmarks replaces the recorded positions of a kind (restored from
// the store).
func (c *Corrector) SetLandmarks(kind Landmark, positions []float32) {
	c.marks[kind] = append(c.marks[kind][:0], positions...)
}

// Correct matches a live observation at the measured distance against the
// recorded list. On a match within AllowError it returns the recorded
// position and parks the cursor there; otherwise it returns the measured
// distance unchanged. The cursor never rewinds within a run, so landmarks
// are consumed in order and a missed observation cannot move distance
// backwards.
func (c *Corrector) Correct(kind Landmark, distance float32) float32 {
	list := c.marks[kind]
	for i := c.cursor[kind]; i < len(list); i++ {
		if math32.Abs(list[i]-distance) < AllowError {
			c.cursor[kind] = i
			return list[i]
		}
	}
	return distance
}
