// Package mapping records the course geometry during the exploration lap,
// synthesizes the distance-indexed target-velocity table from it, and
// corrects the odometric distance against recorded landmarks during the
// fast lap.
package mapping

const (
	// Resolution is the curvature map resolution: one sample per this much
	// travel. [m]
	Resolution = 0.01

	// LimitLength caps the recordable course length. [m]
	LimitLength = 60.0

	// MaxSamples is the sample capacity implied by the course length cap.
	MaxSamples = int(LimitLength / Resolution)

	// MaxRadius clamps the local curve radius. [m]
	MaxRadius = 5.0

	// MinAngle floors the per-sample yaw so straight segments do not
	// divide by zero. [rad]
	MinAngle = 1.0e-5
)

// Sample is one curvature map entry: the distance traveled and the yaw
// integrated over one Resolution window.
type Sample struct {
	DeltaDistance float32 // ≥ Resolution [m]
	DeltaYaw      float32 // [rad]
}

// Recorder accumulates curvature samples during the exploration run.
type Recorder struct {
	accDistance float32
	accYaw      float32
	samples     []Sample
	explored    bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{samples: make([]Sample, 0, MaxSamples)}
}

// Reset discards all samples and the explored flag.
func (r *Recorder) Reset() {
	r.accDistance = 0
	r.accYaw = 0
	r.samples = r.samples[:0]
	r.explored = false
}

// Update accumulates one tick of travel. A sample is committed whenever
// the accumulated distance reaches the map resolution.
func (r *Recorder) Update(deltaDistance, yawRate, dt float32) {
	r.accDistance += deltaDistance
	r.accYaw += yawRate * dt
	if r.accDistance >= Resolution {
		if len(r.samples) < MaxSamples {
			r.samples = append(r.samples, Sample{
				DeltaDistance: r.accDistance,
				DeltaYaw:      r.accYaw,
			})
		}
		r.accDistance = 0
		r.accYaw = 0
	}
}

// Samples returns the committed samples.
func (r *Recorder) Samples() []Sample { return r.samples }

// SetSamples replaces the samples (restored from the store) and marks the
// course explored.
func (r *Recorder) SetSamples(samples []Sample) {
	r.samples = append(r.samples[:0], samples...)
	r.accDistance = 0
	r.accYaw = 0
	r.explored = true
}

// Explored freezes the recording; the mapper and the store treat it as the
// safe-to-consume flag.
func (r *Recorder) Explored() { r.explored = true }

// IsExplored reports whether a complete course has been recorded or loaded.
func (r *Recorder) IsExplored() bool { return r.explored }
