// Package odometry fuses wheel-encoder deltas with IMU yaw rate and
// acceleration into the robot's translation, rotation, pose and their
// derivatives.
//
// Translation comes from the encoders, rotation from the gyro. The
// translation velocity is smoothed over a short window to suppress encoder
// quantization at the 1 ms tick.
package odometry

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/math/movavg"
)

// VelocityAvgWindow is the translation velocity moving-average length.
const VelocityAvgWindow = 4

// Polar is a pair of orthogonal translation/rotation scalars. The unit
// depends on context (m, m/s, m/s², rad, rad/s, rad/s²).
type Polar struct {
	Trans float32
	Rot   float32
}

// Pose is a planar pose in the frame established at run start.
type Pose struct {
	X     float32 // [m]
	Y     float32 // [m]
	Theta float32 // [rad]
}

// Config holds the geometry and timing constants.
type Config struct {
	WheelRadius  float32 // [m]
	TickInterval float32 // [s]
}

// DefaultConfig returns the robot's geometry.
func DefaultConfig() Config {
	return Config{
		WheelRadius:  23.0e-3 / 2.0,
		TickInterval: 1.0e-3,
	}
}

// Odometry integrates wheel and IMU measurements. All getters return a
// consistent snapshot of a single tick's result.
type Odometry struct {
	mu sync.Mutex

	wheelRadius float32
	dt          float32

	deltaTrans float32
	velAvg     *movavg.Average[float32]

	acc  Polar // [m/s²], [rad/s²]
	vel  Polar // [m/s], [rad/s]
	dis  Polar // [m], [rad]
	pose Pose
}

// New creates an odometry estimator.
func New(config Config) *Odometry {
	if config.WheelRadius == 0 || config.TickInterval == 0 {
		config = DefaultConfig()
	}
	o := &Odometry{
		wheelRadius: config.WheelRadius,
		dt:          config.TickInterval,
		velAvg:      movavg.New[float32](VelocityAvgWindow),
	}
	o.Reset()
	return o
}

// Reset zeroes all state and restarts the velocity average.
func (o *Odometry) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deltaTrans = 0
	o.acc, o.vel, o.dis = Polar{}, Polar{}, Polar{}
	o.pose = Pose{}
	o.velAvg.Reset()
}

// Update advances the estimate by one tick.
//
// wheelDeltaRight/Left are the wheel angle deltas [rad] from the encoders;
// accelY is the measured y acceleration [m/s²]; yawRate the measured z
// angular velocity [rad/s]. When the IMU read failed this tick the caller
// passes zero deltas so the averager decays instead of holding stale data.
func (o *Odometry) Update(wheelDeltaRight, wheelDeltaLeft, accelY, yawRate float32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.deltaTrans = (wheelDeltaRight + wheelDeltaLeft) * o.wheelRadius / 2.0
	o.velAvg.Update(o.deltaTrans / o.dt)

	o.acc.Trans = accelY
	o.acc.Rot = (yawRate - o.vel.Rot) / o.dt
	o.vel.Trans = o.velAvg.Get()
	o.vel.Rot = yawRate
	o.dis.Trans += o.deltaTrans
	o.dis.Rot += yawRate * o.dt

	o.pose.Theta = o.dis.Rot
	o.pose.X += (o.vel.Trans * o.dt) * math32.Cos(o.pose.Theta)
	o.pose.Y += (o.vel.Trans * o.dt) * math32.Sin(o.pose.Theta)
}

// DeltaTranslation returns the translation distance [m] of the last tick.
func (o *Odometry) DeltaTranslation() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deltaTrans
}

// Acceleration returns the latest acceleration estimate.
func (o *Odometry) Acceleration() Polar {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acc
}

// Velocity returns the latest velocity estimate.
func (o *Odometry) Velocity() Polar {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.vel
}

// Displacement returns the accumulated displacement since Reset.
func (o *Odometry) Displacement() Polar {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dis
}

// Pose returns the latest pose estimate.
func (o *Odometry) Pose() Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}
