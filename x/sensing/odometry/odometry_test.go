package odometry

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

func TestResetPurity(t *testing.T) {
	t.Parallel()

	o := New(DefaultConfig())
	for i := 0; i < 100; i++ {
		o.Update(0.1, 0.1, 0.5, 1.0)
	}
	o.Reset()

	require.Equal(t, Polar{}, o.Displacement())
	require.Equal(t, Polar{}, o.Velocity())
	require.Equal(t, Pose{}, o.Pose())
	require.Zero(t, o.DeltaTranslation())
}

func TestStraightTravelIntegratesDistance(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	o := New(cfg)

	// 1 m/s: each wheel turns v/r radians per second.
	wheelDelta := 1.0 / cfg.WheelRadius * cfg.TickInterval
	for i := 0; i < 1000; i++ {
		o.Update(wheelDelta, wheelDelta, 0, 0)
	}

	dis := o.Displacement()
	require.InDelta(t, 1.0, dis.Trans, 1e-3)
	require.Zero(t, dis.Rot)
	require.InDelta(t, 1.0, o.Velocity().Trans, 1e-3)

	pose := o.Pose()
	require.InDelta(t, 1.0, pose.X, 1e-3)
	require.InDelta(t, 0.0, pose.Y, 1e-6)
	require.Zero(t, pose.Theta)
}

func TestVelocityIsSmoothedOverFourSamples(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	o := New(cfg)
	wheelDelta := 1.0 / cfg.WheelRadius * cfg.TickInterval

	o.Update(wheelDelta, wheelDelta, 0, 0)
	require.InDelta(t, 1.0, o.Velocity().Trans, 1e-3)

	// A single dropped tick only pulls the average down by 1/4.
	o.Update(0, 0, 0, 0)
	require.InDelta(t, 0.75, o.Velocity().Trans, 1e-3)
}

func TestYawIntegrationDrivesPose(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	o := New(cfg)
	wheelDelta := 1.0 / cfg.WheelRadius * cfg.TickInterval

	// Quarter circle: 1 m/s with π/2 rad/s for one second.
	for i := 0; i < 1000; i++ {
		o.Update(wheelDelta, wheelDelta, 0, math32.Pi/2)
	}

	require.InDelta(t, math32.Pi/2, o.Displacement().Rot, 1e-3)
	require.InDelta(t, math32.Pi/2, o.Pose().Theta, 1e-3)

	// Radius v/ω = 2/π; the quarter arc ends at (r, r).
	r := 2.0 / math32.Pi
	require.InDelta(t, r, o.Pose().X, 5e-3)
	require.InDelta(t, r, o.Pose().Y, 5e-3)
}

func TestRotationalAcceleration(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	o := New(cfg)
	o.Update(0, 0, 0, 1.0)
	o.Update(0, 0, 0, 1.5)
	require.InDelta(t, 0.5/cfg.TickInterval, o.Acceleration().Rot, 1e-2)
}
