// Package trace owns the run: it orchestrates sensing, mapping and the
// servo through the run-phase state machine, records the course on the
// exploration lap and tracks the generated velocity profile on the fast lap.
package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chewxy/math32"
	"github.com/rs/zerolog"

	"github.com/rtrace/linelight/pkg/logger"
	"github.com/rtrace/linelight/x/control/servo"
	"github.com/rtrace/linelight/x/mapping"
	"github.com/rtrace/linelight/x/math/control/pid"
	"github.com/rtrace/linelight/x/sensing/line"
	"github.com/rtrace/linelight/x/sensing/odometry"
	"github.com/rtrace/linelight/x/sensing/power"
	"github.com/rtrace/linelight/x/store"
)

// TickInterval is the control period. [s]
const TickInterval = 1.0e-3

const (
	resettingTicks = 1000 // sensor settling time [ticks]
	stoppedVelocity = 0.01 // |v| below this counts as stopped [m/s]

	imuCalibrationSamples = 1000

	buzzerFrequency      = 4000 // [Hz]
	buzzerMarkerDuration = 50   // [ms]
	buzzerEnterDuration  = 100  // [ms]
	buzzerCancelDuration = 25   // [ms]
	longPressThreshold   = 1000 * time.Millisecond

	defaultSettleDelay = time.Second
	defaultStopDelay   = 500 * time.Millisecond
)

// maxLogBytes bounds the RAM log buffer to what the store can hold.
const maxLogBytes = 384 * 1024

// Run errors.
var (
	ErrNoVelocityTable = errors.New("trace: no velocity table")
	ErrTickSource      = errors.New("trace: tick source closed")
)

// State is the run phase.
type State int

const (
	StateResetting State = iota
	StateStartWaiting
	StateStarted
	StateGoalWaiting
	StateGoaled
	StateStopWaiting
	StateStopped
	StateEmergency
)

func (s State) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateStartWaiting:
		return "start-waiting"
	case StateStarted:
		return "started"
	case StateGoalWaiting:
		return "goal-waiting"
	case StateGoaled:
		return "goaled"
	case StateStopWaiting:
		return "stop-waiting"
	case StateStopped:
		return "stopped"
	case StateEmergency:
		return "emergency"
	}
	return "unknown"
}

// WheelSensor supplies wheel angle deltas per tick.
type WheelSensor interface {
	Reset() error
	Update() error
	Delta() (right, left float32)
}

// InertialSensor supplies yaw rate and lateral acceleration per tick.
type InertialSensor interface {
	Fetch() error
	Calibrate(samples int) error
	YawRate() float32
	AccelY() float32
}

// Motor is the H-bridge driver surface.
type Motor interface {
	// SetDuty commands signed per-wheel duty in [-1, 1]; + is forward.
	SetDuty(right, left float32)
	// Brake shorts both windings.
	Brake()
	// SetEnable gates the bridge.
	SetEnable(enabled bool)
}

// Suction is the downforce fan.
type Suction interface {
	Enable()
	Disable()
	SetDuty(duty float32)
}

// Operator is the abstract button/LED/buzzer surface.
type Operator interface {
	// SetIndicator sets the indicator LEDs selected by mask.
	SetIndicator(bits, mask uint8)
	// SetBuzzer queues a tone.
	SetBuzzer(freqHz, durationMs uint16)
	// WaitPress blocks until a debounced press-and-release and returns the
	// held duration; timeout > 0 bounds the wait and returns 0 on expiry.
	WaitPress(timeout time.Duration) time.Duration
	// Pressed polls the debounced button level.
	Pressed() bool
	// Warn flags an abnormal condition on the indicator.
	Warn()
	// Fatal latches a flashing indicator and never returns.
	Fatal()
}

// Config wires the controller to its collaborators.
type Config struct {
	Odometry *odometry.Odometry
	Line     *line.Tracker
	Markers  *line.Markers
	Power    *power.Monitor
	Servo    *servo.Servo

	Wheels WheelSensor
	IMU    InertialSensor

	Motor    Motor
	Suction  Suction
	Operator Operator
	Store    *store.Store

	// Tick delivers the 1 ms notification.
	Tick <-chan struct{}

	// Clock drives the non-tick waits; nil uses the wall clock.
	Clock clock.Clock

	// SettleDelay is the hands-off wait before calibration; zero uses the
	// default 1 s. StopDelay is the hold after reaching standstill; zero
	// uses the default 500 ms.
	SettleDelay time.Duration
	StopDelay   time.Duration

	Log *zerolog.Logger
}

// Controller is the run-phase state machine.
type Controller struct {
	cfg Config
	log zerolog.Logger
	clk clock.Clock

	recorder  *mapping.Recorder
	corrector *mapping.Corrector
	mapper    *mapping.Mapper

	params Parameters
	state  State

	resetCount  int
	tickCount   uint32
	isEmergency bool

	acceleration    float32 // [m/s²]
	limitVelocity   float32 // [m/s]
	velocity        float32 // [m/s]
	angularVelocity float32 // [rad/s]
	linePID         *pid.PID

	logBuf       []byte
	logTickCount uint32
	logStartTime uint32
	logEnabled   bool
}

// New creates a controller. All collaborators are required.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Odometry == nil, cfg.Line == nil, cfg.Markers == nil,
		cfg.Power == nil, cfg.Servo == nil, cfg.Wheels == nil, cfg.IMU == nil,
		cfg.Motor == nil, cfg.Suction == nil, cfg.Operator == nil,
		cfg.Store == nil, cfg.Tick == nil:
		return nil, fmt.Errorf("trace: incomplete config")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.StopDelay == 0 {
		cfg.StopDelay = defaultStopDelay
	}
	log := logger.Log
	if cfg.Log != nil {
		log = *cfg.Log
	}
	recorder := mapping.NewRecorder()
	return &Controller{
		cfg:       cfg,
		log:       log.With().Str("component", "trace").Logger(),
		clk:       cfg.Clock,
		recorder:  recorder,
		corrector: mapping.NewCorrector(),
		mapper:    mapping.NewMapper(recorder),
		linePID:   pid.New(pid.Gains{}),
	}, nil
}

// State returns the current run phase.
func (c *Controller) State() State { return c.state }

// IsEmergency reports whether the last run ended in an emergency.
func (c *Controller) IsEmergency() bool { return c.isEmergency }

// LoadCourse restores the recorded course from the store. A Fast run
// refuses to start until a velocity table has been generated from a loaded
// or freshly explored course.
func (c *Controller) LoadCourse() error {
	course, err := c.cfg.Store.ReadCourse()
	if err != nil {
		c.cfg.Operator.Warn()
		return fmt.Errorf("trace: load course: %w", err)
	}
	c.recorder.SetSamples(course.Samples)
	c.corrector.SetLandmarks(mapping.LandmarkCrossLine, course.CrossLines)
	c.corrector.SetLandmarks(mapping.LandmarkCurveMarker, course.CurveMarkers)
	c.log.Info().
		Int("samples", len(course.Samples)).
		Int("cross_lines", len(course.CrossLines)).
		Int("curve_markers", len(course.CurveMarkers)).
		Msg("course loaded")
	return nil
}

// GenerateVelocityTable synthesizes the fast-lap speed profile from the
// recorded course. Regenerating an existing table asks the operator first.
func (c *Controller) GenerateVelocityTable(limits []mapping.Limit, startVelocity, accel, decel float32, shift int) error {
	if c.mapper.IsGenerated() {
		c.cfg.Operator.Warn()
		if !c.confirmed() {
			return nil
		}
	}
	if err := c.mapper.Generate(limits, startVelocity, accel, decel, shift); err != nil {
		c.cfg.Operator.Warn()
		return err
	}
	c.log.Info().Int("entries", len(c.mapper.Table())).Msg("velocity table generated")
	return nil
}

// Run performs one run with the given parameters and blocks until the
// robot has stopped. It returns nil for a completed (or operator-canceled)
// run; an emergency ending is reported by IsEmergency, with the log
// preserved.
func (c *Controller) Run(ctx context.Context, params Parameters) error {
	proceed, err := c.prepare(params)
	if err != nil || !proceed {
		return err
	}

	c.log.Info().Stringer("mode", params.Mode).Msg("run started")

	for c.state != StateStopped {
		select {
		case <-ctx.Done():
			c.abort()
			return ctx.Err()
		case _, ok := <-c.cfg.Tick:
			if !ok {
				c.abort()
				return ErrTickSource
			}
		}
		c.step()
	}

	c.finish()
	return nil
}

// prepare validates the parameters, arms the mapping state for the mode
// and calibrates the sensors. It reports proceed=false when the operator
// canceled an overwrite.
func (c *Controller) prepare(params Parameters) (proceed bool, err error) {
	if err := params.Validate(); err != nil {
		return false, err
	}

	c.state = StateResetting
	c.resetCount = 0
	c.tickCount = 0
	c.isEmergency = false

	switch params.Mode {
	case ModeExplore:
		if c.recorder.IsExplored() {
			// A recorded course is about to be overwritten.
			c.cfg.Operator.Warn()
			if !c.confirmed() {
				return false, nil
			}
		}
		c.recorder.Reset()
		c.corrector.ResetStored()
		c.mapper.Invalidate()
	case ModeFast:
		if !c.mapper.IsGenerated() {
			c.cfg.Operator.Warn()
			return false, ErrNoVelocityTable
		}
		c.mapper.ResetRun()
		c.corrector.ResetCursor()
	}

	c.params = params
	c.linePID.SetGains(params.LineGains)
	c.cfg.Servo.Reset()
	c.cfg.Servo.SetGains(params.LinearGains, params.AngularGains)

	// Wait for the operator's hand to leave the robot.
	c.clk.Sleep(c.cfg.SettleDelay)

	if err := c.cfg.IMU.Calibrate(imuCalibrationSamples); err != nil {
		c.cfg.Operator.Warn()
		return false, fmt.Errorf("trace: imu calibration: %w", err)
	}
	if err := c.cfg.Wheels.Reset(); err != nil {
		c.cfg.Operator.Warn()
		return false, fmt.Errorf("trace: encoder reset: %w", err)
	}
	c.cfg.Odometry.Reset()
	c.cfg.Line.Reset()
	c.cfg.Markers.Reset()
	c.cfg.Power.Reset()
	c.cfg.Motor.SetEnable(true)
	return true, nil
}

// finish brings the robot to rest, persists the run and reports it.
func (c *Controller) finish() {
	c.onStopped()
	c.clk.Sleep(c.cfg.StopDelay)
	c.cfg.Motor.SetDuty(0, 0)
	c.cfg.Motor.SetEnable(false)

	if c.isEmergency {
		c.cfg.Operator.Warn()
	}
	c.persist()
	c.log.Info().
		Stringer("mode", c.params.Mode).
		Bool("emergency", c.isEmergency).
		Float32("distance", c.cfg.Odometry.Displacement().Trans).
		Msg("run finished")
}

// abort shuts the actuators down on an external cancellation.
func (c *Controller) abort() {
	c.cfg.Motor.Brake()
	c.cfg.Motor.SetEnable(false)
	c.cfg.Suction.Disable()
}

// step executes one tick: sensing in dependency order, then the state
// machine, motion integration, logging and the servo output.
func (c *Controller) step() {
	c.tickCount++

	c.cfg.Power.Update()
	if c.cfg.Power.AdcErrorTicks() > power.AdcErrorTime {
		// Persistent power ADC failure: nothing left to regulate with.
		c.cfg.Motor.Brake()
		c.cfg.Operator.Fatal()
	}

	wheelsOK := c.cfg.Wheels.Update() == nil
	imuOK := c.cfg.IMU.Fetch() == nil
	var deltaRight, deltaLeft, accelY, yawRate float32
	// A failed IMU read drops the whole sample: zero translation too.
	if wheelsOK && imuOK {
		deltaRight, deltaLeft = c.cfg.Wheels.Delta()
	}
	if imuOK {
		accelY = c.cfg.IMU.AccelY()
		yawRate = c.cfg.IMU.YawRate()
	}
	c.cfg.Odometry.Update(deltaRight, deltaLeft, accelY, yawRate)

	distance := c.cfg.Odometry.Displacement().Trans
	c.cfg.Line.Update(distance)
	c.cfg.Markers.Update(distance)
	if c.cfg.Line.IsCrossPassed() {
		// A full-width crossing saturates the side sensors; hold the
		// marker trackers off until they physically clear it.
		c.cfg.Markers.SetIgnore(distance)
	}

	c.updateState()
	c.updateMotion()
	c.updateLog()

	vel := c.cfg.Odometry.Velocity()
	c.cfg.Servo.Update(c.cfg.Power.BatteryVoltage(), vel.Trans, vel.Rot)
	if c.cfg.Servo.IsEmergency() {
		c.cfg.Motor.Brake()
		return
	}
	duty := c.cfg.Servo.Duty()
	c.cfg.Motor.SetDuty(duty[0], duty[1])
}

func (c *Controller) updateState() {
	if !c.isEmergency && c.checkEmergency() {
		c.state = StateEmergency
	}
	switch c.state {
	case StateResetting:
		c.onResetting()
		if c.resetCount++; c.resetCount >= resettingTicks {
			c.state = StateStartWaiting
		}
	case StateStartWaiting:
		c.onStartWaiting()
		if c.cfg.Markers.IsStarted() {
			c.state = StateStarted
		}
	case StateStarted:
		c.onStarted()
		c.state = StateGoalWaiting
	case StateGoalWaiting:
		c.onGoalWaiting()
		if c.cfg.Markers.IsGoaled() {
			c.state = StateGoaled
		}
	case StateEmergency:
		c.onEmergency()
		c.state = StateStopWaiting
	case StateGoaled:
		c.onGoaled()
		c.state = StateStopWaiting
	case StateStopWaiting:
		if math32.Abs(c.velocity) < stoppedVelocity {
			c.state = StateStopped
		}
	case StateStopped:
	}
}

func (c *Controller) checkEmergency() bool {
	switch {
	case c.cfg.Operator.Pressed():
		return true
	case c.cfg.Line.IsNone():
		return true
	case c.cfg.Power.BatteryErrorTicks() > power.BatteryErrorTime:
		return true
	case c.cfg.Servo.IsEmergency():
		return true
	}
	return false
}

func (c *Controller) onResetting() {
	c.cfg.Suction.Enable()
	c.limitVelocity = 0
	c.velocity = 0
	c.acceleration = 0
	// The angular command keeps running: the suction fan can drag the
	// chassis sideways while waiting.

	c.logBuf = c.logBuf[:0]
	c.logTickCount = 0
	c.logEnabled = false
}

func (c *Controller) onStartWaiting() {
	c.limitVelocity = c.params.LimitVelocity
	c.acceleration = c.params.Acceleration
}

func (c *Controller) onStarted() {
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerMarkerDuration)
	c.cfg.Operator.SetIndicator(0x60, 0x60)

	c.cfg.Odometry.Reset()

	c.logEnabled = true
	c.logStartTime = c.tickCount
	c.log.Info().Msg("start marker")
}

func (c *Controller) onGoalWaiting() {
	deltaDistance := c.cfg.Odometry.DeltaTranslation()
	switch c.params.Mode {
	case ModeExplore:
		totalDistance := c.cfg.Odometry.Displacement().Trans
		c.recorder.Update(deltaDistance, c.cfg.Odometry.Velocity().Rot, TickInterval)

		// Landmarks are recorded uncorrected. The curve marker wins when
		// both fire on one tick.
		if c.cfg.Markers.IsCurvature() {
			c.corrector.Store(mapping.LandmarkCurveMarker, totalDistance)
		} else if c.cfg.Line.IsCrossPassed() {
			c.corrector.Store(mapping.LandmarkCrossLine, totalDistance)
		}
	case ModeFast:
		c.mapper.Advance(deltaDistance)
		totalDistance := c.mapper.Distance()
		if c.cfg.Markers.IsCurvature() {
			c.mapper.CorrectDistance(c.corrector.Correct(mapping.LandmarkCurveMarker, totalDistance))
		} else if c.cfg.Line.IsCrossPassed() {
			c.mapper.CorrectDistance(c.corrector.Correct(mapping.LandmarkCrossLine, totalDistance))
		}

		now, next := c.mapper.Velocity()
		if next < now {
			c.limitVelocity = math32.Abs(now)
			c.acceleration = -c.params.Deceleration
		} else {
			c.limitVelocity = math32.Abs(next)
			c.acceleration = c.params.Acceleration
		}
	}
}

func (c *Controller) onEmergency() {
	c.isEmergency = true
	c.cfg.Servo.EmergencyStop()
	c.acceleration = stopAcceleration(c.velocity, c.params.StopDistance)
	c.log.Warn().Float32("velocity", c.velocity).Msg("emergency")
}

func (c *Controller) onGoaled() {
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerMarkerDuration)
	c.cfg.Operator.SetIndicator(0x00, 0x60)

	if c.params.Mode == ModeExplore {
		c.recorder.Explored()
		c.mapper.Invalidate()
	}
	c.acceleration = stopAcceleration(c.velocity, c.params.StopDistance)
	c.log.Info().Float32("distance", c.cfg.Odometry.Displacement().Trans).Msg("goal marker")
}

func (c *Controller) onStopped() {
	c.limitVelocity = 0
	c.velocity = 0
	c.angularVelocity = 0
	c.cfg.Servo.SetTarget(0, 0)
	c.cfg.Suction.Disable()
}

// updateMotion integrates the commanded velocity and runs the
// line-following loop. The line PID uses the real tick interval; the servo
// loops fold dt into their gains.
func (c *Controller) updateMotion() {
	if c.params.SuctionVoltage > 0 {
		if vbat := c.cfg.Power.BatteryVoltage(); vbat > 0 {
			c.cfg.Suction.SetDuty(c.params.SuctionVoltage / vbat)
		}
	}
	c.velocity += c.acceleration * TickInterval
	if math32.Abs(c.velocity) > c.limitVelocity {
		c.velocity = math32.Copysign(c.limitVelocity, c.velocity)
	}
	c.angularVelocity = c.linePID.Update(0, c.cfg.Line.Error(), TickInterval)
	c.cfg.Servo.SetTarget(c.velocity, c.angularVelocity)
}

func (c *Controller) updateLog() {
	if !c.logEnabled {
		return
	}
	if c.logTickCount++; c.logTickCount < c.params.LogInterval {
		return
	}
	c.logTickCount = 0
	if len(c.logBuf)+RecordSize > maxLogBytes {
		return
	}

	vel := c.cfg.Odometry.Velocity()
	dis := c.cfg.Odometry.Displacement()
	pose := c.cfg.Odometry.Pose()
	voltage := c.cfg.Servo.Voltage()
	current := c.cfg.Power.MotorCurrents()
	markers := c.cfg.Markers.States()

	c.logBuf = Record{
		Time:                    c.tickCount - c.logStartTime,
		LineState:               c.cfg.Line.State(),
		CommandVelocity:         c.velocity,
		EstimateVelocity:        vel.Trans,
		ExpectTranslate:         float32(c.mapper.Index()) * mapping.Resolution,
		EstimateTranslate:       dis.Trans,
		CorrectedTranslate:      c.mapper.Distance(),
		ErrorAngle:              c.cfg.Line.Error(),
		CommandAngularVelocity:  c.linePID.Output(),
		CommandAngularVelocityP: c.linePID.Proportional(),
		CommandAngularVelocityI: c.linePID.Integral(),
		CommandAngularVelocityD: c.linePID.Derivative(),
		EstimateAngularVelocity: vel.Rot,
		EstimateRotate:          dis.Rot,
		CommandAcceleration:     c.acceleration,
		LimitVelocity:           c.limitVelocity,
		BatteryVoltage:          c.cfg.Power.BatteryVoltage(),
		MotorVoltageRight:       voltage[0],
		MotorVoltageLeft:        voltage[1],
		MotorCurrentRight:       current[0],
		MotorCurrentLeft:        current[1],
		X:                       pose.X,
		Y:                       pose.Y,
		Theta:                   pose.Theta,
		MarkerRight:             markers[0],
		MarkerLeft:              markers[1],
	}.Append(c.logBuf)
}

// persist writes the exploration result and the run log. A failed persist
// warns and continues; the data stays in RAM.
func (c *Controller) persist() {
	if c.params.Mode == ModeExplore && c.recorder.IsExplored() {
		course := store.Course{
			Samples:      c.recorder.Samples(),
			CrossLines:   c.corrector.Landmarks(mapping.LandmarkCrossLine),
			CurveMarkers: c.corrector.Landmarks(mapping.LandmarkCurveMarker),
		}
		if err := c.cfg.Store.WriteCourse(course); err != nil {
			c.cfg.Operator.Warn()
			c.log.Error().Err(err).Msg("course persist failed")
		}
	}
	if len(c.logBuf) > 0 {
		if err := c.cfg.Store.WriteLog(c.logBuf); err != nil {
			c.cfg.Operator.Warn()
			c.log.Error().Err(err).Msg("log persist failed")
		} else {
			c.log.Info().Int("bytes", len(c.logBuf)).Msg("log persisted")
		}
	}
}

func (c *Controller) confirmed() bool {
	held := c.cfg.Operator.WaitPress(0)
	if held >= longPressThreshold {
		c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerCancelDuration)
		return false
	}
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerEnterDuration)
	c.clk.Sleep(c.cfg.SettleDelay)
	return true
}

// PrintLog decodes the persisted run log to framed CSV.
func (c *Controller) PrintLog(w io.Writer) error {
	records, err := c.cfg.Store.ReadLog()
	if err != nil {
		c.cfg.Operator.Warn()
		return err
	}
	if len(records) == 0 {
		c.cfg.Operator.Warn()
		return nil
	}
	if err := DumpLog(w, records); err != nil {
		return err
	}
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerEnterDuration)
	return nil
}

// PrintCourse dumps the recorded (Δdistance, Δyaw) samples as framed CSV.
func (c *Controller) PrintCourse(w io.Writer) error {
	if !c.recorder.IsExplored() {
		c.cfg.Operator.Warn()
		return mapping.ErrNotExplored
	}
	if _, err := fmt.Fprintf(w, "%c", frameStart); err != nil {
		return err
	}
	for _, s := range c.recorder.Samples() {
		if _, err := fmt.Fprintf(w, "%f, %f\n", s.DeltaDistance, s.DeltaYaw); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%c", frameEnd); err != nil {
		return err
	}
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerEnterDuration)
	return nil
}

// PrintVelocityTable dumps the generated profile as framed CSV.
func (c *Controller) PrintVelocityTable(w io.Writer) error {
	if !c.mapper.IsGenerated() {
		c.cfg.Operator.Warn()
		return ErrNoVelocityTable
	}
	if _, err := fmt.Fprintf(w, "%c", frameStart); err != nil {
		return err
	}
	for i, v := range c.mapper.Table() {
		if _, err := fmt.Fprintf(w, "%d, %f\n", i, v); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%c", frameEnd); err != nil {
		return err
	}
	c.cfg.Operator.SetBuzzer(buzzerFrequency, buzzerEnterDuration)
	return nil
}

// stopAcceleration is the constant deceleration that stops from velocity
// within distance.
func stopAcceleration(velocity, distance float32) float32 {
	return -(velocity * velocity) / (2.0 * distance)
}
