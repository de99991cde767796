// Command linelight is the firmware entry point for the line-following
// racer: sensor calibration, the exploration lap, the fast lap and the
// log/course dumps.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rtrace/linelight/pkg/logger"
	"github.com/rtrace/linelight/x/control/servo"
	"github.com/rtrace/linelight/x/control/trace"
	"github.com/rtrace/linelight/x/mapping"
	"github.com/rtrace/linelight/x/periodic"
	"github.com/rtrace/linelight/x/sensing/line"
	"github.com/rtrace/linelight/x/sensing/odometry"
	"github.com/rtrace/linelight/x/sensing/power"
	"github.com/rtrace/linelight/x/store"
)

var (
	paramsPath  = flag.String("params", "params.yaml", "run parameter file")
	profilePath = flag.String("profile", "profile.yaml", "fast-lap profile file")
	verbose     = flag.Bool("v", false, "debug logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: linelight [flags] <command>

commands:
  calibrate    sweep the sensor array across the line and persist calibration
  explore      run the exploration lap and persist the course
  fast         load the course, generate the profile and run the fast lap
  dump-log     decode the persisted run log to CSV on stdout
  dump-course  dump the recorded course samples to CSV on stdout
  dump-table   dump the generated velocity table to CSV on stdout
  clear        erase the persistent store

flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *verbose {
		logger.SetLevel(zerolog.DebugLevel)
	} else {
		logger.SetLevel(zerolog.InfoLevel)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args[0]); err != nil {
		logger.Log.Error().Err(err).Str("command", args[0]).Msg("failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	b, err := openBoard()
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}
	defer b.Close()

	st := store.New(b.storeDev)

	dispatcher := periodic.New(clock.New())
	tick := dispatcher.Subscribe()
	go dispatcher.Run(ctx)

	switch command {
	case "calibrate":
		return calibrate(ctx, b, st, tick)
	case "clear":
		return st.Clear()
	case "dump-log":
		records, err := st.ReadLog()
		if err != nil {
			return err
		}
		return trace.DumpLog(os.Stdout, records)
	}

	ctrl, err := newController(b, st, tick)
	if err != nil {
		return err
	}

	switch command {
	case "explore":
		params, err := loadParams(trace.ModeExplore)
		if err != nil {
			return err
		}
		return ctrl.Run(ctx, params)
	case "fast":
		params, err := loadParams(trace.ModeFast)
		if err != nil {
			return err
		}
		profile, err := loadProfile()
		if err != nil {
			return err
		}
		if err := ctrl.LoadCourse(); err != nil {
			return err
		}
		if err := ctrl.GenerateVelocityTable(
			profile.Limits, profile.StartVelocity,
			profile.Acceleration, profile.Deceleration, profile.Shift,
		); err != nil {
			return err
		}
		return ctrl.Run(ctx, params)
	case "dump-course":
		if err := ctrl.LoadCourse(); err != nil {
			return err
		}
		return ctrl.PrintCourse(os.Stdout)
	case "dump-table":
		profile, err := loadProfile()
		if err != nil {
			return err
		}
		if err := ctrl.LoadCourse(); err != nil {
			return err
		}
		if err := ctrl.GenerateVelocityTable(
			profile.Limits, profile.StartVelocity,
			profile.Acceleration, profile.Deceleration, profile.Shift,
		); err != nil {
			return err
		}
		return ctrl.PrintVelocityTable(os.Stdout)
	}
	usage()
	return fmt.Errorf("unknown command %q", command)
}

// newController wires the sensing pipeline to the run state machine,
// restoring the sensor calibration first. A missing or corrupt calibration
// refuses every motorized command.
func newController(b *board, st *store.Store, tick <-chan struct{}) (*trace.Controller, error) {
	cal, err := st.ReadCalibration()
	if err != nil {
		b.operator.Warn()
		return nil, fmt.Errorf("calibration: %w", err)
	}

	lineTracker := line.NewTracker(b.lineADC)
	lineTracker.SetCalibration(cal.Line)
	markers := line.NewMarkers(b.markerADC)
	markers.SetCalibration(cal.MarkerMax)

	return trace.New(trace.Config{
		Odometry: odometry.New(odometry.DefaultConfig()),
		Line:     lineTracker,
		Markers:  markers,
		Power:    power.New(b.powerADC, power.DefaultConfig()),
		Servo:    servo.New(),
		Wheels:   b.wheels,
		IMU:      b.imu,
		Motor:    b.motor,
		Suction:  b.suction,
		Operator: b.operator,
		Store:    st,
		Tick:     tick,
	})
}

// calibrate sweeps min/max while the operator slides the array across the
// line, then persists the result.
func calibrate(ctx context.Context, b *board, st *store.Store, tick <-chan struct{}) error {
	calibrator := line.NewCalibrator()
	for calibrator.Samples() < line.CalibrationSamples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
		if err := calibrator.Update(b.lineADC, b.markerADC); err != nil {
			logger.Log.Warn().Err(err).Msg("calibration sample dropped")
		}
	}
	cal, markerMax, err := calibrator.Result()
	if err != nil {
		b.operator.Warn()
		return err
	}
	if err := st.WriteCalibration(store.Calibration{Line: cal, MarkerMax: markerMax}); err != nil {
		b.operator.Warn()
		return err
	}
	logger.Log.Info().Msg("calibration stored")
	return nil
}

// profileConfig is the fast-lap profile file.
type profileConfig struct {
	StartVelocity float32         `yaml:"start_velocity"`
	Acceleration  float32         `yaml:"acceleration"`
	Deceleration  float32         `yaml:"deceleration"`
	Shift         int             `yaml:"shift"`
	Limits        []mapping.Limit `yaml:"limits"`
}

func loadProfile() (profileConfig, error) {
	f, err := os.Open(*profilePath)
	if err != nil {
		return profileConfig{}, err
	}
	defer f.Close()
	var p profileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return profileConfig{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func loadParams(mode trace.Mode) (trace.Parameters, error) {
	f, err := os.Open(*paramsPath)
	if err != nil {
		return trace.Parameters{}, err
	}
	defer f.Close()
	params, err := trace.LoadParameters(f)
	if err != nil {
		return trace.Parameters{}, err
	}
	params.Mode = mode
	return params, nil
}
