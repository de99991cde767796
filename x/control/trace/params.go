package trace

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rtrace/linelight/x/math/control/pid"
)

// Mode selects the run type.
type Mode int

const (
	// ModeExplore is the slow lap that records the course.
	ModeExplore Mode = iota
	// ModeFast is the timed lap that follows the generated profile.
	ModeFast
)

// UnmarshalYAML decodes "explore" / "fast".
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "explore":
		*m = ModeExplore
	case "fast":
		*m = ModeFast
	default:
		return fmt.Errorf("trace: unknown mode %q", s)
	}
	return nil
}

func (m Mode) String() string {
	if m == ModeFast {
		return "fast"
	}
	return "explore"
}

// Parameters configures one run.
type Parameters struct {
	Mode           Mode      `yaml:"mode"`
	LogInterval    uint32    `yaml:"log_interval_ms"` // ticks between log records
	LimitVelocity  float32   `yaml:"limit_velocity"`  // explore cap / fast start [m/s]
	Acceleration   float32   `yaml:"acceleration"`    // [m/s²]
	Deceleration   float32   `yaml:"deceleration"`    // positive; applied negated [m/s²]
	LinearGains    pid.Gains `yaml:"linear_pid"`
	AngularGains   pid.Gains `yaml:"angular_pid"`
	LineGains      pid.Gains `yaml:"line_pid"`
	StopDistance   float32   `yaml:"stop_distance"`   // braking distance after goal [m]
	SuctionVoltage float32   `yaml:"suction_voltage"` // 0 disables the fan [V]
}

// Validate rejects parameter sets that cannot produce a run.
func (p Parameters) Validate() error {
	switch {
	case p.LimitVelocity <= 0:
		return fmt.Errorf("trace: limit_velocity %v", p.LimitVelocity)
	case p.Acceleration <= 0:
		return fmt.Errorf("trace: acceleration %v", p.Acceleration)
	case p.Deceleration <= 0:
		return fmt.Errorf("trace: deceleration %v", p.Deceleration)
	case p.StopDistance <= 0:
		return fmt.Errorf("trace: stop_distance %v", p.StopDistance)
	case p.LogInterval == 0:
		return fmt.Errorf("trace: log_interval_ms 0")
	}
	return nil
}

// LoadParameters decodes a YAML parameter file.
func LoadParameters(r io.Reader) (Parameters, error) {
	var p Parameters
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Parameters{}, fmt.Errorf("trace: decode parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}
