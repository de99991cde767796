package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtrace/linelight/x/math/control/pid"
	"github.com/rtrace/linelight/x/sensing/line"
)

const paramsYAML = `
mode: fast
log_interval_ms: 10
limit_velocity: 2.0
acceleration: 10.0
deceleration: 12.0
linear_pid: [6.0, 0.05, 0.0]
angular_pid: [0.8, 0.01, 0.0]
line_pid: [40.0, 0.0, 0.4]
stop_distance: 0.5
suction_voltage: 3.0
`

func TestLoadParameters(t *testing.T) {
	t.Parallel()

	p, err := LoadParameters(strings.NewReader(paramsYAML))
	require.NoError(t, err)
	require.Equal(t, ModeFast, p.Mode)
	require.Equal(t, uint32(10), p.LogInterval)
	require.InDelta(t, 2.0, p.LimitVelocity, 1e-6)
	require.Equal(t, pid.Gains{6.0, 0.05, 0.0}, p.LinearGains)
	require.Equal(t, pid.Gains{40.0, 0.0, 0.4}, p.LineGains)
	require.InDelta(t, 3.0, p.SuctionVoltage, 1e-6)
}

func TestLoadParametersRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	_, err := LoadParameters(strings.NewReader("mode: sideways\n"))
	require.Error(t, err)
}

func TestLoadParametersRejectsUnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadParameters(strings.NewReader(paramsYAML + "warp_factor: 9\n"))
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveBounds(t *testing.T) {
	t.Parallel()

	p, err := LoadParameters(strings.NewReader(paramsYAML))
	require.NoError(t, err)

	bad := p
	bad.Acceleration = 0
	require.Error(t, bad.Validate())
	bad = p
	bad.Deceleration = -1
	require.Error(t, bad.Validate())
	bad = p
	bad.StopDistance = 0
	require.Error(t, bad.Validate())
	bad = p
	bad.LogInterval = 0
	require.Error(t, bad.Validate())
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	want := Record{
		Time:               12345,
		LineState:          line.StateCrossPassing,
		CommandVelocity:    1.25,
		EstimateVelocity:   1.20,
		EstimateTranslate:  3.5,
		CorrectedTranslate: 3.45,
		BatteryVoltage:     11.8,
		X:                  1.5,
		Y:                  -0.25,
		Theta:              0.1,
		MarkerRight:        line.MarkerPassing,
		MarkerLeft:         line.MarkerWaiting,
	}
	buf := want.Append(nil)
	require.Len(t, buf, RecordSize)

	got, err := DecodeRecord(buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeRecordRejectsShortBuffer(t *testing.T) {
	t.Parallel()

	_, err := DecodeRecord(make([]byte, RecordSize-1))
	require.Error(t, err)
}

func TestDumpLogFramesCSV(t *testing.T) {
	t.Parallel()

	var rec Record
	rec.Time = 5
	buf := rec.Append(nil)
	buf = rec.Append(buf)

	var out strings.Builder
	require.NoError(t, DumpLog(&out, buf))
	s := out.String()
	require.Equal(t, byte(0x02), s[0])
	require.Equal(t, byte(0x03), s[len(s)-1])
	require.Equal(t, 3, strings.Count(s, "\n")) // header + two records
	require.Contains(t, s, "Corrected Translate")
}
