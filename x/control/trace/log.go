package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/rtrace/linelight/x/sensing/line"
)

// RecordSize is the packed size of one log record.
const RecordSize = 96

// Record is one run-log entry, captured every log_interval ticks and
// persisted packed little-endian.
type Record struct {
	Time      uint32 // [ms] since the start marker
	LineState line.State

	CommandVelocity         float32
	EstimateVelocity        float32
	ExpectTranslate         float32
	EstimateTranslate       float32
	CorrectedTranslate      float32
	ErrorAngle              float32
	CommandAngularVelocity  float32
	CommandAngularVelocityP float32
	CommandAngularVelocityI float32
	CommandAngularVelocityD float32
	EstimateAngularVelocity float32
	EstimateRotate          float32
	CommandAcceleration     float32
	LimitVelocity           float32
	BatteryVoltage          float32
	MotorVoltageRight       float32
	MotorVoltageLeft        float32
	MotorCurrentRight       float32
	MotorCurrentLeft        float32
	X                       float32
	Y                       float32
	Theta                   float32

	MarkerRight line.MarkerState
	MarkerLeft  line.MarkerState
}

func (r Record) floats() [22]float32 {
	return [22]float32{
		r.CommandVelocity, r.EstimateVelocity, r.ExpectTranslate,
		r.EstimateTranslate, r.CorrectedTranslate, r.ErrorAngle,
		r.CommandAngularVelocity, r.CommandAngularVelocityP,
		r.CommandAngularVelocityI, r.CommandAngularVelocityD,
		r.EstimateAngularVelocity, r.EstimateRotate,
		r.CommandAcceleration, r.LimitVelocity, r.BatteryVoltage,
		r.MotorVoltageRight, r.MotorVoltageLeft,
		r.MotorCurrentRight, r.MotorCurrentLeft,
		r.X, r.Y, r.Theta,
	}
}

func (r *Record) setFloats(f [22]float32) {
	r.CommandVelocity, r.EstimateVelocity, r.ExpectTranslate = f[0], f[1], f[2]
	r.EstimateTranslate, r.CorrectedTranslate, r.ErrorAngle = f[3], f[4], f[5]
	r.CommandAngularVelocity, r.CommandAngularVelocityP = f[6], f[7]
	r.CommandAngularVelocityI, r.CommandAngularVelocityD = f[8], f[9]
	r.EstimateAngularVelocity, r.EstimateRotate = f[10], f[11]
	r.CommandAcceleration, r.LimitVelocity, r.BatteryVoltage = f[12], f[13], f[14]
	r.MotorVoltageRight, r.MotorVoltageLeft = f[15], f[16]
	r.MotorCurrentRight, r.MotorCurrentLeft = f[17], f[18]
	r.X, r.Y, r.Theta = f[19], f[20], f[21]
}

// Append marshals the record and appends it to buf.
func (r Record) Append(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, r.Time)
	buf = append(buf, byte(r.LineState))
	for _, f := range r.floats() {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	buf = append(buf, byte(r.MarkerRight), byte(r.MarkerLeft))
	buf = append(buf, 0) // reserved
	return buf
}

// DecodeRecord unmarshals one record from p.
func DecodeRecord(p []byte) (Record, error) {
	if len(p) < RecordSize {
		return Record{}, fmt.Errorf("trace: record %d bytes, want %d", len(p), RecordSize)
	}
	var r Record
	r.Time = binary.LittleEndian.Uint32(p)
	r.LineState = line.State(p[4])
	var f [22]float32
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[5+4*i:]))
	}
	r.setFloats(f)
	r.MarkerRight = line.MarkerState(p[93])
	r.MarkerLeft = line.MarkerState(p[94])
	return r, nil
}

// Framing bytes around CSV dumps so the host tooling can cut the payload
// out of the serial stream.
const (
	frameStart = 0x02
	frameEnd   = 0x03
)

var logHeader = []string{
	"Time", "Line State", "Command Velocity", "Estimate Velocity",
	"Expect Translate", "Estimate Translate", "Corrected Translate",
	"Error Angle", "Command Angular Velocity", "Command Angular Velocity (P)",
	"Command Angular Velocity (I)", "Command Angular Velocity (D)",
	"Estimate Angular Velocity", "Estimate Rotate", "Command Acceleration",
	"Limit Velocity", "Battery Voltage", "Motor Voltage Right",
	"Motor Voltage Left", "Motor Current Right", "Motor Current Left",
	"X", "Y", "Theta", "Marker Right State", "Marker Left State",
}

// DumpLog decodes packed records and writes them as framed CSV.
func DumpLog(w io.Writer, records []byte) error {
	if _, err := fmt.Fprintf(w, "%c", frameStart); err != nil {
		return err
	}
	for i, h := range logHeader {
		sep := ", "
		if i == len(logHeader)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "%s%s", h, sep); err != nil {
			return err
		}
	}
	for off := 0; off+RecordSize <= len(records); off += RecordSize {
		r, err := DecodeRecord(records[off:])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d, %d", r.Time, r.LineState); err != nil {
			return err
		}
		for _, f := range r.floats() {
			if _, err := fmt.Fprintf(w, ", %f", f); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, ", %d, %d\n", r.MarkerRight, r.MarkerLeft); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%c", frameEnd)
	return err
}
