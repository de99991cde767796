// Package store provides typed access to the robot's non-volatile memory:
// sensor calibration, the recorded course, and the run log.
//
// The layout is packed little-endian. Distances and yaw angles are stored
// as unsigned 16-bit millimeters / milliradians, which bounds each value to
// 65.535 m / rad — enough for the intended course lengths. Writes with
// out-of-range values fail.
//
//	offset     size   content
//	0          32     line-sensor min[16]          (u16)
//	32         32     line-sensor max[16]          (u16)
//	64         64     line-sensor coeff[16]        (f32)
//	128        4      marker max[2]                (u16)
//	132        2      sample count N               (u16)
//	134        2N     sample Δdistance [mm]        (u16)
//	134+2N     2N     sample Δyaw [mrad]           (u16)
//	…          2      cross-line count
//	…          2·Cc   cross-line positions [mm]    (u16)
//	…          2      curve-marker count
//	…          2·Cm   curve-marker positions [mm]  (u16)
//	…          4      log byte count
//	…          …      log records
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/mapping"
	"github.com/rtrace/linelight/x/sensing/line"
)

// Store errors.
var (
	ErrOutOfRange = errors.New("store: value out of range")
	ErrCorrupt    = errors.New("store: corrupt record")
	ErrTooLarge   = errors.New("store: record exceeds capacity")
)

// Device is a byte-addressable persistent memory. Operations are blocking
// and atomic with respect to each other.
type Device interface {
	Read(address uint32, p []byte) error
	Write(address uint32, p []byte) error
	Clear() error
	Size() uint32
}

// Fixed region offsets.
const (
	offsetLineMin   = 0
	offsetLineMax   = 32
	offsetLineCoeff = 64
	offsetMarkerMax = 128
	offsetCourse    = 132
)

// Capacity limits derived from the mappable course length.
const (
	maxSamples   = mapping.MaxSamples
	maxLandmarks = int(mapping.LimitLength / 0.1)
)

const unitsPerMeter = 1000.0 // mm and mrad fixed-point scale

// Calibration is the persisted sensor normalization.
type Calibration struct {
	Line      line.Calibration
	MarkerMax [line.NumMarkers]uint16
}

// Course is the persisted exploration result.
type Course struct {
	Samples      []mapping.Sample
	CrossLines   []float32
	CurveMarkers []float32
}

// Store wraps a Device with the typed layout.
type Store struct {
	dev Device
}

// New creates a store over the given device.
func New(dev Device) *Store {
	return &Store{dev: dev}
}

// Clear erases the whole device.
func (s *Store) Clear() error { return s.dev.Clear() }

// WriteCalibration persists the sensor calibration.
func (s *Store) WriteCalibration(c Calibration) error {
	buf := make([]byte, offsetCourse)
	for i, v := range c.Line.Min {
		binary.LittleEndian.PutUint16(buf[offsetLineMin+2*i:], v)
	}
	for i, v := range c.Line.Max {
		binary.LittleEndian.PutUint16(buf[offsetLineMax+2*i:], v)
	}
	for i, v := range c.Line.Coeff {
		binary.LittleEndian.PutUint32(buf[offsetLineCoeff+4*i:], math.Float32bits(v))
	}
	for i, v := range c.MarkerMax {
		binary.LittleEndian.PutUint16(buf[offsetMarkerMax+2*i:], v)
	}
	return s.dev.Write(0, buf)
}

// ReadCalibration restores the sensor calibration.
func (s *Store) ReadCalibration() (Calibration, error) {
	buf := make([]byte, offsetCourse)
	if err := s.dev.Read(0, buf); err != nil {
		return Calibration{}, err
	}
	var c Calibration
	for i := range c.Line.Min {
		c.Line.Min[i] = binary.LittleEndian.Uint16(buf[offsetLineMin+2*i:])
	}
	for i := range c.Line.Max {
		c.Line.Max[i] = binary.LittleEndian.Uint16(buf[offsetLineMax+2*i:])
	}
	for i := range c.Line.Coeff {
		c.Line.Coeff[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[offsetLineCoeff+4*i:]))
	}
	for i := range c.MarkerMax {
		c.MarkerMax[i] = binary.LittleEndian.Uint16(buf[offsetMarkerMax+2*i:])
	}
	for i, v := range c.Line.Max {
		if v <= c.Line.Min[i] {
			return Calibration{}, fmt.Errorf("line channel %d min %d max %d: %w", i, c.Line.Min[i], v, ErrCorrupt)
		}
	}
	return c, nil
}

// WriteCourse persists the recorded samples and landmark lists, and zeroes
// the log byte count that follows them.
func (s *Store) WriteCourse(c Course) error {
	if len(c.Samples) > maxSamples ||
		len(c.CrossLines) > maxLandmarks || len(c.CurveMarkers) > maxLandmarks {
		return ErrTooLarge
	}
	size := 2 + 4*len(c.Samples) +
		2 + 2*len(c.CrossLines) +
		2 + 2*len(c.CurveMarkers) + 4
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Samples)))
	var err error
	for _, sm := range c.Samples {
		if buf, err = appendFixed(buf, sm.DeltaDistance); err != nil {
			return err
		}
	}
	for _, sm := range c.Samples {
		if buf, err = appendFixed(buf, sm.DeltaYaw); err != nil {
			return err
		}
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.CrossLines)))
	for _, d := range c.CrossLines {
		if buf, err = appendFixed(buf, d); err != nil {
			return err
		}
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.CurveMarkers)))
	for _, d := range c.CurveMarkers {
		if buf, err = appendFixed(buf, d); err != nil {
			return err
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	return s.dev.Write(offsetCourse, buf)
}

// ReadCourse restores the recorded samples and landmark lists.
func (s *Store) ReadCourse() (Course, error) {
	r := reader{s: s, addr: offsetCourse}

	n, err := r.uint16()
	if err != nil {
		return Course{}, err
	}
	if int(n) > maxSamples {
		return Course{}, ErrCorrupt
	}
	c := Course{Samples: make([]mapping.Sample, n)}
	for i := range c.Samples {
		if c.Samples[i].DeltaDistance, err = r.fixed(); err != nil {
			return Course{}, err
		}
	}
	for i := range c.Samples {
		if c.Samples[i].DeltaYaw, err = r.fixed(); err != nil {
			return Course{}, err
		}
	}
	if c.CrossLines, err = r.landmarks(); err != nil {
		return Course{}, err
	}
	if c.CurveMarkers, err = r.landmarks(); err != nil {
		return Course{}, err
	}
	return c, nil
}

// WriteLog persists the packed log records after the course block and
// updates the byte-count header.
func (s *Store) WriteLog(records []byte) error {
	start, err := s.logOffset()
	if err != nil {
		return err
	}
	if uint64(start)+4+uint64(len(records)) > uint64(s.dev.Size()) {
		return ErrTooLarge
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(records)))
	if err := s.dev.Write(start, header[:]); err != nil {
		return err
	}
	return s.dev.Write(start+4, records)
}

// ReadLog restores the packed log records.
func (s *Store) ReadLog() ([]byte, error) {
	start, err := s.logOffset()
	if err != nil {
		return nil, err
	}
	var header [4]byte
	if err := s.dev.Read(start, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if uint64(start)+4+uint64(n) > uint64(s.dev.Size()) {
		return nil, ErrCorrupt
	}
	records := make([]byte, n)
	if err := s.dev.Read(start+4, records); err != nil {
		return nil, err
	}
	return records, nil
}

// logOffset walks the course block counts to find the log header address.
func (s *Store) logOffset() (uint32, error) {
	addr := uint32(offsetCourse)
	var buf [2]byte

	if err := s.dev.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint16(buf[:])
	if int(n) > maxSamples {
		return 0, ErrCorrupt
	}
	addr += 2 + 4*uint32(n)

	for i := 0; i < 2; i++ {
		if err := s.dev.Read(addr, buf[:]); err != nil {
			return 0, err
		}
		count := binary.LittleEndian.Uint16(buf[:])
		if int(count) > maxLandmarks {
			return 0, ErrCorrupt
		}
		addr += 2 + 2*uint32(count)
	}
	return addr, nil
}

// appendFixed appends a meter/radian value as u16 millimeter/milliradian.
func appendFixed(buf []byte, v float32) ([]byte, error) {
	scaled := math32.Floor(v*unitsPerMeter + 0.5)
	if scaled < 0 || scaled > 65535 {
		return nil, fmt.Errorf("%v: %w", v, ErrOutOfRange)
	}
	return binary.LittleEndian.AppendUint16(buf, uint16(scaled)), nil
}

type reader struct {
	s    *Store
	addr uint32
}

func (r *reader) uint16() (uint16, error) {
	var buf [2]byte
	if err := r.s.dev.Read(r.addr, buf[:]); err != nil {
		return 0, err
	}
	r.addr += 2
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (r *reader) fixed() (float32, error) {
	v, err := r.uint16()
	if err != nil {
		return 0, err
	}
	return float32(v) / unitsPerMeter, nil
}

func (r *reader) landmarks() ([]float32, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if int(n) > maxLandmarks {
		return nil, ErrCorrupt
	}
	out := make([]float32, n)
	for i := range out {
		if out[i], err = r.fixed(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
