package main

import (
	"github.com/rtrace/linelight/x/control/trace"
	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/store"
)

// board bundles everything openBoard wires up for the current target.
type board struct {
	wheels    trace.WheelSensor
	imu       trace.InertialSensor
	lineADC   devices.ADC
	markerADC devices.ADC
	powerADC  devices.ADC
	storeDev  store.Device
	motor     trace.Motor
	suction   trace.Suction
	operator  trace.Operator

	closers []func() error
}

// Close releases the board's bus handles.
func (b *board) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
