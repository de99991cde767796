// Package lsm6dsrx provides a driver for the LSM6DSRX 6-axis IMU attached
// over SPI.
//
// The device is configured for a 1666 Hz output data rate, ±4000 dps gyro
// range and ±8 g accelerometer range with the internal accelerometer
// low-pass filter enabled. One burst read returns temperature plus all six
// motion channels.
package lsm6dsrx

import (
	"fmt"
	"sync"

	"github.com/chewxy/math32"

	"github.com/rtrace/linelight/x/devices"
)

// Register addresses
const (
	RegWhoAmI   = 0x0F
	RegCtrl1XL  = 0x10
	RegCtrl2G   = 0x11
	RegCtrl3C   = 0x12
	RegCtrl6C   = 0x15
	RegOutTempL = 0x20
)

// WhoAmIValue is the expected value from the WhoAmI register.
const WhoAmIValue = 0x6B

// Control register values for the fixed configuration.
const (
	ctrl1XL = 0x8E // 1666 Hz, ±8 g, LPF2 enabled
	ctrl2G  = 0x81 // 1666 Hz, ±4000 dps
	ctrl3C  = 0x44 // BDU, register auto-increment
)

const readFlag = 0x80

// Value indexes into a fetched sample set.
const (
	Temp = iota
	GyroX
	GyroY
	GyroZ
	AccelX
	AccelY
	AccelZ
	NumValues
)

// Sensitivities for the configured ranges.
const (
	sensitivityGyro  = 140.0 / 1000.0 // ±4000 dps; 0.140 deg/s/LSB
	sensitivityAccel = 0.244 / 1000.0 // ±8 g; 0.244 mg/LSB
	standardGravity  = 9.80665
)

// Device wraps an SPI connection to an LSM6DSRX.
type Device struct {
	mu sync.Mutex

	spi devices.SPI

	tx  [1 + 2*NumValues]byte
	rx  [1 + 2*NumValues]byte
	raw [NumValues]int16

	// Per-axis gyro offsets subtracted from every read.
	offset [NumValues]int16
}

// New creates a new LSM6DSRX connection. The SPI bus must already be
// configured for mode 3 and the device's chip select.
func New(spi devices.SPI) *Device {
	return &Device{spi: spi}
}

// Configure verifies the device identity and writes the fixed sample-rate
// and range configuration.
func (d *Device) Configure() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.readRegister(RegWhoAmI)
	if err != nil {
		return fmt.Errorf("lsm6dsrx: who-am-i read: %w", err)
	}
	if id != WhoAmIValue {
		return fmt.Errorf("lsm6dsrx: who-am-i 0x%02x: %w", id, devices.ErrInvalidResponse)
	}
	for _, reg := range []struct {
		addr, value byte
	}{
		{RegCtrl3C, ctrl3C},
		{RegCtrl1XL, ctrl1XL},
		{RegCtrl2G, ctrl2G},
	} {
		if err := d.writeRegister(reg.addr, reg.value); err != nil {
			return fmt.Errorf("lsm6dsrx: ctrl 0x%02x write: %w", reg.addr, err)
		}
	}
	return nil
}

// Fetch burst-reads the temperature and all six motion channels.
// Channel values are transferred big-endian at the output data rate.
func (d *Device) Fetch() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tx = [len(d.tx)]byte{}
	d.tx[0] = RegOutTempL | readFlag
	if err := d.spi.Tx(d.tx[:], d.rx[:]); err != nil {
		return err
	}
	for i := 0; i < NumValues; i++ {
		hi := d.rx[1+2*i]
		lo := d.rx[2+2*i]
		d.raw[i] = int16(uint16(hi)<<8|uint16(lo)) - d.offset[i]
	}
	return nil
}

// Raw returns the offset-corrected raw value of a channel from the last Fetch.
func (d *Device) Raw(value int) int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw[value]
}

// YawRate returns the z-axis angular velocity [rad/s] from the last Fetch.
func (d *Device) YawRate() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ConvertRadPerSec(d.raw[GyroZ])
}

// AccelY returns the y-axis acceleration [m/s²] from the last Fetch.
func (d *Device) AccelY() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ConvertMeterPerSec2(d.raw[AccelY])
}

// Temperature returns the die temperature [°C] from the last Fetch.
func (d *Device) Temperature() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float32(d.raw[Temp])/256.0 + 25.0
}

// Calibrate averages n stationary gyro samples into per-axis integer
// offsets subtracted on every subsequent read. The robot must not move
// while calibrating. Fetch failures abort the calibration.
func (d *Device) Calibrate(n int) error {
	if n <= 0 {
		return devices.ErrInvalidValue
	}
	var sums [NumValues]int32
	d.SetOffsets([NumValues]int16{})
	for i := 0; i < n; i++ {
		if err := d.Fetch(); err != nil {
			return fmt.Errorf("lsm6dsrx: calibration sample %d: %w", i, err)
		}
		d.mu.Lock()
		for _, axis := range []int{GyroX, GyroY, GyroZ} {
			sums[axis] += int32(d.raw[axis])
		}
		d.mu.Unlock()
	}
	var offsets [NumValues]int16
	for _, axis := range []int{GyroX, GyroY, GyroZ} {
		offsets[axis] = int16(sums[axis] / int32(n))
	}
	d.SetOffsets(offsets)
	return nil
}

// SetOffsets replaces the per-axis offsets (e.g. restored from the store).
func (d *Device) SetOffsets(offsets [NumValues]int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offset = offsets
}

// Offsets returns the current per-axis offsets.
func (d *Device) Offsets() [NumValues]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

func (d *Device) readRegister(addr byte) (byte, error) {
	w := [2]byte{addr | readFlag, 0}
	var r [2]byte
	if err := d.spi.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (d *Device) writeRegister(addr, value byte) error {
	w := [2]byte{addr, value}
	var r [2]byte
	return d.spi.Tx(w[:], r[:])
}

// ConvertRadPerSec converts a raw gyro value to rad/s.
func ConvertRadPerSec(raw int16) float32 {
	return float32(raw) * sensitivityGyro * math32.Pi / 180.0
}

// ConvertGravity converts a raw accelerometer value to g.
func ConvertGravity(raw int16) float32 {
	return float32(raw) * sensitivityAccel
}

// ConvertMeterPerSec2 converts a raw accelerometer value to m/s².
func ConvertMeterPerSec2(raw int16) float32 {
	return ConvertGravity(raw) * standardGravity
}
