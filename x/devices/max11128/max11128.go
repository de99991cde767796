// Package max11128 provides a driver for the MAX11128 16-channel 12-bit
// SPI ADC that reads the line sensor array.
//
// The converter runs in sampleset mode: the channel sequence is programmed
// once, then each 16-bit transfer clocks out one conversion result. A full
// sensor scan is sixteen transfers.
package max11128

import (
	"fmt"
	"sync"

	"github.com/rtrace/linelight/x/devices"
)

// NumChannels is the number of analog inputs.
const NumChannels = 16

// Register frame identifiers.
const (
	frameModeControl = 0x0000
	frameSampleSet   = 0xE000
	scanSampleSet    = 0x0900 // scan = sampleset, chan_id = 1
	resetAll         = 0x0010
)

// Config holds configuration for the ADC.
type Config struct {
	// Order maps scan position to analog input so that Raw(i) follows the
	// physical sensor order r0..r7, l0..l7. Defaults to the line board
	// wiring: AIN8..AIN15 then AIN7..AIN0.
	Order []uint8
}

// DefaultConfig returns the line sensor board channel ordering.
func DefaultConfig() Config {
	return Config{
		Order: []uint8{8, 9, 10, 11, 12, 13, 14, 15, 7, 6, 5, 4, 3, 2, 1, 0},
	}
}

// Device wraps an SPI connection to a MAX11128.
type Device struct {
	mu sync.Mutex

	spi   devices.SPI
	order []uint8

	tx  [NumChannels][2]byte
	raw [NumChannels]uint16
}

// New creates a new MAX11128 connection.
func New(spi devices.SPI, config Config) (*Device, error) {
	if len(config.Order) == 0 {
		config = DefaultConfig()
	}
	if len(config.Order) != NumChannels {
		return nil, fmt.Errorf("max11128: order has %d entries: %w", len(config.Order), devices.ErrInvalidSize)
	}
	return &Device{spi: spi, order: config.Order}, nil
}

// Configure resets the converter and programs the sampleset sequence.
func (d *Device) Configure() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeFrame(frameModeControl | resetAll); err != nil {
		return fmt.Errorf("max11128: reset: %w", err)
	}
	// Sampleset register: sequence length, then the channel sequence packed
	// four entries per frame.
	if err := d.writeFrame(frameSampleSet | uint16(NumChannels-1)<<3); err != nil {
		return fmt.Errorf("max11128: sampleset length: %w", err)
	}
	for i := 0; i < NumChannels; i += 4 {
		frame := uint16(d.order[i])<<12 |
			uint16(d.order[i+1])<<8 |
			uint16(d.order[i+2])<<4 |
			uint16(d.order[i+3])
		if err := d.writeFrame(frame); err != nil {
			return fmt.Errorf("max11128: sampleset entry %d: %w", i, err)
		}
	}
	if err := d.writeFrame(frameModeControl | scanSampleSet); err != nil {
		return fmt.Errorf("max11128: scan mode: %w", err)
	}
	d.tx = [NumChannels][2]byte{}
	return nil
}

// Fetch reads one conversion per channel. The MAX11128 cannot burst a whole
// sampleset, so the scan is sixteen single-frame transfers.
func (d *Device) Fetch() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rx [2]byte
	for i := 0; i < NumChannels; i++ {
		if err := d.spi.Tx(d.tx[i][:], rx[:]); err != nil {
			return err
		}
		// Frame: 4-bit channel id, 12-bit result.
		d.raw[i] = (uint16(rx[0])<<8 | uint16(rx[1])) & 0x0fff
	}
	return nil
}

// Raw returns the most recently fetched value of a channel in sensor order.
func (d *Device) Raw(channel int) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw[channel]
}

// Channels returns the number of channels.
func (d *Device) Channels() int { return NumChannels }

func (d *Device) writeFrame(frame uint16) error {
	w := [2]byte{byte(frame >> 8), byte(frame)}
	return d.spi.Tx(w[:], nil)
}
