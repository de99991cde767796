// Package mb85rs provides a driver for the MB85RS4MT SPI FRAM used as the
// robot's non-volatile store.
//
// The part is byte-addressable with 512 KiB capacity. Writes require a
// write-enable opcode before every write burst; there is no page boundary
// or erase cycle. All operations are blocking and serialized on the device
// mutex, which makes them atomic with respect to each other.
package mb85rs

import (
	"fmt"
	"sync"

	"github.com/rtrace/linelight/x/devices"
)

// MaxAddress is the highest valid byte address.
const MaxAddress = 0x7ffff

// Size is the capacity in bytes.
const Size = MaxAddress + 1

// Opcodes.
const (
	opWriteEnable = 0x06
	opWrite       = 0x02
	opRead        = 0x03
)

const commandSize = 4 // opcode + 24-bit address

// chunkSize bounds a single transfer so the scratch buffers stay small.
const chunkSize = 1024

// Device wraps an SPI connection to an MB85RS4MT.
type Device struct {
	mu sync.Mutex

	spi devices.SPI
	buf [commandSize + chunkSize]byte
	rx  [commandSize + chunkSize]byte
}

// New creates a new FRAM connection.
func New(spi devices.SPI) *Device {
	return &Device{spi: spi}
}

// Read copies len(p) bytes starting at address into p.
func (d *Device) Read(address uint32, p []byte) error {
	if err := checkRange(address, len(p)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(p) > 0 {
		n := min(len(p), chunkSize)
		d.command(opRead, address)
		for i := 0; i < n; i++ {
			d.buf[commandSize+i] = 0
		}
		if err := d.spi.Tx(d.buf[:commandSize+n], d.rx[:commandSize+n]); err != nil {
			return fmt.Errorf("mb85rs: read 0x%05x: %w", address, err)
		}
		copy(p, d.rx[commandSize:commandSize+n])
		p = p[n:]
		address += uint32(n)
	}
	return nil
}

// Write copies p into the FRAM starting at address.
func (d *Device) Write(address uint32, p []byte) error {
	if err := checkRange(address, len(p)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(p) > 0 {
		n := min(len(p), chunkSize)
		if err := d.writeChunk(address, p[:n]); err != nil {
			return err
		}
		p = p[n:]
		address += uint32(n)
	}
	return nil
}

// Clear overwrites the whole FRAM with zeroes.
func (d *Device) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	zero := make([]byte, chunkSize)
	for address := uint32(0); address < Size; address += chunkSize {
		if err := d.writeChunk(address, zero); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the capacity in bytes.
func (d *Device) Size() uint32 { return Size }

func (d *Device) writeChunk(address uint32, p []byte) error {
	wren := [1]byte{opWriteEnable}
	if err := d.spi.Tx(wren[:], nil); err != nil {
		return fmt.Errorf("mb85rs: write enable: %w", err)
	}
	d.command(opWrite, address)
	copy(d.buf[commandSize:], p)
	if err := d.spi.Tx(d.buf[:commandSize+len(p)], nil); err != nil {
		return fmt.Errorf("mb85rs: write 0x%05x: %w", address, err)
	}
	return nil
}

func (d *Device) command(op byte, address uint32) {
	d.buf[0] = op
	d.buf[1] = byte(address >> 16)
	d.buf[2] = byte(address >> 8)
	d.buf[3] = byte(address)
}

func checkRange(address uint32, n int) error {
	if n < 0 || uint64(address)+uint64(n) > Size {
		return fmt.Errorf("mb85rs: 0x%05x+%d: %w", address, n, devices.ErrInvalidSize)
	}
	return nil
}
