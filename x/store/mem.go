package store

import (
	"sync"

	"github.com/rtrace/linelight/x/devices"
)

// Mem is an in-memory Device with FRAM semantics, used on the bench and in
// tests in place of the SPI part.
type Mem struct {
	mu  sync.Mutex
	buf []byte
}

// NewMem creates an in-memory device of the given capacity.
func NewMem(size uint32) *Mem {
	return &Mem{buf: make([]byte, size)}
}

// Read copies len(p) bytes starting at address into p.
func (m *Mem) Read(address uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(address)+len(p) > len(m.buf) {
		return devices.ErrInvalidSize
	}
	copy(p, m.buf[address:])
	return nil
}

// Write copies p into the device starting at address.
func (m *Mem) Write(address uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(address)+len(p) > len(m.buf) {
		return devices.ErrInvalidSize
	}
	copy(m.buf[address:], p)
	return nil
}

// Clear zeroes the device.
func (m *Mem) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.buf)
	return nil
}

// Size returns the capacity in bytes.
func (m *Mem) Size() uint32 {
	return uint32(len(m.buf))
}
