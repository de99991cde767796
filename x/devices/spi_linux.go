//go:build linux && !tinygo

package devices

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// LinuxSPI implements SPI using the Linux spidev interface.
type LinuxSPI struct {
	fd *os.File
}

// NewSPI opens an spidev device such as "/dev/spidev0.0".
func NewSPI(device string) (*LinuxSPI, error) {
	fd, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}
	return &LinuxSPI{fd: fd}, nil
}

// Close releases the device.
func (b *LinuxSPI) Close() error { return b.fd.Close() }

// Tx transmits w and receives into r as one full-duplex transfer. Either
// buffer may be nil for a half-duplex transfer.
func (b *LinuxSPI) Tx(w, r []byte) error {
	if w != nil && r != nil && len(w) != len(r) {
		return fmt.Errorf("SPI Tx: write and read buffers must be same length")
	}

	length := len(w)
	if length == 0 {
		length = len(r)
	}
	if length == 0 {
		return nil
	}

	type spiIocTransfer struct {
		txBuf       uint64
		rxBuf       uint64
		length      uint32
		speedHz     uint32
		delayUsecs  uint16
		bitsPerWord uint8
		csChange    uint8
		txNbits     uint8
		rxNbits     uint8
		pad         uint16
	}

	var transfer spiIocTransfer
	if w != nil {
		transfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if r != nil {
		transfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	transfer.length = uint32(length)

	// SPI_IOC_MESSAGE(1)
	const spiIocMessage1 = 0x40206b00
	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		b.fd.Fd(),
		uintptr(spiIocMessage1),
		uintptr(unsafe.Pointer(&transfer)),
	)
	if errno != 0 {
		return fmt.Errorf("SPI transfer failed: %w", errno)
	}
	return nil
}
