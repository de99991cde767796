package mb85rs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtrace/linelight/x/devices"
)

// fakeSPI emulates the FRAM memory array behind the opcode protocol.
type fakeSPI struct {
	mem         [Size]byte
	writeEnable bool
}

func (s *fakeSPI) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	switch w[0] {
	case 0x06: // WREN
		s.writeEnable = true
	case 0x02: // WRITE
		if !s.writeEnable {
			return devices.ErrInvalidState
		}
		addr := uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
		copy(s.mem[addr:], w[4:])
		s.writeEnable = false
	case 0x03: // READ
		addr := uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
		copy(r[4:], s.mem[addr:])
	}
	return nil
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	d := New(&fakeSPI{})
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, d.Write(0x1234, payload))

	got := make([]byte, len(payload))
	require.NoError(t, d.Read(0x1234, got))
	require.Equal(t, payload, got)
}

func TestLargeTransferSpansChunks(t *testing.T) {
	t.Parallel()

	d := New(&fakeSPI{})
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, d.Write(100, payload))

	got := make([]byte, len(payload))
	require.NoError(t, d.Read(100, got))
	require.Equal(t, payload, got)
}

func TestOutOfRangeAccessFails(t *testing.T) {
	t.Parallel()

	d := New(&fakeSPI{})
	require.ErrorIs(t, d.Write(MaxAddress, []byte{1, 2}), devices.ErrInvalidSize)
	require.ErrorIs(t, d.Read(Size, make([]byte, 1)), devices.ErrInvalidSize)
}

func TestClearZeroesEverything(t *testing.T) {
	t.Parallel()

	spi := &fakeSPI{}
	d := New(spi)
	require.NoError(t, d.Write(0, []byte{0xff, 0xff}))
	require.NoError(t, d.Clear())

	got := make([]byte, 2)
	require.NoError(t, d.Read(0, got))
	require.Equal(t, []byte{0, 0}, got)
}
