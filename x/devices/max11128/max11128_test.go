package max11128

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSPI plays back one conversion frame per full-duplex transfer.
type fakeSPI struct {
	frames []uint16
	next   int
	writes [][]byte
}

func (s *fakeSPI) Tx(w, r []byte) error {
	s.writes = append(s.writes, append([]byte(nil), w...))
	if r == nil {
		return nil
	}
	if s.next < len(s.frames) {
		r[0] = byte(s.frames[s.next] >> 8)
		r[1] = byte(s.frames[s.next])
		s.next++
	}
	return nil
}

func TestNewRejectsWrongOrderLength(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeSPI{}, Config{Order: []uint8{1, 2, 3}})
	require.Error(t, err)
}

func TestFetchMasksTwelveBits(t *testing.T) {
	t.Parallel()

	spi := &fakeSPI{}
	for ch := 0; ch < NumChannels; ch++ {
		// Channel id in the top nibble must be stripped.
		spi.frames = append(spi.frames, uint16(ch)<<12|uint16(0x800+ch))
	}
	d, err := New(spi, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, d.Configure())

	require.NoError(t, d.Fetch())
	for ch := 0; ch < NumChannels; ch++ {
		require.Equal(t, uint16(0x800+ch), d.Raw(ch))
	}
	require.Equal(t, NumChannels, d.Channels())
}

func TestConfigureProgramsSampleSet(t *testing.T) {
	t.Parallel()

	spi := &fakeSPI{}
	d, err := New(spi, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, d.Configure())

	// Reset, sampleset length, four sequence frames, scan mode.
	require.Len(t, spi.writes, 7)
	// First sequence frame packs AIN8..AIN11.
	seq := uint16(spi.writes[2][0])<<8 | uint16(spi.writes[2][1])
	require.Equal(t, uint16(8)<<12|uint16(9)<<8|uint16(10)<<4|uint16(11), seq)
}
