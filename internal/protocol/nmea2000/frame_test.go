package nmea2000

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

var depthFrame = []byte{
	0xA5, 0x5A, 0x0C, 0x0B, 0xF5, 0x01, 0x0F,
	0xFF, 0x08, 0x02, 0x00, 0x00, 0x2C, 0x01, 0xFF,
	0xB2, 0x39,
}

func TestUnmarshalFrame(t *testing.T) {
	f, err := UnmarshalFrame(depthFrame)
	require.NoError(t, err)

	assert.Equal(t, uint32(128267), f.PGN)
	assert.Equal(t, uint8(0x0F), f.Source)
	assert.Equal(t, []byte{0xFF, 0x08, 0x02, 0x00, 0x00, 0x2C, 0x01, 0xFF}, f.Data)
}

func TestUnmarshalFrame_CorruptCRC(t *testing.T) {
	raw := make([]byte, len(depthFrame))
	copy(raw, depthFrame)
	raw[len(raw)-1] ^= 0xFF

	_, err := UnmarshalFrame(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestUnmarshalFrame_CorruptPayload(t *testing.T) {
	raw := make([]byte, len(depthFrame))
	copy(raw, depthFrame)
	raw[9] ^= 0x40

	_, err := UnmarshalFrame(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestUnmarshalFrame_Malformed(t *testing.T) {
	badLength := make([]byte, len(depthFrame))
	copy(badLength, depthFrame)
	badLength[2] = 0x03

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "truncated", raw: depthFrame[:8]},
		{name: "bad sync", raw: append([]byte{0xA5, 0xA5}, depthFrame[2:]...)},
		{name: "body length below minimum", raw: badLength},
		{name: "length byte disagrees with frame", raw: depthFrame[:len(depthFrame)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalFrame(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedFrame)
		})
	}
}

func TestMarshal_MatchesWireFormat(t *testing.T) {
	f := &Frame{
		PGN:    128267,
		Source: 0x0F,
		Data:   []byte{0xFF, 0x08, 0x02, 0x00, 0x00, 0x2C, 0x01, 0xFF},
	}
	assert.Equal(t, depthFrame, f.Marshal())
}

func TestMarshal_RoundTrip(t *testing.T) {
	in := &Frame{PGN: 129025, Source: 0x42, Data: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}}

	out, err := UnmarshalFrame(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in.PGN, out.PGN)
	assert.Equal(t, in.Source, out.Source)
	assert.Equal(t, in.Data, out.Data)
}
