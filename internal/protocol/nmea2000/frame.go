// Package nmea2000 implements the binary framing and parameter-group
// decoding for the bridge's native transport. Frames carry one parameter
// group each; the same decoder serves groups arriving hex-encoded inside
// SeaSmart sentences.
package nmea2000

import (
	"encoding/binary"
	"fmt"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

const (
	// Sync0 and Sync1 open every binary frame.
	Sync0 = 0xA5
	Sync1 = 0x5A

	// MinBody and MaxBody bound the frame length byte, which counts the
	// parameter group number, source address and payload. The upper bound
	// covers the largest fast-packet payload.
	MinBody = 4
	MaxBody = 227

	// headerLen is sync bytes plus length byte; trailerLen is the CRC.
	headerLen  = 3
	trailerLen = 2
)

// FrameOverhead is the number of framing bytes around the body. A frame
// with body length n occupies n+FrameOverhead bytes on the wire.
const FrameOverhead = headerLen + trailerLen

// Frame is a single parameter group as carried on the binary transport.
type Frame struct {
	// PGN is the parameter group number.
	PGN uint32

	// Source is the bus address of the sending device.
	Source uint8

	// Data is the parameter group payload.
	Data []byte
}

// UnmarshalFrame validates the framing and CRC of raw and extracts the
// parameter group. raw must hold exactly one frame.
func UnmarshalFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinBody+FrameOverhead {
		return nil, fmt.Errorf("%w: frame %d bytes, want at least %d", domain.ErrMalformedFrame, len(raw), MinBody+FrameOverhead)
	}
	if raw[0] != Sync0 || raw[1] != Sync1 {
		return nil, fmt.Errorf("%w: sync bytes %02X %02X", domain.ErrMalformedFrame, raw[0], raw[1])
	}

	bodyLen := int(raw[2])
	if bodyLen < MinBody || bodyLen > MaxBody {
		return nil, fmt.Errorf("%w: body length %d", domain.ErrMalformedFrame, bodyLen)
	}
	total := bodyLen + FrameOverhead
	if len(raw) != total {
		return nil, fmt.Errorf("%w: frame %d bytes, length byte implies %d", domain.ErrMalformedFrame, len(raw), total)
	}

	want := binary.LittleEndian.Uint16(raw[total-trailerLen:])
	if got := crc16(raw[2 : total-trailerLen]); got != want {
		return nil, fmt.Errorf("%w: computed %04X, frame carries %04X", domain.ErrChecksumMismatch, got, want)
	}

	data := make([]byte, bodyLen-4)
	copy(data, raw[7:7+len(data)])

	return &Frame{
		PGN:    uint32(raw[3]) | uint32(raw[4])<<8 | uint32(raw[5])<<16,
		Source: raw[6],
		Data:   data,
	}, nil
}

// Marshal frames the parameter group for transmission, computing the length
// byte and CRC.
func (f *Frame) Marshal() []byte {
	body := make([]byte, 0, 5+len(f.Data))
	body = append(body, byte(4+len(f.Data)), byte(f.PGN), byte(f.PGN>>8), byte(f.PGN>>16), f.Source)
	body = append(body, f.Data...)

	crc := crc16(body)
	out := make([]byte, 0, len(body)+FrameOverhead-1)
	out = append(out, Sync0, Sync1)
	out = append(out, body...)
	out = append(out, byte(crc), byte(crc>>8))
	return out
}

// crc16 is the reflected CRC with polynomial 0xA001 and initial value
// 0xFFFF, computed over the length byte through the last payload byte.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
