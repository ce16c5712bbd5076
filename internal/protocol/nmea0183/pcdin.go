package nmea0183

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// TypePCDIN is the address token of the SeaSmart encapsulation sentence.
const TypePCDIN = "PCDIN"

// PCDIN is an unwrapped SeaSmart sentence: a binary parameter group
// hex-encoded into sentence fields so that it survives ASCII transports.
type PCDIN struct {
	// PGN is the embedded parameter group number.
	PGN uint32

	// Timestamp is the sender's millisecond counter. It is informational
	// only; the pipeline stamps records at receipt.
	Timestamp uint32

	// Source is the bus address of the originating device.
	Source uint8

	// Data is the decoded parameter group payload.
	Data []byte
}

// DecodePCDIN unwraps the parameter group embedded in a $PCDIN sentence.
func DecodePCDIN(s *Sentence) (*PCDIN, error) {
	if s.Type != TypePCDIN {
		return nil, fmt.Errorf("%w: sentence type %s", domain.ErrUnsupported, s.Type)
	}
	if len(s.Fields) < 4 {
		return nil, fmt.Errorf("%w: PCDIN carries %d fields, want 4", domain.ErrMalformedFrame, len(s.Fields))
	}

	pgn, err := strconv.ParseUint(s.Fields[0], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: PCDIN pgn %q", domain.ErrMalformedFrame, s.Fields[0])
	}
	ts, err := strconv.ParseUint(s.Fields[1], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: PCDIN timestamp %q", domain.ErrMalformedFrame, s.Fields[1])
	}
	src, err := strconv.ParseUint(s.Fields[2], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: PCDIN source %q", domain.ErrMalformedFrame, s.Fields[2])
	}
	data, err := hex.DecodeString(s.Fields[3])
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: PCDIN payload %q", domain.ErrMalformedFrame, s.Fields[3])
	}

	return &PCDIN{
		PGN:       uint32(pgn),
		Timestamp: uint32(ts),
		Source:    uint8(src),
		Data:      data,
	}, nil
}

// EncodePCDIN wraps a parameter group for transmission on the sentence
// transport.
func EncodePCDIN(pgn uint32, timestamp uint32, source uint8, data []byte) string {
	body := fmt.Sprintf("%s,%06X,%08X,%02X,%s",
		TypePCDIN, pgn, timestamp, source, strings.ToUpper(hex.EncodeToString(data)))
	return Format(body)
}
