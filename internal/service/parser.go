package service

import (
	"fmt"
	"time"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea0183"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea2000"
)

// ParsedRecord is the outcome of parsing one frame. Exactly one of Sentence
// or Group is set: encapsulated parameter groups are unwrapped here, so a
// SeaSmart sentence surfaces as a Group just like a native binary frame.
type ParsedRecord struct {
	Sentence nmea0183.Record
	Group    nmea2000.Record
}

// ParseFrame classifies one framed message from the bridge by its leading
// byte and decodes it. Checksum and CRC validation happen before any field
// extraction; a failure yields an error, never a partial record.
func ParseFrame(frame []byte) (*ParsedRecord, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", domain.ErrMalformedFrame)
	}

	switch frame[0] {
	case '$', '!':
		s, err := nmea0183.Parse(frame)
		if err != nil {
			return nil, err
		}
		if s.Type == nmea0183.TypePCDIN {
			p, err := nmea0183.DecodePCDIN(s)
			if err != nil {
				return nil, err
			}
			grp, err := nmea2000.Decode(&nmea2000.Frame{PGN: p.PGN, Source: p.Source, Data: p.Data})
			if err != nil {
				return nil, err
			}
			return &ParsedRecord{Group: grp}, nil
		}
		rec, err := nmea0183.Decode(s)
		if err != nil {
			return nil, err
		}
		return &ParsedRecord{Sentence: rec}, nil

	case nmea2000.Sync0:
		f, err := nmea2000.UnmarshalFrame(frame)
		if err != nil {
			return nil, err
		}
		grp, err := nmea2000.Decode(f)
		if err != nil {
			return nil, err
		}
		return &ParsedRecord{Group: grp}, nil

	default:
		return nil, fmt.Errorf("%w: frame starts with 0x%02X", domain.ErrMalformedFrame, frame[0])
	}
}

// Normalize converts the parsed record into canonical sensor records
// stamped with the receipt time.
func (p *ParsedRecord) Normalize(at time.Time) ([]*domain.SensorRecord, error) {
	if p.Group != nil {
		return NormalizeGroup(p.Group, at)
	}
	return NormalizeSentence(p.Sentence, at)
}
