// Package nmea0183 implements framing, checksum validation and decoding for
// the ASCII sentence protocol spoken by the instrument bridge, including the
// SeaSmart encapsulation that carries binary parameter groups inside a
// proprietary sentence.
package nmea0183

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// MaxLength is the largest sentence accepted, in bytes. The standard caps
// sentences at 82 bytes but SeaSmart payloads routinely exceed that, so the
// limit covers a full 223-byte payload in hex plus the envelope.
const MaxLength = 512

// Sentence is a checksum-verified sentence split into its address and data
// fields. Fields preserves empty positions so decoders can index by the
// positions the sentence definitions assign.
type Sentence struct {
	// Talker is the two-character talker prefix, or "P" for proprietary
	// sentences.
	Talker string

	// Type is the three-character sentence designator, or the full address
	// token for proprietary sentences (for example "PCDIN").
	Type string

	// Fields holds the comma-separated data fields after the address token.
	Fields []string

	// Raw is the original sentence without the trailing CR/LF.
	Raw string
}

// Parse validates and splits a single sentence. The checksum is mandatory;
// sentences without one are rejected as malformed rather than trusted.
func Parse(raw []byte) (*Sentence, error) {
	if len(raw) > MaxLength {
		return nil, fmt.Errorf("%w: sentence exceeds %d bytes", domain.ErrMalformedFrame, MaxLength)
	}

	line := strings.TrimRight(string(raw), "\r\n")
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty sentence", domain.ErrMalformedFrame)
	}
	if line[0] != '$' && line[0] != '!' {
		return nil, fmt.Errorf("%w: missing start delimiter", domain.ErrMalformedFrame)
	}

	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return nil, fmt.Errorf("%w: missing or truncated checksum", domain.ErrMalformedFrame)
	}

	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum digits %q", domain.ErrMalformedFrame, line[star+1:])
	}
	if got := Checksum(body); got != byte(want) {
		return nil, fmt.Errorf("%w: computed %02X, sentence carries %02X", domain.ErrChecksumMismatch, got, byte(want))
	}

	tokens := strings.Split(body, ",")
	s := &Sentence{Fields: tokens[1:], Raw: line}

	addr := tokens[0]
	switch {
	case addr == "":
		return nil, fmt.Errorf("%w: empty address token", domain.ErrMalformedFrame)
	case addr[0] == 'P':
		s.Talker = "P"
		s.Type = addr
	case len(addr) == 5:
		s.Talker = addr[:2]
		s.Type = addr[2:]
	default:
		return nil, fmt.Errorf("%w: address token %q", domain.ErrMalformedFrame, addr)
	}
	return s, nil
}

// Checksum computes the XOR of every byte between the start delimiter and
// the checksum marker.
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// Format frames body as a transmittable sentence with checksum and line
// terminator appended.
func Format(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}
