package bridge

import (
	"bytes"

	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea0183"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea2000"
)

// splitFrames is a bufio.SplitFunc that cuts the shared byte stream into
// complete ASCII sentences and binary frames. Bytes between frames are
// skipped until a plausible start marker appears; a marker that turns out
// to head garbage is consumed one byte at a time so a real frame inside is
// still found.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && !frameStart(data[start]) {
		start++
	}
	if start == len(data) {
		return start, nil, nil
	}

	rest := data[start:]
	switch rest[0] {
	case '$', '!':
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			return start + i + 1, rest[:i+1], nil
		}
		if len(rest) > nmea0183.MaxLength {
			// No terminator within the allowed length: resync.
			return start + 1, nil, nil
		}
	case nmea2000.Sync0:
		if len(rest) < 3 {
			break
		}
		if rest[1] != nmea2000.Sync1 {
			return start + 1, nil, nil
		}
		bodyLen := int(rest[2])
		if bodyLen < nmea2000.MinBody || bodyLen > nmea2000.MaxBody {
			return start + 1, nil, nil
		}
		total := bodyLen + nmea2000.FrameOverhead
		if len(rest) >= total {
			return start + total, rest[:total], nil
		}
	}

	if atEOF {
		// A partial frame at stream end is unrecoverable.
		return len(data), nil, nil
	}
	return start, nil, nil
}

func frameStart(b byte) bool {
	return b == '$' || b == '!' || b == nmea2000.Sync0
}
