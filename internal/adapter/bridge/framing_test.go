package bridge

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mtwSentence = []byte("$IIMTW,19.5,C*1E\r\n")
	dbtSentence = []byte("$SDDBT,17.0,f,5.2,M,2.8,F*3D\r\n")

	// Water depth frame: PGN 128267, 12 byte body.
	depthFrame = []byte{
		0xA5, 0x5A, 0x0C,
		0x0B, 0xF5, 0x01,
		0x0F,
		0xFF, 0x08, 0x02, 0x00, 0x00, 0x2C, 0x01, 0xFF,
		0xB2, 0x39,
	}
)

func scanAll(t *testing.T, input []byte) [][]byte {
	t.Helper()

	scanner := bufio.NewScanner(bytes.NewReader(input))
	scanner.Buffer(make([]byte, 64), maxScanBuffer)
	scanner.Split(splitFrames)

	var frames [][]byte
	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		frames = append(frames, frame)
	}
	require.NoError(t, scanner.Err())
	return frames
}

func TestSplitFramesSentences(t *testing.T) {
	input := append(append([]byte{}, mtwSentence...), dbtSentence...)

	frames := scanAll(t, input)
	require.Len(t, frames, 2)
	assert.Equal(t, mtwSentence, frames[0])
	assert.Equal(t, dbtSentence, frames[1])
}

func TestSplitFramesMixedTransports(t *testing.T) {
	var input []byte
	input = append(input, mtwSentence...)
	input = append(input, depthFrame...)
	input = append(input, dbtSentence...)

	frames := scanAll(t, input)
	require.Len(t, frames, 3)
	assert.Equal(t, mtwSentence, frames[0])
	assert.Equal(t, depthFrame, frames[1])
	assert.Equal(t, dbtSentence, frames[2])
}

func TestSplitFramesSkipsGarbage(t *testing.T) {
	var input []byte
	input = append(input, 0x00, 0x7F, 'x', 'y')
	input = append(input, mtwSentence...)
	input = append(input, 0xFE, 0xFE)
	input = append(input, depthFrame...)

	frames := scanAll(t, input)
	require.Len(t, frames, 2)
	assert.Equal(t, mtwSentence, frames[0])
	assert.Equal(t, depthFrame, frames[1])
}

func TestSplitFramesFalseSyncByte(t *testing.T) {
	// 0xA5 not followed by 0x5A is stream noise, not a frame start.
	input := []byte{0xA5, 0x00}
	input = append(input, mtwSentence...)

	frames := scanAll(t, input)
	require.Len(t, frames, 1)
	assert.Equal(t, mtwSentence, frames[0])
}

func TestSplitFramesBadBodyLength(t *testing.T) {
	// Sync pair with an impossible length byte resyncs past it.
	input := []byte{0xA5, 0x5A, 0x01}
	input = append(input, dbtSentence...)

	frames := scanAll(t, input)
	require.Len(t, frames, 1)
	assert.Equal(t, dbtSentence, frames[0])
}

func TestSplitFramesPartialFrameAtEOF(t *testing.T) {
	input := append(append([]byte{}, mtwSentence...), depthFrame[:8]...)

	frames := scanAll(t, input)
	require.Len(t, frames, 1)
	assert.Equal(t, mtwSentence, frames[0])
}

func TestSplitFramesUnterminatedSentenceResyncs(t *testing.T) {
	// A '$' heading more than the sentence length limit without a
	// terminator is abandoned; the frame behind it still comes through.
	input := []byte{'$'}
	for i := 0; i < 600; i++ {
		input = append(input, 'A')
	}
	input = append(input, depthFrame...)

	frames := scanAll(t, input)
	require.Len(t, frames, 1)
	assert.Equal(t, depthFrame, frames[0])
}

func TestBackoffDelaySchedule(t *testing.T) {
	expected := []struct {
		attempt int
		base    float64
	}{
		{0, 1}, {1, 2}, {2, 4}, {3, 8}, {4, 15}, {9, 15},
	}

	for _, tc := range expected {
		for i := 0; i < 20; i++ {
			d := backoffDelay(tc.attempt).Seconds()
			assert.GreaterOrEqual(t, d, tc.base, "attempt %d", tc.attempt)
			assert.Less(t, d, tc.base*1.25+0.001, "attempt %d", tc.attempt)
		}
	}
}
