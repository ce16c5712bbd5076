package nmea0183

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

func TestParse_ValidSentence(t *testing.T) {
	s, err := Parse([]byte("$SDDBT,17.0,f,5.2,M,2.8,F*3D\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "SD", s.Talker)
	assert.Equal(t, "DBT", s.Type)
	assert.Equal(t, []string{"17.0", "f", "5.2", "M", "2.8", "F"}, s.Fields)
	assert.Equal(t, "$SDDBT,17.0,f,5.2,M,2.8,F*3D", s.Raw)
}

func TestParse_ProprietarySentence(t *testing.T) {
	s, err := Parse([]byte("$PCDIN,01F50B,00000000,0F,FF080200002C01FF*5C\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "P", s.Talker)
	assert.Equal(t, "PCDIN", s.Type)
	require.Len(t, s.Fields, 4)
	assert.Equal(t, "01F50B", s.Fields[0])
}

func TestParse_ExclamationDelimiter(t *testing.T) {
	body := "AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0"
	raw := fmt.Sprintf("!%s*%02X\r\n", body, Checksum(body))

	s, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "AI", s.Talker)
	assert.Equal(t, "VDM", s.Type)
}

func TestParse_ChecksumMismatch(t *testing.T) {
	_, err := Parse([]byte("$IIMTW,19.5,C*00\r\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestParse_LowercaseChecksumAccepted(t *testing.T) {
	_, err := Parse([]byte("$IIMTW,19.5,C*1e\r\n"))
	assert.NoError(t, err)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "bare line terminator", raw: "\r\n"},
		{name: "no start delimiter", raw: "IIMTW,19.5,C*1E\r\n"},
		{name: "no checksum marker", raw: "$IIMTW,19.5,C\r\n"},
		{name: "truncated checksum", raw: "$IIMTW,19.5,C*1\r\n"},
		{name: "checksum not hex", raw: "$IIMTW,19.5,C*ZZ\r\n"},
		{name: "empty address token", raw: "$,1*1D\r\n"},
		{name: "short address token", raw: "$IIMT*19\r\n"},
		{name: "oversize", raw: "$" + strings.Repeat("A", MaxLength) + "*00\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedFrame)
		})
	}
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x1E), Checksum("IIMTW,19.5,C"))
	assert.Equal(t, byte(0x3D), Checksum("SDDBT,17.0,f,5.2,M,2.8,F"))
}

func TestFormat_RoundTrip(t *testing.T) {
	raw := Format("IIMTW,19.5,C")
	assert.Equal(t, "$IIMTW,19.5,C*1E\r\n", raw)

	s, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "MTW", s.Type)
}
