package nmea0183

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

func mustParse(t *testing.T, raw string) *Sentence {
	t.Helper()
	s, err := Parse([]byte(raw))
	require.NoError(t, err)
	return s
}

func mustDecode(t *testing.T, raw string) Record {
	t.Helper()
	rec, err := Decode(mustParse(t, raw))
	require.NoError(t, err)
	return rec
}

func TestDecode_DBT(t *testing.T) {
	rec := mustDecode(t, "$SDDBT,17.0,f,5.2,M,2.8,F*3D")

	dbt, ok := rec.(*DBT)
	require.True(t, ok)
	require.NotNil(t, dbt.Feet)
	require.NotNil(t, dbt.Meters)
	require.NotNil(t, dbt.Fathoms)
	assert.Equal(t, 17.0, *dbt.Feet)
	assert.Equal(t, 5.2, *dbt.Meters)
	assert.Equal(t, 2.8, *dbt.Fathoms)
}

func TestDecode_DBT_EmptyFields(t *testing.T) {
	rec := mustDecode(t, "$SDDBT,,f,,M,,F*28")

	dbt := rec.(*DBT)
	assert.Nil(t, dbt.Feet)
	assert.Nil(t, dbt.Meters)
	assert.Nil(t, dbt.Fathoms)
}

func TestDecode_DPT(t *testing.T) {
	rec := mustDecode(t, "$SDDPT,3.2,0.3*55")

	dpt := rec.(*DPT)
	require.NotNil(t, dpt.Depth)
	require.NotNil(t, dpt.Offset)
	assert.Equal(t, 3.2, *dpt.Depth)
	assert.Equal(t, 0.3, *dpt.Offset)
}

func TestDecode_MTW(t *testing.T) {
	rec := mustDecode(t, "$IIMTW,19.5,C*1E")

	mtw := rec.(*MTW)
	require.NotNil(t, mtw.Celsius)
	assert.Equal(t, 19.5, *mtw.Celsius)
}

func TestDecode_VHW(t *testing.T) {
	rec := mustDecode(t, "$IIVHW,245.1,T,238.8,M,6.5,N,12.0,K*66")

	vhw := rec.(*VHW)
	require.NotNil(t, vhw.HeadingTrue)
	require.NotNil(t, vhw.HeadingMagnetic)
	require.NotNil(t, vhw.SpeedKnots)
	assert.Equal(t, 245.1, *vhw.HeadingTrue)
	assert.Equal(t, 238.8, *vhw.HeadingMagnetic)
	assert.Equal(t, 6.5, *vhw.SpeedKnots)
}

func TestDecode_MWV(t *testing.T) {
	rec := mustDecode(t, "$WIMWV,84.0,R,10.4,N,A*2A")

	mwv := rec.(*MWV)
	require.NotNil(t, mwv.Angle)
	require.NotNil(t, mwv.Speed)
	assert.Equal(t, 84.0, *mwv.Angle)
	assert.Equal(t, "R", mwv.Reference)
	assert.Equal(t, 10.4, *mwv.Speed)
	assert.Equal(t, "N", mwv.SpeedUnit)
	assert.True(t, mwv.Valid)
}

func TestDecode_MWV_VoidStatus(t *testing.T) {
	rec := mustDecode(t, "$WIMWV,84.0,R,10.4,N,V*3D")
	assert.False(t, rec.(*MWV).Valid)
}

func TestDecode_HDG_WesterlyVariation(t *testing.T) {
	rec := mustDecode(t, "$HCHDG,98.3,0.0,E,12.6,W*57")

	hdg := rec.(*HDG)
	require.NotNil(t, hdg.Heading)
	require.NotNil(t, hdg.Deviation)
	require.NotNil(t, hdg.Variation)
	assert.Equal(t, 98.3, *hdg.Heading)
	assert.Equal(t, 0.0, *hdg.Deviation)
	assert.Equal(t, -12.6, *hdg.Variation)
}

func TestDecode_ROT(t *testing.T) {
	rec := mustDecode(t, "$TIROT,4.71,A*09")

	rot := rec.(*ROT)
	require.NotNil(t, rot.Rate)
	assert.Equal(t, 4.71, *rot.Rate)
	assert.True(t, rot.Valid)
}

func TestDecode_RSA_SingleRudder(t *testing.T) {
	rec := mustDecode(t, "$IIRSA,10.5,A,,V*4D")

	rsa := rec.(*RSA)
	require.NotNil(t, rsa.Starboard)
	assert.Equal(t, 10.5, *rsa.Starboard)
	assert.True(t, rsa.StarboardValid)
	assert.Nil(t, rsa.Port)
	assert.False(t, rsa.PortValid)
}

func TestDecode_RPM(t *testing.T) {
	rec := mustDecode(t, "$ERRPM,E,1,1830.0,10.5,A*4F")

	rpm := rec.(*RPM)
	require.NotNil(t, rpm.Number)
	require.NotNil(t, rpm.RPM)
	require.NotNil(t, rpm.Pitch)
	assert.Equal(t, "E", rpm.Source)
	assert.Equal(t, uint8(1), *rpm.Number)
	assert.Equal(t, 1830.0, *rpm.RPM)
	assert.Equal(t, 10.5, *rpm.Pitch)
	assert.True(t, rpm.Valid)
}

func TestDecode_VTG(t *testing.T) {
	rec := mustDecode(t, "$GPVTG,84.4,T,81.3,M,5.2,N,9.6,K*44")

	vtg := rec.(*VTG)
	require.NotNil(t, vtg.CourseTrue)
	require.NotNil(t, vtg.SpeedKnots)
	assert.Equal(t, 84.4, *vtg.CourseTrue)
	assert.Equal(t, 5.2, *vtg.SpeedKnots)
}

func TestDecode_RMC(t *testing.T) {
	rec := mustDecode(t, "$GPRMC,110324,A,4807.038,N,01131.000,E,5.2,84.4,250826,3.1,W*55")

	rmc := rec.(*RMC)
	assert.True(t, rmc.Valid)
	require.NotNil(t, rmc.Latitude)
	require.NotNil(t, rmc.Longitude)
	require.NotNil(t, rmc.SpeedKnots)
	require.NotNil(t, rmc.CourseTrue)
	require.NotNil(t, rmc.Variation)
	assert.InDelta(t, 48.1173, *rmc.Latitude, 1e-6)
	assert.InDelta(t, 11.5166667, *rmc.Longitude, 1e-6)
	assert.Equal(t, 5.2, *rmc.SpeedKnots)
	assert.Equal(t, 84.4, *rmc.CourseTrue)
	assert.Equal(t, -3.1, *rmc.Variation)
}

func TestDecode_RMC_SouthWestHemispheres(t *testing.T) {
	rec := mustDecode(t, Format("GPRMC,110324,A,3352.250,S,15112.500,W,0.0,0.0,250826,,"))

	rmc := rec.(*RMC)
	require.NotNil(t, rmc.Latitude)
	require.NotNil(t, rmc.Longitude)
	assert.InDelta(t, -33.870833, *rmc.Latitude, 1e-6)
	assert.InDelta(t, -151.208333, *rmc.Longitude, 1e-6)
}

func TestDecode_RMC_VoidFix(t *testing.T) {
	rec := mustDecode(t, Format("GPRMC,110324,V,,,,,,,250826,,N"))

	rmc := rec.(*RMC)
	assert.False(t, rmc.Valid)
	assert.Nil(t, rmc.Latitude)
	assert.Nil(t, rmc.Longitude)
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode(mustParse(t, Format("GPGGA,110324,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestDecode_NumericFieldGarbage(t *testing.T) {
	_, err := Decode(mustParse(t, Format("IIMTW,abc,C")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedFrame)
}

func TestDecode_TruncatedFieldList(t *testing.T) {
	rec, err := Decode(mustParse(t, Format("SDDBT,17.0,f")))
	require.NoError(t, err)

	dbt := rec.(*DBT)
	require.NotNil(t, dbt.Feet)
	assert.Nil(t, dbt.Meters)
	assert.Nil(t, dbt.Fathoms)
}

func TestDecodePCDIN(t *testing.T) {
	p, err := DecodePCDIN(mustParse(t, "$PCDIN,01F50B,00000000,0F,FF080200002C01FF*5C"))
	require.NoError(t, err)

	assert.Equal(t, uint32(128267), p.PGN)
	assert.Equal(t, uint32(0), p.Timestamp)
	assert.Equal(t, uint8(0x0F), p.Source)
	require.Len(t, p.Data, 8)
	assert.Equal(t, byte(0xFF), p.Data[0])
	assert.Equal(t, byte(0x08), p.Data[1])
}

func TestDecodePCDIN_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "too few fields", body: "PCDIN,01F50B,00000000"},
		{name: "pgn not hex", body: "PCDIN,ZZZZZZ,00000000,0F,FF00"},
		{name: "odd hex payload", body: "PCDIN,01F50B,00000000,0F,FFF"},
		{name: "empty payload", body: "PCDIN,01F50B,00000000,0F,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePCDIN(mustParse(t, Format(tt.body)))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedFrame)
		})
	}
}

func TestEncodePCDIN(t *testing.T) {
	data := []byte{0xFF, 0x08, 0x02, 0x00, 0x00, 0x2C, 0x01, 0xFF}
	raw := EncodePCDIN(128267, 0, 0x0F, data)
	assert.Equal(t, "$PCDIN,01F50B,00000000,0F,FF080200002C01FF*5C\r\n", raw)

	p, err := DecodePCDIN(mustParse(t, raw))
	require.NoError(t, err)
	assert.Equal(t, uint32(128267), p.PGN)
	assert.Equal(t, data, p.Data)
}
