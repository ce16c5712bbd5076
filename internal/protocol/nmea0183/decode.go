package nmea0183

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// Record is a decoded sentence. The variant set is closed: the normalizer
// maps every variant onto canonical sensor metrics, and sentences outside
// the set are reported as unsupported at decode time.
type Record interface {
	sentenceRecord()
}

// DBT is depth below transducer. Instruments usually populate all three
// units from the same measurement.
type DBT struct {
	Feet    *float64
	Meters  *float64
	Fathoms *float64
}

// DPT is depth relative to the transducer plus the transducer offset.
// A positive offset measures to the waterline, a negative one to the keel.
type DPT struct {
	Depth  *float64
	Offset *float64
}

// MTW is water temperature in degrees Celsius.
type MTW struct {
	Celsius *float64
}

// VHW is water-referenced heading and speed.
type VHW struct {
	HeadingTrue     *float64
	HeadingMagnetic *float64
	SpeedKnots      *float64
	SpeedKMH        *float64
}

// MWV is wind speed and angle. Reference is "R" for relative (apparent) or
// "T" for theoretical (true); Valid reflects the trailing status field.
type MWV struct {
	Angle     *float64
	Reference string
	Speed     *float64
	SpeedUnit string
	Valid     bool
}

// HDG is magnetic sensor heading with deviation and variation. The
// easterly/westerly indicators are folded into the sign (east positive).
type HDG struct {
	Heading   *float64
	Deviation *float64
	Variation *float64
}

// HDM is magnetic heading.
type HDM struct {
	Heading *float64
}

// HDT is true heading.
type HDT struct {
	Heading *float64
}

// ROT is rate of turn in degrees per minute, negative when the bow turns
// to port.
type ROT struct {
	Rate  *float64
	Valid bool
}

// RSA is rudder angle in degrees, positive to starboard. Single-rudder
// vessels report on the starboard side only.
type RSA struct {
	Starboard      *float64
	StarboardValid bool
	Port           *float64
	PortValid      bool
}

// RPM is shaft or engine revolutions. Source is "E" for engine or "S" for
// shaft; Number selects the engine or shaft, numbered from centerline.
type RPM struct {
	Source string
	Number *uint8
	RPM    *float64
	Pitch  *float64
	Valid  bool
}

// VTG is course over ground and ground speed.
type VTG struct {
	CourseTrue     *float64
	CourseMagnetic *float64
	SpeedKnots     *float64
	SpeedKMH       *float64
}

// RMC is the recommended minimum position fix. Coordinates are converted
// to signed decimal degrees; Valid reflects the receiver status field.
type RMC struct {
	Valid      bool
	Latitude   *float64
	Longitude  *float64
	SpeedKnots *float64
	CourseTrue *float64
	Variation  *float64
}

func (*DBT) sentenceRecord() {}
func (*DPT) sentenceRecord() {}
func (*MTW) sentenceRecord() {}
func (*VHW) sentenceRecord() {}
func (*MWV) sentenceRecord() {}
func (*HDG) sentenceRecord() {}
func (*HDM) sentenceRecord() {}
func (*HDT) sentenceRecord() {}
func (*ROT) sentenceRecord() {}
func (*RSA) sentenceRecord() {}
func (*RPM) sentenceRecord() {}
func (*VTG) sentenceRecord() {}
func (*RMC) sentenceRecord() {}

// Decode converts a parsed sentence into its typed record. Sentence types
// outside the supported set return ErrUnsupported so callers can count them
// without treating them as corruption.
func Decode(s *Sentence) (Record, error) {
	r := fieldReader{fields: s.Fields}

	var rec Record
	switch s.Type {
	case "DBT":
		rec = &DBT{Feet: r.float(0), Meters: r.float(2), Fathoms: r.float(4)}
	case "DPT":
		rec = &DPT{Depth: r.float(0), Offset: r.float(1)}
	case "MTW":
		rec = &MTW{Celsius: r.float(0)}
	case "VHW":
		rec = &VHW{
			HeadingTrue:     r.float(0),
			HeadingMagnetic: r.float(2),
			SpeedKnots:      r.float(4),
			SpeedKMH:        r.float(6),
		}
	case "MWV":
		rec = &MWV{
			Angle:     r.float(0),
			Reference: r.str(1),
			Speed:     r.float(2),
			SpeedUnit: r.str(3),
			Valid:     r.str(4) == "A",
		}
	case "HDG":
		rec = &HDG{
			Heading:   r.float(0),
			Deviation: r.signedEastWest(1),
			Variation: r.signedEastWest(3),
		}
	case "HDM":
		rec = &HDM{Heading: r.float(0)}
	case "HDT":
		rec = &HDT{Heading: r.float(0)}
	case "ROT":
		rec = &ROT{Rate: r.float(0), Valid: r.str(1) == "A"}
	case "RSA":
		rec = &RSA{
			Starboard:      r.float(0),
			StarboardValid: r.str(1) == "A",
			Port:           r.float(2),
			PortValid:      r.str(3) == "A",
		}
	case "RPM":
		rec = &RPM{
			Source: r.str(0),
			Number: r.uint8(1),
			RPM:    r.float(2),
			Pitch:  r.float(3),
			Valid:  r.str(4) == "A",
		}
	case "VTG":
		rec = &VTG{
			CourseTrue:     r.float(0),
			CourseMagnetic: r.float(2),
			SpeedKnots:     r.float(4),
			SpeedKMH:       r.float(6),
		}
	case "RMC":
		rec = &RMC{
			Valid:      r.str(1) == "A",
			Latitude:   r.coordinate(2),
			Longitude:  r.coordinate(4),
			SpeedKnots: r.float(6),
			CourseTrue: r.float(7),
			Variation:  r.signedEastWest(9),
		}
	default:
		return nil, fmt.Errorf("%w: sentence type %s", domain.ErrUnsupported, s.Type)
	}

	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// fieldReader reads indexed sentence fields with a sticky error. Missing
// and empty fields decode to nil: instruments omit fields they cannot
// measure, and that is not an error.
type fieldReader struct {
	fields []string
	err    error
}

func (r *fieldReader) str(i int) string {
	if i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r *fieldReader) float(i int) *float64 {
	raw := r.str(i)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(i, raw)
		return nil
	}
	return &v
}

func (r *fieldReader) uint8(i int) *uint8 {
	raw := r.str(i)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		r.fail(i, raw)
		return nil
	}
	n := uint8(v)
	return &n
}

// signedEastWest reads a magnitude field followed by an E/W indicator and
// folds the indicator into the sign, east positive.
func (r *fieldReader) signedEastWest(i int) *float64 {
	v := r.float(i)
	if v == nil {
		return nil
	}
	if r.str(i+1) == "W" {
		neg := -*v
		return &neg
	}
	return v
}

// coordinate reads a ddmm.mmmm (latitude) or dddmm.mmmm (longitude) field
// plus its hemisphere indicator and converts to signed decimal degrees,
// north and east positive.
func (r *fieldReader) coordinate(i int) *float64 {
	raw := r.str(i)
	hemi := r.str(i + 1)
	if raw == "" || hemi == "" {
		return nil
	}

	dot := strings.IndexByte(raw, '.')
	if dot < 0 {
		dot = len(raw)
	}
	if dot < 3 {
		r.fail(i, raw)
		return nil
	}

	deg, degErr := strconv.ParseFloat(raw[:dot-2], 64)
	min, minErr := strconv.ParseFloat(raw[dot-2:], 64)
	if degErr != nil || minErr != nil {
		r.fail(i, raw)
		return nil
	}

	v := deg + min/60
	if hemi == "S" || hemi == "W" {
		v = -v
	}
	return &v
}

func (r *fieldReader) fail(i int, raw string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: field %d %q", domain.ErrMalformedFrame, i+1, raw)
	}
}
