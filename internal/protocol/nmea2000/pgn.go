package nmea2000

import (
	"fmt"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// Parameter groups decoded by this package.
const (
	PGNRudder         uint32 = 127245
	PGNVesselHeading  uint32 = 127250
	PGNRateOfTurn     uint32 = 127251
	PGNEngineRapid    uint32 = 127488
	PGNEngineDynamic  uint32 = 127489
	PGNFluidLevel     uint32 = 127505
	PGNBatteryStatus  uint32 = 127508
	PGNSpeed          uint32 = 128259
	PGNWaterDepth     uint32 = 128267
	PGNPositionRapid  uint32 = 129025
	PGNCOGSOGRapid    uint32 = 129026
	PGNWindData       uint32 = 130306
	PGNTemperatureExt uint32 = 130316
)

// Heading and course reference values. The two-bit field uses 3 as its
// null pattern.
const (
	RefTrue        uint8 = 0
	RefMagnetic    uint8 = 1
	RefUnavailable uint8 = 3
)

// Wind reference values. The three-bit field uses 7 as its null pattern.
// Values 0, 1, 3 and 4 are ground- or water-referenced variants of true
// wind; 2 is wind apparent to the vessel.
const (
	WindRefTrueNorth   uint8 = 0
	WindRefMagnetic    uint8 = 1
	WindRefApparent    uint8 = 2
	WindRefTrueBoat    uint8 = 3
	WindRefTrueWater   uint8 = 4
	WindRefUnavailable uint8 = 7
)

// Record is a decoded parameter group. The variant set is closed, matching
// the sentence decoder: groups outside it are unsupported, not corrupt.
type Record interface {
	groupRecord()
}

// Rudder is rudder order and position. Angles are radians, positive to
// starboard.
type Rudder struct {
	Instance   uint8
	AngleOrder *float64
	Position   *float64
}

// VesselHeading is sensor heading with deviation and variation, radians,
// east positive.
type VesselHeading struct {
	Heading   *float64
	Deviation *float64
	Variation *float64
	Reference uint8
}

// RateOfTurn is the turn rate in radians per second, negative when the bow
// swings to port.
type RateOfTurn struct {
	Rate *float64
}

// EngineRapid is the fast engine update: shaft speed in revolutions per
// minute and boost pressure in pascals.
type EngineRapid struct {
	Instance      uint8
	Speed         *float64
	BoostPressure *float64
}

// EngineDynamic is the slow engine update. Pressures are pascals,
// temperatures kelvin, fuel rate litres per hour, engine hours seconds.
type EngineDynamic struct {
	Instance           uint8
	OilPressure        *float64
	OilTemperature     *float64
	CoolantTemperature *float64
	AlternatorVoltage  *float64
	FuelRate           *float64
	TotalEngineSeconds *float64
}

// FluidLevel is tank level in percent of capacity plus the tank capacity
// in litres. The instance and fluid type share the leading byte.
type FluidLevel struct {
	Instance  uint8
	FluidType uint8
	Level     *float64
	Capacity  *float64
}

// BatteryStatus is battery voltage, current and case temperature in volts,
// amperes (negative discharging) and kelvin.
type BatteryStatus struct {
	Instance    uint8
	Voltage     *float64
	Current     *float64
	Temperature *float64
}

// Speed is vessel speed through water and over ground, metres per second.
type Speed struct {
	SpeedWaterRef  *float64
	SpeedGroundRef *float64
}

// WaterDepth is depth below the transducer in metres plus the transducer
// offset, positive when measuring to the waterline and negative to the keel.
type WaterDepth struct {
	Depth  *float64
	Offset *float64
}

// PositionRapid is latitude and longitude in decimal degrees, north and
// east positive.
type PositionRapid struct {
	Latitude  *float64
	Longitude *float64
}

// COGSOGRapid is course over ground in radians and speed over ground in
// metres per second.
type COGSOGRapid struct {
	Reference uint8
	Course    *float64
	Speed     *float64
}

// WindData is wind speed in metres per second and wind angle in radians,
// measured clockwise from the bow for apparent wind.
type WindData struct {
	Speed     *float64
	Angle     *float64
	Reference uint8
}

// TemperatureExt is a temperature reading in kelvin from one of several
// selectable sources on the vessel.
type TemperatureExt struct {
	Instance    uint8
	Source      uint8
	Temperature *float64
}

func (*Rudder) groupRecord()         {}
func (*VesselHeading) groupRecord()  {}
func (*RateOfTurn) groupRecord()     {}
func (*EngineRapid) groupRecord()    {}
func (*EngineDynamic) groupRecord()  {}
func (*FluidLevel) groupRecord()     {}
func (*BatteryStatus) groupRecord()  {}
func (*Speed) groupRecord()          {}
func (*WaterDepth) groupRecord()     {}
func (*PositionRapid) groupRecord()  {}
func (*COGSOGRapid) groupRecord()    {}
func (*WindData) groupRecord()       {}
func (*TemperatureExt) groupRecord() {}

// Decode converts a frame into its typed record. Unknown parameter groups
// return ErrUnsupported so callers can count them without treating them as
// corruption. Fields a sender marked not available decode to nil.
func Decode(f *Frame) (Record, error) {
	switch f.PGN {
	case PGNRudder:
		return &Rudder{
			Instance:   instanceByte(f.Data, 0),
			AngleOrder: scaledS16(f.Data, 2, 1e-4),
			Position:   scaledS16(f.Data, 4, 1e-4),
		}, nil

	case PGNVesselHeading:
		rec := &VesselHeading{
			Heading:   scaledU16(f.Data, 1, 1e-4),
			Deviation: scaledS16(f.Data, 3, 1e-4),
			Variation: scaledS16(f.Data, 5, 1e-4),
			Reference: RefUnavailable,
		}
		if b, ok := rawByte(f.Data, 7); ok {
			rec.Reference = b & 0x03
		}
		return rec, nil

	case PGNRateOfTurn:
		return &RateOfTurn{
			Rate: scaledS32(f.Data, 1, 3.125e-8),
		}, nil

	case PGNEngineRapid:
		return &EngineRapid{
			Instance:      instanceByte(f.Data, 0),
			Speed:         scaledU16(f.Data, 1, 0.25),
			BoostPressure: scaledU16(f.Data, 3, 100),
		}, nil

	case PGNEngineDynamic:
		return &EngineDynamic{
			Instance:           instanceByte(f.Data, 0),
			OilPressure:        scaledU16(f.Data, 1, 100),
			OilTemperature:     scaledU16(f.Data, 3, 0.1),
			CoolantTemperature: scaledU16(f.Data, 5, 0.01),
			AlternatorVoltage:  scaledS16(f.Data, 7, 0.01),
			FuelRate:           scaledS16(f.Data, 9, 0.1),
			TotalEngineSeconds: scaledU32(f.Data, 11, 1),
		}, nil

	case PGNFluidLevel:
		rec := &FluidLevel{
			Level:    scaledS16(f.Data, 1, 0.004),
			Capacity: scaledU32(f.Data, 3, 0.1),
		}
		if b, ok := rawByte(f.Data, 0); ok {
			rec.Instance = b & 0x0F
			rec.FluidType = b >> 4
		}
		return rec, nil

	case PGNBatteryStatus:
		return &BatteryStatus{
			Instance:    instanceByte(f.Data, 0),
			Voltage:     scaledS16(f.Data, 1, 0.01),
			Current:     scaledS16(f.Data, 3, 0.1),
			Temperature: scaledU16(f.Data, 5, 0.01),
		}, nil

	case PGNSpeed:
		return &Speed{
			SpeedWaterRef:  scaledU16(f.Data, 1, 0.01),
			SpeedGroundRef: scaledU16(f.Data, 3, 0.01),
		}, nil

	case PGNWaterDepth:
		return &WaterDepth{
			Depth:  scaledU32(f.Data, 1, 0.01),
			Offset: scaledS16(f.Data, 5, 1e-3),
		}, nil

	case PGNPositionRapid:
		return &PositionRapid{
			Latitude:  scaledS32(f.Data, 0, 1e-7),
			Longitude: scaledS32(f.Data, 4, 1e-7),
		}, nil

	case PGNCOGSOGRapid:
		rec := &COGSOGRapid{
			Course:    scaledU16(f.Data, 2, 1e-4),
			Speed:     scaledU16(f.Data, 4, 0.01),
			Reference: RefUnavailable,
		}
		if b, ok := rawByte(f.Data, 1); ok {
			rec.Reference = b & 0x03
		}
		return rec, nil

	case PGNWindData:
		rec := &WindData{
			Speed:     scaledU16(f.Data, 1, 0.01),
			Angle:     scaledU16(f.Data, 3, 1e-4),
			Reference: WindRefUnavailable,
		}
		if b, ok := rawByte(f.Data, 5); ok {
			rec.Reference = b & 0x07
		}
		return rec, nil

	case PGNTemperatureExt:
		return &TemperatureExt{
			Instance:    instanceByte(f.Data, 1),
			Source:      instanceByte(f.Data, 2),
			Temperature: scaledU24(f.Data, 3, 1e-3),
		}, nil

	default:
		return nil, fmt.Errorf("%w: pgn %d", domain.ErrUnsupported, f.PGN)
	}
}
