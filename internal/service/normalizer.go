package service

import (
	"fmt"
	"math"
	"time"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea0183"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea2000"
)

// Conversion factors from wire units to canonical units. Knots per km/h is
// exact: one knot is defined as 1.852 km/h.
const (
	feetToMeters    = 0.3048
	fathomsToMeters = 1.8288
	msToKnots       = 3600.0 / 1852.0
	kmhToKnots      = 1.0 / 1.852
	radToDegrees    = 180.0 / math.Pi
	kelvinOffset    = 273.15
	pascalsToKPa    = 1e-3
	degMinToDegSec  = 1.0 / 60.0
	secondsToHours  = 1.0 / 3600.0
)

// NormalizeSentence converts a decoded sentence into canonical sensor
// records. One sentence can yield records for more than one sensor type;
// water speed and heading travel together on VHW, for example. Sentences
// whose status field marks the reading void, or that carry no usable
// fields, return ErrMissingField. Values outside the catalog's sane range
// reject the whole sentence rather than being clamped.
func NormalizeSentence(rec nmea0183.Record, at time.Time) ([]*domain.SensorRecord, error) {
	switch r := rec.(type) {
	case *nmea0183.DBT:
		depth := newRecord(domain.SensorDepth, 0, at)
		switch {
		case r.Meters != nil:
			depth.Metrics[domain.MetricDepth] = *r.Meters
		case r.Feet != nil:
			depth.Metrics[domain.MetricDepth] = *r.Feet * feetToMeters
		case r.Fathoms != nil:
			depth.Metrics[domain.MetricDepth] = *r.Fathoms * fathomsToMeters
		}
		return finish(depth)

	case *nmea0183.DPT:
		depth := newRecord(domain.SensorDepth, 0, at)
		putOpt(depth, domain.MetricDepth, r.Depth)
		putOpt(depth, domain.MetricOffset, r.Offset)
		return finish(depth)

	case *nmea0183.MTW:
		temp := newRecord(domain.SensorTemperature, 0, at)
		putOpt(temp, domain.MetricValue, r.Celsius)
		return finish(temp)

	case *nmea0183.VHW:
		comp := newRecord(domain.SensorCompass, 0, at)
		putOpt(comp, domain.MetricTrueHeading, r.HeadingTrue)
		putOpt(comp, domain.MetricMagneticHeading, r.HeadingMagnetic)
		fillHeading(comp)

		speed := newRecord(domain.SensorSpeed, 0, at)
		if r.SpeedKnots != nil {
			speed.Metrics[domain.MetricSpeedThroughWater] = *r.SpeedKnots
		} else if r.SpeedKMH != nil {
			speed.Metrics[domain.MetricSpeedThroughWater] = *r.SpeedKMH * kmhToKnots
		}
		return finish(comp, speed)

	case *nmea0183.MWV:
		if !r.Valid {
			return nil, fmt.Errorf("%w: wind reading flagged void", domain.ErrMissingField)
		}
		wind := newRecord(domain.SensorWind, 0, at)
		speedMetric := domain.MetricApparentWindSpeed
		dirMetric := domain.MetricApparentWindDirection
		if r.Reference == "T" {
			speedMetric = domain.MetricTrueWindSpeed
			dirMetric = domain.MetricTrueWindDirection
		}
		putOpt(wind, dirMetric, r.Angle)
		if r.Speed != nil {
			switch r.SpeedUnit {
			case "N":
				wind.Metrics[speedMetric] = *r.Speed
			case "M":
				wind.Metrics[speedMetric] = *r.Speed * msToKnots
			case "K":
				wind.Metrics[speedMetric] = *r.Speed * kmhToKnots
			}
		}
		return finish(wind)

	case *nmea0183.HDG:
		comp := newRecord(domain.SensorCompass, 0, at)
		putOpt(comp, domain.MetricMagneticHeading, r.Heading)
		putOpt(comp, domain.MetricDeviation, r.Deviation)
		putOpt(comp, domain.MetricVariation, r.Variation)
		fillHeading(comp)
		return finish(comp)

	case *nmea0183.HDM:
		comp := newRecord(domain.SensorCompass, 0, at)
		putOpt(comp, domain.MetricMagneticHeading, r.Heading)
		fillHeading(comp)
		return finish(comp)

	case *nmea0183.HDT:
		comp := newRecord(domain.SensorCompass, 0, at)
		putOpt(comp, domain.MetricTrueHeading, r.Heading)
		fillHeading(comp)
		return finish(comp)

	case *nmea0183.ROT:
		if !r.Valid {
			return nil, fmt.Errorf("%w: turn rate flagged void", domain.ErrMissingField)
		}
		comp := newRecord(domain.SensorCompass, 0, at)
		putScaled(comp, domain.MetricRateOfTurn, r.Rate, degMinToDegSec)
		return finish(comp)

	case *nmea0183.RSA:
		starboard := newRecord(domain.SensorRudder, 0, at)
		if r.StarboardValid {
			putOpt(starboard, domain.MetricRudderAngle, r.Starboard)
		}
		port := newRecord(domain.SensorRudder, 1, at)
		if r.PortValid {
			putOpt(port, domain.MetricRudderAngle, r.Port)
		}
		return finish(starboard, port)

	case *nmea0183.RPM:
		if !r.Valid {
			return nil, fmt.Errorf("%w: revolution reading flagged void", domain.ErrMissingField)
		}
		var instance uint8
		if r.Number != nil {
			instance = *r.Number
		}
		engine := newRecord(domain.SensorEngine, instance, at)
		putOpt(engine, domain.MetricRPM, r.RPM)
		return finish(engine)

	case *nmea0183.VTG:
		gps := newRecord(domain.SensorGPS, 0, at)
		putOpt(gps, domain.MetricCourseOverGround, r.CourseTrue)
		if r.SpeedKnots != nil {
			gps.Metrics[domain.MetricSpeedOverGround] = *r.SpeedKnots
		} else if r.SpeedKMH != nil {
			gps.Metrics[domain.MetricSpeedOverGround] = *r.SpeedKMH * kmhToKnots
		}
		return finish(gps)

	case *nmea0183.RMC:
		if !r.Valid {
			return nil, fmt.Errorf("%w: fix flagged void", domain.ErrMissingField)
		}
		gps := newRecord(domain.SensorGPS, 0, at)
		putOpt(gps, domain.MetricLatitude, r.Latitude)
		putOpt(gps, domain.MetricLongitude, r.Longitude)
		putOpt(gps, domain.MetricSpeedOverGround, r.SpeedKnots)
		putOpt(gps, domain.MetricCourseOverGround, r.CourseTrue)

		comp := newRecord(domain.SensorCompass, 0, at)
		putOpt(comp, domain.MetricVariation, r.Variation)
		return finish(gps, comp)

	default:
		return nil, fmt.Errorf("%w: sentence record %T", domain.ErrUnsupported, rec)
	}
}

// NormalizeGroup converts a decoded parameter group into canonical sensor
// records, applying the same catalog rules as NormalizeSentence.
func NormalizeGroup(rec nmea2000.Record, at time.Time) ([]*domain.SensorRecord, error) {
	switch r := rec.(type) {
	case *nmea2000.Rudder:
		rudder := newRecord(domain.SensorRudder, r.Instance, at)
		putScaled(rudder, domain.MetricRudderAngle, r.Position, radToDegrees)
		return finish(rudder)

	case *nmea2000.VesselHeading:
		comp := newRecord(domain.SensorCompass, 0, at)
		switch r.Reference {
		case nmea2000.RefTrue:
			putScaled(comp, domain.MetricTrueHeading, r.Heading, radToDegrees)
		case nmea2000.RefMagnetic:
			putScaled(comp, domain.MetricMagneticHeading, r.Heading, radToDegrees)
		default:
			// Reference unavailable: still a heading, but claim no frame.
			putScaled(comp, domain.MetricHeading, r.Heading, radToDegrees)
		}
		putScaled(comp, domain.MetricDeviation, r.Deviation, radToDegrees)
		putScaled(comp, domain.MetricVariation, r.Variation, radToDegrees)
		fillHeading(comp)
		return finish(comp)

	case *nmea2000.RateOfTurn:
		comp := newRecord(domain.SensorCompass, 0, at)
		putScaled(comp, domain.MetricRateOfTurn, r.Rate, radToDegrees)
		return finish(comp)

	case *nmea2000.EngineRapid:
		engine := newRecord(domain.SensorEngine, r.Instance, at)
		putOpt(engine, domain.MetricRPM, r.Speed)
		putScaled(engine, domain.MetricBoostPressure, r.BoostPressure, pascalsToKPa)
		return finish(engine)

	case *nmea2000.EngineDynamic:
		engine := newRecord(domain.SensorEngine, r.Instance, at)
		putScaled(engine, domain.MetricOilPressure, r.OilPressure, pascalsToKPa)
		putShifted(engine, domain.MetricCoolantTemp, r.CoolantTemperature, -kelvinOffset)
		putOpt(engine, domain.MetricAlternatorVoltage, r.AlternatorVoltage)
		putOpt(engine, domain.MetricFuelRate, r.FuelRate)
		putScaled(engine, domain.MetricEngineHours, r.TotalEngineSeconds, secondsToHours)
		return finish(engine)

	case *nmea2000.FluidLevel:
		tank := newRecord(domain.SensorTank, r.Instance, at)
		putOpt(tank, domain.MetricLevel, r.Level)
		putOpt(tank, domain.MetricCapacity, r.Capacity)
		if r.Level != nil && r.Capacity != nil {
			tank.Metrics[domain.MetricVolume] = *r.Level / 100 * *r.Capacity
		}
		return finish(tank)

	case *nmea2000.BatteryStatus:
		battery := newRecord(domain.SensorBattery, r.Instance, at)
		putOpt(battery, domain.MetricVoltage, r.Voltage)
		putOpt(battery, domain.MetricCurrent, r.Current)
		putShifted(battery, domain.MetricTemperature, r.Temperature, -kelvinOffset)
		return finish(battery)

	case *nmea2000.Speed:
		speed := newRecord(domain.SensorSpeed, 0, at)
		putScaled(speed, domain.MetricSpeedThroughWater, r.SpeedWaterRef, msToKnots)
		putScaled(speed, domain.MetricSpeedOverGround, r.SpeedGroundRef, msToKnots)
		return finish(speed)

	case *nmea2000.WaterDepth:
		depth := newRecord(domain.SensorDepth, 0, at)
		putOpt(depth, domain.MetricDepth, r.Depth)
		putOpt(depth, domain.MetricOffset, r.Offset)
		return finish(depth)

	case *nmea2000.PositionRapid:
		gps := newRecord(domain.SensorGPS, 0, at)
		putOpt(gps, domain.MetricLatitude, r.Latitude)
		putOpt(gps, domain.MetricLongitude, r.Longitude)
		return finish(gps)

	case *nmea2000.COGSOGRapid:
		gps := newRecord(domain.SensorGPS, 0, at)
		if r.Reference == nmea2000.RefTrue || r.Reference == nmea2000.RefMagnetic {
			putScaled(gps, domain.MetricCourseOverGround, r.Course, radToDegrees)
		}
		putScaled(gps, domain.MetricSpeedOverGround, r.Speed, msToKnots)
		return finish(gps)

	case *nmea2000.WindData:
		wind := newRecord(domain.SensorWind, 0, at)
		switch r.Reference {
		case nmea2000.WindRefApparent:
			putScaled(wind, domain.MetricApparentWindSpeed, r.Speed, msToKnots)
			putScaled(wind, domain.MetricApparentWindDirection, r.Angle, radToDegrees)
		case nmea2000.WindRefTrueNorth, nmea2000.WindRefMagnetic,
			nmea2000.WindRefTrueBoat, nmea2000.WindRefTrueWater:
			putScaled(wind, domain.MetricTrueWindSpeed, r.Speed, msToKnots)
			putScaled(wind, domain.MetricTrueWindDirection, r.Angle, radToDegrees)
		}
		return finish(wind)

	case *nmea2000.TemperatureExt:
		temp := newRecord(domain.SensorTemperature, r.Instance, at)
		putShifted(temp, domain.MetricValue, r.Temperature, -kelvinOffset)
		return finish(temp)

	default:
		return nil, fmt.Errorf("%w: parameter group record %T", domain.ErrUnsupported, rec)
	}
}

func newRecord(t domain.SensorType, instance uint8, at time.Time) *domain.SensorRecord {
	return &domain.SensorRecord{
		Type:      t,
		Instance:  instance,
		Metrics:   make(map[domain.Metric]float64, 4),
		Timestamp: at,
	}
}

func putOpt(rec *domain.SensorRecord, m domain.Metric, v *float64) {
	if v != nil {
		rec.Metrics[m] = *v
	}
}

func putScaled(rec *domain.SensorRecord, m domain.Metric, v *float64, factor float64) {
	if v != nil {
		rec.Metrics[m] = *v * factor
	}
}

func putShifted(rec *domain.SensorRecord, m domain.Metric, v *float64, offset float64) {
	if v != nil {
		rec.Metrics[m] = *v + offset
	}
}

// fillHeading mirrors the preferred reference onto the generic heading
// metric. Magnetic wins when both are present, matching what the helm
// compass card shows.
func fillHeading(rec *domain.SensorRecord) {
	if v, ok := rec.Metrics[domain.MetricMagneticHeading]; ok {
		rec.Metrics[domain.MetricHeading] = v
		return
	}
	if v, ok := rec.Metrics[domain.MetricTrueHeading]; ok {
		rec.Metrics[domain.MetricHeading] = v
	}
}

// finish validates the built records and drops empty ones. A sentence that
// produced nothing usable is an error; a single out-of-range value rejects
// everything derived from the same wire record.
func finish(records ...*domain.SensorRecord) ([]*domain.SensorRecord, error) {
	out := make([]*domain.SensorRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Metrics) == 0 {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable fields", domain.ErrMissingField)
	}
	return out, nil
}
