// Package domain contains the core business entities shared by every
// pipeline stage. These are protocol-agnostic and carry no I/O.
package domain

import (
	"fmt"
	"math"
	"time"
)

// SensorType identifies a class of instrument on the boat network.
type SensorType string

const (
	SensorBattery     SensorType = "battery"
	SensorDepth       SensorType = "depth"
	SensorEngine      SensorType = "engine"
	SensorWind        SensorType = "wind"
	SensorSpeed       SensorType = "speed"
	SensorTemperature SensorType = "temperature"
	SensorCompass     SensorType = "compass"
	SensorGPS         SensorType = "gps"
	SensorTank        SensorType = "tank"
	SensorRudder      SensorType = "rudder"
)

// Metric names one measured value within a sensor type. The set of valid
// metrics per type is fixed by the catalog; the Normalizer rejects anything
// outside it.
type Metric string

const (
	// battery
	MetricVoltage       Metric = "voltage"
	MetricCurrent       Metric = "current"
	MetricTemperature   Metric = "temperature"
	MetricStateOfCharge Metric = "stateOfCharge"
	MetricCapacity      Metric = "capacity"

	// depth
	MetricDepth  Metric = "depth"
	MetricOffset Metric = "offset"

	// engine
	MetricRPM               Metric = "rpm"
	MetricCoolantTemp       Metric = "coolantTemp"
	MetricOilPressure       Metric = "oilPressure"
	MetricAlternatorVoltage Metric = "alternatorVoltage"
	MetricFuelRate          Metric = "fuelRate"
	MetricEngineHours       Metric = "hours"
	MetricBoostPressure     Metric = "boostPressure"

	// wind
	MetricApparentWindSpeed     Metric = "apparentSpeed"
	MetricApparentWindDirection Metric = "apparentDirection"
	MetricTrueWindSpeed         Metric = "trueSpeed"
	MetricTrueWindDirection     Metric = "trueDirection"

	// speed
	MetricSpeedThroughWater Metric = "throughWater"
	MetricSpeedOverGround   Metric = "overGround"

	// temperature
	MetricValue Metric = "value"

	// compass
	MetricHeading         Metric = "heading"
	MetricMagneticHeading Metric = "magneticHeading"
	MetricTrueHeading     Metric = "trueHeading"
	MetricVariation       Metric = "variation"
	MetricDeviation       Metric = "deviation"
	MetricRateOfTurn      Metric = "rateOfTurn"

	// gps
	MetricLatitude         Metric = "latitude"
	MetricLongitude        Metric = "longitude"
	MetricCourseOverGround Metric = "courseOverGround"

	// tank
	MetricLevel  Metric = "level"
	MetricVolume Metric = "volume"

	// rudder
	MetricRudderAngle Metric = "angle"
)

// SensorKey identifies one physical device: a sensor type plus the instance
// number that disambiguates multiple devices of the same type (two engines,
// two battery banks). Instance numbers are stable for the life of a device.
type SensorKey struct {
	Type     SensorType `json:"sensor_type"`
	Instance uint8      `json:"instance"`
}

func (k SensorKey) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.Instance)
}

// SensorRecord is one normalized measurement set in canonical units. All
// metrics in one record are applied to the state store atomically.
type SensorRecord struct {
	Type      SensorType         `json:"sensor_type"`
	Instance  uint8              `json:"instance"`
	Metrics   map[Metric]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// Key returns the record's sensor key.
func (r *SensorRecord) Key() SensorKey {
	return SensorKey{Type: r.Type, Instance: r.Instance}
}

// Validate checks the record against the closed catalog: the sensor type
// must be known, every metric must belong to the type, and every value must
// be finite and inside the metric's sane range.
func (r *SensorRecord) Validate() error {
	specs, ok := catalog[r.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensorType, r.Type)
	}
	if len(r.Metrics) == 0 {
		return fmt.Errorf("%w: record carries no metrics", ErrMissingField)
	}
	for m, v := range r.Metrics {
		spec, ok := specs[m]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrUnknownMetric, r.Type, m)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s/%s is not finite", ErrOutOfRange, r.Type, m)
		}
		if v < spec.Min || v > spec.Max {
			return fmt.Errorf("%w: %s/%s %.4g outside [%g, %g]",
				ErrOutOfRange, r.Type, m, v, spec.Min, spec.Max)
		}
	}
	return nil
}

// ChangeEvent describes a store mutation in which at least one metric
// changed value. Metrics holds the full metric set after the update so
// consumers never need a second store read.
type ChangeEvent struct {
	Key     SensorKey          `json:"key"`
	Metrics map[Metric]float64 `json:"metrics"`
	Changed []Metric           `json:"changed"`
	At      time.Time          `json:"at"`
}
