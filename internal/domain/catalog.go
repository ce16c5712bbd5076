package domain

// Unit is the canonical unit of measure a metric is stored in. Everything is
// converted to these units before it reaches the state store.
type Unit string

const (
	UnitMeters        Unit = "m"
	UnitKnots         Unit = "kn"
	UnitCelsius       Unit = "degC"
	UnitDegrees       Unit = "deg"
	UnitDegreesPerSec Unit = "deg/s"
	UnitVolts         Unit = "V"
	UnitAmps          Unit = "A"
	UnitAmpHours      Unit = "Ah"
	UnitKilopascals   Unit = "kPa"
	UnitRPM           Unit = "rpm"
	UnitLitersPerHour Unit = "L/h"
	UnitLiters        Unit = "L"
	UnitHours         Unit = "h"
	UnitPercent       Unit = "%"
)

// MetricSpec bounds one metric: its canonical unit and the sane value range.
// Values outside the range are rejected at normalization, never clamped.
type MetricSpec struct {
	Unit Unit
	Min  float64
	Max  float64
}

// catalog is the closed set of sensor types and their metrics. Extending the
// system means adding entries here, not registering handlers at runtime.
var catalog = map[SensorType]map[Metric]MetricSpec{
	SensorBattery: {
		MetricVoltage:       {UnitVolts, 0, 100},
		MetricCurrent:       {UnitAmps, -2000, 2000},
		MetricTemperature:   {UnitCelsius, -60, 150},
		MetricStateOfCharge: {UnitPercent, 0, 100},
		MetricCapacity:      {UnitAmpHours, 0, 10000},
	},
	SensorDepth: {
		MetricDepth:  {UnitMeters, 0, 1500},
		MetricOffset: {UnitMeters, -10, 10},
	},
	SensorEngine: {
		MetricRPM:               {UnitRPM, 0, 20000},
		MetricCoolantTemp:       {UnitCelsius, -60, 200},
		MetricOilPressure:       {UnitKilopascals, 0, 2000},
		MetricAlternatorVoltage: {UnitVolts, 0, 100},
		MetricFuelRate:          {UnitLitersPerHour, -500, 500},
		MetricEngineHours:       {UnitHours, 0, 200000},
		MetricBoostPressure:     {UnitKilopascals, 0, 1000},
	},
	SensorWind: {
		MetricApparentWindSpeed:     {UnitKnots, 0, 200},
		MetricApparentWindDirection: {UnitDegrees, 0, 360},
		MetricTrueWindSpeed:         {UnitKnots, 0, 200},
		MetricTrueWindDirection:     {UnitDegrees, 0, 360},
	},
	SensorSpeed: {
		MetricSpeedThroughWater: {UnitKnots, 0, 100},
		MetricSpeedOverGround:   {UnitKnots, 0, 100},
	},
	SensorTemperature: {
		MetricValue: {UnitCelsius, -60, 1000},
	},
	SensorCompass: {
		MetricHeading:         {UnitDegrees, 0, 360},
		MetricMagneticHeading: {UnitDegrees, 0, 360},
		MetricTrueHeading:     {UnitDegrees, 0, 360},
		MetricVariation:       {UnitDegrees, -45, 45},
		MetricDeviation:       {UnitDegrees, -45, 45},
		MetricRateOfTurn:      {UnitDegreesPerSec, -180, 180},
	},
	SensorGPS: {
		MetricLatitude:         {UnitDegrees, -90, 90},
		MetricLongitude:        {UnitDegrees, -180, 180},
		MetricSpeedOverGround:  {UnitKnots, 0, 100},
		MetricCourseOverGround: {UnitDegrees, 0, 360},
	},
	SensorTank: {
		MetricLevel:    {UnitPercent, 0, 100},
		MetricCapacity: {UnitLiters, 0, 100000},
		MetricVolume:   {UnitLiters, 0, 100000},
	},
	SensorRudder: {
		MetricRudderAngle: {UnitDegrees, -90, 90},
	},
}

// MetricSpecFor looks up the catalog entry for a (type, metric) pair.
func MetricSpecFor(t SensorType, m Metric) (MetricSpec, bool) {
	specs, ok := catalog[t]
	if !ok {
		return MetricSpec{}, false
	}
	spec, ok := specs[m]
	return spec, ok
}

// KnownSensorType reports whether t is part of the catalog.
func KnownSensorType(t SensorType) bool {
	_, ok := catalog[t]
	return ok
}
