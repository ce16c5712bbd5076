package domain

import "fmt"

// InstanceContext carries operator-supplied context for one sensor
// instance: a display name plus the physical values relative thresholds
// fall back on when the sensor does not report them itself.
type InstanceContext struct {
	Type     SensorType `json:"sensor_type" yaml:"sensor_type"`
	Instance uint8      `json:"instance" yaml:"instance"`
	Name     string     `json:"name" yaml:"name"`

	// Capacity is the tank volume in litres or the battery capacity in
	// amp hours.
	Capacity float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// MaxRPM is the engine's rated maximum shaft speed.
	MaxRPM float64 `json:"max_rpm,omitempty" yaml:"max_rpm,omitempty"`

	// DepthOffset is the transducer offset in metres. Positive means the
	// transducer sits below the waterline, negative above the keel.
	DepthOffset float64 `json:"depth_offset,omitempty" yaml:"depth_offset,omitempty"`
}

// Key returns the sensor key this context belongs to.
func (c InstanceContext) Key() SensorKey {
	return SensorKey{Type: c.Type, Instance: c.Instance}
}

// Reference returns the value relative thresholds scale against, when the
// context provides one.
func (c InstanceContext) Reference() (float64, bool) {
	if c.Capacity > 0 {
		return c.Capacity, true
	}
	if c.MaxRPM > 0 {
		return c.MaxRPM, true
	}
	return 0, false
}

// Validate checks the context against the sensor catalog.
func (c InstanceContext) Validate() error {
	if !KnownSensorType(c.Type) {
		return fmt.Errorf("%w: %s", ErrUnknownSensorType, c.Type)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrOutOfRange)
	}
	if c.MaxRPM < 0 {
		return fmt.Errorf("%w: max_rpm must not be negative", ErrOutOfRange)
	}
	return nil
}
