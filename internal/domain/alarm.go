package domain

import (
	"fmt"
	"time"
)

// AlarmLevel is the severity of an alarm state.
type AlarmLevel string

const (
	AlarmNormal   AlarmLevel = "normal"
	AlarmWarning  AlarmLevel = "warning"
	AlarmCritical AlarmLevel = "critical"
)

// Severity orders levels for comparison: normal < warning < critical.
func (l AlarmLevel) Severity() int {
	switch l {
	case AlarmWarning:
		return 1
	case AlarmCritical:
		return 2
	default:
		return 0
	}
}

// ThresholdKind selects how a threshold magnitude is interpreted.
type ThresholdKind string

const (
	// ThresholdAbsolute compares against the magnitude directly.
	ThresholdAbsolute ThresholdKind = "absolute"

	// ThresholdRelative multiplies the magnitude by a reference value from
	// the sensor's context, e.g. tank capacity.
	ThresholdRelative ThresholdKind = "relative"
)

// ThresholdDirection selects which side of the threshold is alarming.
type ThresholdDirection string

const (
	DirectionAbove ThresholdDirection = "above"
	DirectionBelow ThresholdDirection = "below"
)

// ThresholdValue is one configured boundary.
type ThresholdValue struct {
	Kind      ThresholdKind `json:"kind" yaml:"kind"`
	Magnitude float64       `json:"magnitude" yaml:"magnitude"`
}

// ThresholdKey identifies one alarmed metric on one device.
type ThresholdKey struct {
	Type     SensorType `json:"sensor_type"`
	Instance uint8      `json:"instance"`
	Metric   Metric     `json:"metric"`
}

func (k ThresholdKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Type, k.Instance, k.Metric)
}

// SensorKey returns the device half of the key.
func (k ThresholdKey) SensorKey() SensorKey {
	return SensorKey{Type: k.Type, Instance: k.Instance}
}

// ThresholdConfig is a user-configured alarm rule for one metric on one
// sensor instance. It persists independently of the sensor being online.
type ThresholdConfig struct {
	Type     SensorType `json:"sensor_type" yaml:"sensor_type"`
	Instance uint8      `json:"instance" yaml:"instance"`
	Metric   Metric     `json:"metric" yaml:"metric"`

	Critical   *ThresholdValue `json:"critical,omitempty" yaml:"critical,omitempty"`
	Warning    *ThresholdValue `json:"warning,omitempty" yaml:"warning,omitempty"`
	Hysteresis *ThresholdValue `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`

	Direction ThresholdDirection `json:"direction" yaml:"direction"`
	Enabled   bool               `json:"enabled" yaml:"enabled"`

	// AudioEnabled asks downstream consumers to sound the alarm; the
	// pipeline itself only forwards the flag.
	AudioEnabled bool   `json:"audio_enabled,omitempty" yaml:"audio_enabled,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Key returns the config's threshold key.
func (c *ThresholdConfig) Key() ThresholdKey {
	return ThresholdKey{Type: c.Type, Instance: c.Instance, Metric: c.Metric}
}

// Normalize fills derived defaults. A hysteresis without an explicit kind
// follows the critical threshold's kind, falling back to warning, so a
// relative rule clears on a relative margin unless configured otherwise.
func (c *ThresholdConfig) Normalize() {
	if c.Hysteresis == nil || c.Hysteresis.Kind != "" {
		return
	}
	switch {
	case c.Critical != nil:
		c.Hysteresis.Kind = c.Critical.Kind
	case c.Warning != nil:
		c.Hysteresis.Kind = c.Warning.Kind
	}
}

// Validate checks the config is usable. The alarm engine treats an invalid
// config the same as a disabled one; this is only an error at the editing
// surface.
func (c *ThresholdConfig) Validate() error {
	if !KnownSensorType(c.Type) {
		return fmt.Errorf("%w: unknown sensor type %q", ErrInvalidThreshold, c.Type)
	}
	if _, ok := MetricSpecFor(c.Type, c.Metric); !ok {
		return fmt.Errorf("%w: unknown metric %q for %s", ErrInvalidThreshold, c.Metric, c.Type)
	}
	if c.Direction != DirectionAbove && c.Direction != DirectionBelow {
		return fmt.Errorf("%w: direction must be above or below", ErrInvalidThreshold)
	}
	if c.Critical == nil && c.Warning == nil {
		return fmt.Errorf("%w: at least one of critical or warning is required", ErrInvalidThreshold)
	}
	for _, tv := range []*ThresholdValue{c.Critical, c.Warning, c.Hysteresis} {
		if tv == nil {
			continue
		}
		if tv.Kind != ThresholdAbsolute && tv.Kind != ThresholdRelative {
			return fmt.Errorf("%w: kind must be absolute or relative", ErrInvalidThreshold)
		}
	}
	if c.Hysteresis != nil && c.Hysteresis.Magnitude < 0 {
		return fmt.Errorf("%w: hysteresis magnitude must be non-negative", ErrInvalidThreshold)
	}
	return nil
}

// NeedsReference reports whether any configured boundary is relative and
// therefore needs a reference value to resolve.
func (c *ThresholdConfig) NeedsReference() bool {
	for _, tv := range []*ThresholdValue{c.Critical, c.Warning, c.Hysteresis} {
		if tv != nil && tv.Kind == ThresholdRelative {
			return true
		}
	}
	return false
}

// AlarmState is the per-metric alarm state machine's persistent half. It is
// mutated only by the alarm engine and survives reconnects and restarts so
// acknowledgment is not lost when a device goes quiet.
type AlarmState struct {
	Level            AlarmLevel `json:"level"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
	TransitionCount  uint64     `json:"transition_count"`
	Acknowledged     bool       `json:"acknowledged"`
}

// AlarmTrigger is an edge-triggered alarm event: emitted exactly once per
// level change, never repeated while a level persists.
type AlarmTrigger struct {
	ID        string             `json:"id"`
	Key       ThresholdKey       `json:"key"`
	Value     float64            `json:"value"`
	Level     AlarmLevel         `json:"level"`
	Previous  AlarmLevel         `json:"previous"`
	Threshold float64            `json:"threshold"`
	Direction ThresholdDirection `json:"direction"`
	At        time.Time          `json:"at"`
}
