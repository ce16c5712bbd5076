package domain

import "errors"

// Connection errors. These are recovered locally by the bridge client's
// backoff loop and never surfaced as fatal.
var (
	ErrConnectionFailed     = errors.New("connection failed")
	ErrConnectionTimeout    = errors.New("connection timeout")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrTransportUnsupported = errors.New("unsupported transport")
)

// Parse errors. Counted and dropped; the pipeline continues with the next
// frame.
var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnsupported      = errors.New("unsupported message type")
)

// Normalize errors. Out-of-range values are rejected rather than clamped so
// that sensor faults stay visible in the error counters.
var (
	ErrOutOfRange        = errors.New("value out of range")
	ErrMissingField      = errors.New("missing required field")
	ErrUnknownSensorType = errors.New("unknown sensor type")
	ErrUnknownMetric     = errors.New("unknown metric")
)

// Alarm errors.
var (
	ErrMissingReference  = errors.New("relative threshold reference unavailable")
	ErrInvalidThreshold  = errors.New("invalid threshold configuration")
	ErrAlarmStateUnknown = errors.New("no alarm state for metric")
)

// Command errors.
var (
	ErrCommandInvalid = errors.New("invalid command")
	ErrQueueFull      = errors.New("queue full")
)
