package domain

import (
	"fmt"
	"time"
)

// MaxCommandPayload is the largest parameter-group payload accepted for
// outbound transmission.
const MaxCommandPayload = 223

// AutopilotCommand is a pre-encoded parameter-group payload queued for
// transmission to the bridge. The pipeline does not interpret the payload;
// it only frames and rate-limits it.
type AutopilotCommand struct {
	// RequestID correlates the command with its response on the command
	// channel.
	RequestID string `json:"request_id,omitempty"`

	// PGN is the parameter group the payload belongs to.
	PGN uint32 `json:"pgn"`

	// Priority is the bus priority (0 highest, 7 lowest).
	Priority uint8 `json:"priority,omitempty"`

	// Data is the raw parameter-group payload.
	Data []byte `json:"data"`

	// EnqueuedAt is when the command entered the send queue.
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// Validate checks the command is transmittable.
func (c *AutopilotCommand) Validate() error {
	if c.PGN == 0 || c.PGN > 0x1FFFF {
		return fmt.Errorf("%w: pgn %d out of range", ErrCommandInvalid, c.PGN)
	}
	if c.Priority > 7 {
		return fmt.Errorf("%w: priority %d out of range", ErrCommandInvalid, c.Priority)
	}
	if len(c.Data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrCommandInvalid)
	}
	if len(c.Data) > MaxCommandPayload {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrCommandInvalid, len(c.Data), MaxCommandPayload)
	}
	return nil
}
