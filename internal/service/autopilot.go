package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea0183"
	"github.com/nexus-edge/marine-gateway/internal/protocol/nmea2000"
)

// CommandSender transmits one encoded frame to the bridge.
type CommandSender interface {
	Send(frame []byte) error
}

// AutopilotConfig contains autopilot command path configuration
type AutopilotConfig struct {
	// QueueSize bounds commands waiting on the rate limiter. A full queue
	// rejects instead of blocking the caller.
	QueueSize int

	// RatePerSecond caps transmission toward the pilot head.
	RatePerSecond float64

	// ASCIIOnly encodes commands as $PCDIN sentences for bridges that do
	// not pass raw binary frames.
	ASCIIOnly bool

	// Source is the sender address stamped on outgoing frames.
	Source uint8
}

// Autopilot queues pre-encoded parameter-group payloads and transmits them
// to the bridge at a bounded rate. Payload contents are never interpreted.
type Autopilot struct {
	config  AutopilotConfig
	sender  CommandSender
	logger  zerolog.Logger
	metrics *metrics.Registry

	queue   chan domain.AutopilotCommand
	limiter *rate.Limiter

	// Stats
	sent     atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAutopilot creates a new autopilot command path
func NewAutopilot(
	config AutopilotConfig,
	sender CommandSender,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *Autopilot {
	if config.QueueSize <= 0 {
		config.QueueSize = 32
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 3
	}

	return &Autopilot{
		config:  config,
		sender:  sender,
		logger:  logger.With().Str("component", "autopilot").Logger(),
		metrics: metricsReg,
		queue:   make(chan domain.AutopilotCommand, config.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
	}
}

// Start begins the transmit worker
func (a *Autopilot) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.worker()

	a.logger.Info().
		Float64("rate_per_second", a.config.RatePerSecond).
		Bool("ascii_only", a.config.ASCIIOnly).
		Msg("Autopilot command path started")
}

// Stop abandons queued commands and stops the worker
func (a *Autopilot) Stop(ctx context.Context) error {
	var stopErr error

	a.stopOnce.Do(func() {
		a.logger.Info().Msg("Stopping autopilot command path...")

		a.cancel()

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info().Msg("Autopilot command path stopped")
		case <-ctx.Done():
			a.logger.Warn().Msg("Autopilot stop timeout")
			stopErr = ctx.Err()
		}
	})

	return stopErr
}

// Enqueue validates a command and adds it to the send queue without
// blocking.
func (a *Autopilot) Enqueue(cmd domain.AutopilotCommand) error {
	if err := cmd.Validate(); err != nil {
		a.rejected.Add(1)
		a.metrics.IncCommandsRejected()
		return err
	}
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = time.Now()
	}

	select {
	case a.queue <- cmd:
		return nil
	default:
		a.rejected.Add(1)
		a.metrics.IncCommandsRejected()
		return fmt.Errorf("%w: autopilot queue at %d", domain.ErrQueueFull, cap(a.queue))
	}
}

func (a *Autopilot) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case cmd := <-a.queue:
			if err := a.limiter.Wait(a.ctx); err != nil {
				return
			}
			a.transmit(cmd)
		}
	}
}

func (a *Autopilot) transmit(cmd domain.AutopilotCommand) {
	frame := a.encode(cmd)

	if err := a.sender.Send(frame); err != nil {
		a.failed.Add(1)
		a.metrics.IncCommandsRejected()
		a.logger.Warn().
			Err(err).
			Str("request_id", cmd.RequestID).
			Uint32("pgn", cmd.PGN).
			Msg("Failed to transmit autopilot command")
		return
	}

	a.sent.Add(1)
	a.metrics.IncCommandsSent()
	a.logger.Debug().
		Str("request_id", cmd.RequestID).
		Uint32("pgn", cmd.PGN).
		Uint8("priority", cmd.Priority).
		Int("payload_bytes", len(cmd.Data)).
		Dur("queued", time.Since(cmd.EnqueuedAt)).
		Msg("Autopilot command sent")
}

// encode frames the payload for the configured transport.
func (a *Autopilot) encode(cmd domain.AutopilotCommand) []byte {
	if a.config.ASCIIOnly {
		return []byte(nmea0183.EncodePCDIN(cmd.PGN, uint32(time.Now().UnixMilli()), a.config.Source, cmd.Data))
	}
	frame := nmea2000.Frame{PGN: cmd.PGN, Source: a.config.Source, Data: cmd.Data}
	return frame.Marshal()
}

// Stats returns autopilot statistics
func (a *Autopilot) Stats() map[string]interface{} {
	return map[string]interface{}{
		"commands_sent":     a.sent.Load(),
		"commands_rejected": a.rejected.Load(),
		"send_failures":     a.failed.Load(),
		"queue_depth":       len(a.queue),
	}
}
