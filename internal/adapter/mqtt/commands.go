package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// AlarmAdmin edits alarm rules and acknowledges active alarms.
type AlarmAdmin interface {
	SetThreshold(ctx context.Context, cfg domain.ThresholdConfig) error
	RemoveThreshold(ctx context.Context, key domain.ThresholdKey) error
	Acknowledge(key domain.ThresholdKey) error
}

// CommandPilot queues autopilot payloads for transmission.
type CommandPilot interface {
	Enqueue(cmd domain.AutopilotCommand) error
}

// CommandConfig holds configuration for the command handler.
type CommandConfig struct {
	// TopicPrefix is the MQTT topic prefix for commands
	// Default: "marine/cmd"
	TopicPrefix string

	// WriteTimeout bounds threshold persistence operations
	WriteTimeout time.Duration

	// EnableAcknowledgement determines if responses should be published
	EnableAcknowledgement bool
}

// DefaultCommandConfig returns sensible defaults for command handling.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		TopicPrefix:           "marine/cmd",
		WriteTimeout:          10 * time.Second,
		EnableAcknowledgement: true,
	}
}

// CommandStats tracks command handling statistics.
type CommandStats struct {
	CommandsReceived  atomic.Uint64
	CommandsSucceeded atomic.Uint64
	CommandsFailed    atomic.Uint64
	CommandsRejected  atomic.Uint64
}

// ThresholdRef addresses one alarm rule in ack and delete commands.
type ThresholdRef struct {
	RequestID string            `json:"request_id,omitempty"`
	Type      domain.SensorType `json:"sensor_type"`
	Instance  uint8             `json:"instance"`
	Metric    domain.Metric     `json:"metric"`
}

func (r ThresholdRef) key() domain.ThresholdKey {
	return domain.ThresholdKey{Type: r.Type, Instance: r.Instance, Metric: r.Metric}
}

// SetThresholdCommand installs or replaces an alarm rule.
type SetThresholdCommand struct {
	RequestID string                 `json:"request_id,omitempty"`
	Threshold domain.ThresholdConfig `json:"threshold"`
}

// CommandResponse reports the outcome of a command.
type CommandResponse struct {
	RequestID string    `json:"request_id,omitempty"`
	Command   string    `json:"command"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandHandler routes MQTT command messages to the alarm engine and the
// autopilot path.
type CommandHandler struct {
	client  *Client
	admin   AlarmAdmin
	pilot   CommandPilot
	config  CommandConfig
	logger  zerolog.Logger
	stats   *CommandStats
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(
	client *Client,
	admin AlarmAdmin,
	pilot CommandPilot,
	config CommandConfig,
	logger zerolog.Logger,
) *CommandHandler {
	if config.TopicPrefix == "" {
		config.TopicPrefix = "marine/cmd"
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &CommandHandler{
		client: client,
		admin:  admin,
		pilot:  pilot,
		config: config,
		logger: logger.With().Str("component", "command-handler").Logger(),
		stats:  &CommandStats{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the command topics and keeps the subscriptions alive
// across broker reconnects.
func (h *CommandHandler) Start() error {
	if h.running.Load() {
		return nil
	}

	h.logger.Info().
		Str("topic_prefix", h.config.TopicPrefix).
		Msg("Starting command handler")

	if err := h.subscribeAll(); err != nil {
		return err
	}
	h.client.RegisterOnConnect(func() {
		if !h.running.Load() {
			return
		}
		if err := h.subscribeAll(); err != nil {
			h.logger.Error().Err(err).Msg("Failed to resubscribe after reconnection")
		}
	})

	h.running.Store(true)
	h.logger.Info().Msg("Command handler started")

	return nil
}

// Stop unsubscribes and waits for in-flight commands.
func (h *CommandHandler) Stop() error {
	if !h.running.Load() {
		return nil
	}

	h.cancel()
	h.client.unsubscribe(
		h.topic("autopilot"),
		h.topic("alarms/ack"),
		h.topic("thresholds/set"),
		h.topic("thresholds/delete"),
	)

	h.wg.Wait()
	h.running.Store(false)

	h.logger.Info().Msg("Command handler stopped")
	return nil
}

func (h *CommandHandler) subscribeAll() error {
	subscriptions := []struct {
		topic   string
		handler paho.MessageHandler
	}{
		{h.topic("autopilot"), h.handleAutopilot},
		{h.topic("alarms/ack"), h.handleAcknowledge},
		{h.topic("thresholds/set"), h.handleSetThreshold},
		{h.topic("thresholds/delete"), h.handleDeleteThreshold},
	}

	for _, sub := range subscriptions {
		if err := h.client.subscribe(sub.topic, sub.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *CommandHandler) topic(suffix string) string {
	return fmt.Sprintf("%s/%s", h.config.TopicPrefix, suffix)
}

// handleAutopilot queues a pre-encoded parameter-group payload.
// Topic: marine/cmd/autopilot
func (h *CommandHandler) handleAutopilot(_ paho.Client, msg paho.Message) {
	h.stats.CommandsReceived.Add(1)

	var cmd domain.AutopilotCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to parse autopilot command")
		h.stats.CommandsRejected.Add(1)
		h.respond("autopilot", cmd.RequestID, false, "invalid payload")
		return
	}

	if err := h.pilot.Enqueue(cmd); err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", cmd.RequestID).
			Uint32("pgn", cmd.PGN).
			Msg("Autopilot command rejected")
		h.stats.CommandsFailed.Add(1)
		h.respond("autopilot", cmd.RequestID, false, err.Error())
		return
	}

	h.stats.CommandsSucceeded.Add(1)
	h.respond("autopilot", cmd.RequestID, true, "")
}

// handleAcknowledge marks an active alarm as seen.
// Topic: marine/cmd/alarms/ack
func (h *CommandHandler) handleAcknowledge(_ paho.Client, msg paho.Message) {
	h.stats.CommandsReceived.Add(1)

	var ref ThresholdRef
	if err := json.Unmarshal(msg.Payload(), &ref); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to parse acknowledge command")
		h.stats.CommandsRejected.Add(1)
		h.respond("alarms/ack", ref.RequestID, false, "invalid payload")
		return
	}

	if err := h.admin.Acknowledge(ref.key()); err != nil {
		h.stats.CommandsFailed.Add(1)
		h.respond("alarms/ack", ref.RequestID, false, err.Error())
		return
	}

	h.logger.Info().Str("key", ref.key().String()).Msg("Alarm acknowledged")
	h.stats.CommandsSucceeded.Add(1)
	h.respond("alarms/ack", ref.RequestID, true, "")
}

// handleSetThreshold installs or replaces an alarm rule.
// Topic: marine/cmd/thresholds/set
func (h *CommandHandler) handleSetThreshold(_ paho.Client, msg paho.Message) {
	h.stats.CommandsReceived.Add(1)

	var cmd SetThresholdCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to parse threshold command")
		h.stats.CommandsRejected.Add(1)
		h.respond("thresholds/set", cmd.RequestID, false, "invalid payload")
		return
	}

	// Persistence write-through can take a moment; keep the MQTT callback
	// free.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
		defer cancel()

		if err := h.admin.SetThreshold(ctx, cmd.Threshold); err != nil {
			h.logger.Warn().
				Err(err).
				Str("key", cmd.Threshold.Key().String()).
				Msg("Set threshold failed")
			h.stats.CommandsFailed.Add(1)
			h.respond("thresholds/set", cmd.RequestID, false, err.Error())
			return
		}

		h.stats.CommandsSucceeded.Add(1)
		h.respond("thresholds/set", cmd.RequestID, true, "")
	}()
}

// handleDeleteThreshold removes an alarm rule.
// Topic: marine/cmd/thresholds/delete
func (h *CommandHandler) handleDeleteThreshold(_ paho.Client, msg paho.Message) {
	h.stats.CommandsReceived.Add(1)

	var ref ThresholdRef
	if err := json.Unmarshal(msg.Payload(), &ref); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to parse threshold delete command")
		h.stats.CommandsRejected.Add(1)
		h.respond("thresholds/delete", ref.RequestID, false, "invalid payload")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
		defer cancel()

		if err := h.admin.RemoveThreshold(ctx, ref.key()); err != nil {
			h.stats.CommandsFailed.Add(1)
			h.respond("thresholds/delete", ref.RequestID, false, err.Error())
			return
		}

		h.stats.CommandsSucceeded.Add(1)
		h.respond("thresholds/delete", ref.RequestID, true, "")
	}()
}

// respond publishes a command outcome.
// Topic: marine/cmd/response/{command}
func (h *CommandHandler) respond(command, requestID string, success bool, errMsg string) {
	if !h.config.EnableAcknowledgement {
		return
	}

	response := CommandResponse{
		RequestID: requestID,
		Command:   command,
		Success:   success,
		Error:     errMsg,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(response)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal response")
		return
	}

	topic := fmt.Sprintf("%s/response/%s", h.config.TopicPrefix, command)
	if err := h.client.publish(topic, false, payload); err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish response")
	}
}

// Stats returns command handler statistics
func (h *CommandHandler) Stats() map[string]interface{} {
	return map[string]interface{}{
		"commands_received":  h.stats.CommandsReceived.Load(),
		"commands_succeeded": h.stats.CommandsSucceeded.Load(),
		"commands_failed":    h.stats.CommandsFailed.Load(),
		"commands_rejected":  h.stats.CommandsRejected.Load(),
	}
}
