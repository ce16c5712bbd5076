package mqtt

import (
	"fmt"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

const (
	telemetryTopicPrefix = "marine/telemetry"
	alarmTopicPrefix     = "marine/alarms"
	connectionTopic      = "marine/gateway/connection"
)

// Publisher fans pipeline events out to MQTT topics. Telemetry goes to
// marine/telemetry/<type>/<instance>, alarms to
// marine/alarms/<type>/<instance>/<metric>, and the connection status is
// retained on marine/gateway/connection so late subscribers see it.
type Publisher struct {
	client *Client
	logger zerolog.Logger

	// Stats
	published     atomic.Uint64
	dropped       atomic.Uint64
	publishErrors atomic.Uint64
}

// NewPublisher creates a new event publisher
func NewPublisher(client *Client, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With().Str("component", "mqtt-publisher").Logger(),
	}
}

// PublishChange publishes a sensor change event
func (p *Publisher) PublishChange(ev domain.ChangeEvent) {
	topic := fmt.Sprintf("%s/%s/%d", telemetryTopicPrefix, ev.Key.Type, ev.Key.Instance)
	p.send(topic, false, ev)
}

// PublishAlarm publishes an alarm transition
func (p *Publisher) PublishAlarm(trigger domain.AlarmTrigger) {
	topic := fmt.Sprintf("%s/%s/%d/%s", alarmTopicPrefix, trigger.Key.Type, trigger.Key.Instance, trigger.Key.Metric)
	p.send(topic, false, trigger)
}

// PublishStatus publishes the bridge connection status, retained
func (p *Publisher) PublishStatus(status domain.ConnectionStatus) {
	p.send(connectionTopic, true, status)
}

// send marshals and publishes without ever blocking the pipeline on a
// broker outage: disconnected means drop and count.
func (p *Publisher) send(topic string, retained bool, v interface{}) {
	if !p.client.IsConnected() {
		p.dropped.Add(1)
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		p.publishErrors.Add(1)
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}

	if err := p.client.publish(topic, retained, payload); err != nil {
		p.publishErrors.Add(1)
		p.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
		return
	}

	p.published.Add(1)
}

// Stats returns publisher statistics
func (p *Publisher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"published":      p.published.Load(),
		"dropped":        p.dropped.Load(),
		"publish_errors": p.publishErrors.Load(),
	}
}
