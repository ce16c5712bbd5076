// Package mqtt publishes gateway telemetry and accepts commands over an
// MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ClientConfig contains MQTT client configuration
type ClientConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	CleanSession   bool
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Client wraps the paho connection shared by the publisher and the command
// handler.
type Client struct {
	config ClientConfig
	client paho.Client
	logger zerolog.Logger

	isConnected atomic.Bool

	onConnectMu sync.Mutex
	onConnect   []func()
}

// NewClient creates a new MQTT client
func NewClient(config ClientConfig, logger zerolog.Logger) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}

	c := &Client{
		config: config,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}

	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetKeepAlive(config.KeepAlive).
		SetCleanSession(config.CleanSession).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(config.ReconnectDelay).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	c.client = paho.NewClient(opts)

	return c
}

// Connect establishes the broker connection
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info().
		Str("broker", c.config.BrokerURL).
		Str("client_id", c.config.ClientID).
		Msg("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connection failed: %w", token.Error())
	}

	return nil
}

// Disconnect cleanly disconnects from the broker
func (c *Client) Disconnect() {
	c.client.Disconnect(5000)
	c.isConnected.Store(false)
	c.logger.Info().Msg("Disconnected from MQTT broker")
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.client.IsConnected()
}

// RegisterOnConnect adds a callback run on every (re)connection. Used to
// restore subscriptions.
func (c *Client) RegisterOnConnect(cb func()) {
	c.onConnectMu.Lock()
	c.onConnect = append(c.onConnect, cb)
	c.onConnectMu.Unlock()
}

// Stats returns MQTT client statistics
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected": c.IsConnected(),
		"broker":    c.config.BrokerURL,
		"client_id": c.config.ClientID,
	}
}

// publish sends one message and waits no longer than the publish timeout.
func (c *Client) publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, c.config.QoS, retained, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	return token.Error()
}

// subscribe registers a handler for a topic filter.
func (c *Client) subscribe(topic string, handler paho.MessageHandler) error {
	token := c.client.Subscribe(topic, c.config.QoS, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe timeout on %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe failed on %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) unsubscribe(topics ...string) {
	c.client.Unsubscribe(topics...)
}

func (c *Client) handleConnect(_ paho.Client) {
	c.isConnected.Store(true)
	c.logger.Info().Msg("Connected to MQTT broker")

	c.onConnectMu.Lock()
	callbacks := append([]func(){}, c.onConnect...)
	c.onConnectMu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	c.isConnected.Store(false)
	c.logger.Warn().Err(err).Msg("Connection lost to MQTT broker")
}
