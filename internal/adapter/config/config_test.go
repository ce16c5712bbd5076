package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bridge:
  address: 192.168.4.1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "marine-gateway", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "192.168.4.1", cfg.Bridge.Address)
	assert.Equal(t, 2000, cfg.Bridge.Port)
	assert.Equal(t, "tcp", cfg.Bridge.Transport)
	assert.Equal(t, 10*time.Second, cfg.Bridge.ConnectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.ThrottleWindow)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "marine-gateway-"))
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 3.0, cfg.Autopilot.RatePerSecond)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadParsesFullFile(t *testing.T) {
	path := writeConfig(t, `
service:
  name: helm-gateway
  environment: production
http:
  port: 9000
bridge:
  address: 10.0.0.50
  port: 1457
  transport: udp
  connect_timeout: 5s
pipeline:
  throttle_window: 50ms
  event_buffer: 128
alarms:
  instances_file: /etc/gateway/instances.yaml
  save_timeout: 2s
autopilot:
  queue_size: 8
  rate_per_second: 1.5
  ascii_only: true
  source: 9
mqtt:
  broker_url: tcp://broker.local:1883
  username: helm
  password: secret
  qos: 2
database:
  enabled: true
  host: db.local
  database: vessel
  user: gateway
  password: secret
  pool_size: 8
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "helm-gateway", cfg.Service.Name)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "udp", cfg.Bridge.Transport)
	assert.Equal(t, 1457, cfg.Bridge.Port)
	assert.Equal(t, 5*time.Second, cfg.Bridge.ConnectTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.ThrottleWindow)
	assert.Equal(t, 128, cfg.Pipeline.EventBuffer)
	assert.Equal(t, "/etc/gateway/instances.yaml", cfg.Alarms.InstancesFile)
	assert.Equal(t, 2*time.Second, cfg.Alarms.SaveTimeout)
	assert.Equal(t, 1.5, cfg.Autopilot.RatePerSecond)
	assert.True(t, cfg.Autopilot.ASCIIOnly)
	assert.Equal(t, uint8(9), cfg.Autopilot.Source)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, "helm", cfg.MQTT.Username)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Database.PoolSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	conn := cfg.Bridge.Connection()
	assert.Equal(t, domain.TransportUDP, conn.Transport)
	assert.Equal(t, "10.0.0.50:1457", conn.Endpoint())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_BRIDGE_ADDRESS", "172.16.0.9")
	t.Setenv("GATEWAY_HTTP_PORT", "9090")
	t.Setenv("GATEWAY_MQTT_BROKER_URL", "tcp://env-broker:1883")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "172.16.0.9", cfg.Bridge.Address)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.BrokerURL)
}

func TestLoadRejectsMissingBridgeAddress(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 8080
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
bridge:
  address: 192.168.4.1
  transport: serial
`)

	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrTransportUnsupported)
}

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsProductionWithoutDBPassword(t *testing.T) {
	path := writeConfig(t, `
service:
  environment: production
bridge:
  address: 192.168.4.1
database:
  enabled: true
  host: db.local
  database: vessel
  user: gateway
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}
