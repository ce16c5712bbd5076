// Package config loads the gateway configuration from a YAML file with
// GATEWAY_* environment overrides, and the per-instance context catalog.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// Config represents the complete gateway configuration
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Alarms    AlarmsConfig    `mapstructure:"alarms"`
	Autopilot AutopilotConfig `mapstructure:"autopilot"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServiceConfig contains service identification
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// BridgeConfig contains the NMEA bridge connection settings
type BridgeConfig struct {
	Address        string        `mapstructure:"address"`
	Port           int           `mapstructure:"port"`
	Transport      string        `mapstructure:"transport"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	FrameBuffer    int           `mapstructure:"frame_buffer"`
	StatusBuffer   int           `mapstructure:"status_buffer"`
}

// Connection maps the section onto the domain connection settings.
func (b BridgeConfig) Connection() domain.ConnectionConfig {
	return domain.ConnectionConfig{
		Address:        b.Address,
		Port:           b.Port,
		Transport:      domain.TransportKind(b.Transport),
		ConnectTimeout: b.ConnectTimeout,
	}
}

// PipelineConfig contains store updater settings
type PipelineConfig struct {
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

// AlarmsConfig contains alarm engine settings
type AlarmsConfig struct {
	InstancesFile string        `mapstructure:"instances_file"`
	SaverBuffer   int           `mapstructure:"saver_buffer"`
	SaveTimeout   time.Duration `mapstructure:"save_timeout"`
}

// AutopilotConfig contains command path settings
type AutopilotConfig struct {
	QueueSize     int     `mapstructure:"queue_size"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	ASCIIOnly     bool    `mapstructure:"ascii_only"`
	Source        uint8   `mapstructure:"source"`
}

// MQTTConfig contains MQTT connection settings
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	CleanSession   bool          `mapstructure:"clean_session"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandPrefix  string        `mapstructure:"command_prefix"`
	Acknowledge    bool          `mapstructure:"acknowledge_commands"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	PoolSize         int           `mapstructure:"pool_size"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// WebsocketConfig contains live feed settings
type WebsocketConfig struct {
	SendBuffer      int `mapstructure:"send_buffer"`
	BroadcastBuffer int `mapstructure:"broadcast_buffer"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration. An explicit path must exist; with an empty
// path the default locations are searched and defaults plus environment
// cover a missing file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MQTT.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.MQTT.ClientID = fmt.Sprintf("marine-gateway-%s", hostname)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "marine-gateway")
	v.SetDefault("service.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("bridge.address", "")
	v.SetDefault("bridge.port", 2000)
	v.SetDefault("bridge.transport", "tcp")
	v.SetDefault("bridge.connect_timeout", 10*time.Second)
	v.SetDefault("bridge.frame_buffer", 512)
	v.SetDefault("bridge.status_buffer", 16)

	v.SetDefault("pipeline.throttle_window", 100*time.Millisecond)
	v.SetDefault("pipeline.event_buffer", 256)

	v.SetDefault("alarms.instances_file", "configs/instances.yaml")
	v.SetDefault("alarms.saver_buffer", 64)
	v.SetDefault("alarms.save_timeout", 5*time.Second)

	v.SetDefault("autopilot.queue_size", 32)
	v.SetDefault("autopilot.rate_per_second", 3.0)
	v.SetDefault("autopilot.ascii_only", false)
	v.SetDefault("autopilot.source", 7)

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", 30*time.Second)
	v.SetDefault("mqtt.clean_session", false)
	v.SetDefault("mqtt.reconnect_delay", 5*time.Second)
	v.SetDefault("mqtt.connect_timeout", 30*time.Second)
	v.SetDefault("mqtt.command_prefix", "marine/cmd")
	v.SetDefault("mqtt.acknowledge_commands", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "marine")
	v.SetDefault("database.user", "marine_gateway")
	v.SetDefault("database.password", "")
	v.SetDefault("database.pool_size", 4)
	v.SetDefault("database.max_idle_time", 5*time.Minute)
	v.SetDefault("database.breaker_threshold", 5)
	v.SetDefault("database.breaker_cooldown", 30*time.Second)

	v.SetDefault("websocket.send_buffer", 32)
	v.SetDefault("websocket.broadcast_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if err := cfg.Bridge.Connection().Validate(); err != nil {
		return err
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", cfg.HTTP.Port)
	}
	if cfg.MQTT.Enabled && cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.Database.Enabled {
		if cfg.Database.Host == "" || cfg.Database.Database == "" || cfg.Database.User == "" {
			return fmt.Errorf("database host, name and user are required when the database is enabled")
		}
		if cfg.Database.Password == "" && cfg.Service.Environment == "production" {
			return fmt.Errorf("database password is required in production")
		}
	}
	if cfg.Autopilot.RatePerSecond <= 0 {
		return fmt.Errorf("autopilot rate_per_second must be positive")
	}
	if cfg.Pipeline.ThrottleWindow < 0 {
		return fmt.Errorf("pipeline throttle_window must not be negative")
	}
	return nil
}
