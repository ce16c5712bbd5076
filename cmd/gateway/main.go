// Package main is the entry point for the marine gateway. It wires the
// bridge connection, the telemetry pipeline, the alarm engine, and the
// outbound surfaces, and manages the application lifecycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexus-edge/marine-gateway/internal/adapter/bridge"
	"github.com/nexus-edge/marine-gateway/internal/adapter/config"
	"github.com/nexus-edge/marine-gateway/internal/adapter/memstore"
	"github.com/nexus-edge/marine-gateway/internal/adapter/mqtt"
	"github.com/nexus-edge/marine-gateway/internal/adapter/postgres"
	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/health"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
	"github.com/nexus-edge/marine-gateway/internal/service"
	"github.com/nexus-edge/marine-gateway/internal/state"
	"github.com/nexus-edge/marine-gateway/internal/websocket"
	"github.com/nexus-edge/marine-gateway/pkg/logging"
)

var version = "dev"

func main() {
	// Initialize logger
	logger := logging.NewLogger("info", "json")
	logger.Info().
		Str("version", version).
		Str("service", "marine-gateway").
		Msg("Starting Marine Gateway")

	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Update logger level from config
	logger = logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	// Load instance context catalog
	instances, err := config.LoadInstances(cfg.Alarms.InstancesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load instance context")
	}
	logger.Info().Int("count", len(instances)).Msg("Instance context loaded")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics registry
	metricsRegistry := metrics.NewRegistry()

	// Initialize the live state store
	store := state.NewStore()

	// Initialize alarm persistence
	var persistence service.ThresholdStore
	var pgStore *postgres.Store
	if cfg.Database.Enabled {
		pgStore, err = postgres.NewStore(ctx, postgres.StoreConfig{
			Host:             cfg.Database.Host,
			Port:             cfg.Database.Port,
			Database:         cfg.Database.Database,
			User:             cfg.Database.User,
			Password:         cfg.Database.Password,
			PoolSize:         cfg.Database.PoolSize,
			MaxIdleTime:      cfg.Database.MaxIdleTime,
			BreakerThreshold: cfg.Database.BreakerThreshold,
			BreakerCooldown:  cfg.Database.BreakerCooldown,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL store")
		}
		defer pgStore.Close()

		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		persistence = pgStore
	} else {
		logger.Info().Msg("Database disabled, alarm state is kept in memory")
		persistence = memstore.New()
	}

	// Initialize the bridge connection
	bridgeClient := bridge.NewClient(bridge.Config{
		Connection:   cfg.Bridge.Connection(),
		FrameBuffer:  cfg.Bridge.FrameBuffer,
		StatusBuffer: cfg.Bridge.StatusBuffer,
	}, logger, metricsRegistry)

	// Initialize the WebSocket hub
	hub := websocket.NewHub(websocket.HubConfig{
		SendBuffer:      cfg.Websocket.SendBuffer,
		BroadcastBuffer: cfg.Websocket.BroadcastBuffer,
	}, logger, metricsRegistry)

	sinks := []service.EventPublisher{hub}

	// Initialize MQTT surfaces
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(mqtt.ClientConfig{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			CleanSession:   cfg.MQTT.CleanSession,
			ReconnectDelay: cfg.MQTT.ReconnectDelay,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, logger)

		if err := mqttClient.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer mqttClient.Disconnect()

		sinks = append(sinks, mqtt.NewPublisher(mqttClient, logger))
	}

	// Initialize the telemetry pipeline
	pipeline := service.NewPipeline(service.PipelineConfig{
		Updater: service.UpdaterConfig{
			ThrottleWindow: cfg.Pipeline.ThrottleWindow,
			EventBuffer:    cfg.Pipeline.EventBuffer,
		},
		Alarm: service.AlarmConfig{
			SaverBuffer: cfg.Alarms.SaverBuffer,
			SaveTimeout: cfg.Alarms.SaveTimeout,
		},
		Instances: instances,
	}, bridgeClient, store, persistence, config.References(instances), sinks, logger, metricsRegistry)

	// Initialize the autopilot command path
	autopilot := service.NewAutopilot(service.AutopilotConfig{
		QueueSize:     cfg.Autopilot.QueueSize,
		RatePerSecond: cfg.Autopilot.RatePerSecond,
		ASCIIOnly:     cfg.Autopilot.ASCIIOnly,
		Source:        cfg.Autopilot.Source,
	}, bridgeClient, logger, metricsRegistry)

	// Initialize the MQTT command handler
	var commandHandler *mqtt.CommandHandler
	if cfg.MQTT.Enabled {
		commandHandler = mqtt.NewCommandHandler(mqttClient, pipeline.Engine(), autopilot, mqtt.CommandConfig{
			TopicPrefix:           cfg.MQTT.CommandPrefix,
			EnableAcknowledgement: cfg.MQTT.Acknowledge,
		}, logger)
	}

	// Initialize health checker
	healthChecker := health.NewChecker(logger)
	healthChecker.AddCheck("bridge", health.CheckFunc(func(context.Context) bool {
		return bridgeClient.Status().State == domain.ConnectionConnected
	}))
	if mqttClient != nil {
		healthChecker.AddCheck("mqtt", health.CheckFunc(func(context.Context) bool {
			return mqttClient.IsConnected()
		}))
	}
	if pgStore != nil {
		healthChecker.AddCheck("database", health.CheckFunc(pgStore.IsHealthy))
	}

	// Start HTTP server for health, status, state, live feed and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LiveHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
	mux.HandleFunc("/status", pipeline.StatusHandler)
	mux.HandleFunc("/state", pipeline.SnapshotHandler)
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Start components, sinks before sources
	if err := hub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start WebSocket hub")
	}

	autopilot.Start(ctx)

	if err := pipeline.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start pipeline")
	}

	if commandHandler != nil {
		if err := commandHandler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start command handler")
		}
	}

	logger.Info().
		Str("bridge", cfg.Bridge.Connection().Endpoint()).
		Str("transport", cfg.Bridge.Transport).
		Msg("Marine Gateway started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, stopping services...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake surfaces first, then drain the pipeline
	if commandHandler != nil {
		if err := commandHandler.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping command handler")
		}
	}

	if err := pipeline.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping pipeline")
	}

	if err := autopilot.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping autopilot")
	}

	if err := hub.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping WebSocket hub")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping HTTP server")
	}

	logger.Info().Msg("Marine Gateway stopped")
}
