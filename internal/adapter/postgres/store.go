// Package postgres persists alarm rules and alarm states in PostgreSQL so
// they survive gateway restarts.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// StoreConfig contains PostgreSQL store configuration
type StoreConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	PoolSize    int
	MaxIdleTime time.Duration

	// BreakerThreshold is the number of consecutive failures before the
	// circuit opens
	BreakerThreshold uint32

	// BreakerCooldown is how long the circuit stays open before a probe
	// is allowed through
	BreakerCooldown time.Duration
}

// Store persists thresholds and alarm states behind a circuit breaker.
type Store struct {
	pool    *pgxpool.Pool
	config  StoreConfig
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker[any]

	queries     atomic.Uint64
	queryErrors atomic.Uint64
}

// NewStore creates a new PostgreSQL store and verifies connectivity.
func NewStore(ctx context.Context, config StoreConfig, logger zerolog.Logger) (*Store, error) {
	if config.PoolSize <= 0 {
		config.PoolSize = 4
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = 5 * time.Minute
	}
	if config.BreakerThreshold == 0 {
		config.BreakerThreshold = 5
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = 30 * time.Second
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?pool_max_conns=%d&pool_max_conn_idle_time=%s",
		config.User,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.PoolSize,
		config.MaxIdleTime.String(),
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	componentLogger := logger.With().Str("component", "postgres-store").Logger()

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "postgres",
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	s := &Store{
		pool:    pool,
		config:  config,
		logger:  componentLogger,
		breaker: breaker,
	}

	s.logger.Info().
		Str("host", config.Host).
		Int("port", config.Port).
		Str("database", config.Database).
		Int("pool_size", config.PoolSize).
		Msg("PostgreSQL store initialized")

	return s, nil
}

// EnsureSchema creates the threshold and alarm state tables if they do not
// exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS thresholds (
			sensor_type TEXT        NOT NULL,
			instance    SMALLINT    NOT NULL,
			metric      TEXT        NOT NULL,
			config      JSONB       NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (sensor_type, instance, metric)
		)`,
		`CREATE TABLE IF NOT EXISTS alarm_states (
			sensor_type TEXT        NOT NULL,
			instance    SMALLINT    NOT NULL,
			metric      TEXT        NOT NULL,
			state       JSONB       NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (sensor_type, instance, metric)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s.logger.Info().Msg("Schema verified")
	return nil
}

// execute runs op through the circuit breaker and tracks query statistics.
func (s *Store) execute(op func() error) error {
	s.queries.Add(1)

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, op()
	})
	if err != nil {
		s.queryErrors.Add(1)
	}
	return err
}

// LoadThresholds returns all persisted alarm rules.
func (s *Store) LoadThresholds(ctx context.Context) ([]domain.ThresholdConfig, error) {
	var configs []domain.ThresholdConfig

	err := s.execute(func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT config FROM thresholds ORDER BY sensor_type, instance, metric`)
		if err != nil {
			return fmt.Errorf("failed to query thresholds: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return fmt.Errorf("failed to scan threshold row: %w", err)
			}

			var cfg domain.ThresholdConfig
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("failed to decode threshold config: %w", err)
			}
			configs = append(configs, cfg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return configs, nil
}

// SaveThreshold inserts or replaces one alarm rule.
func (s *Store) SaveThreshold(ctx context.Context, cfg domain.ThresholdConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode threshold config: %w", err)
	}

	return s.execute(func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO thresholds (sensor_type, instance, metric, config)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (sensor_type, instance, metric)
			 DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
			string(cfg.Type), int16(cfg.Instance), string(cfg.Metric), payload)
		if err != nil {
			return fmt.Errorf("failed to save threshold: %w", err)
		}
		return nil
	})
}

// DeleteThreshold removes one alarm rule and its saved alarm state.
func (s *Store) DeleteThreshold(ctx context.Context, key domain.ThresholdKey) error {
	return s.execute(func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		const where = `WHERE sensor_type = $1 AND instance = $2 AND metric = $3`
		args := []any{string(key.Type), int16(key.Instance), string(key.Metric)}

		if _, err := tx.Exec(ctx, `DELETE FROM thresholds `+where, args...); err != nil {
			return fmt.Errorf("failed to delete threshold: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM alarm_states `+where, args...); err != nil {
			return fmt.Errorf("failed to delete alarm state: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// LoadAlarmStates returns the persisted alarm state per rule.
func (s *Store) LoadAlarmStates(ctx context.Context) (map[domain.ThresholdKey]domain.AlarmState, error) {
	states := make(map[domain.ThresholdKey]domain.AlarmState)

	err := s.execute(func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT sensor_type, instance, metric, state FROM alarm_states`)
		if err != nil {
			return fmt.Errorf("failed to query alarm states: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sensorType string
				instance   int16
				metric     string
				raw        []byte
			)
			if err := rows.Scan(&sensorType, &instance, &metric, &raw); err != nil {
				return fmt.Errorf("failed to scan alarm state row: %w", err)
			}

			var st domain.AlarmState
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("failed to decode alarm state: %w", err)
			}

			key := domain.ThresholdKey{
				Type:     domain.SensorType(sensorType),
				Instance: uint8(instance),
				Metric:   domain.Metric(metric),
			}
			states[key] = st
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return states, nil
}

// SaveAlarmState inserts or replaces the alarm state for one rule.
func (s *Store) SaveAlarmState(ctx context.Context, key domain.ThresholdKey, st domain.AlarmState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode alarm state: %w", err)
	}

	return s.execute(func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO alarm_states (sensor_type, instance, metric, state)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (sensor_type, instance, metric)
			 DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
			string(key.Type), int16(key.Instance), string(key.Metric), payload)
		if err != nil {
			return fmt.Errorf("failed to save alarm state: %w", err)
		}
		return nil
	})
}

// IsHealthy checks if the database connection is healthy
func (s *Store) IsHealthy(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// Stats returns store statistics
func (s *Store) Stats() map[string]interface{} {
	poolStats := s.pool.Stat()

	return map[string]interface{}{
		"queries":          s.queries.Load(),
		"query_errors":     s.queryErrors.Load(),
		"breaker_state":    s.breaker.State().String(),
		"pool_total_conns": poolStats.TotalConns(),
		"pool_idle_conns":  poolStats.IdleConns(),
		"pool_acquired":    poolStats.AcquiredConns(),
	}
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
	s.logger.Info().Msg("PostgreSQL store closed")
}
