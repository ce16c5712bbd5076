package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
	"github.com/nexus-edge/marine-gateway/internal/state"
)

// ThresholdStore persists alarm rules and alarm states. Deleting a
// threshold also deletes its alarm state.
type ThresholdStore interface {
	LoadThresholds(ctx context.Context) ([]domain.ThresholdConfig, error)
	SaveThreshold(ctx context.Context, cfg domain.ThresholdConfig) error
	DeleteThreshold(ctx context.Context, key domain.ThresholdKey) error
	LoadAlarmStates(ctx context.Context) (map[domain.ThresholdKey]domain.AlarmState, error)
	SaveAlarmState(ctx context.Context, key domain.ThresholdKey, st domain.AlarmState) error
}

// AlarmConfig contains alarm engine configuration
type AlarmConfig struct {
	// SaverBuffer is the queue depth for asynchronous alarm state writes.
	SaverBuffer int

	// SaveTimeout bounds a single persistence write.
	SaveTimeout time.Duration
}

// AlarmEngine evaluates changed metrics against configured thresholds and
// drives one state machine per (type, instance, metric). Triggers are edge
// events: one per level change, never repeated while a level holds.
type AlarmEngine struct {
	config      AlarmConfig
	persistence ThresholdStore
	store       *state.Store
	logger      zerolog.Logger
	metrics     *metrics.Registry

	mu      sync.Mutex
	configs map[domain.ThresholdKey]domain.ThresholdConfig
	states  map[domain.ThresholdKey]*domain.AlarmState

	// Static reference values from instance configuration, used for
	// relative thresholds when the live capacity metric is absent.
	refs map[domain.SensorKey]float64

	saves chan stateSave

	// Stats
	evaluations atomic.Uint64
	transitions atomic.Uint64
	skipped     atomic.Uint64

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type stateSave struct {
	key   domain.ThresholdKey
	state domain.AlarmState
}

// NewAlarmEngine creates a new alarm engine
func NewAlarmEngine(
	config AlarmConfig,
	persistence ThresholdStore,
	store *state.Store,
	refs map[domain.SensorKey]float64,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *AlarmEngine {
	if config.SaverBuffer <= 0 {
		config.SaverBuffer = 64
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = 5 * time.Second
	}
	if refs == nil {
		refs = make(map[domain.SensorKey]float64)
	}

	return &AlarmEngine{
		config:      config,
		persistence: persistence,
		store:       store,
		logger:      logger.With().Str("component", "alarm").Logger(),
		metrics:     metricsReg,
		configs:     make(map[domain.ThresholdKey]domain.ThresholdConfig),
		states:      make(map[domain.ThresholdKey]*domain.AlarmState),
		refs:        refs,
		saves:       make(chan stateSave, config.SaverBuffer),
	}
}

// Start loads persisted thresholds and alarm states, then begins the
// asynchronous state writer
func (e *AlarmEngine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	configs, err := e.persistence.LoadThresholds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load thresholds: %w", err)
	}
	states, err := e.persistence.LoadAlarmStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load alarm states: %w", err)
	}

	e.mu.Lock()
	for _, cfg := range configs {
		cfg.Normalize()
		e.configs[cfg.Key()] = cfg
	}
	for key, st := range states {
		s := st
		e.states[key] = &s
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go e.saverLoop()

	e.logger.Info().
		Int("thresholds", len(configs)).
		Int("alarm_states", len(states)).
		Msg("Alarm engine started")

	return nil
}

// Stop flushes queued state writes and stops the engine
func (e *AlarmEngine) Stop(ctx context.Context) error {
	var stopErr error

	e.stopOnce.Do(func() {
		e.logger.Info().Msg("Stopping alarm engine...")

		e.cancel()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			e.logger.Info().Msg("Alarm engine stopped")
		case <-ctx.Done():
			e.logger.Warn().Msg("Alarm engine stop timeout")
			stopErr = ctx.Err()
		}
	})

	return stopErr
}

// Evaluate runs every changed metric in the event through its threshold
// config and returns a trigger for each level transition. A connection loss
// never passes through here, so alarm state survives reconnects untouched.
func (e *AlarmEngine) Evaluate(ev domain.ChangeEvent) []domain.AlarmTrigger {
	e.mu.Lock()
	defer e.mu.Unlock()

	var triggers []domain.AlarmTrigger

	for _, metric := range ev.Changed {
		value, ok := ev.Metrics[metric]
		if !ok {
			continue
		}
		key := domain.ThresholdKey{Type: ev.Key.Type, Instance: ev.Key.Instance, Metric: metric}
		e.evaluations.Add(1)

		cfg, ok := e.configs[key]
		if !ok || !cfg.Enabled || cfg.Validate() != nil {
			e.resetLocked(key)
			continue
		}

		ref := 1.0
		if cfg.NeedsReference() {
			ref, ok = e.resolveReference(ev.Key)
			if !ok {
				// Fail open: keep the previous state rather than guess.
				e.skipped.Add(1)
				e.metrics.IncAlarmEvalSkipped()
				e.logger.Debug().
					Str("key", key.String()).
					Msg("Skipping alarm evaluation, reference unresolved")
				continue
			}
		}

		if trigger, fired := e.transitionLocked(key, &cfg, value, ref, ev.At); fired {
			triggers = append(triggers, trigger)
		}
	}

	return triggers
}

// transitionLocked computes the target level for one metric value and
// applies the state change. Must be called with mu held.
func (e *AlarmEngine) transitionLocked(
	key domain.ThresholdKey,
	cfg *domain.ThresholdConfig,
	value, ref float64,
	at time.Time,
) (domain.AlarmTrigger, bool) {
	st, ok := e.states[key]
	if !ok {
		st = &domain.AlarmState{Level: domain.AlarmNormal}
		e.states[key] = st
	}
	current := st.Level

	crit, hasCrit := boundary(cfg.Critical, ref)
	warn, hasWarn := boundary(cfg.Warning, ref)
	hyst, _ := boundary(cfg.Hysteresis, ref)

	// Hysteresis widens only the clearing side: entry boundaries stay
	// where the user put them, exit boundaries move away by hyst while
	// the corresponding level is active.
	critEff, warnEff := crit, warn
	switch cfg.Direction {
	case domain.DirectionBelow:
		if current == domain.AlarmCritical {
			critEff = crit + hyst
		}
		if current.Severity() >= domain.AlarmWarning.Severity() {
			warnEff = warn + hyst
		}
	case domain.DirectionAbove:
		if current == domain.AlarmCritical {
			critEff = crit - hyst
		}
		if current.Severity() >= domain.AlarmWarning.Severity() {
			warnEff = warn - hyst
		}
	}

	target := domain.AlarmNormal
	switch cfg.Direction {
	case domain.DirectionBelow:
		if hasCrit && value < critEff {
			target = domain.AlarmCritical
		} else if hasWarn && value < warnEff {
			target = domain.AlarmWarning
		}
	case domain.DirectionAbove:
		if hasCrit && value > critEff {
			target = domain.AlarmCritical
		} else if hasWarn && value > warnEff {
			target = domain.AlarmWarning
		}
	}

	if target == current {
		return domain.AlarmTrigger{}, false
	}

	st.Level = target
	st.LastTransitionAt = at
	st.TransitionCount++
	st.Acknowledged = false
	e.transitions.Add(1)
	e.metrics.IncAlarmTransitions(string(target))
	e.persistLocked(key, *st)

	// The boundary that fired: the target band's when entering, the band
	// just left when clearing to normal.
	var fired float64
	switch {
	case target == domain.AlarmCritical:
		fired = critEff
	case target == domain.AlarmWarning:
		fired = warnEff
	case current == domain.AlarmCritical:
		fired = critEff
	default:
		fired = warnEff
	}

	e.logger.Info().
		Str("key", key.String()).
		Str("level", string(target)).
		Str("previous", string(current)).
		Float64("value", value).
		Float64("threshold", fired).
		Msg("Alarm transition")

	return domain.AlarmTrigger{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		Level:     target,
		Previous:  current,
		Threshold: fired,
		Direction: cfg.Direction,
		At:        at,
	}, true
}

// resetLocked forces a state back to normal without emitting a trigger or
// touching the transition counter. Used when a config is gone, disabled or
// malformed.
func (e *AlarmEngine) resetLocked(key domain.ThresholdKey) {
	st, ok := e.states[key]
	if !ok || st.Level == domain.AlarmNormal {
		return
	}
	st.Level = domain.AlarmNormal
	e.persistLocked(key, *st)
}

// resolveReference finds the value relative thresholds scale against: the
// sensor's live capacity metric when present, otherwise the configured one.
func (e *AlarmEngine) resolveReference(key domain.SensorKey) (float64, bool) {
	if v, ok := e.store.Metric(key, domain.MetricCapacity); ok && v > 0 {
		return v, true
	}
	if v, ok := e.refs[key]; ok && v > 0 {
		return v, true
	}
	return 0, false
}

func boundary(tv *domain.ThresholdValue, ref float64) (float64, bool) {
	if tv == nil {
		return 0, false
	}
	if tv.Kind == domain.ThresholdRelative {
		return tv.Magnitude * ref, true
	}
	return tv.Magnitude, true
}

// persistLocked queues a state write. The evaluation path never blocks on
// the database; a full queue is logged and counted instead.
func (e *AlarmEngine) persistLocked(key domain.ThresholdKey, st domain.AlarmState) {
	select {
	case e.saves <- stateSave{key: key, state: st}:
	default:
		e.metrics.IncPersistErrors()
		e.logger.Warn().
			Str("key", key.String()).
			Msg("Alarm state save queue full, dropping write")
	}
}

func (e *AlarmEngine) saverLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			// Drain whatever is queued before exiting.
			for {
				select {
				case save := <-e.saves:
					e.writeState(save)
				default:
					return
				}
			}
		case save := <-e.saves:
			e.writeState(save)
		}
	}
}

func (e *AlarmEngine) writeState(save stateSave) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.SaveTimeout)
	defer cancel()

	start := time.Now()
	if err := e.persistence.SaveAlarmState(ctx, save.key, save.state); err != nil {
		e.metrics.IncPersistErrors()
		e.logger.Error().
			Err(err).
			Str("key", save.key.String()).
			Msg("Failed to persist alarm state")
		return
	}
	e.metrics.ObservePersistDuration(time.Since(start).Seconds())
}

// SetThreshold validates and installs an alarm rule, writing it through to
// persistence before it takes effect for new evaluations.
func (e *AlarmEngine) SetThreshold(ctx context.Context, cfg domain.ThresholdConfig) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := e.persistence.SaveThreshold(ctx, cfg); err != nil {
		e.metrics.IncPersistErrors()
		return fmt.Errorf("failed to persist threshold: %w", err)
	}

	e.mu.Lock()
	e.configs[cfg.Key()] = cfg
	e.mu.Unlock()

	e.logger.Info().
		Str("key", cfg.Key().String()).
		Bool("enabled", cfg.Enabled).
		Msg("Threshold updated")

	return nil
}

// RemoveThreshold deletes a rule and its state machine.
func (e *AlarmEngine) RemoveThreshold(ctx context.Context, key domain.ThresholdKey) error {
	if err := e.persistence.DeleteThreshold(ctx, key); err != nil {
		e.metrics.IncPersistErrors()
		return fmt.Errorf("failed to delete threshold: %w", err)
	}

	e.mu.Lock()
	delete(e.configs, key)
	delete(e.states, key)
	e.mu.Unlock()

	e.logger.Info().Str("key", key.String()).Msg("Threshold removed")

	return nil
}

// Acknowledge marks an active alarm as seen. The level is untouched; only
// the flag changes, and it resets on the next transition.
func (e *AlarmEngine) Acknowledge(key domain.ThresholdKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAlarmStateUnknown, key)
	}

	st.Acknowledged = true
	e.persistLocked(key, *st)

	return nil
}

// Thresholds returns all configured rules sorted by key.
func (e *AlarmEngine) Thresholds() []domain.ThresholdConfig {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.ThresholdConfig, 0, len(e.configs))
	for _, cfg := range e.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// AlarmStates returns a snapshot of every state machine.
func (e *AlarmEngine) AlarmStates() map[domain.ThresholdKey]domain.AlarmState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[domain.ThresholdKey]domain.AlarmState, len(e.states))
	for key, st := range e.states {
		out[key] = *st
	}
	return out
}

// Stats returns alarm engine statistics
func (e *AlarmEngine) Stats() map[string]interface{} {
	e.mu.Lock()
	configured := len(e.configs)
	active := 0
	for _, st := range e.states {
		if st.Level != domain.AlarmNormal {
			active++
		}
	}
	e.mu.Unlock()

	return map[string]interface{}{
		"thresholds_configured": configured,
		"alarms_active":         active,
		"evaluations":           e.evaluations.Load(),
		"transitions":           e.transitions.Load(),
		"skipped":               e.skipped.Load(),
	}
}
