package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/adapter/memstore"
	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/state"
)

func newTestAlarmEngine(t *testing.T, persistence ThresholdStore, refs map[domain.SensorKey]float64) (*AlarmEngine, *state.Store) {
	t.Helper()

	if persistence == nil {
		persistence = memstore.New()
	}
	store := state.NewStore()
	e := NewAlarmEngine(AlarmConfig{}, persistence, store, refs, zerolog.Nop(), testMetrics)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e, store
}

func voltageEvent(volts float64, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		Key:     domain.SensorKey{Type: domain.SensorBattery, Instance: 0},
		Metrics: map[domain.Metric]float64{domain.MetricVoltage: volts},
		Changed: []domain.Metric{domain.MetricVoltage},
		At:      at,
	}
}

func lowVoltageThreshold(crit, warn, hyst float64) domain.ThresholdConfig {
	cfg := domain.ThresholdConfig{
		Type:      domain.SensorBattery,
		Instance:  0,
		Metric:    domain.MetricVoltage,
		Direction: domain.DirectionBelow,
		Enabled:   true,
	}
	if crit > 0 {
		cfg.Critical = &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: crit}
	}
	if warn > 0 {
		cfg.Warning = &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: warn}
	}
	if hyst > 0 {
		cfg.Hysteresis = &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: hyst}
	}
	return cfg
}

func TestAlarmEngineHysteresisSequence(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0.4)))
	at := time.Now()

	// Healthy value: no alarm.
	assert.Empty(t, e.Evaluate(voltageEvent(12.6, at)))

	// Drops under the critical boundary.
	triggers := e.Evaluate(voltageEvent(11.5, at))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmCritical, triggers[0].Level)
	assert.Equal(t, domain.AlarmNormal, triggers[0].Previous)
	assert.Equal(t, 11.5, triggers[0].Value)
	assert.Equal(t, 11.8, triggers[0].Threshold)
	assert.Equal(t, domain.DirectionBelow, triggers[0].Direction)
	assert.NotEmpty(t, triggers[0].ID)

	// Recovers, but not past the hysteresis band: still critical.
	assert.Empty(t, e.Evaluate(voltageEvent(12.0, at)))

	// Clears the band. Threshold reported is the widened boundary.
	triggers = e.Evaluate(voltageEvent(12.3, at))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmNormal, triggers[0].Level)
	assert.Equal(t, domain.AlarmCritical, triggers[0].Previous)
	assert.InDelta(t, 12.2, triggers[0].Threshold, 1e-9)
}

func TestAlarmEngineEdgeTriggered(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0)))
	at := time.Now()

	require.Len(t, e.Evaluate(voltageEvent(11.5, at)), 1)

	// Staying inside the band never repeats the trigger.
	assert.Empty(t, e.Evaluate(voltageEvent(11.4, at)))
	assert.Empty(t, e.Evaluate(voltageEvent(11.3, at)))

	key := domain.ThresholdKey{Type: domain.SensorBattery, Instance: 0, Metric: domain.MetricVoltage}
	st := e.AlarmStates()[key]
	assert.Equal(t, domain.AlarmCritical, st.Level)
	assert.Equal(t, uint64(1), st.TransitionCount)
}

func TestAlarmEngineCriticalWinsOverWarning(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 12.0, 0)))

	// Under both boundaries at once: a single critical transition.
	triggers := e.Evaluate(voltageEvent(11.0, time.Now()))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmCritical, triggers[0].Level)
	assert.Equal(t, domain.AlarmNormal, triggers[0].Previous)
}

func TestAlarmEngineWarningCriticalLadder(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 12.0, 0.4)))
	at := time.Now()

	steps := []struct {
		value float64
		level domain.AlarmLevel // empty means no transition
	}{
		{12.5, ""},
		{11.9, domain.AlarmWarning},
		{11.5, domain.AlarmCritical},
		{12.1, ""},                   // inside widened critical band (11.8 + 0.4)
		{12.3, domain.AlarmWarning},  // out of critical, still under 12.0 + 0.4
		{12.5, domain.AlarmNormal},
	}

	for _, step := range steps {
		triggers := e.Evaluate(voltageEvent(step.value, at))
		if step.level == "" {
			assert.Emptyf(t, triggers, "value %.1f should not transition", step.value)
			continue
		}
		require.Lenf(t, triggers, 1, "value %.1f should transition to %s", step.value, step.level)
		assert.Equal(t, step.level, triggers[0].Level)
	}
}

func TestAlarmEngineRelativeThreshold(t *testing.T) {
	e, store := newTestAlarmEngine(t, nil, nil)

	// Reference comes from the live capacity metric.
	store.Apply(&domain.SensorRecord{
		Type:      domain.SensorTank,
		Instance:  0,
		Metrics:   map[domain.Metric]float64{domain.MetricCapacity: 100},
		Timestamp: time.Now(),
	})

	require.NoError(t, e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:      domain.SensorTank,
		Instance:  0,
		Metric:    domain.MetricVolume,
		Critical:  &domain.ThresholdValue{Kind: domain.ThresholdRelative, Magnitude: 0.10},
		Direction: domain.DirectionBelow,
		Enabled:   true,
	}))

	volumeEvent := func(v float64) domain.ChangeEvent {
		return domain.ChangeEvent{
			Key:     domain.SensorKey{Type: domain.SensorTank, Instance: 0},
			Metrics: map[domain.Metric]float64{domain.MetricVolume: v},
			Changed: []domain.Metric{domain.MetricVolume},
			At:      time.Now(),
		}
	}

	assert.Empty(t, e.Evaluate(volumeEvent(50)))

	// 10% of 100 L: alarms under 10.
	triggers := e.Evaluate(volumeEvent(9))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmCritical, triggers[0].Level)
	assert.Equal(t, 10.0, triggers[0].Threshold)

	triggers = e.Evaluate(volumeEvent(11))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmNormal, triggers[0].Level)
}

func TestAlarmEngineStaticReferenceFallback(t *testing.T) {
	refs := map[domain.SensorKey]float64{
		{Type: domain.SensorTank, Instance: 1}: 200,
	}
	e, _ := newTestAlarmEngine(t, nil, refs)

	require.NoError(t, e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:      domain.SensorTank,
		Instance:  1,
		Metric:    domain.MetricVolume,
		Critical:  &domain.ThresholdValue{Kind: domain.ThresholdRelative, Magnitude: 0.10},
		Direction: domain.DirectionBelow,
		Enabled:   true,
	}))

	triggers := e.Evaluate(domain.ChangeEvent{
		Key:     domain.SensorKey{Type: domain.SensorTank, Instance: 1},
		Metrics: map[domain.Metric]float64{domain.MetricVolume: 15},
		Changed: []domain.Metric{domain.MetricVolume},
		At:      time.Now(),
	})
	require.Len(t, triggers, 1)
	assert.Equal(t, 20.0, triggers[0].Threshold)
}

func TestAlarmEngineSkipsUnresolvedReference(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)

	require.NoError(t, e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:      domain.SensorTank,
		Instance:  0,
		Metric:    domain.MetricVolume,
		Critical:  &domain.ThresholdValue{Kind: domain.ThresholdRelative, Magnitude: 0.10},
		Direction: domain.DirectionBelow,
		Enabled:   true,
	}))

	// No capacity anywhere: the cycle is skipped, not alarmed.
	triggers := e.Evaluate(domain.ChangeEvent{
		Key:     domain.SensorKey{Type: domain.SensorTank, Instance: 0},
		Metrics: map[domain.Metric]float64{domain.MetricVolume: 1},
		Changed: []domain.Metric{domain.MetricVolume},
		At:      time.Now(),
	})
	assert.Empty(t, triggers)
	assert.Equal(t, uint64(1), e.Stats()["skipped"])

	key := domain.ThresholdKey{Type: domain.SensorTank, Instance: 0, Metric: domain.MetricVolume}
	_, exists := e.AlarmStates()[key]
	assert.False(t, exists, "skipped evaluation should not create state")
}

func TestAlarmEngineDisabledConfigResetsSilently(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0)))
	at := time.Now()

	require.Len(t, e.Evaluate(voltageEvent(11.5, at)), 1)

	disabled := lowVoltageThreshold(11.8, 0, 0)
	disabled.Enabled = false
	require.NoError(t, e.SetThreshold(context.Background(), disabled))

	// Value still in the alarm band, but the rule is off: back to normal
	// with no trigger and no counted transition.
	assert.Empty(t, e.Evaluate(voltageEvent(11.4, at)))

	key := domain.ThresholdKey{Type: domain.SensorBattery, Instance: 0, Metric: domain.MetricVoltage}
	st := e.AlarmStates()[key]
	assert.Equal(t, domain.AlarmNormal, st.Level)
	assert.Equal(t, uint64(1), st.TransitionCount)
}

func TestAlarmEngineAboveDirection(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)

	require.NoError(t, e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:       domain.SensorEngine,
		Instance:   0,
		Metric:     domain.MetricCoolantTemp,
		Warning:    &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: 95},
		Critical:   &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: 105},
		Hysteresis: &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: 3},
		Direction:  domain.DirectionAbove,
		Enabled:    true,
	}))

	coolantEvent := func(v float64) domain.ChangeEvent {
		return domain.ChangeEvent{
			Key:     domain.SensorKey{Type: domain.SensorEngine, Instance: 0},
			Metrics: map[domain.Metric]float64{domain.MetricCoolantTemp: v},
			Changed: []domain.Metric{domain.MetricCoolantTemp},
			At:      time.Now(),
		}
	}

	steps := []struct {
		value float64
		level domain.AlarmLevel
	}{
		{90, ""},
		{96, domain.AlarmWarning},
		{104, ""},                   // under the untouched critical entry at 105
		{106, domain.AlarmCritical},
		{103, ""},                   // above the widened exit at 105 - 3
		{101, domain.AlarmWarning},
		{90, domain.AlarmNormal},    // under the widened warning exit at 95 - 3
	}

	for _, step := range steps {
		triggers := e.Evaluate(coolantEvent(step.value))
		if step.level == "" {
			assert.Emptyf(t, triggers, "value %.0f should not transition", step.value)
			continue
		}
		require.Lenf(t, triggers, 1, "value %.0f should transition to %s", step.value, step.level)
		assert.Equal(t, step.level, triggers[0].Level)
	}
}

func TestAlarmEngineAcknowledge(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0)))
	at := time.Now()
	key := domain.ThresholdKey{Type: domain.SensorBattery, Instance: 0, Metric: domain.MetricVoltage}

	require.Len(t, e.Evaluate(voltageEvent(11.5, at)), 1)

	require.NoError(t, e.Acknowledge(key))
	assert.True(t, e.AlarmStates()[key].Acknowledged)

	// Acknowledgment does not survive the next transition.
	require.Len(t, e.Evaluate(voltageEvent(12.5, at)), 1)
	assert.False(t, e.AlarmStates()[key].Acknowledged)

	err := e.Acknowledge(domain.ThresholdKey{Type: domain.SensorDepth, Instance: 9, Metric: domain.MetricDepth})
	assert.ErrorIs(t, err, domain.ErrAlarmStateUnknown)
}

func TestAlarmEngineStateSurvivesRestart(t *testing.T) {
	persistence := memstore.New()

	first, _ := newTestAlarmEngine(t, persistence, nil)
	require.NoError(t, first.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0)))
	require.Len(t, first.Evaluate(voltageEvent(11.5, time.Now())), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, first.Stop(ctx))

	second, _ := newTestAlarmEngine(t, persistence, nil)
	key := domain.ThresholdKey{Type: domain.SensorBattery, Instance: 0, Metric: domain.MetricVoltage}
	require.Equal(t, domain.AlarmCritical, second.AlarmStates()[key].Level)

	// Still in the band after the restart: no duplicate trigger.
	assert.Empty(t, second.Evaluate(voltageEvent(11.4, time.Now())))

	triggers := second.Evaluate(voltageEvent(12.5, time.Now()))
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.AlarmNormal, triggers[0].Level)
	assert.Equal(t, domain.AlarmCritical, triggers[0].Previous)
}

func TestAlarmEngineSetThresholdValidates(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)

	err := e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:      domain.SensorBattery,
		Instance:  0,
		Metric:    domain.MetricVoltage,
		Direction: domain.DirectionBelow,
		Enabled:   true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	err = e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:      domain.SensorBattery,
		Instance:  0,
		Metric:    domain.Metric("plutonium"),
		Critical:  &domain.ThresholdValue{Kind: domain.ThresholdAbsolute, Magnitude: 1},
		Direction: domain.DirectionBelow,
		Enabled:   true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	assert.Empty(t, e.Thresholds())
}

func TestAlarmEngineHysteresisKindFollowsThreshold(t *testing.T) {
	refs := map[domain.SensorKey]float64{
		{Type: domain.SensorTank, Instance: 0}: 200,
	}
	e, _ := newTestAlarmEngine(t, nil, refs)

	require.NoError(t, e.SetThreshold(context.Background(), domain.ThresholdConfig{
		Type:       domain.SensorTank,
		Instance:   0,
		Metric:     domain.MetricVolume,
		Critical:   &domain.ThresholdValue{Kind: domain.ThresholdRelative, Magnitude: 0.10},
		Hysteresis: &domain.ThresholdValue{Magnitude: 0.05},
		Direction:  domain.DirectionBelow,
		Enabled:    true,
	}))

	cfgs := e.Thresholds()
	require.Len(t, cfgs, 1)
	require.NotNil(t, cfgs[0].Hysteresis)
	assert.Equal(t, domain.ThresholdRelative, cfgs[0].Hysteresis.Kind)

	at := time.Now()
	trigger := func(volume float64) []domain.AlarmTrigger {
		return e.Evaluate(domain.ChangeEvent{
			Key:     domain.SensorKey{Type: domain.SensorTank, Instance: 0},
			Metrics: map[domain.Metric]float64{domain.MetricVolume: volume},
			Changed: []domain.Metric{domain.MetricVolume},
			At:      at,
		})
	}

	// Critical resolves to 20 L, the relative hysteresis to 10 L on top.
	require.Len(t, trigger(15), 1)
	assert.Empty(t, trigger(25))
	clears := trigger(31)
	require.Len(t, clears, 1)
	assert.Equal(t, domain.AlarmNormal, clears[0].Level)
}

func TestAlarmEngineRemoveThreshold(t *testing.T) {
	e, _ := newTestAlarmEngine(t, nil, nil)
	require.NoError(t, e.SetThreshold(context.Background(), lowVoltageThreshold(11.8, 0, 0)))
	at := time.Now()
	key := domain.ThresholdKey{Type: domain.SensorBattery, Instance: 0, Metric: domain.MetricVoltage}

	require.Len(t, e.Evaluate(voltageEvent(11.5, at)), 1)
	require.NoError(t, e.RemoveThreshold(context.Background(), key))

	assert.Empty(t, e.Thresholds())
	assert.Empty(t, e.Evaluate(voltageEvent(11.4, at)))
	_, exists := e.AlarmStates()[key]
	assert.False(t, exists)
}
