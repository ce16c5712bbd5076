package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

func record(instance uint8, metrics map[domain.Metric]float64) *domain.SensorRecord {
	return &domain.SensorRecord{
		Type:      domain.SensorBattery,
		Instance:  instance,
		Metrics:   metrics,
		Timestamp: time.Now(),
	}
}

func TestApply_NewSensorReportsAllMetrics(t *testing.T) {
	s := NewStore()

	changed := s.Apply(record(0, map[domain.Metric]float64{
		domain.MetricVoltage: 12.5,
		domain.MetricCurrent: -2.5,
	}))

	assert.ElementsMatch(t, []domain.Metric{domain.MetricVoltage, domain.MetricCurrent}, changed)
	assert.Equal(t, 1, s.Size())
}

func TestApply_UnchangedValueReportsNothing(t *testing.T) {
	s := NewStore()
	metrics := map[domain.Metric]float64{domain.MetricVoltage: 12.5}

	s.Apply(record(0, metrics))
	changed := s.Apply(record(0, metrics))

	assert.Empty(t, changed)
}

func TestApply_OnlyChangedMetricsReported(t *testing.T) {
	s := NewStore()
	s.Apply(record(0, map[domain.Metric]float64{
		domain.MetricVoltage: 12.5,
		domain.MetricCurrent: -2.5,
	}))

	changed := s.Apply(record(0, map[domain.Metric]float64{
		domain.MetricVoltage: 12.5,
		domain.MetricCurrent: -3.1,
	}))

	assert.Equal(t, []domain.Metric{domain.MetricCurrent}, changed)
}

func TestApply_MergePreservesOtherMetrics(t *testing.T) {
	s := NewStore()
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricCurrent: -2.5}))

	metrics, _, ok := s.Snapshot(domain.SensorKey{Type: domain.SensorBattery, Instance: 0})
	require.True(t, ok)
	assert.Equal(t, map[domain.Metric]float64{
		domain.MetricVoltage: 12.5,
		domain.MetricCurrent: -2.5,
	}, metrics)
}

func TestApply_InstancesTrackedSeparately(t *testing.T) {
	s := NewStore()
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))

	changed := s.Apply(record(1, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))

	assert.Equal(t, []domain.Metric{domain.MetricVoltage}, changed)
	assert.Equal(t, 2, s.Size())
}

func TestApply_UpdatedAtAdvancesWithoutChange(t *testing.T) {
	s := NewStore()
	key := domain.SensorKey{Type: domain.SensorBattery, Instance: 0}

	first := record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5})
	first.Timestamp = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Apply(first)

	second := record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5})
	second.Timestamp = first.Timestamp.Add(time.Second)
	s.Apply(second)

	_, updatedAt, ok := s.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, second.Timestamp, updatedAt)
}

func TestSnapshot_CopyIsolation(t *testing.T) {
	s := NewStore()
	key := domain.SensorKey{Type: domain.SensorBattery, Instance: 0}
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))

	metrics, _, ok := s.Snapshot(key)
	require.True(t, ok)
	metrics[domain.MetricVoltage] = 0

	v, ok := s.Metric(key, domain.MetricVoltage)
	require.True(t, ok)
	assert.Equal(t, 12.5, v)
}

func TestSnapshot_UnknownKey(t *testing.T) {
	s := NewStore()
	_, _, ok := s.Snapshot(domain.SensorKey{Type: domain.SensorDepth, Instance: 0})
	assert.False(t, ok)
}

func TestMetric_Lookup(t *testing.T) {
	s := NewStore()
	key := domain.SensorKey{Type: domain.SensorBattery, Instance: 0}
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))

	_, ok := s.Metric(key, domain.MetricCurrent)
	assert.False(t, ok)

	v, ok := s.Metric(key, domain.MetricVoltage)
	require.True(t, ok)
	assert.Equal(t, 12.5, v)
}

func TestAll_SortedByKey(t *testing.T) {
	s := NewStore()
	s.Apply(record(1, map[domain.Metric]float64{domain.MetricVoltage: 12.1}))
	s.Apply(record(0, map[domain.Metric]float64{domain.MetricVoltage: 12.5}))
	s.Apply(&domain.SensorRecord{
		Type:      domain.SensorDepth,
		Instance:  0,
		Metrics:   map[domain.Metric]float64{domain.MetricDepth: 5.2},
		Timestamp: time.Now(),
	})

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "battery/0", all[0].Key.String())
	assert.Equal(t, "battery/1", all[1].Key.String())
	assert.Equal(t, "depth/0", all[2].Key.String())
}
