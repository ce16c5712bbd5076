// Package state holds the latest observed value of every sensor metric.
// The store is the single source of truth the rest of the pipeline reads
// from: change detection, alarm reference resolution and the status
// surfaces all consult it rather than the wire.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// Store is a concurrency-safe map of sensor keys to their current metric
// values. Writes come from the pipeline's update path; reads come from any
// goroutine.
type Store struct {
	mu      sync.RWMutex
	entries map[domain.SensorKey]*entry
}

type entry struct {
	metrics   map[domain.Metric]float64
	updatedAt time.Time
}

// Snapshot is a point-in-time copy of one sensor's state.
type Snapshot struct {
	Key       domain.SensorKey          `json:"key"`
	Metrics   map[domain.Metric]float64 `json:"metrics"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[domain.SensorKey]*entry)}
}

// Apply merges the record's metrics into the store and reports which of
// them changed value, sorted for deterministic downstream events. All
// metrics of one record are applied atomically. UpdatedAt always moves to
// the record's timestamp, whether or not any value changed, so staleness
// tracking survives steady readings.
func (s *Store) Apply(rec *domain.SensorRecord) []domain.Metric {
	key := rec.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{metrics: make(map[domain.Metric]float64, len(rec.Metrics))}
		s.entries[key] = e
	}
	e.updatedAt = rec.Timestamp

	var changed []domain.Metric
	for m, v := range rec.Metrics {
		if old, ok := e.metrics[m]; ok && old == v {
			continue
		}
		e.metrics[m] = v
		changed = append(changed, m)
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// Snapshot returns a copy of the current metrics for key. The returned map
// is the caller's to keep.
func (s *Store) Snapshot(key domain.SensorKey) (map[domain.Metric]float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return copyMetrics(e.metrics), e.updatedAt, true
}

// Metric returns the current value of a single metric.
func (s *Store) Metric(key domain.SensorKey, m domain.Metric) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	v, ok := e.metrics[m]
	return v, ok
}

// All returns a copy of every tracked sensor, sorted by key for stable
// status output.
func (s *Store) All() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.entries))
	for key, e := range s.entries {
		out = append(out, Snapshot{
			Key:       key,
			Metrics:   copyMetrics(e.metrics),
			UpdatedAt: e.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Size returns the number of sensors tracked.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func copyMetrics(in map[domain.Metric]float64) map[domain.Metric]float64 {
	out := make(map[domain.Metric]float64, len(in))
	for m, v := range in {
		out[m] = v
	}
	return out
}
