// Package memstore keeps thresholds and alarm states in process memory for
// deployments that run without a database. Contents do not survive restarts.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// Store is an in-memory threshold store
type Store struct {
	mu         sync.RWMutex
	thresholds map[domain.ThresholdKey]domain.ThresholdConfig
	states     map[domain.ThresholdKey]domain.AlarmState
}

// New creates an empty store
func New() *Store {
	return &Store{
		thresholds: make(map[domain.ThresholdKey]domain.ThresholdConfig),
		states:     make(map[domain.ThresholdKey]domain.AlarmState),
	}
}

// LoadThresholds returns all stored threshold configs sorted by key
func (s *Store) LoadThresholds(_ context.Context) ([]domain.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ThresholdConfig, 0, len(s.thresholds))
	for _, cfg := range s.thresholds {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

// SaveThreshold stores a threshold config
func (s *Store) SaveThreshold(_ context.Context, cfg domain.ThresholdConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.thresholds[cfg.Key()] = cfg
	return nil
}

// DeleteThreshold removes a threshold config and its alarm state
func (s *Store) DeleteThreshold(_ context.Context, key domain.ThresholdKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.thresholds, key)
	delete(s.states, key)
	return nil
}

// LoadAlarmStates returns all stored alarm states
func (s *Store) LoadAlarmStates(_ context.Context) (map[domain.ThresholdKey]domain.AlarmState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.ThresholdKey]domain.AlarmState, len(s.states))
	for key, st := range s.states {
		out[key] = st
	}
	return out, nil
}

// SaveAlarmState stores an alarm state
func (s *Store) SaveAlarmState(_ context.Context, key domain.ThresholdKey, st domain.AlarmState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = st
	return nil
}
