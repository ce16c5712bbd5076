// Package health exposes liveness, readiness, and component health over
// HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Check reports whether one component currently works.
type Check interface {
	IsHealthy(ctx context.Context) bool
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc func(ctx context.Context) bool

// IsHealthy calls f.
func (f CheckFunc) IsHealthy(ctx context.Context) bool { return f(ctx) }

// Checker provides health check endpoints
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	logger zerolog.Logger
}

// NewChecker creates a new health checker
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: logger.With().Str("component", "health-checker").Logger(),
	}
}

// AddCheck registers a component. Every registered component gates
// readiness.
func (c *Checker) AddCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

func (c *Checker) snapshot() map[string]Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	return checks
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// HealthHandler returns the overall health status
func (c *Checker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	overallStatus := "healthy"

	for name, check := range c.snapshot() {
		status := "healthy"
		if !check.IsHealthy(ctx) {
			status = "unhealthy"
			overallStatus = "degraded"
		}
		components[name] = status
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	w.Header().Set("Content-Type", "application/json")

	if overallStatus != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

// LiveHandler returns 200 if the process is running
func (c *Checker) LiveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler returns 200 if every registered component is ready
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	ready := true

	for name, check := range c.snapshot() {
		ok := check.IsHealthy(ctx)
		components[name] = ok
		if !ok {
			ready = false
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if !ready {
		components["status"] = "not_ready"
		components["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(components)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
