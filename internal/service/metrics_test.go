package service

import (
	"github.com/nexus-edge/marine-gateway/internal/metrics"
)

// Collectors register on the global Prometheus registerer, so every test
// in this package shares a single registry.
var testMetrics = metrics.NewRegistry()
