package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexus-edge/marine-gateway/internal/domain"
)

// LoadInstances reads the per-instance context catalog. A missing file is
// not an error; the gateway runs without display names or static
// references.
func LoadInstances(path string) ([]domain.InstanceContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read instances file: %w", err)
	}

	var file struct {
		Instances []domain.InstanceContext `yaml:"instances"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse instances file: %w", err)
	}

	seen := make(map[domain.SensorKey]struct{}, len(file.Instances))
	for _, inst := range file.Instances {
		if err := inst.Validate(); err != nil {
			return nil, fmt.Errorf("instance %s/%d: %w", inst.Type, inst.Instance, err)
		}
		if _, dup := seen[inst.Key()]; dup {
			return nil, fmt.Errorf("duplicate instance context for %s", inst.Key())
		}
		seen[inst.Key()] = struct{}{}
	}

	return file.Instances, nil
}

// References extracts the static relative-threshold references from the
// catalog.
func References(instances []domain.InstanceContext) map[domain.SensorKey]float64 {
	refs := make(map[domain.SensorKey]float64, len(instances))
	for _, inst := range instances {
		if ref, ok := inst.Reference(); ok {
			refs[inst.Key()] = ref
		}
	}
	return refs
}
