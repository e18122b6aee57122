// Package vision provides the detection model adapters: metadata-driven
// model bundles plus the inference backends behind them.
package vision

import (
	"encoding/json"
	"os"
	"path/filepath"

	"inspection-orchestrator/core/fault"
)

// ModelMetadata describes one model bundle. Class names, display colors
// and the default threshold are required; a bundle missing any of them is
// rejected at load time, before any job can start.
type ModelMetadata struct {
	Name      string            `json:"name"`
	Classes   []string          `json:"classes"`
	Colors    map[string]string `json:"colors"` // class -> hex color for overlays
	Threshold float64           `json:"threshold"`
	InputSize int               `json:"input_size"`
}

// LoadMetadata reads and validates <dir>/metadata.json.
func LoadMetadata(dir string) (*ModelMetadata, error) {
	path := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindModelLoad, "model", err)
	}

	var m ModelMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fault.Wrap(fault.KindModelLoad, "model", err)
	}

	if len(m.Classes) == 0 {
		return nil, fault.New(fault.KindModelLoad, "model", "%s: class names missing", path)
	}
	if len(m.Colors) == 0 {
		return nil, fault.New(fault.KindModelLoad, "model", "%s: class colors missing", path)
	}
	if m.Threshold <= 0 || m.Threshold > 1 {
		return nil, fault.New(fault.KindModelLoad, "model", "%s: threshold %.3f out of range", path, m.Threshold)
	}
	for _, class := range m.Classes {
		if _, ok := m.Colors[class]; !ok {
			return nil, fault.New(fault.KindModelLoad, "model", "%s: no color for class %q", path, class)
		}
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	return &m, nil
}
