package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ttsites/facturemanager/internal/tariff"
)

// LoadFile reads tariff settings from YAML. Keys missing from the file keep
// their built-in default.
func LoadFile(path string) (tariff.Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tariff.Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	s := tariff.DefaultSettings()
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return tariff.Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return tariff.Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}
