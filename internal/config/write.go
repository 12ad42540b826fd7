package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// secretKeys are masked by Redacted.
var secretKeys = map[string][]string{
	"auth":   {"jwt_secret"},
	"client": {"token"},
}

// WriteTOML writes the settings of v as a TOML config file.
func WriteTOML(w io.Writer, v *viper.Viper) error {
	if err := toml.NewEncoder(w).Encode(v.AllSettings()); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return nil
}

// WriteYAML writes settings as YAML.
func WriteYAML(w io.Writer, settings map[string]interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// Redacted returns the settings of v with secrets masked.
func Redacted(v *viper.Viper) map[string]interface{} {
	settings := v.AllSettings()
	for section, keys := range secretKeys {
		m, ok := settings[section].(map[string]interface{})
		if !ok {
			continue
		}
		for _, k := range keys {
			if s, ok := m[k].(string); ok && s != "" {
				m[k] = "********"
			}
		}
	}
	return settings
}
