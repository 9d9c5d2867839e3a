// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evcharge/core/central"
	infraaudit "github.com/kilianp07/evcharge/infra/audit"
	"github.com/kilianp07/evcharge/infra/registry"
	"github.com/kilianp07/evcharge/infra/storage"
)

type Config struct {
	Central  central.Config    `json:"central"`
	Registry registry.Config   `json:"registry"`
	Storage  storage.Config    `json:"storage"`
	Audit    infraaudit.Config `json:"audit"`
	Metrics  MetricsConfig     `json:"metrics"`
	CP       CPConfig          `json:"cp"`
	Driver   DriverConfig      `json:"driver"`
}

// Load reads the file at path and applies EV_-prefixed environment
// overrides, e.g. EV_CENTRAL__ADDR=:6000 sets central.addr.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("EV_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ev_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Central.SetDefaults()
	cfg.Registry.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
