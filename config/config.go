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

	"github.com/fleetcore/dispatchd/core/dispatcher"
	"github.com/fleetcore/dispatchd/core/factory"
	"github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/infra/mqtt"
)

// Config aggregates every configurable surface of the dispatch service.
type Config struct {
	MQTT       mqtt.Config          `json:"mqtt"`
	Dispatcher dispatcher.Config    `json:"dispatcher"`
	Evaluator  factory.ModuleConfig `json:"evaluator"`
	Metrics    metrics.Config       `json:"metrics"`
	Logging    LoggingConfig        `json:"logging"`
	API        APIConfig            `json:"api"`
	Fleets     []FleetConfig        `json:"fleets"`
}

// APIConfig configures the dispatcher node's HTTP submit/cancel/list/logs
// surface.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// FleetConfig names one fleet client instance and the navigation graph it
// plans over.
type FleetConfig struct {
	Name      string `json:"name"`
	GraphPath string `json:"graph_path"`
}

// Load reads and decodes a YAML or JSON config file, then applies K_-prefixed
// environment overrides (double underscore separates nested keys, e.g.
// K_MQTT__BROKER).
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
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Logging.SetDefaults()
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
