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

	"github.com/shareprinto/dispatcher/core/dispatch"
	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
	"github.com/shareprinto/dispatcher/infra/channel"
)

type Config struct {
	HTTP     HTTPConfig                `json:"http"`
	Channel  ChannelConfig             `json:"channel"`
	Dispatch dispatch.Config           `json:"dispatch"`
	Ranking  ranking.Weights           `json:"ranking"`
	Metrics  MetricsConfig             `json:"metrics"`
	Logging  LoggingConfig             `json:"logging"`
	Cities   map[string]model.GeoPoint `json:"cities"`
	Farmers  []model.Farmer            `json:"farmers"`
}

// HTTPConfig configures the public API server.
type HTTPConfig struct {
	// Addr is the listen address of the API server.
	Addr string `json:"addr"`
	// LogToken guards the dispatch logs endpoint; empty leaves it open.
	LogToken string `json:"log_token"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// ChannelConfig selects how offers reach farmers.
type ChannelConfig struct {
	// Mode selects the channel implementation: "mqtt" or "mock".
	Mode string         `json:"mode"`
	MQTT channel.Config `json:"mqtt"`
}

// SetDefaults applies sane defaults.
func (c *ChannelConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "mqtt"
	}
	c.MQTT.SetDefaults()
}

// Validate checks the channel selection.
func (c ChannelConfig) Validate() error {
	switch c.Mode {
	case "mqtt":
		if c.MQTT.Broker == "" {
			return fmt.Errorf("channel: mqtt broker is required")
		}
	case "mock":
	default:
		return fmt.Errorf("channel: unknown mode %s", c.Mode)
	}
	return nil
}

// MetricsConfig configures the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`

	InfluxEnabled bool   `json:"influx_enabled"`
	InfluxURL     string `json:"influx_url"`
	InfluxToken   string `json:"influx_token"`
	InfluxOrg     string `json:"influx_org"`
	InfluxBucket  string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// Validate checks mandatory fields of enabled sinks.
func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled && c.InfluxURL == "" {
		return fmt.Errorf("metrics: influx_url is required when influx is enabled")
	}
	return nil
}

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
	if err := k.Load(env.Provider("SP_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sp_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.HTTP.SetDefaults()
	cfg.Channel.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if cfg.Ranking == (ranking.Weights{}) {
		cfg.Ranking = ranking.DefaultWeights()
	}
	if err := cfg.Channel.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
