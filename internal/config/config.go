package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left unset.
const (
	DefaultHTTPPort          = 8080
	DefaultSceneReadyTimeout = 8 * time.Second
	DefaultSettleDelay       = 4 * time.Second
	DefaultEngineLoadTimeout = 30 * time.Second
	DefaultModel             = "Atom"
	DefaultTopicPrefix       = "artutor"
)

// AppConfig is the versioned deployment config (artutor.yaml).
type AppConfig struct {
	Version  int    `yaml:"version"`
	Instance string `yaml:"instance"`

	Engine struct {
		Name        string        `yaml:"name"`
		Version     string        `yaml:"version"`
		URL         string        `yaml:"url"`
		SHA256      string        `yaml:"sha256"`
		LoadTimeout time.Duration `yaml:"load_timeout"`
	} `yaml:"engine"`

	Session struct {
		DefaultModel      string        `yaml:"default_model"`
		SceneReadyTimeout time.Duration `yaml:"scene_ready_timeout"`
		SettleDelay       time.Duration `yaml:"settle_delay"`
	} `yaml:"session"`

	Markers struct {
		PatternURL   string `yaml:"pattern_url"`
		BarcodeValue int    `yaml:"barcode_value"`
	} `yaml:"markers"`

	Viewer struct {
		Background string `yaml:"background"`
	} `yaml:"viewer"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Network struct {
		HTTPPort int `yaml:"http_port"`
	} `yaml:"network"`

	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`

	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
}

// HTTPPort returns the configured HTTP port, defaulting to 8080 if not set.
func (c *AppConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return DefaultHTTPPort
	}
	return c.Network.HTTPPort
}

// SceneReadyTimeout returns the bounded scene-ready wait.
func (c *AppConfig) SceneReadyTimeout() time.Duration {
	if c.Session.SceneReadyTimeout <= 0 {
		return DefaultSceneReadyTimeout
	}
	return c.Session.SceneReadyTimeout
}

// SettleDelay returns the wait before the scene is first queried.
func (c *AppConfig) SettleDelay() time.Duration {
	if c.Session.SettleDelay <= 0 {
		return DefaultSettleDelay
	}
	return c.Session.SettleDelay
}

// EngineLoadTimeout returns the per-attempt engine load timeout.
func (c *AppConfig) EngineLoadTimeout() time.Duration {
	if c.Engine.LoadTimeout <= 0 {
		return DefaultEngineLoadTimeout
	}
	return c.Engine.LoadTimeout
}

// DefaultModel returns the model key used when a session names none.
func (c *AppConfig) DefaultModel() string {
	if c.Session.DefaultModel == "" {
		return DefaultModel
	}
	return c.Session.DefaultModel
}

// TopicPrefix returns the MQTT topic prefix.
func (c *AppConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.MQTT.TopicPrefix
}

// InstanceID names this deployment in persisted events.
func (c *AppConfig) InstanceID() string {
	if c.Instance != "" {
		return c.Instance
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "artutor"
}

func LoadAppConfig(path string) (*AppConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAppConfig(b)
}

// ParseAppConfig decodes and validates YAML config bytes.
func ParseAppConfig(b []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported artutor.yaml version: %d", cfg.Version)
	}
	if cfg.Engine.URL == "" {
		return nil, fmt.Errorf("artutor.yaml: engine.url is required")
	}
	if cfg.Engine.Name == "" {
		cfg.Engine.Name = "aframe"
	}
	if cfg.Engine.Version == "" {
		return nil, fmt.Errorf("artutor.yaml: engine.version is required")
	}
	if cfg.Session.SettleDelay > 0 && cfg.Session.SceneReadyTimeout > 0 &&
		cfg.Session.SettleDelay >= cfg.Session.SceneReadyTimeout {
		return nil, fmt.Errorf("artutor.yaml: session.settle_delay (%s) must be shorter than scene_ready_timeout (%s)",
			cfg.Session.SettleDelay, cfg.Session.SceneReadyTimeout)
	}

	return &cfg, nil
}
