package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/gobed/config.yaml"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultStateDir     = "/var/lib/gobed/state"
	DefaultDashboardDir = "/var/lib/gobed/dashboards"
	DefaultBlobPrefix   = "gobed/state"
)

// Config is the root configuration document.
type Config struct {
	SchemaVersion int               `yaml:"schema_version"`
	Core          *CoreConfig       `yaml:"core"`
	MQTT          *MQTTConfig       `yaml:"mqtt"`
	Blob          *BlobConfig       `yaml:"blob"`
	EightSleep    *EightSleepConfig `yaml:"eightsleep"`
}

type CoreConfig struct {
	HTTPAddr     string `yaml:"http_addr"`
	StateDir     string `yaml:"state_dir"`
	DashboardDir string `yaml:"dashboard_dir"`
}

type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

type EightSleepConfig struct {
	BaseURL            string `yaml:"base_url"`
	PartnerSide        bool   `yaml:"partner_side"`
	PollSeconds        int    `yaml:"poll_seconds"`
	IdleSeconds        int    `yaml:"idle_seconds"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core == nil {
		cfg.Core = &CoreConfig{}
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.StateDir == "" {
		cfg.Core.StateDir = DefaultStateDir
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.Port == 0 {
			cfg.MQTT.Port = 1883
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "gobed"
		}
	}

	if cfg.Blob != nil && cfg.Blob.Prefix == "" {
		cfg.Blob.Prefix = DefaultBlobPrefix
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core == nil {
		return fmt.Errorf("core config is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.StateDir == "" {
		return fmt.Errorf("core.state_dir is required")
	}

	if cfg.MQTT != nil && cfg.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required")
	}

	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}

	if cfg.EightSleep != nil {
		if cfg.EightSleep.PollSeconds < 0 || cfg.EightSleep.IdleSeconds < 0 {
			return fmt.Errorf("eightsleep poll/idle seconds must be non-negative")
		}
		if cfg.EightSleep.PollSeconds > 0 && cfg.EightSleep.IdleSeconds > 0 &&
			cfg.EightSleep.IdleSeconds <= cfg.EightSleep.PollSeconds {
			return fmt.Errorf("eightsleep.idle_seconds must exceed poll_seconds")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.EightSleep != nil {
		enabled["eightsleep"] = true
	}
	return enabled
}
