package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
eightsleep: {}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Core.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("expected default http addr, got %s", cfg.Core.HTTPAddr)
	}
	if cfg.Core.StateDir != DefaultStateDir {
		t.Fatalf("expected default state dir, got %s", cfg.Core.StateDir)
	}
	if !EnabledPlugins(cfg)["eightsleep"] {
		t.Fatalf("expected eightsleep enabled")
	}
}

func TestLoadRejectsWrongSchemaVersion(t *testing.T) {
	path := writeConfig(t, "schema_version: 7\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "schema_version") {
		t.Fatalf("expected schema_version error, got %v", err)
	}
}

func TestLoadRejectsIdleNotExceedingPoll(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
eightsleep:
  poll_seconds: 60
  idle_seconds: 60
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "idle_seconds") {
		t.Fatalf("expected idle_seconds error, got %v", err)
	}
}

func TestValidateBlobRequiresKeys(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
blob:
  endpoint: https://s3.example.com
  bucket: state
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "access_key_file") {
		t.Fatalf("expected blob key error, got %v", err)
	}
}

func TestMQTTDefaults(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
mqtt:
  host: broker.local
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Port != 1883 {
		t.Fatalf("expected default port, got %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.TopicPrefix != "gobed" {
		t.Fatalf("expected default prefix, got %s", cfg.MQTT.TopicPrefix)
	}
}
