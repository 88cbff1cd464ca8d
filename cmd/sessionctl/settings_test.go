package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings(newViper())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Storage != storageFile || s.Key != "auth:tokens" || s.APIURL != "http://localhost:8080" || s.LogLevel != "warn" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("SESSIONCTL_STORAGE", "Redis")
	t.Setenv("SESSIONCTL_REDIS_ADDR", "cache:6380")
	t.Setenv("SESSIONCTL_SECRET", "env-secret")

	s, err := loadSettings(newViper())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Storage != storageRedis || s.RedisAddr != "cache:6380" || s.Secret != "env-secret" {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestLoadSettingsRejectsUnknownStorage(t *testing.T) {
	v := newViper()
	v.Set(keyStorage, "cookie")
	if _, err := loadSettings(v); err == nil {
		t.Fatalf("expected error for unknown storage")
	}
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("api-url: https://auth.example.com\nkey: other:key\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	v := newViper()
	v.Set(keyConfig, path)
	if err := readConfigFile(v); err != nil {
		t.Fatalf("readConfigFile: %v", err)
	}
	s, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.APIURL != "https://auth.example.com" || s.Key != "other:key" {
		t.Fatalf("config file not applied: %+v", s)
	}
}

func TestReadConfigFileMissingExplicit(t *testing.T) {
	v := newViper()
	v.Set(keyConfig, filepath.Join(t.TempDir(), "missing.yaml"))
	if err := readConfigFile(v); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := newLogger(level); err != nil {
			t.Fatalf("newLogger(%q): %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error for an unknown level")
	}
}
