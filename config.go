package goSession

import (
	"errors"
	"strings"
	"time"
)

// DefaultStorageKey is the single storage key holding the encrypted session envelope.
const DefaultStorageKey = "auth:tokens"

// DefaultSafetyMargin is how long before access token expiry a renewal fires.
const DefaultSafetyMargin = 60 * time.Second

// Config holds [Manager] settings. Start from [DefaultConfig] and override fields.
type Config struct {
	Storage StorageConfig
	Renewal RenewalConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// StorageConfig controls encrypted persistence.
type StorageConfig struct {
	// Key is the storage key of the session envelope.
	Key string
	// Secret derives the encryption key. It must be identical across every instance sharing the
	// storage backend.
	Secret string
}

// RenewalConfig controls silent renewal.
type RenewalConfig struct {
	// SafetyMargin is subtracted from the access token expiry to compute the renewal time.
	SafetyMargin time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Storage.Secret is left empty and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Key: DefaultStorageKey,
		},
		Renewal: RenewalConfig{
			SafetyMargin: DefaultSafetyMargin,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("Storage Key must not be empty")
	}
	if c.Storage.Secret == "" {
		return errors.New("Storage Secret must not be empty")
	}

	if c.Renewal.SafetyMargin < 0 {
		return errors.New("Renewal SafetyMargin must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
