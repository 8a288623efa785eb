// Package config loads client configuration the way
// internal/bootstrap/wakuconfig does: a YAML file merged with
// environment-variable overrides, clamped to sane bounds.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StoreMode selects the storage engine's persistence mode.
type StoreMode string

const (
	StoreModePersistent StoreMode = "persistent"
	StoreModeEphemeral  StoreMode = "ephemeral"
)

// ClientConfig is the top-level configuration for one client instance.
type ClientConfig struct {
	StorePath               string    `yaml:"store_path"`
	StoreMode               StoreMode `yaml:"store_mode"`
	LogLevel                string    `yaml:"log_level"`
	PublishRetryMax         int       `yaml:"publish_retry_max"`
	EpochConflictRetryMax   int       `yaml:"epoch_conflict_retry_max"`
	WireEndpoint            string    `yaml:"wire_endpoint"`
	HmacKeyRotationDays     int       `yaml:"hmac_key_rotation_days"`
}

// Default returns the baseline tuning: publish retry 5, epoch-conflict
// retry 3, HMAC rotation every 30 days.
func Default() ClientConfig {
	return ClientConfig{
		StorePath:             "",
		StoreMode:             StoreModeEphemeral,
		LogLevel:              "info",
		PublishRetryMax:       5,
		EpochConflictRetryMax: 3,
		WireEndpoint:          "",
		HmacKeyRotationDays:   30,
	}
}

// LoadFromPath reads YAML at path (if it exists) over the defaults, then
// applies environment overrides, mirroring
// wakuconfig.LoadFromPathWithDataDir's try-then-merge-then-env shape.
func LoadFromPath(path string) (ClientConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return ClientConfig{}, err
			}
		} else {
			var fromFile ClientConfig
			if err := yaml.Unmarshal(raw, &fromFile); err != nil {
				return ClientConfig{}, err
			}
			cfg = mergeIfSet(cfg, fromFile)
		}
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

func mergeIfSet(base, override ClientConfig) ClientConfig {
	if override.StorePath != "" {
		base.StorePath = override.StorePath
	}
	if override.StoreMode != "" {
		base.StoreMode = override.StoreMode
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.PublishRetryMax != 0 {
		base.PublishRetryMax = override.PublishRetryMax
	}
	if override.EpochConflictRetryMax != 0 {
		base.EpochConflictRetryMax = override.EpochConflictRetryMax
	}
	if override.WireEndpoint != "" {
		base.WireEndpoint = override.WireEndpoint
	}
	if override.HmacKeyRotationDays != 0 {
		base.HmacKeyRotationDays = override.HmacKeyRotationDays
	}
	return base
}

// ApplyEnvOverrides mutates cfg in place from XMTP_* environment variables,
// the same override-after-merge step wakuconfig.ApplyEnvOverrides performs.
func ApplyEnvOverrides(cfg *ClientConfig) {
	cfg.StorePath = envString("XMTP_STORE_PATH", cfg.StorePath)
	if mode := envString("XMTP_STORE_MODE", string(cfg.StoreMode)); mode == string(StoreModePersistent) || mode == string(StoreModeEphemeral) {
		cfg.StoreMode = StoreMode(mode)
	}
	cfg.LogLevel = envString("XMTP_LOG_LEVEL", cfg.LogLevel)
	cfg.WireEndpoint = envString("XMTP_WIRE_ENDPOINT", cfg.WireEndpoint)
	cfg.PublishRetryMax = envBoundedInt("XMTP_PUBLISH_RETRY_MAX", cfg.PublishRetryMax, 0, 50)
	cfg.EpochConflictRetryMax = envBoundedInt("XMTP_EPOCH_CONFLICT_RETRY_MAX", cfg.EpochConflictRetryMax, 0, 50)
	cfg.HmacKeyRotationDays = envBoundedInt("XMTP_HMAC_KEY_ROTATION_DAYS", cfg.HmacKeyRotationDays, 1, 365)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBoundedInt(key string, fallback, min, max int) int {
	v := envIntWithFallback(key, fallback)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func envIntWithFallback(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
