package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/flight-control/mixerd/internal/auth"
	"github.com/flight-control/mixerd/internal/mixer"
)

// DefaultFile is loaded first when present.
const DefaultFile = "config/default.yaml"

// Config represents the complete configuration for mixerd
type Config struct {
	Network   NetworkConfig   `yaml:"network" toml:"network"`
	Mixer     MixerConfig     `yaml:"mixer" toml:"mixer"`
	Controls  ControlsConfig  `yaml:"controls" toml:"controls"`
	Loop      LoopConfig      `yaml:"loop" toml:"loop"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	HTTP        HTTPConfig        `yaml:"http" toml:"http"`
	Maintenance MaintenanceConfig `yaml:"maintenance" toml:"maintenance"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port         int    `yaml:"port" toml:"port"`
	ServerHeader string `yaml:"serverHeader" toml:"serverHeader"`
	DevMode      bool   `yaml:"devMode" toml:"devMode"`
}

// MaintenanceConfig holds maintenance TCP server settings
type MaintenanceConfig struct {
	Port         int      `yaml:"port" toml:"port"`
	AllowedCIDRs []string `yaml:"allowedCidrs" toml:"allowedCidrs"`
}

// MixerConfig holds mixer group limits and the initial mixer file
type MixerConfig struct {
	MaxMixers  int    `yaml:"maxMixers" toml:"maxMixers"`
	MaxOutputs int    `yaml:"maxOutputs" toml:"maxOutputs"`
	File       string `yaml:"file" toml:"file"`
	LoadPolicy string `yaml:"loadPolicy" toml:"loadPolicy"` // "abort" or "skip"
}

// ControlsConfig holds control-input settings
type ControlsConfig struct {
	StaleAfterMs int `yaml:"staleAfterMs" toml:"staleAfterMs"`
}

// LoopConfig holds control loop settings
type LoopConfig struct {
	RateHz int `yaml:"rateHz" toml:"rateHz"`
}

// AuthConfig holds API token settings
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	Algorithm    string `yaml:"algorithm" toml:"algorithm"`
	Secret       string `yaml:"secret" toml:"secret"`
	PublicKeyPEM string `yaml:"publicKeyPem" toml:"publicKeyPem"`
}

// LoggingConfig holds daemon and audit log settings
type LoggingConfig struct {
	File       string `yaml:"file" toml:"file"`
	AuditDir   string `yaml:"auditDir" toml:"auditDir"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// TelemetryConfig holds output streaming settings
type TelemetryConfig struct {
	Enabled      bool `yaml:"enabled" toml:"enabled"`
	Decimation   int  `yaml:"decimation" toml:"decimation"`
	BufferSize   int  `yaml:"bufferSize" toml:"bufferSize"`
	HeartbeatSec int  `yaml:"heartbeatSec" toml:"heartbeatSec"`
}

// StaleAfter returns the control staleness window.
func (c ControlsConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMs) * time.Millisecond
}

// Limits returns the mixer group limits.
func (c MixerConfig) Limits() mixer.Limits {
	return mixer.Limits{MaxMixers: c.MaxMixers, MaxOutputs: c.MaxOutputs}
}

// Policy returns the parsed load policy. validateConfig has already
// rejected unknown values.
func (c MixerConfig) Policy() mixer.LoadPolicy {
	p, _ := mixer.ParsePolicy(c.LoadPolicy)
	return p
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := getDefaultConfig()

	if err := loadFromFile(cfg, DefaultFile); err != nil {
		log.Printf("Warning: Could not load default config: %v", err)
	}

	if path := os.Getenv("MIXERD_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Maintenance: MaintenanceConfig{
				Port:         50000,
				AllowedCIDRs: []string{"127.0.0.0/8"},
			},
		},
		Mixer: MixerConfig{
			MaxMixers:  mixer.DefaultMaxMixers,
			MaxOutputs: mixer.DefaultMaxOutputs,
			LoadPolicy: mixer.PolicyAbort.String(),
		},
		Controls: ControlsConfig{
			StaleAfterMs: 500,
		},
		Loop: LoopConfig{
			RateHz: 100,
		},
		Auth: AuthConfig{
			Algorithm: auth.AlgHS256,
		},
		Logging: LoggingConfig{
			AuditDir:   "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Enabled:      true,
			Decimation:   10,
			BufferSize:   50,
			HeartbeatSec: 15,
		},
	}
}

// loadFromFile loads configuration from a YAML file, or TOML when the
// extension is .toml
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		_, err = toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	envInt("MIXERD_HTTP_PORT", &cfg.Network.HTTP.Port)
	envInt("MIXERD_MAINTENANCE_PORT", &cfg.Network.Maintenance.Port)
	envInt("MIXERD_MAX_MIXERS", &cfg.Mixer.MaxMixers)
	envInt("MIXERD_MAX_OUTPUTS", &cfg.Mixer.MaxOutputs)
	envInt("MIXERD_RATE_HZ", &cfg.Loop.RateHz)
	envInt("MIXERD_STALE_AFTER_MS", &cfg.Controls.StaleAfterMs)

	if v := os.Getenv("MIXERD_MIXER_FILE"); v != "" {
		cfg.Mixer.File = v
	}
	if v := os.Getenv("MIXERD_LOAD_POLICY"); v != "" {
		cfg.Mixer.LoadPolicy = v
	}
	if v := os.Getenv("MIXERD_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("MIXERD_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("MIXERD_AUDIT_DIR"); v != "" {
		cfg.Logging.AuditDir = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Network.HTTP.Port <= 0 || cfg.Network.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", cfg.Network.HTTP.Port)
	}
	if cfg.Network.Maintenance.Port < 0 || cfg.Network.Maintenance.Port > 65535 {
		return fmt.Errorf("invalid maintenance port %d", cfg.Network.Maintenance.Port)
	}
	for _, cidr := range cfg.Network.Maintenance.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
	}

	if cfg.Mixer.MaxMixers <= 0 || cfg.Mixer.MaxMixers > 256 {
		return fmt.Errorf("maxMixers %d is outside range [1, 256]", cfg.Mixer.MaxMixers)
	}
	if cfg.Mixer.MaxOutputs <= 0 || cfg.Mixer.MaxOutputs > 256 {
		return fmt.Errorf("maxOutputs %d is outside range [1, 256]", cfg.Mixer.MaxOutputs)
	}
	if _, err := mixer.ParsePolicy(cfg.Mixer.LoadPolicy); err != nil {
		return err
	}

	if cfg.Controls.StaleAfterMs <= 0 {
		return fmt.Errorf("controls staleAfterMs must be positive, got %d", cfg.Controls.StaleAfterMs)
	}
	if cfg.Loop.RateHz <= 0 || cfg.Loop.RateHz > 2000 {
		return fmt.Errorf("loop rate %d Hz is outside range [1, 2000]", cfg.Loop.RateHz)
	}

	if cfg.Auth.Enabled {
		switch cfg.Auth.Algorithm {
		case auth.AlgHS256:
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth algorithm HS256 requires a secret")
			}
		case auth.AlgRS256:
			if cfg.Auth.PublicKeyPEM == "" {
				return fmt.Errorf("auth algorithm RS256 requires a public key")
			}
		default:
			return fmt.Errorf("unsupported auth algorithm %s", cfg.Auth.Algorithm)
		}
	}

	if cfg.Logging.AuditDir == "" {
		return fmt.Errorf("logging auditDir must be set")
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Decimation <= 0 {
		return fmt.Errorf("telemetry decimation must be positive, got %d", cfg.Telemetry.Decimation)
	}

	return nil
}
