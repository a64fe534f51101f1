package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/executor"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig     `yaml:"device"`
	Executor        ExecutorConfig   `yaml:"executor"`
	Database        DatabaseConfig   `yaml:"database"`
	Log             LogConfig        `yaml:"log"`
	Reconciler      ReconcilerConfig `yaml:"reconciler"`
	Ledger          LedgerConfig     `yaml:"ledger"`
	API             APIConfig        `yaml:"api"`
	Power           PowerConfig      `yaml:"power"`
	EventBus        EventBusConfig   `yaml:"eventbus"`
	Script          string           `yaml:"script"`           // Lua profile script, optional
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig locates the firmware interfaces
type DeviceConfig struct {
	ConservationModePath string `yaml:"conservation_mode_path"`
	ACPICallPath         string `yaml:"acpi_call_path"`
	ACPIModule           string `yaml:"acpi_module"`
}

// ExecutorConfig controls how privileged commands run
type ExecutorConfig struct {
	Shell   string `yaml:"shell"`
	Elevate string `yaml:"elevate"` // auto, none, pkexec, sudo
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// ReconcilerConfig contains daemon reconciliation settings
type ReconcilerConfig struct {
	PeriodicInterval Duration `yaml:"periodic_interval"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps"`
	Enforce          bool     `yaml:"enforce"` // Re-apply stored desired state when hardware drifts
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// PowerConfig controls the UPower watcher
type PowerConfig struct {
	Enabled bool     `yaml:"enabled"`
	Settle  Duration `yaml:"settle"` // Quiet period before acting on a power change
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 32)
}

// Addr returns the API listen address
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Retention returns the ledger retention period
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. When allowMissing is set and
// the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath(os.Geteuid(), os.Getenv, os.UserHomeDir)
	}

	// Device defaults
	if cfg.Device.ConservationModePath == "" {
		cfg.Device.ConservationModePath = command.DefaultConservationPath
	}
	if cfg.Device.ACPICallPath == "" {
		cfg.Device.ACPICallPath = command.DefaultCallPath
	}
	if cfg.Device.ACPIModule == "" {
		cfg.Device.ACPIModule = command.DefaultModule
	}

	// Executor defaults
	if cfg.Executor.Shell == "" {
		cfg.Executor.Shell = "bash"
	}
	if cfg.Executor.Elevate == "" {
		cfg.Executor.Elevate = executor.ElevateAuto
	}

	// Reconciler defaults
	if cfg.Reconciler.PeriodicInterval == 0 {
		cfg.Reconciler.PeriodicInterval = Duration(5 * time.Minute)
	}
	if cfg.Reconciler.RateLimitRPS == 0 {
		cfg.Reconciler.RateLimitRPS = 1.0
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 90
	}

	// API defaults - loopback only, the API can change firmware settings
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 9271
	}

	if cfg.Power.Settle == 0 {
		cfg.Power.Settle = Duration(2 * time.Second)
	}

	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 2
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 32
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// defaultDatabasePath keeps the system-wide path for root and a per-user
// state directory otherwise, since /var/lib is not writable without privileges.
func defaultDatabasePath(euid int, getenv func(string) string, home func() (string, error)) string {
	const name = "ideapadd.sqlite"
	if euid == 0 {
		return filepath.Join("/var/lib/ideapadd", name)
	}
	if dir := getenv("XDG_STATE_HOME"); filepath.IsAbs(dir) {
		return filepath.Join(dir, "ideapadd", name)
	}
	if dir, err := home(); err == nil && dir != "" {
		return filepath.Join(dir, ".local", "state", "ideapadd", name)
	}
	return filepath.Join(os.TempDir(), "ideapadd", name)
}

// Validate checks values that have no sensible default
func (cfg *Config) Validate() error {
	switch cfg.Executor.Elevate {
	case executor.ElevateAuto, executor.ElevateNone, executor.ElevatePkexec, executor.ElevateSudo:
	default:
		return fmt.Errorf("executor.elevate: unknown mode %q", cfg.Executor.Elevate)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port: %d out of range", cfg.API.Port)
	}
	if cfg.Reconciler.RateLimitRPS < 0 {
		return fmt.Errorf("reconciler.rate_limit_rps must not be negative")
	}
	return nil
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(strings.TrimSpace(parts[1])); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
