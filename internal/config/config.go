// Package config provides configuration management for tastetrainer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/internal/trainer"
)

const (
	// DefaultPort is the default HTTP port for the worker service.
	DefaultPort = 37780

	// EnvPrefix prefixes every environment override, e.g. TASTE_LOG_LEVEL.
	EnvPrefix = "TASTE_"

	// PathEnvVar overrides the config file location.
	PathEnvVar = "TASTE_CONFIG"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Candidate sources.
const (
	SourceCatalog   = "catalog"
	SourceRemote    = "remote"
	SourceInventory = "inventory"
)

// Analysis providers.
const (
	ProviderNone   = "none"
	ProviderRemote = "remote"
	ProviderChat   = "chat"
)

// Config holds the application configuration.
type Config struct {
	Trainer    trainer.Config   `koanf:"trainer"`
	Scoring    scoring.Config   `koanf:"scoring"`
	Storage    StorageConfig    `koanf:"storage"`
	Candidates CandidatesConfig `koanf:"candidates"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
}

// StorageConfig selects the snapshot blob store.
type StorageConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=memory sqlite badger postgres"`
	Path     string `koanf:"path"`
	DSN      string `koanf:"dsn" validate:"required_if=Driver postgres"`
	Key      string `koanf:"key" validate:"required"`
	MaxConns int    `koanf:"max_conns" validate:"gte=0"`
}

// CandidatesConfig selects the dish candidate source.
type CandidatesConfig struct {
	Source      string        `koanf:"source" validate:"oneof=catalog remote inventory"`
	CatalogPath string        `koanf:"catalog_path"`
	Watch       bool          `koanf:"watch"`
	RemoteURL   string        `koanf:"remote_url" validate:"required_if=Source remote,omitempty,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	Locale      string        `koanf:"locale"`
	Seed        int64         `koanf:"seed"`
}

// AnalysisConfig selects the taste analyzer.
type AnalysisConfig struct {
	Provider         string        `koanf:"provider" validate:"oneof=none remote chat"`
	BaseURL          string        `koanf:"base_url" validate:"omitempty,url"`
	Model            string        `koanf:"model" validate:"required_if=Provider chat"`
	APIKey           string        `koanf:"api_key" validate:"required_if=Provider chat"`
	Temperature      float64       `koanf:"temperature" validate:"gte=0,lte=2"`
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
}

// ServerConfig configures the HTTP worker.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port" validate:"gt=0,lte=65535"`
	RateLimit    int    `koanf:"rate_limit" validate:"gte=0"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" validate:"gt=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataDir returns the data directory path (~/.tastetrainer).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tastetrainer")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "tastetrainer.db")
}

// SettingsPath returns the default config file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Trainer: trainer.DefaultConfig(),
		Scoring: scoring.DefaultConfig(),
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			Path:     DBPath(),
			Key:      "taste_training_snapshot_v1",
			MaxConns: 4,
		},
		Candidates: CandidatesConfig{
			Source:  SourceCatalog,
			Timeout: 90 * time.Second,
			Locale:  "en-US",
		},
		Analysis: AnalysisConfig{
			Provider:         ProviderNone,
			Temperature:      0.3,
			Timeout:          90 * time.Second,
			BreakerThreshold: 3,
			BreakerTimeout:   time.Minute,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         DefaultPort,
			RateLimit:    120,
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional YAML file at path and TASTE_*
// environment variables, then validates the result. An empty path uses
// $TASTE_CONFIG or the default settings file when present.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(SettingsPath()); err == nil {
		return SettingsPath()
	}
	return ""
}

// envTransform maps TASTE_TRAINER_MIN_DECK_THRESHOLD to
// trainer.min_deck_threshold. The first segment after the prefix is the section.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return err
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		return errors.New("storage.path is required for the sqlite driver")
	}
	if c.Candidates.Source == SourceInventory && c.Storage.Driver != DriverPostgres {
		return errors.New("the inventory candidate source requires the postgres storage driver")
	}
	if c.Analysis.Provider == ProviderRemote && c.Analysis.BaseURL == "" && c.Candidates.RemoteURL == "" {
		return errors.New("analysis.base_url is required for the remote analysis provider")
	}
	if c.Trainer.MinDeckThreshold > c.Trainer.RefillDeckSize {
		return errors.New("trainer.min_deck_threshold must not exceed trainer.refill_deck_size")
	}
	return nil
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Get returns the global configuration, loading it if necessary.
// Load errors fall back to defaults.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load("")
		if err != nil {
			globalConfig = Default()
		}
	})
	return globalConfig
}
