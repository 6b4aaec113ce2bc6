package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "JEEV_CONFIG"
	envName              = "JEEV_NAME"
	envAdapter           = "JEEV_ADAPTER"
	envUnits             = "JEEV_UNITS"
	envStorageDriver     = "JEEV_STORAGE_DRIVER"
	envStoragePath       = "JEEV_STORAGE_PATH"
	envTelegramToken     = "JEEV_TELEGRAM_TOKEN"
	envTelegramAllowFrom = "JEEV_TELEGRAM_ALLOW_FROM"
	envLogFormat         = "JEEV_LOG_FORMAT"
	envLogLevel          = "JEEV_LOG_LEVEL"
	envLogAddSource      = "JEEV_LOG_ADD_SOURCE"
)

const (
	DefaultName                = "Jeev"
	DefaultAdapter             = "console"
	DefaultStorageDriver       = "memory"
	DefaultStoragePath         = "./jeev.db"
	DefaultSyncIntervalSeconds = 30
	DefaultWebHost             = "127.0.0.1"
	DefaultWebPort             = 8080
	DefaultConsoleChannel      = "console"
	DefaultConsoleUser         = "user"
)

// Config is the root host configuration loaded from jeev.{json,yaml,yml,toml}.
type Config struct {
	Name     string         `json:"name" yaml:"name" toml:"name"`
	Adapter  string         `json:"adapter" yaml:"adapter" toml:"adapter"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" toml:"storage"`
	Web      WebConfig      `json:"web" yaml:"web" toml:"web"`
	Logging  LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty" toml:"logging,omitempty"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram" toml:"telegram"`
	Console  ConsoleConfig  `json:"console" yaml:"console" toml:"console"`
	Watch    bool           `json:"watch" yaml:"watch" toml:"watch"`

	// RawUnits holds the undecoded "units" value: a mapping of unit name to
	// options, a list of names, or a comma-separated string.
	RawUnits any `json:"units" yaml:"units" toml:"units"`

	Units UnitsSpec `json:"-" yaml:"-" toml:"-"`
	Path  string    `json:"-" yaml:"-" toml:"-"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty" toml:"add_source,omitempty"`
}

// StorageConfig selects the persistence backend for unit data.
type StorageConfig struct {
	Driver              string `json:"driver" yaml:"driver" toml:"driver"`
	Path                string `json:"path" yaml:"path" toml:"path"`
	SyncIntervalSeconds int    `json:"sync_interval" yaml:"sync_interval" toml:"sync_interval"`
}

// WebConfig configures the HTTP listener that serves unit handlers.
type WebConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Host    string `json:"host" yaml:"host" toml:"host"`
	Port    int    `json:"port" yaml:"port" toml:"port"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token     string   `json:"token" yaml:"token" toml:"token"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from" toml:"allow_from"`
}

// ConsoleConfig configures the interactive console transport.
type ConsoleConfig struct {
	Channel string `json:"channel" yaml:"channel" toml:"channel"`
	User    string `json:"user" yaml:"user" toml:"user"`
}

// Default returns a console-mode configuration with no units loaded.
func Default() *Config {
	return &Config{
		Name:    DefaultName,
		Adapter: DefaultAdapter,
		Storage: StorageConfig{
			Driver:              DefaultStorageDriver,
			Path:                DefaultStoragePath,
			SyncIntervalSeconds: DefaultSyncIntervalSeconds,
		},
		Web: WebConfig{Host: DefaultWebHost, Port: DefaultWebPort},
		Console: ConsoleConfig{
			Channel: DefaultConsoleChannel,
			User:    DefaultConsoleUser,
		},
	}
}

// LoadConfig resolves the config file, decodes it, and applies environment overrides.
//
// A missing file is not an error unless JEEV_CONFIG names one: the host then
// runs with Default() plus environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath == "" {
		cfg := Default()
		if err := finalize(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return LoadFile(configPath)
}

// LoadFile decodes one config file, choosing the format by extension.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, content, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.Path = path

	if err := finalize(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	case ".toml":
		return toml.Unmarshal(content, cfg)
	case ".json", "":
		return json.Unmarshal(content, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func finalize(cfg *Config) error {
	units, err := ParseUnitsSpec(cfg.RawUnits)
	if err != nil {
		return fmt.Errorf("parse units: %w", err)
	}
	cfg.Units = units

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if name := strings.TrimSpace(os.Getenv(envName)); name != "" {
		cfg.Name = name
	}
	if adapter := strings.TrimSpace(os.Getenv(envAdapter)); adapter != "" {
		cfg.Adapter = strings.ToLower(adapter)
	}
	if driver := strings.TrimSpace(os.Getenv(envStorageDriver)); driver != "" {
		cfg.Storage.Driver = strings.ToLower(driver)
	}
	if path := strings.TrimSpace(os.Getenv(envStoragePath)); path != "" {
		cfg.Storage.Path = path
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramToken)); token != "" {
		cfg.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
	if format := strings.TrimSpace(os.Getenv(envLogFormat)); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}
	if level := strings.TrimSpace(os.Getenv(envLogLevel)); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if addSource := strings.TrimSpace(os.Getenv(envLogAddSource)); addSource != "" {
		cfg.Logging.AddSource = parseBool(addSource)
	}
	if rawUnits := strings.TrimSpace(os.Getenv(envUnits)); rawUnits != "" {
		for _, name := range parseCSV(rawUnits) {
			if !cfg.Units.Has(name) {
				cfg.Units = append(cfg.Units, UnitEntry{Name: name, Options: map[string]any{}})
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultName
	}
	if strings.TrimSpace(cfg.Adapter) == "" {
		cfg.Adapter = DefaultAdapter
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.SyncIntervalSeconds <= 0 {
		cfg.Storage.SyncIntervalSeconds = DefaultSyncIntervalSeconds
	}
	if strings.TrimSpace(cfg.Web.Host) == "" {
		cfg.Web.Host = DefaultWebHost
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = DefaultWebPort
	}
	if strings.TrimSpace(cfg.Console.Channel) == "" {
		cfg.Console.Channel = DefaultConsoleChannel
	}
	if strings.TrimSpace(cfg.Console.User) == "" {
		cfg.Console.User = DefaultConsoleUser
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is JEEV_CONFIG first, then cwd-local jeev.* files. An empty
// path with a nil error means no file was found.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	for _, name := range []string{"jeev.json", "jeev.yaml", "jeev.yml", "jeev.toml"} {
		candidate := filepath.Join(cwd, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
