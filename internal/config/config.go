package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"xray/internal/app/errors"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
		Buffer  int    `yaml:"buffer"`
	} `yaml:"feed"`
	Bus struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"bus"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Sentry struct {
		DSN string `yaml:"dsn"`
	} `yaml:"sentry"`

	path string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = ServerHost
	cfg.Server.Port = ServerPort

	cfg.Store.Path = StorePath

	cfg.Feed.Enabled = true
	cfg.Feed.Name = "main"
	cfg.Feed.Buffer = FeedBufferSize

	cfg.Bus.Buffer = BusBufferSize

	cfg.Logging.Level = LogLevel
	cfg.Logging.Format = LogFormat

	return cfg
}

// Load loads the configuration from xray.yaml, .env and XRAY_* environment
// variables, in increasing order of precedence
func Load() (*Config, error) {
	return LoadFile(FileName)
}

// LoadFile loads the configuration from the given file path
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load(EnvFile)

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper only consults the environment for keys it knows about, so every
	// key must be registered up front or XRAY_* overrides would silently
	// apply only to keys present in the yaml file
	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.ErrFailedToReadConfig
	}

	if err == nil {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, errors.ErrFailedToParseConfig
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ErrFailedToParseConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}

	cfg.path = path

	return cfg, nil
}

// defaults flattens a configuration into viper's dotted key space
func defaults(cfg *Config) map[string]any {
	return map[string]any{
		"server.host":    cfg.Server.Host,
		"server.port":    cfg.Server.Port,
		"store.path":     cfg.Store.Path,
		"feed.enabled":   cfg.Feed.Enabled,
		"feed.name":      cfg.Feed.Name,
		"feed.buffer":    cfg.Feed.Buffer,
		"bus.buffer":     cfg.Bus.Buffer,
		"logging.level":  cfg.Logging.Level,
		"logging.format": cfg.Logging.Format,
		"sentry.dsn":     cfg.Sentry.DSN,
	}
}

// Path returns the file path this configuration was loaded from. Empty for
// a configuration that was never loaded from disk.
func (c *Config) Path() string {
	return c.path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if c.Bus.Buffer <= 0 {
		return fmt.Errorf("bus buffer must be positive")
	}

	if c.Feed.Buffer <= 0 {
		return fmt.Errorf("feed buffer must be positive")
	}

	if c.Feed.Name == "" {
		return fmt.Errorf("feed name is required")
	}

	return nil
}

// ServerAddr returns the ingress listen address
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
