package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultToken is the placeholder bearer token. It must be overridden in
// production.
const DefaultToken = "change-me"

// Duration is a time.Duration that unmarshals from a YAML string like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	MetricsAddress string `yaml:"metrics_address"`
}

// Address is the listen address on all interfaces.
func (s ServerConfig) Address() string {
	return ":" + strconv.Itoa(s.Port)
}

// AuthConfig holds the bearer token clients must present.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// RouterConfig holds the service credentials used for every router.
type RouterConfig struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Port     int      `yaml:"port"`
	Timeout  Duration `yaml:"timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration. It is built once at startup
// and never modified afterwards.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Router RouterConfig `yaml:"router"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 3001},
		Auth:   AuthConfig{Token: DefaultToken},
		Router: RouterConfig{
			Username: "admin",
			Port:     8728,
			Timeout:  Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), the dotenv file at envFile (skipped when missing) and
// finally the process environment, each layer overriding the previous one.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// godotenv never overrides variables that are already set, so the
	// process environment wins over the file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = n
	}
	if v, ok := os.LookupEnv("METRICS_ADDRESS"); ok {
		cfg.Server.MetricsAddress = v
	}
	if v, ok := os.LookupEnv("PROXY_API_KEY"); ok {
		cfg.Auth.Token = v
	}
	if v, ok := os.LookupEnv("MIKROTIK_USER"); ok {
		cfg.Router.Username = v
	}
	if v, ok := os.LookupEnv("MIKROTIK_PASSWORD"); ok {
		cfg.Router.Password = v
	}
	if v, ok := os.LookupEnv("MIKROTIK_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MIKROTIK_PORT %q: %w", v, err)
		}
		cfg.Router.Port = n
	}
	if v, ok := os.LookupEnv("PROBE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PROBE_TIMEOUT %q: %w", v, err)
		}
		cfg.Router.Timeout = Duration{d}
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Auth.Token == "" {
		return fmt.Errorf("auth token is required")
	}
	if c.Router.Port <= 0 || c.Router.Port > 65535 {
		return fmt.Errorf("router port must be between 1 and 65535, got %d", c.Router.Port)
	}
	if c.Router.Timeout.Duration <= 0 {
		return fmt.Errorf("router timeout must be positive, got %s", c.Router.Timeout.Duration)
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}
	return nil
}

// PlaceholderToken reports whether the default token is still in use.
func (c *Config) PlaceholderToken() bool {
	return c.Auth.Token == DefaultToken
}
