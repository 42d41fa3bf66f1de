package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "cmdops.yml"

// Config models cmdops.yml.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Analytics Analytics `yaml:"analytics"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Redis is optional; an empty Addr selects the in-memory limiter and cache.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type RateLimit struct {
	Window  time.Duration  `yaml:"window"`
	Default int            `yaml:"default"`
	Actions map[string]int `yaml:"actions"`
}

// Limit returns the per-window budget for action.
func (r RateLimit) Limit(action string) int {
	if n, ok := r.Actions[action]; ok {
		return n
	}
	return r.Default
}

type Analytics struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with every field populated.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config.redis.db must not be negative")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config.rate_limit.window must be positive")
	}
	if c.RateLimit.Default <= 0 {
		return fmt.Errorf("config.rate_limit.default must be positive")
	}
	for action, n := range c.RateLimit.Actions {
		if action == "" {
			return fmt.Errorf("config.rate_limit.actions contains empty action")
		}
		if n <= 0 {
			return fmt.Errorf("rate limit for %s must be positive", action)
		}
	}
	if c.Analytics.CacheTTL < 0 {
		return fmt.Errorf("config.analytics.cache_ttl must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config.log.format must be json or text")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cmdops config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  driver: sqlite
  # empty dsn uses <workspace>/.cmdops/cmdops.db
  dsn: ""

redis:
  # empty addr keeps rate limits and analytics snapshots in memory
  addr: ""
  password: ""
  db: 0

auth:
  jwt_secret: ""

rate_limit:
  window: 1m
  default: 120
  actions:
    quest.activate: 30
    feedback.create: 5

analytics:
  cache_ttl: 30s

log:
  level: info
  format: json
`
