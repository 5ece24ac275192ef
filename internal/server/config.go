package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/auditsink"
)

// Store backends accepted in StoreConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// EmbeddedRedis as RedisConfig.Addr starts an in-process miniredis. It is
// meant for development only: nothing survives a restart.
const EmbeddedRedis = "embedded"

// Config is the full server configuration.
type Config struct {
	Listen  string            `yaml:"listen"`
	Log     LogConfig         `yaml:"log"`
	Engine  authengine.Config `yaml:"engine"`
	Store   StoreConfig       `yaml:"store"`
	Redis   RedisConfig       `yaml:"redis"`
	Audit   AuditConfig       `yaml:"audit"`
	HTTP    HTTPConfig        `yaml:"http"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// StoreConfig selects where accounts and bookings are persisted. Both live
// in the same backend under separate namespaces.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// file
	Path         string `yaml:"path"`
	BookingsPath string `yaml:"bookings_path"`
	LogPath      string `yaml:"log_path"`

	// sqlite, postgres
	DSN string `yaml:"dsn"`

	// redis, s3
	Prefix string `yaml:"prefix"`

	// s3
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// Cache fronts the backend with bigcache when CacheLife > 0.
	CacheLife  time.Duration `yaml:"cache_life"`
	CacheMaxMB int           `yaml:"cache_max_mb"`
}

// RedisConfig is used by the redis store backend and the login throttle.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditConfig lists the sinks events fan out to: log, json, mqtt, influx.
type AuditConfig struct {
	Sinks    []string               `yaml:"sinks"`
	JSONPath string                 `yaml:"json_path"`
	MQTT     auditsink.MQTTConfig   `yaml:"mqtt"`
	Influx   auditsink.InfluxConfig `yaml:"influx"`
}

type HTTPConfig struct {
	AllowForceRegister bool          `yaml:"allow_force_register"`
	TrustForwardedFor  bool          `yaml:"trust_forwarded_for"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Prometheus bool `yaml:"prometheus"`
}

// DefaultConfig serves on :10000 with in-memory stores.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":10000",
		Log: LogConfig{
			Level: "info",
		},
		Engine: authengine.DefaultConfig(),
		Store: StoreConfig{
			Backend:      BackendMemory,
			Path:         "data/database.json",
			BookingsPath: "data/bookings.json",
			LogPath:      "data/log",
			Prefix:       "ae:",
			Region:       "us-east-1",
			CacheMaxMB:   64,
		},
		HTTP: HTTPConfig{
			ShutdownTimeout: time.Minute,
		},
		Metrics: MetricsConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig overlays the YAML file at path on DefaultConfig, applies
// environment overrides and validates the result. An empty path yields the
// defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides reads AUTHENGINE_* variables so secrets can stay out of
// the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHENGINE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("AUTHENGINE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUTHENGINE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AUTHENGINE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("AUTHENGINE_MQTT_PASSWORD"); v != "" {
		cfg.Audit.MQTT.Password = v
	}
	if v := os.Getenv("AUTHENGINE_INFLUX_TOKEN"); v != "" {
		cfg.Audit.Influx.Token = v
	}
}

// Validate checks cross-section consistency and the engine config.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address required")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Path == "" || c.Store.BookingsPath == "" {
			return errors.New("file store requires path and bookings_path")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis store requires redis.addr")
		}
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%s store requires dsn", c.Store.Backend)
		}
	case BackendS3:
		if c.Store.Bucket == "" {
			return errors.New("s3 store requires bucket")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Engine.RateLimit.Enabled && c.Redis.Addr == "" {
		return errors.New("rate limiting requires redis.addr")
	}
	for _, sink := range c.Audit.Sinks {
		switch sink {
		case "log", "mqtt", "influx":
		case "json":
			if c.Audit.JSONPath == "" {
				return errors.New("json audit sink requires audit.json_path")
			}
		default:
			return fmt.Errorf("unknown audit sink %q", sink)
		}
	}
	if len(c.Audit.Sinks) > 0 && !c.Engine.Audit.Enabled {
		return errors.New("audit sinks configured but engine.audit.enabled is false")
	}
	return c.Engine.Validate()
}
