package authengine

import (
	"errors"
	"time"

	"github.com/MrEthical07/authengine/password"
)

// Config defines Engine behavior. Build clones and validates it; the Engine
// never mutates it afterwards.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Password  PasswordConfig  `yaml:"password"`
	Policy    PolicyConfig    `yaml:"policy"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls token lifetime and derivation.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// NonceBytes of crypto/rand output are mixed into the token seed.
	NonceBytes int `yaml:"nonce_bytes"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs. Memory is in KiB.
type PasswordConfig struct {
	Memory         uint32 `yaml:"memory"`
	Time           uint32 `yaml:"time"`
	Parallelism    uint8  `yaml:"parallelism"`
	SaltLength     uint32 `yaml:"salt_length"`
	KeyLength      uint32 `yaml:"key_length"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login"`
}

func (p PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

// PolicyConfig is the username and password shape enforced on non-forced
// registration and on password change.
type PolicyConfig struct {
	MinUsernameLength int  `yaml:"min_username_length"`
	MinPasswordLength int  `yaml:"min_password_length"`
	RequireDigit      bool `yaml:"require_digit"`
	RequireUppercase  bool `yaml:"require_uppercase"`
}

/*
====================================
OBSERVABILITY + THROTTLING
====================================
*/

// RateLimitConfig controls the Redis login throttle. It requires
// [Builder.WithRedis] when enabled.
type RateLimitConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxAttempts      int           `yaml:"max_attempts"`
	Window           time.Duration `yaml:"window"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
	RedisPrefix      string        `yaml:"redis_prefix"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles in-process counters and the session-check histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns the production defaults: 7 day sessions, argon2id
// at 64 MiB / 3 passes / 2 lanes, and the 3/8/digit/uppercase policy.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:        7 * 24 * time.Hour,
			NonceBytes: 16,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Policy: PolicyConfig{
			MinUsernameLength: 3,
			MinPasswordLength: 8,
			RequireDigit:      true,
			RequireUppercase:  true,
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			RedisPrefix: "ae:rl:",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be > 0")
	}
	if c.Session.NonceBytes < 0 || c.Session.NonceBytes > 64 {
		return errors.New("session nonce bytes must be between 0 and 64")
	}
	if c.Policy.MinUsernameLength < 1 {
		return errors.New("policy min username length must be >= 1")
	}
	if c.Policy.MinPasswordLength < 1 {
		return errors.New("policy min password length must be >= 1")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxAttempts <= 0 {
			return errors.New("rate limit max attempts must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate limit window must be > 0")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0")
	}
	if _, err := password.NewArgon2(c.Password.hasherConfig()); err != nil {
		return err
	}
	return nil
}
