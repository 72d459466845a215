package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Config holds all configuration for the sending safety engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Channel    ChannelConfig    `yaml:"channel"`
	Health     HealthConfig     `yaml:"health"`
	Accounts   AccountsConfig   `yaml:"accounts"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Activation ActivationConfig `yaml:"activation"`
	Timezone   string           `yaml:"timezone"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings. Redis backs the activation
// sub-quota counters and the distributed locks for singleton schedulers.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ChannelConfig points at the external messaging bridge that actually
// delivers messages to the channel.
type ChannelConfig struct {
	BridgeURL string        `yaml:"bridge_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// HealthConfig holds the score tuning constants. The specific numbers are
// product-tuning values, directionally conservative rather than derived;
// operators can override all of them.
type HealthConfig struct {
	Deltas     ScoreDeltas             `yaml:"deltas"`
	Thresholds domain.StatusThresholds `yaml:"thresholds"`
	Recompute  RecomputeConfig         `yaml:"recompute"`

	// MinEventDelta is the smallest score movement that gets its own
	// score_drop/score_rise event during a recompute pass.
	MinEventDelta int `yaml:"min_event_delta"`
}

// ScoreDeltas are the per-event score penalties applied by RecordEvent.
type ScoreDeltas struct {
	Report  int `yaml:"report"`
	Block   int `yaml:"block"`
	NoReply int `yaml:"no_reply"`

	// NoReplyStreakCap stops no_reply penalties from accruing once the
	// consecutive streak reaches this length.
	NoReplyStreakCap int `yaml:"no_reply_streak_cap"`
}

// RecomputeConfig controls the periodic score re-derivation pass.
type RecomputeConfig struct {
	IntervalMinutes   int     `yaml:"interval_minutes"`
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days"`
}

// AccountsConfig holds defaults for newly connected accounts.
type AccountsConfig struct {
	DefaultMaxDailyMessages   int `yaml:"default_max_daily_messages"`
	DefaultMinIntervalSeconds int `yaml:"default_min_interval_seconds"`
}

// DispatchConfig holds campaign dispatcher settings.
type DispatchConfig struct {
	// DefaultDelaySeconds is the inter-message delay used when a job
	// doesn't carry its own override and the account interval is zero.
	DefaultDelaySeconds int `yaml:"default_delay_seconds"`
}

// ActivationConfig holds the defaults seeded into the activation settings
// row on first boot. Runtime values live in the database and are operator
// mutable.
type ActivationConfig struct {
	MinDelaySeconds          int    `yaml:"min_delay_seconds"`
	MaxDelaySeconds          int    `yaml:"max_delay_seconds"`
	MessagesPerDayPerAccount int    `yaml:"messages_per_day_per_account"`
	StartHour                int    `yaml:"start_hour"`
	EndHour                  int    `yaml:"end_hour"`
	MessageStyle             string `yaml:"message_style"`
}

// Default returns the baseline configuration. Values are conservative:
// a fresh account gets a low daily cap and a generous interval.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Channel: ChannelConfig{Timeout: 60 * time.Second},
		Health: HealthConfig{
			Deltas: ScoreDeltas{
				Report:           -15,
				Block:            -30,
				NoReply:          -3,
				NoReplyStreakCap: 3,
			},
			Thresholds: domain.DefaultStatusThresholds,
			Recompute: RecomputeConfig{
				IntervalMinutes:   60,
				DecayHalfLifeDays: 7,
			},
			MinEventDelta: 5,
		},
		Accounts: AccountsConfig{
			DefaultMaxDailyMessages:   150,
			DefaultMinIntervalSeconds: 45,
		},
		Dispatch: DispatchConfig{DefaultDelaySeconds: 60},
		Activation: ActivationConfig{
			MinDelaySeconds:          120,
			MaxDelaySeconds:          900,
			MessagesPerDayPerAccount: 10,
			StartHour:                9,
			EndHour:                  22,
			MessageStyle:             string(domain.StyleMixed),
		},
		Timezone: "Local",
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides. A missing config file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	// .env is optional, for local development
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CHANNEL_BRIDGE_URL"); v != "" {
		cfg.Channel.BridgeURL = v
	}
	if v := os.Getenv("CHANNEL_API_KEY"); v != "" {
		cfg.Channel.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("TZ"); v != "" {
		cfg.Timezone = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.Accounts.DefaultMaxDailyMessages <= 0 {
		return fmt.Errorf("accounts.default_max_daily_messages must be > 0")
	}
	if c.Accounts.DefaultMinIntervalSeconds < 0 {
		return fmt.Errorf("accounts.default_min_interval_seconds must be >= 0")
	}
	if c.Activation.MinDelaySeconds >= c.Activation.MaxDelaySeconds {
		return fmt.Errorf("activation.min_delay_seconds must be < max_delay_seconds")
	}
	if c.Activation.StartHour < 0 || c.Activation.StartHour > 23 ||
		c.Activation.EndHour < 1 || c.Activation.EndHour > 24 ||
		c.Activation.StartHour >= c.Activation.EndHour {
		return fmt.Errorf("activation hours must satisfy 0 <= start < end <= 24")
	}
	th := c.Health.Thresholds
	if !(th.Safe > th.Watch && th.Watch > th.Warning && th.Warning > 0) {
		return fmt.Errorf("health.thresholds must be strictly decreasing and positive")
	}
	return nil
}

// Location resolves the configured timezone. Falls back to the system
// local zone when unset or invalid; daily resets and sending windows are
// evaluated in this zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
