package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	RedisURL      string `env:"REDIS_URL,required"`
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"messenger"`
	CommandQueue  string `env:"COMMAND_QUEUE" envDefault:"commands"`
	EventQueue    string `env:"EVENT_QUEUE" envDefault:"events"`
	FanoutChannel string `env:"FANOUT_CHANNEL" envDefault:"fanout"`

	InactivityTimeoutSeconds   int    `env:"INACTIVITY_TIMEOUT_SECONDS" envDefault:"300"`
	RetentionSeconds           int    `env:"RETENTION_SECONDS" envDefault:"604800"`
	StoreFile                  string `env:"STORE_FILE" envDefault:"offline_messages.dat"`
	StoreCapacity              int    `env:"STORE_CAPACITY" envDefault:"10000"`
	PollTimeoutMs              int    `env:"POLL_TIMEOUT_MS" envDefault:"1000"`
	MaintenanceIntervalSeconds int    `env:"MAINTENANCE_INTERVAL_SECONDS" envDefault:"60"`
	SnapshotIntervalSeconds    int    `env:"SNAPSHOT_INTERVAL_SECONDS" envDefault:"300"`
	ReplyTTLSeconds            int    `env:"REPLY_TTL_SECONDS" envDefault:"30"`

	ArchiveDSN           string `env:"ARCHIVE_DSN"`
	ArchiveRetentionDays int    `env:"ARCHIVE_RETENTION_DAYS" envDefault:"30"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalSeconds) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

func (c *Config) ReplyTTL() time.Duration {
	return time.Duration(c.ReplyTTLSeconds) * time.Second
}

func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.ArchiveRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CommandKey, EventKey and FanoutKey place the logical channels under the
// shared prefix.
func (c *Config) CommandKey() string { return c.channel(c.CommandQueue) }
func (c *Config) EventKey() string   { return c.channel(c.EventQueue) }
func (c *Config) FanoutKey() string  { return c.channel(c.FanoutChannel) }

func (c *Config) channel(name string) string {
	if c.ChannelPrefix == "" {
		return name
	}
	return c.ChannelPrefix + ":" + name
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.CommandQueue == "" || c.EventQueue == "" || c.FanoutChannel == "" {
		return fmt.Errorf("COMMAND_QUEUE, EVENT_QUEUE and FANOUT_CHANNEL must not be empty")
	}
	if c.CommandKey() == c.EventKey() {
		return fmt.Errorf("COMMAND_QUEUE and EVENT_QUEUE must differ")
	}
	if c.InactivityTimeoutSeconds <= 0 {
		return fmt.Errorf("INACTIVITY_TIMEOUT_SECONDS must be positive")
	}
	if c.RetentionSeconds <= 0 {
		return fmt.Errorf("RETENTION_SECONDS must be positive")
	}
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("STORE_CAPACITY must be positive")
	}
	if c.PollTimeoutMs <= 0 {
		return fmt.Errorf("POLL_TIMEOUT_MS must be positive")
	}
	if c.MaintenanceIntervalSeconds <= 0 {
		return fmt.Errorf("MAINTENANCE_INTERVAL_SECONDS must be positive")
	}
	if c.SnapshotIntervalSeconds < 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL_SECONDS must not be negative")
	}

	if c.StoreFile == "" {
		log.Warn().Msg("STORE_FILE is empty: offline messages will not survive a restart")
	}
	if c.ArchiveDSN == "" {
		log.Info().Msg("ARCHIVE_DSN is empty: message history disabled")
	}

	return nil
}

// IsPostgresDSN reports whether dsn should be opened with the postgres driver.
// Everything else is treated as a sqlite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
