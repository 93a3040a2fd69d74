// Package config provides configuration management for the sitewatch
// service. Values are loaded from a YAML file with environment variable
// overrides via viper, with defaults applied for anything unset.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sitewatch/sitewatch/internal/logger"
)

// Defaults applied when neither the config file nor environment set a value.
const (
	defaultServerAddress      = ":8080"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second

	defaultCheckInterval    = 30 * time.Second
	defaultWorkerCount      = 4
	defaultMaxConsecFails   = 5
	defaultRunHistoryDepth  = 50
	defaultRetentionCronTab = "30 3 * * *"

	defaultFetchTimeout    = 30 * time.Second
	defaultMaxResponseSize = 10 * 1024 * 1024 // 10 MB
	defaultUserAgent       = "sitewatch/1.0"
	defaultHostRatePerSec  = 1.0
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"       yaml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"     yaml:"host"`
	Port     string `mapstructure:"port"     yaml:"port"`
	User     string `mapstructure:"user"     yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name"     yaml:"name"`
	SSLMode  string `mapstructure:"sslmode"  yaml:"sslmode"`
}

// SchedulerConfig holds scheduling configuration.
type SchedulerConfig struct {
	// CheckInterval is how often the due-check loop ticks.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	// WorkerCount bounds concurrent job executions.
	WorkerCount int `mapstructure:"worker_count" yaml:"worker_count"`
	// MaxConsecutiveFailures flags a job for operator attention once its
	// trailing failure streak reaches this count. Scheduled attempts
	// continue regardless.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	// RunHistoryDepth caps retained runs per job; oldest pruned first.
	RunHistoryDepth int `mapstructure:"run_history_depth" yaml:"run_history_depth"`
	// RetentionSchedule is the cron expression for history pruning.
	RetentionSchedule string `mapstructure:"retention_schedule" yaml:"retention_schedule"`
}

// FetcherConfig holds fetcher configuration.
type FetcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	MaxResponseSize int64         `mapstructure:"max_response_size" yaml:"max_response_size"`
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	// HostRatePerSec limits request rate per remote host.
	HostRatePerSec float64 `mapstructure:"host_rate_per_sec" yaml:"host_rate_per_sec"`
	RespectRobots  bool    `mapstructure:"respect_robots"    yaml:"respect_robots"`
}

// EventsConfig holds NATS event publishing configuration. Publishing is
// disabled when URL is empty.
type EventsConfig struct {
	URL           string `mapstructure:"url"            yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// IdentityConfig points at the external identity-verification service.
// Verification is reported unavailable when URL is empty.
type IdentityConfig struct {
	URL     string        `mapstructure:"url"     yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Events    EventsConfig    `mapstructure:"events"    yaml:"events"`
	Identity  IdentityConfig  `mapstructure:"identity"  yaml:"identity"`
	Logger    logger.Config   `mapstructure:"logger"    yaml:"logger"`
}

// Load reads configuration from the given file path (optional) plus
// environment variables and returns the resolved configuration.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sitewatch")
	}

	v.SetEnvPrefix("SITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !asConfigFileNotFound(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func asConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", defaultServerAddress)
	v.SetDefault("server.read_timeout", defaultServerReadTimeout)
	v.SetDefault("server.write_timeout", defaultServerWriteTimeout)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "sitewatch")
	v.SetDefault("database.name", "sitewatch")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("scheduler.check_interval", defaultCheckInterval)
	v.SetDefault("scheduler.worker_count", defaultWorkerCount)
	v.SetDefault("scheduler.max_consecutive_failures", defaultMaxConsecFails)
	v.SetDefault("scheduler.run_history_depth", defaultRunHistoryDepth)
	v.SetDefault("scheduler.retention_schedule", defaultRetentionCronTab)

	v.SetDefault("fetcher.timeout", defaultFetchTimeout)
	v.SetDefault("fetcher.max_response_size", defaultMaxResponseSize)
	v.SetDefault("fetcher.user_agent", defaultUserAgent)
	v.SetDefault("fetcher.host_rate_per_sec", defaultHostRatePerSec)
	v.SetDefault("fetcher.respect_robots", true)

	v.SetDefault("events.subject_prefix", "sitewatch")
	v.SetDefault("identity.timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
}

// Validate checks the resolved configuration for values the service cannot
// start with.
func (c *Config) Validate() error {
	if c.Scheduler.WorkerCount <= 0 {
		return fmt.Errorf("scheduler: worker_count must be positive, got %d", c.Scheduler.WorkerCount)
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("scheduler: check_interval must be positive")
	}
	if c.Scheduler.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("scheduler: max_consecutive_failures must be positive")
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher: timeout must be positive")
	}
	if c.Fetcher.MaxResponseSize <= 0 {
		return fmt.Errorf("fetcher: max_response_size must be positive")
	}
	return nil
}
