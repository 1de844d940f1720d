package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/justsurfingit/campus-job-board/internal/errors"
)

// Config is the job board runtime configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	Mail     MailConfig     `mapstructure:"mail"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Matching MatchingConfig `mapstructure:"matching"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicBaseURL  string   `mapstructure:"public_base_url"` // used to build CV view links
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type GmailConfig struct {
	CredentialsFile string  `mapstructure:"credentials_file"`
	TokenFile       string  `mapstructure:"token_file"`
	Sender          string  `mapstructure:"sender"`
	SendsPerSecond  float64 `mapstructure:"sends_per_second"`
}

type MailConfig struct {
	DryRun                 bool `mapstructure:"dry_run"`
	DispatchTimeoutSeconds int  `mapstructure:"dispatch_timeout_seconds"`
}

// DispatchTimeout bounds a single email send.
func (m MailConfig) DispatchTimeout() time.Duration {
	return time.Duration(m.DispatchTimeoutSeconds) * time.Second
}

type LLMConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type QuotaConfig struct {
	DailyLimit int    `mapstructure:"daily_limit"`
	Timezone   string `mapstructure:"timezone"` // empty = server local time
}

// Location resolves the timezone the quota day boundary is computed in.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(q.Timezone)
}

type MatchingConfig struct {
	Workers   int     `mapstructure:"workers"`
	QueueSize int     `mapstructure:"queue_size"`
	MinScore  float64 `mapstructure:"min_score"` // pairs below this score get no new record
	SweepCron string  `mapstructure:"sweep_cron"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	v.SetDefault("database.dsn", "host=localhost user=postgres password=password dbname=jobboard port=5432 sslmode=disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)

	v.SetDefault("gmail.credentials_file", "credential.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.sender", "me")
	v.SetDefault("gmail.sends_per_second", 1.0)

	v.SetDefault("mail.dry_run", false)
	v.SetDefault("mail.dispatch_timeout_seconds", 30)

	v.SetDefault("llm.model", "gemini-2.5-flash")

	v.SetDefault("quota.daily_limit", 10)
	v.SetDefault("quota.timezone", "")

	v.SetDefault("matching.workers", 2)
	v.SetDefault("matching.queue_size", 256)
	v.SetDefault("matching.min_score", 0.0)
	v.SetDefault("matching.sweep_cron", "0 3 * * *")
}

// Load reads .env (if present), an optional jobboard.yaml and JOBBOARD_* environment variables.
func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JOBBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "JOBBOARD_LLM_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, errors.Wrap(err, "bind llm.api_key")
	}

	SetDefaults(v)

	v.SetConfigName("jobboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper unmarshals and validates configuration from v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Quota.DailyLimit <= 0 {
		return errors.Newf("quota.daily_limit must be positive, got %d", c.Quota.DailyLimit)
	}
	if _, err := c.Quota.Location(); err != nil {
		return errors.Wrapf(err, "quota.timezone %q", c.Quota.Timezone)
	}
	if c.Mail.DispatchTimeoutSeconds <= 0 {
		return errors.Newf("mail.dispatch_timeout_seconds must be positive, got %d", c.Mail.DispatchTimeoutSeconds)
	}
	if c.Matching.Workers <= 0 {
		return errors.Newf("matching.workers must be positive, got %d", c.Matching.Workers)
	}
	if c.Matching.QueueSize <= 0 {
		return errors.Newf("matching.queue_size must be positive, got %d", c.Matching.QueueSize)
	}
	if c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}
	return nil
}
