package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g.
// FACTUREMANAGER_DATABASE_DRIVER.
const EnvPrefix = "FACTUREMANAGER"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tariff    TariffConfig    `mapstructure:"tariff"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// ConfigFile is the file viper read, empty when running on defaults and
	// environment only.
	ConfigFile string `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig selects the storage backend: memory, sqlite or postgres.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// TariffConfig locates the tariff settings sources used when nothing has been
// stored yet.
type TariffConfig struct {
	SettingsFile string `mapstructure:"settings_file"`
	PDFPath      string `mapstructure:"pdf_path"`
	UploadDir    string `mapstructure:"upload_dir"`
}

// AuditConfig drives the periodic recalculation audit. Schedule is either a
// number of seconds or a standard cron expression.
type AuditConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Schedule  string  `mapstructure:"schedule"`
	Tolerance float64 `mapstructure:"tolerance"`
}

type AlertingConfig struct {
	WebhookURL      string   `mapstructure:"webhook_url"`
	WebhookType     string   `mapstructure:"webhook_type"`
	MinDriftedBills int      `mapstructure:"min_drifted_bills"`
	SendGridAPIKey  string   `mapstructure:"sendgrid_api_key"`
	EmailFrom       string   `mapstructure:"email_from"`
	EmailTo         []string `mapstructure:"email_to"`
}

// RateLimitConfig bounds the calculation endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

var validDrivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true}

// Load reads config.yaml from configPath (or the working directory), then
// applies .env and FACTUREMANAGER_* environment overrides. A missing config
// file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("logging.level", "info")

	v.SetDefault("tariff.settings_file", "")
	v.SetDefault("tariff.pdf_path", "/data/tarifs_basse_tension.pdf")
	v.SetDefault("tariff.upload_dir", "/data/uploads")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.schedule", "3600")
	v.SetDefault("audit.tolerance", 0.001)

	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.webhook_type", "")
	v.SetDefault("alerting.min_drifted_bills", 1)
	v.SetDefault("alerting.sendgrid_api_key", "")
	v.SetDefault("alerting.email_from", "")
	v.SetDefault("alerting.email_to", []string{})

	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	if c.Audit.Tolerance < 0 {
		return fmt.Errorf("audit.tolerance must not be negative")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}
	return nil
}
