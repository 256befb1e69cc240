package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Content   ContentConfig   `mapstructure:"content"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ContentConfig describes where candidate files come from and where accepted files go
type ContentConfig struct {
	SourceDir         string   `mapstructure:"source_dir"`
	StorageDir        string   `mapstructure:"storage_dir"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MetadataPath      string   `mapstructure:"metadata_path"`
}

// JobsConfig holds the tuning knobs of the background job engine
type JobsConfig struct {
	ImportBatchSize      int           `mapstructure:"import_batch_size"`
	UpdateBatchSize      int           `mapstructure:"update_batch_size"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	StuckThreshold       time.Duration `mapstructure:"stuck_threshold"`
	InactivityTimeout    time.Duration `mapstructure:"inactivity_timeout"`
	AttemptLimit         int           `mapstructure:"attempt_limit"`
	SlowFingerprint      time.Duration `mapstructure:"slow_fingerprint"`
	MaxConcurrentWorkers int           `mapstructure:"max_concurrent_workers"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	OrphanGrace          time.Duration `mapstructure:"orphan_grace"`
}

// RateLimitConfig holds rate limiting configuration for the API group
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig holds the shared API key. An empty key disables the check.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional; real environment variables always win
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the job engine settings for values the worker loop cannot run with
func (c *Config) Validate() error {
	j := c.Jobs
	switch {
	case j.ImportBatchSize <= 0 || j.UpdateBatchSize <= 0:
		return fmt.Errorf("jobs: batch sizes must be positive")
	case j.PollInterval <= 0:
		return fmt.Errorf("jobs: poll_interval must be positive")
	case j.StuckThreshold <= 0:
		return fmt.Errorf("jobs: stuck_threshold must be positive")
	case j.InactivityTimeout <= 0:
		return fmt.Errorf("jobs: inactivity_timeout must be positive")
	case j.AttemptLimit < 1:
		return fmt.Errorf("jobs: attempt_limit must be at least 1")
	case j.MaxConcurrentWorkers < 1:
		return fmt.Errorf("jobs: max_concurrent_workers must be at least 1")
	case j.OrphanGrace <= j.StuckThreshold || j.OrphanGrace <= j.PollInterval:
		return fmt.Errorf("jobs: orphan_grace must exceed stuck_threshold and poll_interval")
	}
	if len(c.Content.AllowedExtensions) == 0 {
		return fmt.Errorf("content: allowed_extensions must not be empty")
	}
	return nil
}

// loadEnvFile loads the first .env file found in the usual locations
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		envFile := dir + "/.env"
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds the unprefixed environment variables used by deployments
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")

	v.BindEnv("content.source_dir", "CONTENT_SOURCE_DIR", "PRIVATE_IMAGES_DIR")
	v.BindEnv("content.storage_dir", "STORAGE_PATH")
	v.BindEnv("content.metadata_path", "METADATA_PATH")

	v.BindEnv("auth.api_key", "INTERNAL_API_KEY")

	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("content.source_dir", "./data/incoming")
	v.SetDefault("content.storage_dir", "./data/uploads")
	v.SetDefault("content.allowed_extensions", []string{"jpg", "jpeg", "png", "webp"})
	v.SetDefault("content.metadata_path", "./data/metadata/metadata.csv")

	v.SetDefault("jobs.import_batch_size", 50)
	v.SetDefault("jobs.update_batch_size", 10)
	v.SetDefault("jobs.poll_interval", 2*time.Second)
	v.SetDefault("jobs.stuck_threshold", 180*time.Second)
	v.SetDefault("jobs.inactivity_timeout", 600*time.Second)
	v.SetDefault("jobs.attempt_limit", 5)
	v.SetDefault("jobs.slow_fingerprint", 5*time.Second)
	v.SetDefault("jobs.max_concurrent_workers", 4)
	v.SetDefault("jobs.sweep_interval", 1*time.Minute)
	v.SetDefault("jobs.orphan_grace", 5*time.Minute)

	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.service_name", "catalog-service")
}
