package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WorkflowConfig holds approval workflow tuning
type WorkflowConfig struct {
	// VarianceThreshold is the maximum fraction a payment may exceed the
	// approved cost before a justifying comment becomes mandatory.
	VarianceThreshold float64 `mapstructure:"variance_threshold"`

	// ReminderInterval is how often the reminder sweep looks for stale
	// pending approval steps.
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`

	// StaleStepAge is how long a step may sit unresolved before the sweep
	// considers it stale.
	StaleStepAge time.Duration `mapstructure:"stale_step_age"`

	// ReminderBatchSize caps the number of stale steps processed per sweep
	ReminderBatchSize int `mapstructure:"reminder_batch_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// VarianceThresholdDecimal returns the variance threshold as a decimal for
// exact comparison against money amounts.
func (w WorkflowConfig) VarianceThresholdDecimal() decimal.Decimal {
	return decimal.NewFromFloat(w.VarianceThreshold)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/requisitions.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Workflow defaults
	viper.SetDefault("workflow.variance_threshold", 0.10)
	viper.SetDefault("workflow.reminder_interval", 1*time.Hour)
	viper.SetDefault("workflow.stale_step_age", 48*time.Hour)
	viper.SetDefault("workflow.reminder_batch_size", 100)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("workflow.variance_threshold", "WORKFLOW_VARIANCE_THRESHOLD")
	viper.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.VarianceThreshold < 0 {
		return fmt.Errorf("workflow.variance_threshold must not be negative")
	}
	if c.Workflow.ReminderInterval <= 0 {
		return fmt.Errorf("workflow.reminder_interval must be positive")
	}
	if c.Workflow.StaleStepAge <= 0 {
		return fmt.Errorf("workflow.stale_step_age must be positive")
	}
	if c.Workflow.ReminderBatchSize <= 0 {
		return fmt.Errorf("workflow.reminder_batch_size must be positive")
	}
	return nil
}
