package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/travel-notifications/pkg/validator"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port" validate:"required,min=1,max=65535"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"min=0"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=postgres sqlite memory"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" validate:"required,min=16"`
	ExpiryHours int    `mapstructure:"expiry_hours" validate:"min=1"`
	Issuer      string `mapstructure:"issuer"`
}

type NotificationsConfig struct {
	HistoryLimit   int           `mapstructure:"history_limit" validate:"min=1,max=1000"`
	AdminRoles     []string      `mapstructure:"admin_roles" validate:"required,min=1,dive,required"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" validate:"min=0"`
	SessionCleanup time.Duration `mapstructure:"session_cleanup" validate:"min=0"`
	TimeFormat     string        `mapstructure:"time_format" validate:"required"`
	ToastBuffer    int           `mapstructure:"toast_buffer" validate:"min=1"`

	// Retention of zero keeps notifications forever.
	Retention         time.Duration `mapstructure:"retention" validate:"min=0"`
	RetentionInterval time.Duration `mapstructure:"retention_interval" validate:"required_with=Retention"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// RelayConfig is read by cmd/relay only.
type RelayConfig struct {
	MetricsPort int  `mapstructure:"metrics_port" validate:"min=0,max=65535"`
	Migrate     bool `mapstructure:"migrate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
}

// Secrets are read from NOTIFY_* environment variables and win over the file.
type Secrets struct {
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	RedisURL   string `envconfig:"REDIS_URL"`
}

const envPrefix = "NOTIFY"

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.channel_prefix", "realtime:")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("notifications.history_limit", 300)
	v.SetDefault("notifications.admin_roles", []string{"admin", "superadmin"})
	v.SetDefault("notifications.session_ttl", 30*time.Minute)
	v.SetDefault("notifications.session_cleanup", 5*time.Minute)
	v.SetDefault("notifications.time_format", "Jan 2, 2006, 3:04:05 PM")
	v.SetDefault("notifications.toast_buffer", 20)
	v.SetDefault("notifications.retention_interval", time.Hour)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("relay.metrics_port", 9091)
	v.SetDefault("relay.migrate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile reads one explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	config.ApplySecrets(secrets)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) ApplySecrets(s Secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.DBHost != "" {
		c.Database.Host = s.DBHost
	}
	if s.DBPort != 0 {
		c.Database.Port = s.DBPort
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.Driver == DriverPostgres && c.Redis.URL == "" {
		return fmt.Errorf("invalid config: redis.url is required with the postgres driver")
	}
	return nil
}

// DSN builds the driver data source name.
func (c DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}
