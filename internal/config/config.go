package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server" envconfig:"server"`
	Database      DatabaseConfig      `json:"database" envconfig:"database"`
	Redis         RedisConfig         `json:"redis" envconfig:"redis"`
	AWS           AWSConfig           `json:"aws" envconfig:"aws"`
	Notifications NotificationsConfig `json:"notifications" envconfig:"notifications"`
	Funding       FundingConfig       `json:"funding" envconfig:"funding"`
	Campaigns     CampaignsConfig     `json:"campaigns" envconfig:"campaigns"`
	Uploads       UploadsConfig       `json:"uploads" envconfig:"uploads"`
	Security      SecurityConfig      `json:"security" envconfig:"security"`
	Logging       LoggingConfig       `json:"logging" envconfig:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" envconfig:"host"`
	Port            int           `json:"port" envconfig:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" envconfig:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" envconfig:"idle_timeout"`
	RequestTimeout  time.Duration `json:"request_timeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host" envconfig:"host"`
	Port           int           `json:"port" envconfig:"port"`
	User           string        `json:"user" envconfig:"user"`
	Password       string        `json:"password" envconfig:"password"`
	DBName         string        `json:"db_name" envconfig:"dbname"`
	SSLMode        string        `json:"ssl_mode" envconfig:"sslmode"`
	MaxConnections int           `json:"max_connections" envconfig:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns" envconfig:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime" envconfig:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate" envconfig:"auto_migrate"`
}

// RedisConfig is optional; an empty Addr disables redis-backed features.
type RedisConfig struct {
	Addr     string `json:"addr" envconfig:"addr"`
	Password string `json:"password" envconfig:"password"`
	DB       int    `json:"db" envconfig:"db"`
}

// AWSConfig configures S3, SES and SNS clients
type AWSConfig struct {
	Region          string `json:"region" envconfig:"region"`
	AccessKeyID     string `json:"access_key_id" envconfig:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"secret_access_key"`
	Endpoint        string `json:"endpoint" envconfig:"endpoint"`
	Bucket          string `json:"bucket" envconfig:"bucket"`
	SESFromAddress  string `json:"ses_from_address" envconfig:"ses_from_address"`
	SNSTopicARN     string `json:"sns_topic_arn" envconfig:"sns_topic_arn"`
}

// NotificationsConfig controls post-commit side effects
type NotificationsConfig struct {
	Enabled   bool          `json:"enabled" envconfig:"enabled"`
	Workers   int           `json:"workers" envconfig:"workers"`
	QueueSize int           `json:"queue_size" envconfig:"queue_size"`
	Timeout   time.Duration `json:"timeout" envconfig:"timeout"`
	FromName  string        `json:"from_name" envconfig:"from_name"`
}

// FundingConfig tunes the ledger read path
type FundingConfig struct {
	BalanceCacheTTL time.Duration `json:"balance_cache_ttl" envconfig:"balance_cache_ttl"`
	IdempotencyTTL  time.Duration `json:"idempotency_ttl" envconfig:"idempotency_ttl"`
}

// CampaignsConfig configures the campaign refresher worker
type CampaignsConfig struct {
	RefreshSchedule string `json:"refresh_schedule" envconfig:"refresh_schedule"`
	BatchSize       int    `json:"batch_size" envconfig:"batch_size"`
	MaxConcurrent   int    `json:"max_concurrent" envconfig:"max_concurrent"`
}

// UploadsConfig limits task progress images
type UploadsConfig struct {
	MaxImageBytes int64         `json:"max_image_bytes" envconfig:"max_image_bytes"`
	URLExpiry     time.Duration `json:"url_expiry" envconfig:"url_expiry"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret" envconfig:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer" envconfig:"jwt_issuer"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" envconfig:"level"`
	Development bool   `json:"development" envconfig:"development"`
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "reforest_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Notifications: NotificationsConfig{
			Enabled:   true,
			Workers:   4,
			QueueSize: 256,
			Timeout:   15 * time.Second,
			FromName:  "Reforestation Fund",
		},
		Funding: FundingConfig{
			BalanceCacheTTL: 30 * time.Second,
			IdempotencyTTL:  24 * time.Hour,
		},
		Campaigns: CampaignsConfig{
			RefreshSchedule: "@every 5m",
			BatchSize:       50,
			MaxConcurrent:   5,
		},
		Uploads: UploadsConfig{
			MaxImageBytes: 5 * 1024 * 1024,
			URLExpiry:     time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file, a .env file and environment variables,
// in that order of increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 1
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 1
	}
	if c.Campaigns.MaxConcurrent <= 0 {
		c.Campaigns.MaxConcurrent = 1
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
