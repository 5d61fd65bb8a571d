// Package config provides configuration management for the roomcast standalone server.
// It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the roomcast server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Hub      HubConfig
	Auth     AuthConfig
	Presence PresenceConfig
	Fanout   FanoutConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "roomcast_")
}

// HubConfig holds broadcast hub configuration.
type HubConfig struct {
	BaseURL string // Hub publish API base URL
	APIKey  string // Hub API key (optional)
}

// AuthConfig holds capability token configuration.
type AuthConfig struct {
	TokenKey string        // HMAC signing key, min 32 bytes
	TokenTTL time.Duration // Token lifetime
}

// PresenceConfig holds presence timing configuration.
// GraceWindow must be strictly greater than HeartbeatInterval.
type PresenceConfig struct {
	HeartbeatInterval time.Duration
	GraceWindow       time.Duration
}

// FanoutConfig holds fan-out worker configuration.
type FanoutConfig struct {
	BatchSize           int  // Worker batch size
	WorkerInterval      int  // Worker interval in seconds
	EnableNotifications bool // Enable notification service
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "roomcast"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "roomcast"),
			Prefix:   getEnv("DB_PREFIX", "roomcast_"),
		},
		Hub: HubConfig{
			BaseURL: getEnv("HUB_BASE_URL", "http://localhost:8000/api"),
			APIKey:  getEnv("HUB_API_KEY", ""),
		},
		Auth: AuthConfig{
			TokenKey: getEnv("AUTH_TOKEN_KEY", ""),
			TokenTTL: getEnvDuration("AUTH_TOKEN_TTL", 6*time.Hour),
		},
		Presence: PresenceConfig{
			HeartbeatInterval: getEnvDuration("PRESENCE_HEARTBEAT_INTERVAL", 15*time.Second),
			GraceWindow:       getEnvDuration("PRESENCE_GRACE_WINDOW", 45*time.Second),
		},
		Fanout: FanoutConfig{
			BatchSize:           getEnvInt("FANOUT_BATCH_SIZE", 100),
			WorkerInterval:      getEnvInt("FANOUT_WORKER_INTERVAL", 30),
			EnableNotifications: getEnvBool("FANOUT_ENABLE_NOTIFICATIONS", true),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" && strings.ToLower(cfg.Database.Driver) != "sqlite3" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if len(cfg.Auth.TokenKey) < 32 {
		return nil, fmt.Errorf("AUTH_TOKEN_KEY environment variable must be at least 32 bytes")
	}
	if cfg.Presence.GraceWindow <= cfg.Presence.HeartbeatInterval {
		return nil, fmt.Errorf("PRESENCE_GRACE_WINDOW (%v) must be strictly greater than PRESENCE_HEARTBEAT_INTERVAL (%v)",
			cfg.Presence.GraceWindow, cfg.Presence.HeartbeatInterval)
	}

	return cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves environment variable as duration or returns default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
