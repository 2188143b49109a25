// Package config loads the service configuration: a JSON file with
// environment overrides for sensitive values, plus a separate YAML
// networks file listing the predefined online networks.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Online   OnlineConfig   `json:"online"`
	Auth     AuthConfig     `json:"auth"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// OnlineConfig selects the online network and its polling behavior.
type OnlineConfig struct {
	// Network is the active selection: "none", "vatsim", "ivao",
	// "custom" or "custom-status"
	Network string `json:"network"`

	// StatusURL is the status file URL for "custom-status" networks
	StatusURL string `json:"status_url"`

	// WhazzupURL is the whazzup file URL for "custom" networks
	WhazzupURL string `json:"whazzup_url"`

	// Format is the whazzup format for custom networks: "vatsim" or "ivao"
	Format string `json:"format"`

	// ReloadSeconds is the poll interval used directly for custom networks
	ReloadSeconds int `json:"reload_seconds"`

	// NoUserAgent disables the default User-Agent header on downloads
	NoUserAgent bool `json:"no_user_agent"`

	// NetworksFile is the path of the YAML file with the predefined
	// networks; empty uses the built-in defaults
	NetworksFile string `json:"networks_file"`
}

// AuthConfig contains the API authentication settings.
type AuthConfig struct {
	// JWTSecret signs the API tokens (should be loaded from environment)
	JWTSecret string `json:"jwt_secret"`

	// TokenTTLMinutes is the token lifetime (default: 60)
	TokenTTLMinutes int `json:"token_ttl_minutes"`

	// Users maps usernames to bcrypt password hashes
	Users map[string]string `json:"users"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "onlinedata",
			Username:     "onlinedata",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Online: OnlineConfig{
			Network:       "none",
			Format:        "vatsim",
			ReloadSeconds: 180,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 60,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("ONLINED_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("ONLINED_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if secret := os.Getenv("ONLINED_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if network := os.Getenv("ONLINED_NETWORK"); network != "" {
		c.Online.Network = network
	}
}
