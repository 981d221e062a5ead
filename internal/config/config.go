// Package config loads the platform configuration from metagrid.yml with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the Metagrid configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Index    IndexConfig    `mapstructure:"index"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig represents storage backend configuration
type DatabaseConfig struct {
	// Backend selects the storage engine: memory or sql
	Backend string `mapstructure:"backend"`
	// Driver is the database/sql driver for the sql backend: pgx or sqlite3
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// CacheConfig represents cache backend configuration
type CacheConfig struct {
	// Backend selects the cache engine: memory, redis or none
	Backend  string `mapstructure:"backend"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IndexConfig represents search index configuration
type IndexConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// AuthConfig represents token resolution configuration
type AuthConfig struct {
	// TokenSecret signs and verifies bearer tokens
	TokenSecret string `mapstructure:"token_secret"`
}

// Load loads the configuration from metagrid.yml or metagrid.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "metagrid.db")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("index.queue_size", 1024)
	v.SetDefault("auth.token_secret", "")

	v.SetConfigName("metagrid")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.SetEnvPrefix("METAGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	switch config.Database.Backend {
	case "memory", "sql":
	default:
		return fmt.Errorf("invalid database backend: %s", config.Database.Backend)
	}
	switch config.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
	}
	return nil
}

// Addr returns the server listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
