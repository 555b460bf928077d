// Package config loads catalog settings from an optional .env file, an
// optional YAML file and CATALOG_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// FileEnv names the environment variable holding the YAML config path.
	FileEnv = "CATALOG_CONFIG"
	// EnvPrefix prefixes every override; "query.block_size" is read from
	// CATALOG_QUERY_BLOCK_SIZE.
	EnvPrefix = "CATALOG"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Query     QueryConfig     `mapstructure:"query"`
	Traversal TraversalConfig `mapstructure:"traversal"`
	Reclaim   ReclaimConfig   `mapstructure:"reclaim"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	// Addr enables the resolution cache when set.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Codec string        `mapstructure:"codec"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type QueryConfig struct {
	BlockSize      int `mapstructure:"block_size"`
	ParameterLimit int `mapstructure:"parameter_limit"`
}

type TraversalConfig struct {
	Backend       string `mapstructure:"backend"`
	MaxIterations int    `mapstructure:"max_iterations"`
}

type ReclaimConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "sqlite", DSN: "catalog.db"},
		Cache:    CacheConfig{Codec: "gzip", TTL: time.Hour},
		Query:    QueryConfig{BlockSize: 512, ParameterLimit: 32000},
		Traversal: TraversalConfig{
			Backend:       "recursive",
			MaxIterations: 1000,
		},
		Reclaim: ReclaimConfig{Schedule: "@every 1h"},
	}
}

// setDefaults registers every key, which is also what lets AutomaticEnv
// pick up overrides for keys absent from the file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("cache.codec", d.Cache.Codec)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("query.block_size", d.Query.BlockSize)
	v.SetDefault("query.parameter_limit", d.Query.ParameterLimit)

	v.SetDefault("traversal.backend", d.Traversal.Backend)
	v.SetDefault("traversal.max_iterations", d.Traversal.MaxIterations)

	v.SetDefault("reclaim.schedule", d.Reclaim.Schedule)
}

// LoadConfig builds the configuration and applies its log level.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)

	return &cfg, nil
}

// Validate rejects settings the store cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	if c.Query.BlockSize <= 0 || c.Query.ParameterLimit <= 0 {
		return fmt.Errorf("block size and parameter limit must be positive")
	}
	if c.Query.BlockSize > c.Query.ParameterLimit {
		return fmt.Errorf("block size %d exceeds parameter limit %d", c.Query.BlockSize, c.Query.ParameterLimit)
	}
	return nil
}
