package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Gateway  GatewayConfig
	Import   ImportConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type DispatchConfig struct {
	Interval    time.Duration
	SendTimeout time.Duration
}

type GatewayConfig struct {
	URL string
}

type ImportConfig struct {
	BatchSize int
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			SQLitePath: getEnv("SQLITE_PATH", "outreach.db"),
		},
		Gateway: GatewayConfig{
			URL: mustEnv("GATEWAY_URL"),
		},
		Dispatch: DispatchConfig{
			Interval:    time.Duration(getEnvInt("DISPATCH_INTERVAL_SECONDS", 5)) * time.Second,
			SendTimeout: time.Duration(getEnvInt("SEND_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Import: ImportConfig{
			BatchSize: getEnvInt("IMPORT_BATCH_SIZE", 500),
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 7*86400)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Dispatch.Interval <= 0 {
		panic("DISPATCH_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Dispatch.SendTimeout <= 0 {
		panic("SEND_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Import.BatchSize <= 0 {
		panic("IMPORT_BATCH_SIZE must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
