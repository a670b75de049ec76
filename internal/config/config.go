package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	RedisURL  string
	LogLevel  string
	LogFormat string

	// DefaultEntities is the entity set an SSE client receives when its
	// request names none.
	DefaultEntities []string

	SSEKeepAliveInterval time.Duration
	SSEMaxLifetime       time.Duration
	CleanupInterval      time.Duration

	MaxConnections      int64
	MaxConnectionsPerIP int
	ConnectionRate      float64
	ConnectionBurst     int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		RedisURL:             getEnv("REDIS_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		DefaultEntities:      splitCSV(getEnv("PUSH_DEFAULT_ENTITIES", "events,wars,members,gallery")),
		SSEKeepAliveInterval: getEnvDuration("SSE_KEEPALIVE_INTERVAL", 30*time.Second),
		SSEMaxLifetime:       getEnvDuration("SSE_MAX_LIFETIME", 10*time.Minute),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", time.Minute),
		MaxConnections:       int64(getEnvInt("MAX_CONNECTIONS", 1000)),
		MaxConnectionsPerIP:  getEnvInt("MAX_CONNECTIONS_PER_IP", 20),
		ConnectionRate:       getEnvFloat("CONNECTION_RATE", 10),
		ConnectionBurst:      getEnvInt("CONNECTION_BURST", 20),
	}

	if len(cfg.DefaultEntities) == 0 {
		return nil, fmt.Errorf("PUSH_DEFAULT_ENTITIES must name at least one entity")
	}
	if cfg.SSEKeepAliveInterval <= 0 {
		return nil, fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be positive")
	}
	if cfg.SSEMaxLifetime <= 0 {
		return nil, fmt.Errorf("SSE_MAX_LIFETIME must be positive")
	}
	if cfg.SSEKeepAliveInterval >= cfg.SSEMaxLifetime {
		return nil, fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be shorter than SSE_MAX_LIFETIME")
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
