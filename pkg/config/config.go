package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Engine       EngineConfig
	Intake       IntakeConfig
	Notification NotificationConfig
	Log          LogConfig
}

// ServerConfig is the ops listener (health, readiness, metrics).
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type EngineConfig struct {
	MaxDepth    int
	SlotRetries int
	SeedRoot    bool
}

// IntakeConfig controls the purchase event consumer.
type IntakeConfig struct {
	Enabled          bool
	Queue            string
	DeadLetterQueue  string
	PollTimeout      time.Duration
	ClaimTTL         time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

type NotificationConfig struct {
	Driver  string
	Channel string
}

type LogConfig struct {
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", "postgres"),
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			MaxDepth:    getIntEnv("ENGINE_MAX_DEPTH", 500),
			SlotRetries: getIntEnv("ENGINE_SLOT_RETRIES", 4),
			SeedRoot:    getBoolEnv("ENGINE_SEED_ROOT", true),
		},
		Intake: IntakeConfig{
			Enabled:          getBoolEnv("INTAKE_ENABLED", true),
			Queue:            getEnv("INTAKE_QUEUE", "matrix:purchases"),
			DeadLetterQueue:  getEnv("INTAKE_DEAD_LETTER_QUEUE", "matrix:purchases:dead"),
			PollTimeout:      getDurationEnv("INTAKE_POLL_TIMEOUT", 5*time.Second),
			ClaimTTL:         getDurationEnv("INTAKE_CLAIM_TTL", 2*time.Minute),
			MaxRetryAttempts: getIntEnv("INTAKE_MAX_RETRY_ATTEMPTS", 3),
			RetryDelay:       getDurationEnv("INTAKE_RETRY_DELAY", time.Second),
		},
		Notification: NotificationConfig{
			Driver:  getEnv("NOTIFICATION_DRIVER", "log"),
			Channel: getEnv("NOTIFICATION_CHANNEL", "matrix:notifications"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
