package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config carries every knob the chat service reads from the environment.
type Config struct {
	AppEnv            string
	AppName           string
	AppPort           string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int
	AMQPURL           string
	NotificationQueue string
	JWTSecret         string
	LogLevel          string
	AllowedOrigins    string
}

// Load reads the configuration from the environment. Required variables
// missing is a startup error, not a default.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            os.Getenv("APP_ENV"),
		AppName:           os.Getenv("APP_NAME"),
		AppPort:           os.Getenv("APP_PORT"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBSSLMode:         os.Getenv("DB_SSL_MODE"),
		RedisHost:         os.Getenv("REDIS_HOST"),
		RedisPort:         os.Getenv("REDIS_PORT"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		NotificationQueue: os.Getenv("NOTIFICATION_QUEUE"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AllowedOrigins:    os.Getenv("WS_ALLOWED_ORIGINS"),
	}
	if cfg.AppName == "" {
		cfg.AppName = "chat-service"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = "3001"
	}
	if cfg.DBSSLMode == "" {
		cfg.DBSSLMode = "disable"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}
	if cfg.NotificationQueue == "" {
		cfg.NotificationQueue = "chat.notifications"
	}

	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.RedisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		cfg.RedisPoolSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MIN_IDLE_CONNS"); v != "" {
		cfg.RedisMinIdleConns, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MIN_IDLE_CONNS: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MAX_RETRIES"); v != "" {
		cfg.RedisMaxRetries, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MAX_RETRIES: %w", err)
		}
	}

	if cfg.DBHost == "" || cfg.DBPort == "" || cfg.DBUser == "" || cfg.DBName == "" ||
		cfg.RedisHost == "" || cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}
	return cfg, nil
}

// DSN renders the Postgres connection string for lib/pq.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
