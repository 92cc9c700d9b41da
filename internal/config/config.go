package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Heartbeat HeartbeatConfig
	Agent     AgentConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port    string
	Host    string
	Env     string
	Version string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

type HeartbeatConfig struct {
	Interval       time.Duration
	SweepInterval  time.Duration
	StatusInterval time.Duration
}

// AgentConfig drives the client-side engine: where its local store lives,
// which server it coordinates with, and how it retries.
type AgentConfig struct {
	ServerURL        string
	StorePath        string
	Mode             string
	ReconnectDelay   time.Duration
	ReplayInterval   time.Duration
	MaxReplayRetries int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	heartbeatInterval, err := time.ParseDuration(getEnv("HEARTBEAT_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTBEAT_INTERVAL: %w", err)
	}

	reconnectDelay, err := time.ParseDuration(getEnv("AGENT_RECONNECT_DELAY", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_RECONNECT_DELAY: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			Host:    getEnv("HOST", "0.0.0.0"),
			Env:     getEnv("ENV", "development"),
			Version: getEnv("SERVER_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "flowsync"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:       heartbeatInterval,
			SweepInterval:  5 * time.Minute,
			StatusInterval: time.Minute,
		},
		Agent: AgentConfig{
			ServerURL:        getEnv("AGENT_SERVER_URL", "http://localhost:8080"),
			StorePath:        getEnv("AGENT_STORE_PATH", "flowsync.db"),
			Mode:             getEnv("AGENT_MODE", "online"),
			ReconnectDelay:   reconnectDelay,
			ReplayInterval:   2 * time.Second,
			MaxReplayRetries: getEnvAsInt("AGENT_MAX_REPLAY_RETRIES", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
