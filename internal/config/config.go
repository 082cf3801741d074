package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	StaticDir   string

	AllowedOrigins []string
	FrontendURL    string

	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int

	RedisEnabled  bool
	RedisURL      string
	RedisPassword string

	JWTSecret       string
	SessionTTL      time.Duration
	SingleSession   bool
	CleanupInterval time.Duration

	Chat ChatConfig
}

// ChatConfig tunes the connection hub and the message router.
type ChatConfig struct {
	SendTimeout      time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxFrameSize     int64
	SendBuffer       int
	RateBurst        int
	RateInterval     time.Duration
	MaxMessageLength int
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() *Config {
	port := GetEnv("PORT", "8080")

	// Frontend & CORS
	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:"+port)
	allowedOrigins := []string{frontendURL}
	for _, origin := range strings.Split(GetEnv("ALLOWED_ORIGINS", ""), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowedOrigins = append(allowedOrigins, trimmed)
		}
	}

	pongWait := GetEnvAsDuration("WS_PONG_WAIT_SECONDS", 60, time.Second)
	maxMessageLength := GetEnvAsPositiveInt("MAX_MESSAGE_LENGTH", 2000)
	minFrame := MinFrameSize(maxMessageLength)
	maxFrameSize := int64(GetEnvAsPositiveInt("WS_MAX_MESSAGE_SIZE", int(minFrame)))
	if maxFrameSize < minFrame {
		log.Printf("WS_MAX_MESSAGE_SIZE %d cannot hold %d characters, using %d", maxFrameSize, maxMessageLength, minFrame)
		maxFrameSize = minFrame
	}

	return &Config{
		Port:        port,
		Environment: GetEnv("ENVIRONMENT", "development"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		StaticDir:   GetEnv("STATIC_DIR", "./static"),

		AllowedOrigins: allowedOrigins,
		FrontendURL:    frontendURL,

		// Empty selects the in-memory repositories.
		DatabaseURL:          GetEnv("DATABASE_URL", GetEnv("DATABASE_URI", "")),
		DBMaxOpenConns:       GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       GetEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetimeMin: GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),

		RedisEnabled:  GetEnvAsBool("REDIS_ENABLED", false),
		RedisURL:      GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),

		JWTSecret:       GetEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		SessionTTL:      GetEnvAsDuration("SESSION_TTL_HOURS", 24, time.Hour),
		SingleSession:   GetEnvAsBool("SINGLE_SESSION", false),
		CleanupInterval: GetEnvAsDuration("CLEANUP_INTERVAL_MINUTES", 60, time.Minute),

		Chat: ChatConfig{
			SendTimeout:      GetEnvAsDuration("WS_SEND_TIMEOUT_MS", 2000, time.Millisecond),
			WriteWait:        GetEnvAsDuration("WS_WRITE_WAIT_SECONDS", 10, time.Second),
			PongWait:         pongWait,
			PingPeriod:       pongWait * 9 / 10,
			MaxFrameSize:     maxFrameSize,
			SendBuffer:       GetEnvAsPositiveInt("WS_SEND_BUFFER", 64),
			RateBurst:        GetEnvAsPositiveInt("WS_RATE_BURST", 10),
			RateInterval:     GetEnvAsDuration("WS_RATE_INTERVAL_MS", 1000, time.Millisecond),
			MaxMessageLength: maxMessageLength,
		},
	}
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s: %s, using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// frameEnvelope covers the JSON keys and receiver id around the content.
const frameEnvelope = 512

// MinFrameSize is the smallest read limit that still fits a message of
// maxLength characters. A character may arrive as a \uXXXX surrogate pair.
func MinFrameSize(maxLength int) int64 {
	return int64(maxLength)*12 + frameEnvelope
}

// GetEnvAsPositiveInt is GetEnvAsInt with non-positive values falling back to the default.
func GetEnvAsPositiveInt(key string, defaultValue int) int {
	value := GetEnvAsInt(key, defaultValue)
	if value <= 0 {
		return defaultValue
	}
	return value
}

// GetEnvAsDuration reads an integer count of unit. Non-positive values fall back to the default.
func GetEnvAsDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	value := GetEnvAsInt(key, defaultValue)
	if value <= 0 {
		value = defaultValue
	}
	return time.Duration(value) * unit
}
