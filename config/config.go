package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv  string
	APIPort string

	// Postgres. Empty DatabaseURL selects mock mode.
	DatabaseURL      string
	DatabaseMaxConns int32

	// JWT
	JWTSecret string
	JWTTTL    time.Duration

	// Redis realtime bus (optional)
	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	// Assistant
	GeminiAPIKey      string
	GeminiModel       string
	AssistantMaxTurns int

	// Assessment workflow
	StrictTransitions      bool
	SampleReminderSchedule string
	SampleReminderAfter    time.Duration

	// HTTP
	CORSOrigins          []string
	MessageRatePerSecond float64
	MessageRateBurst     int
}

// MockMode reports whether the in-memory store should be used.
func (c *Config) MockMode() bool {
	return c.DatabaseURL == ""
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from the given lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	getEnv := func(key, defaultValue string) string {
		if value, exists := lookup(key); exists {
			return strings.TrimSpace(value)
		}
		return defaultValue
	}

	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		APIPort:                getEnv("API_PORT", "8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisChannel:           getEnv("REDIS_CHANNEL", "marketflow.realtime"),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		SampleReminderSchedule: getEnv("SAMPLE_REMINDER_SCHEDULE", "0 9 * * *"),
	}

	if cfg.JWTSecret == "" {
		if !cfg.MockMode() {
			return nil, fmt.Errorf("missing required environment variable: JWT_SECRET")
		}
		cfg.JWTSecret = "mock-mode-secret"
	}

	maxConns, err := strconv.ParseInt(getEnv("DATABASE_MAX_CONNS", "16"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_MAX_CONNS: %w", err)
	}
	cfg.DatabaseMaxConns = int32(maxConns)

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "86400"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JWTTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.AssistantMaxTurns, err = strconv.Atoi(getEnv("ASSISTANT_MAX_TURNS", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASSISTANT_MAX_TURNS: %w", err)
	}
	if cfg.AssistantMaxTurns <= 0 {
		return nil, fmt.Errorf("invalid ASSISTANT_MAX_TURNS: must be positive")
	}

	cfg.StrictTransitions, err = strconv.ParseBool(getEnv("ASSESSMENT_STRICT_TRANSITIONS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASSESSMENT_STRICT_TRANSITIONS: %w", err)
	}

	reminderHours, err := strconv.ParseInt(getEnv("SAMPLE_REMINDER_AFTER_HOURS", "72"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SAMPLE_REMINDER_AFTER_HOURS: %w", err)
	}
	cfg.SampleReminderAfter = time.Duration(reminderHours) * time.Hour

	cfg.MessageRatePerSecond, err = strconv.ParseFloat(getEnv("MESSAGE_RATE_PER_SECOND", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MESSAGE_RATE_PER_SECOND: %w", err)
	}
	cfg.MessageRateBurst, err = strconv.Atoi(getEnv("MESSAGE_RATE_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MESSAGE_RATE_BURST: %w", err)
	}

	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	return cfg, nil
}
