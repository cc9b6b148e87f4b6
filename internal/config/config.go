package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	AppMode     string
	Port        string
	LogLevel    string
	StoreDriver string
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	TriageAI    TriageAIConfig
	Telegram    TelegramConfig
	RateLimit   RateLimitConfig
	Queue       QueueConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret          string
	AccessTokenMins int
}

// RedisConfig holds the optional Redis connection. Empty URL disables Redis.
type RedisConfig struct {
	URL string
}

// TriageAIConfig holds the optional model endpoint. Empty key disables it.
type TriageAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// TelegramConfig holds the staff alert bot. Empty token disables it.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// RateLimitConfig holds per-key request allowances
type RateLimitConfig struct {
	Booking int
	OTP     int
	Window  time.Duration
}

// QueueConfig holds background job tuning
type QueueConfig struct {
	NearlyTurnThreshold int
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables")
	}

	// trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	storeDriver := strings.TrimSpace(getEnv("STORE_DRIVER", "mysql"))
	if storeDriver != "mysql" && storeDriver != "memory" {
		return nil, fmt.Errorf("invalid STORE_DRIVER: '%s' (must be 'mysql' or 'memory')", storeDriver)
	}

	config := &Config{
		AppMode:     appMode,
		Port:        getEnv("PORT", "3000"),
		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel(appMode)),
		StoreDriver: storeDriver,
		Database:    loadDatabaseConfig(appMode),
		JWT:         loadJWTConfig(appMode),
		Redis:       RedisConfig{URL: getEnv("REDIS_URL", "")},
		TriageAI: TriageAIConfig{
			BaseURL: getEnv("TRIAGE_AI_URL", ""),
			APIKey:  getEnv("TRIAGE_AI_KEY", ""),
			Model:   getEnv("TRIAGE_AI_MODEL", ""),
			Timeout: time.Duration(getEnvInt("TRIAGE_AI_TIMEOUT_MS", 3000)) * time.Millisecond,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		RateLimit: RateLimitConfig{
			Booking: getEnvInt("BOOKING_RATE_LIMIT", 5),
			OTP:     getEnvInt("OTP_RATE_LIMIT", 3),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Queue: QueueConfig{
			NearlyTurnThreshold: getEnvInt("NEARLY_TURN_THRESHOLD", 3),
		},
	}

	if config.RateLimit.Window <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %s (must be positive)", config.RateLimit.Window)
	}

	if config.IsProd() && config.JWT.Secret == "default_secret" {
		return nil, fmt.Errorf("PROD_JWT_SECRET must be set in prod mode")
	}

	// Set global config
	AppConfig = config

	log.Info().Str("mode", appMode).Str("store", storeDriver).Msg("configuration loaded")
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return DatabaseConfig{
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", "3306"),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "hospital_queue"),

		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return JWTConfig{
		Secret:          getEnv(prefix+"JWT_SECRET", "default_secret"),
		AccessTokenMins: getEnvInt("ACCESS_TOKEN_MINUTES", 60),
	}
}

func defaultLogLevel(mode string) string {
	if mode == "prod" {
		return "info"
	}
	return "debug"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://queue.example-hospital.org"
	}
	return origins
}
