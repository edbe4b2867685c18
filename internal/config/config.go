package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the assistant backend.
type Config struct {
	HTTPPort       string
	JWTSecret      []byte
	ServiceKeyHash string // bcrypt hash guarding internal billing endpoints
	Database       DatabaseConfig
	Cache          CacheConfig
	Redis          RedisConfig
	Gateway        GatewayConfig
	Credits        CreditsConfig
	Stripe         StripeConfig
	Telegram       TelegramConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	AgentCacheSize int
	AgentCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GatewayConfig holds AI provider gateway settings.
type GatewayConfig struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	RequestTimeout   time.Duration
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxMessageLength int
	CooldownWindow   time.Duration // availability tracker auto-reset
}

// CreditsConfig holds credit ledger settings.
type CreditsConfig struct {
	TrialGrant int
}

// StripeConfig holds billing provider settings.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// TelegramConfig holds notification channel settings.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   int64
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnvString("HTTP_PORT", "8080")
	jwtSecret := []byte(getEnvString("JWT_SECRET", "supersecretkey"))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:       port,
		JWTSecret:      jwtSecret,
		ServiceKeyHash: getEnvString("SERVICE_KEY_HASH", ""),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			AgentCacheSize: getEnvInt("CACHE_AGENT_SIZE", 500),
			AgentCacheTTL:  getEnvDuration("CACHE_AGENT_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Gateway: GatewayConfig{
			OpenAIAPIKey:     getEnvString("OPENAI_API_KEY", ""),
			AnthropicAPIKey:  getEnvString("ANTHROPIC_API_KEY", ""),
			GeminiAPIKey:     getEnvString("GEMINI_API_KEY", ""),
			RequestTimeout:   getEnvDuration("GATEWAY_REQUEST_TIMEOUT", 60*time.Second),
			MaxAttempts:      getEnvInt("GATEWAY_MAX_ATTEMPTS", 3),
			BaseBackoff:      getEnvDuration("GATEWAY_BASE_BACKOFF", 1*time.Second),
			MaxMessageLength: getEnvInt("GATEWAY_MAX_MESSAGE_LENGTH", 8000),
			CooldownWindow:   getEnvDuration("GATEWAY_COOLDOWN_WINDOW", 5*time.Minute),
		},
		Credits: CreditsConfig{
			TrialGrant: getEnvInt("CREDITS_TRIAL_GRANT", 5),
		},
		Stripe: StripeConfig{
			APIKey:     getEnvString("STRIPE_API_KEY", ""),
			SuccessURL: getEnvString("STRIPE_SUCCESS_URL", "https://app.example.com/billing/success"),
			CancelURL:  getEnvString("STRIPE_CANCEL_URL", "https://app.example.com/billing/cancel"),
		},
		Telegram: TelegramConfig{
			Enabled:  getEnvString("TELEGRAM_ENABLED", "false") == "true",
			BotToken: getEnvString("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),
		},
	}

	return cfg, nil
}
