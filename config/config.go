package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"live-requests/internal/services/pix"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Pix payment provider configuration
	PixConfig pix.Config

	// Queue policy
	PriorityFloor decimal.Decimal

	// Submission rate limiting
	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration

	// Payment session
	PaymentSessionTTL time.Duration

	// Payment provider circuit breaker
	BreakerMaxRequests  int
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "live-requests-server"),

		// Pix provider
		PixConfig: pix.Config{
			BaseURL:    getEnv("PIX_BASE_URL", ""),
			MerchantID: getEnv("PIX_MERCHANT_ID", ""),
			ClientID:   getEnv("PIX_CLIENT_ID", ""),
			ClientKey:  getEnv("PIX_CLIENT_KEY", ""),
			HMACKey:    getEnv("PIX_HMAC_KEY", ""),
			Currency:   getEnv("PIX_CURRENCY", "BRL"),

			PNSubKey:  getEnv("PIX_PN_SUBSCRIBE_KEY", ""),
			PNUUID:    getEnv("PIX_PN_UUID", "live-requests-pix"),
			PNChannel: getEnv("PIX_PN_CHANNEL", "pix-payment-notifications"),
		},

		// Queue policy
		PriorityFloor: getEnvAsDecimal("PRIORITY_FLOOR", "1"),

		// Rate limiting
		SubmissionRateLimit:  getEnvAsInt("SUBMISSION_RATE_LIMIT", 10),
		SubmissionRateWindow: getEnvAsDuration("SUBMISSION_RATE_WINDOW", "1m"),

		// Payment session
		PaymentSessionTTL: getEnvAsDuration("PAYMENT_SESSION_TTL", "10m"),

		// Circuit breaker
		BreakerMaxRequests:  getEnvAsInt("BREAKER_MAX_REQUESTS", 100),
		BreakerInterval:     getEnvAsDuration("BREAKER_INTERVAL", "60s"),
		BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", "60s"),
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	value, _ := decimal.NewFromString(defaultValue)
	return value
}
