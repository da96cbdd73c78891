package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Telegram Bot API
	TelegramBotToken      string
	TelegramWebhookSecret string
	TelegramBaseURL       string
	TelegramAllowedChats  string

	// Auth bridge
	AuthTokenSecret string
	AuthTokenTTL    time.Duration
	OTPCodeTTL      time.Duration

	// AWS / document store
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	PatientsTable       string
	ProfilesTable       string
	OutboundTable       string
	OTPTable            string
	OutboundQueueURL    string
	MediaBucket         string

	// Session store
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	// Background jobs
	DrainInterval    time.Duration
	ReminderHour     int
	ReminderTimezone string

	// Ops alerting
	AlertEmailTo   string
	AlertEmailFrom string
	AlertFromName  string

	// Doctor routing
	DefaultDoctorContact string
}

// AllowedChatIDs parses the comma-separated allow-list. Unparseable
// entries are skipped.
func (c *Config) AllowedChatIDs() []int64 {
	if c.TelegramAllowedChats == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(c.TelegramAllowedChats, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramBaseURL:       getEnv("TELEGRAM_BASE_URL", ""),
		TelegramAllowedChats:  getEnv("TELEGRAM_ALLOWED_CHATS", ""),

		AuthTokenSecret: getEnv("AUTH_TOKEN_SECRET", ""),
		AuthTokenTTL:    getEnvAsDuration("AUTH_TOKEN_TTL", time.Hour),
		OTPCodeTTL:      getEnvAsDuration("OTP_CODE_TTL", 5*time.Minute),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		PatientsTable:       getEnv("PATIENTS_TABLE", "patients"),
		ProfilesTable:       getEnv("PROFILES_TABLE", "profiles"),
		OutboundTable:       getEnv("OUTBOUND_TABLE", "outbound-messages"),
		OTPTable:            getEnv("OTP_TABLE", "otp-challenges"),
		OutboundQueueURL:    getEnv("OUTBOUND_QUEUE_URL", ""),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 72*time.Hour),

		DrainInterval:    getEnvAsDuration("DRAIN_INTERVAL", time.Minute),
		ReminderHour:     getEnvAsInt("REMINDER_HOUR", 9),
		ReminderTimezone: getEnv("REMINDER_TIMEZONE", "Asia/Tashkent"),

		AlertEmailTo:   getEnv("ALERT_EMAIL_TO", ""),
		AlertEmailFrom: getEnv("ALERT_EMAIL_FROM", ""),
		AlertFromName:  getEnv("ALERT_FROM_NAME", "Clinic Comms"),

		DefaultDoctorContact: getEnv("DEFAULT_DOCTOR_CONTACT", "+998 71 200 00 00"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
