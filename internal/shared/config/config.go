package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// Queue admission policy
	Queue QueueConfig

	// Order saga bounds
	Saga SagaConfig

	// Payment gateway + webhook verification
	Payment PaymentConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Ticketing window scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// Lease TTLs enforced in the store
	WorkingSlotTTL time.Duration
	SeatLockTTL    time.Duration
}

// KafkaConfig holds message bus configuration
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// QueueConfig holds waiting-room policy
type QueueConfig struct {
	AlmostDoneThreshold  int64
	DefaultMaxConcurrent int
	PromoteInterval      time.Duration
}

// SagaConfig holds order saga bounds
type SagaConfig struct {
	SeatConfirmTimeout  time.Duration
	SweepInterval       time.Duration
	CompensationRetries int
	CompensationBackoff time.Duration
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	BaseURL          string
	APISecret        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	RequestTimeout   time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `json:"enabled"`
	WindowDuration time.Duration `json:"window_duration"`
	QueueRequests  int           `json:"queue_requests"`
	OrderRequests  int           `json:"order_requests"`
	StatusRequests int           `json:"status_requests"`
	HealthRequests int           `json:"health_requests"`
	WhitelistedIPs []string      `json:"whitelisted_ips"`
}

// SchedulerConfig holds the daily ticketing-window trigger configuration
type SchedulerConfig struct {
	Enabled  bool
	OpenHour int // local hour of day at which windows open and close
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "tixgate_db"),
			User:     getEnv("DB_USER", "tixgate_user"),
			Password: getEnv("DB_PASSWORD", "tixgate_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			WorkingSlotTTL: getDurationEnv("REDIS_WORKING_SLOT_TTL", 2*time.Minute),
			SeatLockTTL:    getDurationEnv("REDIS_SEAT_LOCK_TTL", 10*time.Minute),
		},

		Kafka: KafkaConfig{
			Brokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "order-group"),
		},

		Queue: QueueConfig{
			AlmostDoneThreshold:  int64(getIntEnv("QUEUE_ALMOST_DONE_THRESHOLD", 1000)),
			DefaultMaxConcurrent: getIntEnv("QUEUE_DEFAULT_MAX_CONCURRENT", 100),
			PromoteInterval:      getDurationEnv("QUEUE_PROMOTE_INTERVAL", 2*time.Second),
		},

		Saga: SagaConfig{
			SeatConfirmTimeout:  getDurationEnv("SAGA_SEAT_CONFIRM_TIMEOUT", 5*time.Minute),
			SweepInterval:       getDurationEnv("SAGA_SWEEP_INTERVAL", 30*time.Second),
			CompensationRetries: getIntEnv("SAGA_COMPENSATION_RETRIES", 5),
			CompensationBackoff: getDurationEnv("SAGA_COMPENSATION_BACKOFF", 2*time.Second),
		},

		Payment: PaymentConfig{
			BaseURL:          getEnv("PAYMENT_API_BASE_URL", "https://api.portone.io"),
			APISecret:        getEnv("PAYMENT_API_SECRET", ""),
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			WebhookTolerance: getDurationEnv("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
			RequestTimeout:   getDurationEnv("PAYMENT_REQUEST_TIMEOUT", 10*time.Second),
		},

		RateLimit: RateLimitConfig{
			Enabled:        getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration: getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			QueueRequests:  getIntEnv("RATE_LIMIT_QUEUE_REQUESTS", 30),
			OrderRequests:  getIntEnv("RATE_LIMIT_ORDER_REQUESTS", 20),
			StatusRequests: getIntEnv("RATE_LIMIT_STATUS_REQUESTS", 120),
			HealthRequests: getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs: getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Scheduler: SchedulerConfig{
			Enabled:  getBoolEnv("SCHEDULER_ENABLED", true),
			OpenHour: getIntEnv("SCHEDULER_OPEN_HOUR", 0),
		},

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
