package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	AllowedOrigins   []string
	AllowCredentials bool
	Environment      string

	DatabaseDSN string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBrokers []string
	KafkaGroupID string

	JWTSecret string
	JWTIssuer string

	LogLevel  string
	LogFormat string

	MessagePageSize      int
	MessagePageMax       int
	NotificationPageSize int
	TypingTTL            time.Duration
	ShutdownTimeout      time.Duration
}

func LoadConfig() *Config {
	cfg := &Config{
		Port:             getEnv("PORT", "8082"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		AllowCredentials: getEnv("ALLOW_CREDENTIALS", "false") == "true",
		Environment:      getEnv("ENVIRONMENT", "development"),

		DatabaseDSN: getEnv("DATABASE_DSN", "marketlive.db"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Empty disables both the domain event consumer and the outbound mirror.
		KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "marketlive-ws-group"),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		MessagePageSize:      getEnvInt("MESSAGE_PAGE_SIZE", 30),
		MessagePageMax:       getEnvInt("MESSAGE_PAGE_MAX", 100),
		NotificationPageSize: getEnvInt("NOTIFICATION_PAGE_SIZE", 20),
		TypingTTL:            getEnvDuration("TYPING_TTL", 30*time.Second),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	defaultFormat := "json"
	if cfg.IsDevelopment() {
		defaultFormat = "console"
	}
	cfg.LogFormat = getEnv("LOG_FORMAT", defaultFormat)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *Config) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
