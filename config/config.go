package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service  string
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBrokers       []string
	OrderEventsTopic   string
	VendorChangesTopic string
	ConsumerGroup      string

	JWTSecret      string
	AllowedOrigins []string

	StripeSecretKey     string
	StripeWebhookSecret string
	AppBaseURL          string

	ProductServiceURL string
	JaegerEndpoint    string

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// Load reads the environment, after an optional .env file, for the named service.
func Load(service, defaultAddr string) Config {
	_ = godotenv.Load()

	return Config{
		Service:  service,
		HTTPAddr: GetEnv("HTTP_ADDR", defaultAddr),

		DBHost:     GetEnv("DB_HOST", "localhost"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBUser:     GetEnv("DB_USER", "postgres"),
		DBPassword: GetEnv("DB_PASSWORD", "postgres"),
		DBName:     GetEnv("DB_NAME", "marketplace"),

		RedisHost:     GetEnv("REDIS_HOST", "localhost"),
		RedisPort:     GetEnv("REDIS_PORT", "6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),

		KafkaBrokers:       strings.Split(GetEnv("KAFKA_BROKER", "localhost:9092"), ","),
		OrderEventsTopic:   GetEnv("KAFKA_ORDER_TOPIC", "order_events"),
		VendorChangesTopic: GetEnv("KAFKA_VENDOR_ORDER_TOPIC", "vendor_order_changes"),
		ConsumerGroup:      GetEnv("KAFKA_CONSUMER_GROUP", service),

		JWTSecret:      GetEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		AllowedOrigins: strings.Split(GetEnv("CORS_ALLOWED_ORIGINS", "*"), ","),

		StripeSecretKey:     GetEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		AppBaseURL:          GetEnv("APP_BASE_URL", "http://localhost:5173"),

		ProductServiceURL: GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		JaegerEndpoint:    GetEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),

		ReconcileInterval: GetDuration("SPLIT_RECONCILE_INTERVAL", time.Minute),
		ReconcileGrace:    GetDuration("SPLIT_RECONCILE_GRACE", 2*time.Minute),
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDuration accepts Go duration strings ("90s") or a bare number of seconds.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
