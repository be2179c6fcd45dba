package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/dev-maui0806/e-siremart-backend/pkg/aws"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	AppEnv string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL  string
	JWTSecret string

	StripeAPIKey          string
	StripeWebhookSecret   string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	Currency               string
	PublicBaseURL          string
	FrontendURL            string
	CheckoutIdempotencyTTL time.Duration

	KafkaBrokers         []string
	OrderEventsTopic     string
	NotificationTopicArn string
	StripeEventsQueueURL string
	CloudWatchEnabled    bool
	CloudWatchLogGroup   string
	MetricsNamespace     string
	CORSAllowedOrigins   []string
	PaymentRatePerMinute int
}

type secretReader interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

const (
	secretDBCredentials = "marketplace/DB_CREDENTIALS"
	secretStripe        = "marketplace/STRIPE"
	secretRazorpay      = "marketplace/RAZORPAY"
)

// LoadConfig reads the environment (and .env when present). With
// AWS_USE_SECRETS=true, credentials are overridden from Secrets Manager.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	cfg := configFromEnv()

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		applySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() *Config {
	return &Config{
		Port:   getEnv("PORT", "8083"),
		AppEnv: getEnv("APP_ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		RedisURL:  getEnv("REDIS_URL", "redis://redis:6379"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		StripeAPIKey:          os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		Currency:               strings.ToLower(getEnv("CURRENCY", "inr")),
		PublicBaseURL:          strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:8083"), "/"),
		FrontendURL:            strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		CheckoutIdempotencyTTL: getDuration("CHECKOUT_IDEMPOTENCY_TTL", 24*time.Hour),

		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:     getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		NotificationTopicArn: os.Getenv("NOTIFICATION_SNS_TOPIC_ARN"),
		StripeEventsQueueURL: os.Getenv("STRIPE_EVENTS_QUEUE_URL"),
		CloudWatchEnabled:    os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup:   getEnv("CLOUDWATCH_LOG_GROUP", "/marketplace/services"),
		MetricsNamespace:     getEnv("METRICS_NAMESPACE", "Marketplace"),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		PaymentRatePerMinute: getInt("PAYMENT_RATE_LIMIT_PER_MINUTE", 30),
	}
}

// applySecrets overrides credentials with non-empty secret values. A
// missing secret leaves the environment values in place.
func applySecrets(ctx context.Context, cfg *Config, sm secretReader) {
	override := func(name string, fields map[string]*string) {
		m, err := sm.GetSecretMap(ctx, name)
		if err != nil {
			return
		}
		for key, dst := range fields {
			if v := m[key]; v != "" {
				*dst = v
			}
		}
	}

	override(secretDBCredentials, map[string]*string{
		"POSTGRES_USER":     &cfg.PostgresUser,
		"POSTGRES_PASSWORD": &cfg.PostgresPassword,
		"POSTGRES_DB":       &cfg.PostgresDB,
		"POSTGRES_HOST":     &cfg.PostgresHost,
		"POSTGRES_PORT":     &cfg.PostgresPort,
	})
	override(secretStripe, map[string]*string{
		"STRIPE_API_KEY":        &cfg.StripeAPIKey,
		"STRIPE_WEBHOOK_SECRET": &cfg.StripeWebhookSecret,
	})
	override(secretRazorpay, map[string]*string{
		"RAZORPAY_KEY_ID":         &cfg.RazorpayKeyID,
		"RAZORPAY_KEY_SECRET":     &cfg.RazorpayKeySecret,
		"RAZORPAY_WEBHOOK_SECRET": &cfg.RazorpayWebhookSecret,
	})
}

func (c *Config) validate() error {
	var errs []error
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		errs = append(errs, errors.New("database config incomplete"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.StripeAPIKey == "" && c.RazorpayKeyID == "" {
		errs = append(errs, errors.New("at least one payment provider must be configured"))
	}
	if c.RazorpayKeyID != "" && c.RazorpayKeySecret == "" {
		errs = append(errs, errors.New("RAZORPAY_KEY_SECRET is required with RAZORPAY_KEY_ID"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StripeSuccessURL is the hosted checkout redirect target.
func (c *Config) StripeSuccessURL() string {
	return c.PublicBaseURL + "/api/v1/orders/success?session_id={CHECKOUT_SESSION_ID}"
}

func (c *Config) StripeCancelURL() string {
	return c.FrontendURL + "/cart"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
