package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecretMap(_ context.Context, name string) (map[string]string, error) {
	m, ok := f[name]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return m, nil
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "orders")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "marketplace")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_secret")
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FRONTEND_URL", "https://shop.example.com/")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CURRENCY", "INR")
	t.Setenv("CHECKOUT_IDEMPOTENCY_TTL", "2h")

	cfg := configFromEnv()
	require.NoError(t, cfg.validate())

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "5432", cfg.PostgresPort)
	assert.Equal(t, "inr", cfg.Currency)
	assert.Equal(t, "https://shop.example.com", cfg.FrontendURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.CheckoutIdempotencyTTL)
	assert.Equal(t, 30, cfg.PaymentRatePerMinute)
	assert.False(t, cfg.CloudWatchEnabled)
}

func TestConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CHECKOUT_IDEMPOTENCY_TTL", "forever")
	t.Setenv("PAYMENT_RATE_LIMIT_PER_MINUTE", "-3")

	cfg := configFromEnv()
	assert.Equal(t, 24*time.Hour, cfg.CheckoutIdempotencyTTL)
	assert.Equal(t, 30, cfg.PaymentRatePerMinute)
}

func TestStripeRedirectURLs(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com/")
	t.Setenv("FRONTEND_URL", "https://shop.example.com")

	cfg := configFromEnv()
	assert.Equal(t, "https://api.example.com/api/v1/orders/success?session_id={CHECKOUT_SESSION_ID}", cfg.StripeSuccessURL())
	assert.Equal(t, "https://shop.example.com/cart", cfg.StripeCancelURL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"complete", func(*Config) {}, ""},
		{"missing database", func(c *Config) { c.PostgresHost = "" }, "database config incomplete"},
		{"missing jwt", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"no provider", func(c *Config) { c.RazorpayKeyID = "" }, "payment provider"},
		{"razorpay without secret", func(c *Config) { c.RazorpayKeySecret = "" }, "RAZORPAY_KEY_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg := configFromEnv()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplySecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	cfg := configFromEnv()

	applySecrets(context.Background(), cfg, fakeSecrets{
		secretDBCredentials: {"POSTGRES_PASSWORD": "rotated", "POSTGRES_HOST": "db.internal", "POSTGRES_USER": ""},
		secretStripe:        {"STRIPE_API_KEY": "sk_live_1"},
	})

	assert.Equal(t, "rotated", cfg.PostgresPassword)
	assert.Equal(t, "db.internal", cfg.PostgresHost)
	assert.Equal(t, "orders", cfg.PostgresUser)
	assert.Equal(t, "sk_live_1", cfg.StripeAPIKey)
	assert.Equal(t, "whsec_env", cfg.StripeWebhookSecret)
	assert.Equal(t, "rzp_secret", cfg.RazorpayKeySecret)
}
