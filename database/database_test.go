package database_test

import (
	"context"
	"testing"

	"github.com/dev-maui0806/e-siremart-backend/database"
	"github.com/stretchr/testify/assert"
)

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := database.PostgresConfig{
		User:     "market",
		Password: "secret",
		DB:       "marketplace",
		Host:     "db",
		Port:     "5432",
		SSLMode:  "disable",
		TimeZone: "Asia/Kolkata",
	}
	assert.Equal(t,
		"host=db user=market password=secret dbname=marketplace port=5432 sslmode=disable TimeZone=Asia/Kolkata",
		cfg.DSN())
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := database.NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
