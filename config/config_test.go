package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PUBLIC_SITE_URL", "https://menu.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://menu.example.com", cfg.Server.PublicSiteURL)
	assert.Equal(t, 24, cfg.JWT.ExpireHours)
	assert.Equal(t, 5*time.Minute, cfg.Cache.PublicMenuTTL)
}

func TestLoad_RejectsNonPositiveExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRE_HOURS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "menuqr", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/menuqr?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
