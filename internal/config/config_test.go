package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverrides(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("VNPAY_TMN_CODE", "LOGI0001")
	t.Setenv("VNPAY_HASH_SECRET", "hash")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 15, cfg.Gateway.ExpireMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "x"
	assert.Error(t, cfg.Validate())

	cfg.Gateway = GatewayConfig{TmnCode: "T", HashSecret: "H"}
	assert.NoError(t, cfg.Validate())
}

func TestRabbitMQURL(t *testing.T) {
	c := RabbitMQConfig{Host: "mq", Port: 5672, User: "guest", Password: "guest", VHost: "/"}
	assert.Equal(t, "amqp://guest:guest@mq:5672/", c.URL())

	c.VHost = "recon"
	assert.Equal(t, "amqp://guest:guest@mq:5672/recon", c.URL())
}
