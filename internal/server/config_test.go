package server

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8001", cfg.Port)
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.SendTimeout)
	assert.False(t, cfg.EchoTyping)
	assert.Equal(t, RateLimitConfig{Burst: 20, RefillInterval: time.Second}, cfg.RateLimit)
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set(KeyPort, "9000")
	v.Set(KeyAllowedOrigins, "https://a.example, https://b.example")
	v.Set(KeyMaxMessageSize, "1024")
	v.Set(KeyRateLimitBurst, "5")
	v.Set(KeyRateLimitRefillInterval, "2")
	v.Set(KeySendTimeout, "100ms")
	v.Set(KeyEchoTyping, true)
	v.Set(KeyChannelCacheTTL, "30s")
	v.Set(KeyJWTSecret, "shh")
	v.Set(KeyTokenTTL, "0s")
	v.Set(KeyLogOutput, "stdout, ,/var/log/xalvion.log")

	cfg := NewConfigFromViper(v)

	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 1024, cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.SendTimeout)
	assert.True(t, cfg.EchoTyping)
	assert.Equal(t, 30*time.Second, cfg.ChannelCache.TTL)
	assert.Equal(t, "shh", cfg.JWTSecret)
	assert.Equal(t, time.Duration(0), cfg.TokenTTL)
	assert.Equal(t, []string{"stdout", "/var/log/xalvion.log"}, cfg.LogOutput)
}

func TestNewConfigFromViperIgnoresInvalidValues(t *testing.T) {
	v := viper.New()
	v.Set(KeyPort, "127.0.0.1:7000")
	v.Set(KeyMaxMessageSize, "-1")
	v.Set(KeyRateLimitBurst, "lots")
	v.Set(KeySendTimeout, "soon")

	cfg := NewConfigFromViper(v)
	defaults := NewConfig()

	assert.Equal(t, "127.0.0.1:7000", cfg.Port)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit.Burst, cfg.RateLimit.Burst)
	assert.Equal(t, defaults.SendTimeout, cfg.SendTimeout)
}

func TestBindEnvReadsEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "8123")
	t.Setenv("ECHO_TYPING", "true")
	t.Setenv("DATABASE_PATH", "/tmp/x.db")

	v := viper.New()
	require.NoError(t, BindEnv(v))
	cfg := NewConfigFromViper(v)

	assert.Equal(t, ":8123", cfg.Port)
	assert.True(t, cfg.EchoTyping)
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath)
}

func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		AllowedOrigins: []string{" https://A.example/ ", "not a url", ""},
		SendTimeout:    -time.Second,
	})
	cfg := CurrentConfig()

	assert.Equal(t, ":8001", cfg.Port)
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.SendTimeout)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Positive(t, cfg.ChannelCache.Size)
}
