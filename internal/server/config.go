// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the Xalvion service.
package server

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// ChannelCacheConfig sizes the channel -> server lookup cache.
type ChannelCacheConfig struct {
	Size int
	TTL  time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	// SendTimeout bounds how long a broadcast waits on one recipient's full
	// outbound queue before treating it as dead.
	SendTimeout time.Duration
	// EchoTyping delivers typing and stop_typing back to the sender.
	EchoTyping   bool
	ChannelCache ChannelCacheConfig

	DatabasePath string
	JWTSecret    string
	TokenTTL     time.Duration

	LogLevel     string
	LogFormat    string
	// LogOutput lists zap sinks: "stderr", "stdout" or file paths.
	LogOutput    []string
	OTLPEndpoint string
}

const (
	defaultPort           = ":8001"
	defaultMaxMessageSize = 4096
	defaultSendTimeout    = 250 * time.Millisecond
)

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"https://xalvion.netlify.app",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		SendTimeout: defaultSendTimeout,
		ChannelCache: ChannelCacheConfig{
			Size: 10_000,
			TTL:  10 * time.Minute,
		},
		DatabasePath: "xalvion.db",
		TokenTTL:     7 * 24 * time.Hour,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.SendTimeout < 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	if cfg.ChannelCache.Size <= 0 {
		cfg.ChannelCache.Size = 10_000
	}

	if cfg.ChannelCache.TTL <= 0 {
		cfg.ChannelCache.TTL = 10 * time.Minute
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Config keys understood by NewConfigFromViper.
const (
	KeyPort                    = "port"
	KeyAllowedOrigins          = "allowed-origins"
	KeyMaxMessageSize          = "max-message-size"
	KeyRateLimitBurst          = "rate-limit-burst"
	KeyRateLimitRefillInterval = "rate-limit-refill-interval"
	KeySendTimeout             = "send-timeout"
	KeyEchoTyping              = "echo-typing"
	KeyChannelCacheSize        = "channel-cache-size"
	KeyChannelCacheTTL         = "channel-cache-ttl"
	KeyDatabasePath            = "database-path"
	KeyJWTSecret               = "jwt-secret"
	KeyTokenTTL                = "token-ttl"
	KeyLogLevel                = "log-level"
	KeyLogFormat               = "log-format"
	KeyLogOutput               = "log-output"
	KeyOTLPEndpoint            = "otlp-endpoint"
)

var envNames = map[string]string{
	KeyPort:                    "SERVER_PORT",
	KeyAllowedOrigins:          "ALLOWED_ORIGINS",
	KeyMaxMessageSize:          "MAX_MESSAGE_SIZE",
	KeyRateLimitBurst:          "RATE_LIMIT_BURST",
	KeyRateLimitRefillInterval: "RATE_LIMIT_REFILL_INTERVAL",
	KeySendTimeout:             "SEND_TIMEOUT",
	KeyEchoTyping:              "ECHO_TYPING",
	KeyChannelCacheSize:        "CHANNEL_CACHE_SIZE",
	KeyChannelCacheTTL:         "CHANNEL_CACHE_TTL",
	KeyDatabasePath:            "DATABASE_PATH",
	KeyJWTSecret:               "JWT_SECRET",
	KeyTokenTTL:                "TOKEN_TTL",
	KeyLogLevel:                "LOG_LEVEL",
	KeyLogFormat:               "LOG_FORMAT",
	KeyLogOutput:               "LOG_OUTPUT",
	KeyOTLPEndpoint:            "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// BindEnv maps every config key to its environment variable.
func BindEnv(v *viper.Viper) error {
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// NewConfigFromViper creates a Config from v, falling back to defaults for
// unset or invalid values.
func NewConfigFromViper(v *viper.Viper) *Config {
	cfg := defaultConfig()

	if port := v.GetString(KeyPort); port != "" {
		cfg.Port = normalizePort(port)
	}

	if origins := v.GetString(KeyAllowedOrigins); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if maxSize := v.GetString(KeyMaxMessageSize); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := v.GetString(KeyRateLimitBurst); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := v.GetString(KeyRateLimitRefillInterval); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if timeout := v.GetString(KeySendTimeout); timeout != "" {
		cfg.SendTimeout = parseDuration(timeout, cfg.SendTimeout)
	}

	cfg.EchoTyping = v.GetBool(KeyEchoTyping)

	if size := v.GetString(KeyChannelCacheSize); size != "" {
		cfg.ChannelCache.Size = parseIntValue(size, cfg.ChannelCache.Size)
	}

	if ttl := v.GetString(KeyChannelCacheTTL); ttl != "" {
		cfg.ChannelCache.TTL = parseDuration(ttl, cfg.ChannelCache.TTL)
	}

	if path := v.GetString(KeyDatabasePath); path != "" {
		cfg.DatabasePath = path
	}

	cfg.JWTSecret = v.GetString(KeyJWTSecret)

	if ttl := v.GetString(KeyTokenTTL); ttl != "" {
		cfg.TokenTTL = parseDuration(ttl, cfg.TokenTTL)
	}

	if level := v.GetString(KeyLogLevel); level != "" {
		cfg.LogLevel = level
	}

	if format := v.GetString(KeyLogFormat); format != "" {
		cfg.LogFormat = format
	}

	if output := v.GetString(KeyLogOutput); output != "" {
		cfg.LogOutput = parseList(output)
	}

	cfg.OTLPEndpoint = v.GetString(KeyOTLPEndpoint)

	return &cfg
}

func normalizePort(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// parseList splits a comma separated value, dropping blank entries.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("250ms") or bare integer seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}
