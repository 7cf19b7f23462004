package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting for the service. It is built once at
// process start and injected explicitly; nothing reads the environment after
// Load returns.
type Config struct {
	Environment string
	HTTPAddr    string

	DatabaseDSN string

	// Credentials for the 1C integration endpoints.
	IntegrationAPIKey string
	HMACSecret        string
	HMACMaxSkew       time.Duration
	AllowedIPs        []string

	GuestTelegramID int64
	BotToken        string

	RateLimitPerMinute int

	ReplayCacheTTL time.Duration

	Tracing TracingConfig
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// Load reads configuration from the process environment. A .env file is
// honored for local development when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getString("ENVIRONMENT", "development"),
		HTTPAddr:           getString("HTTP_ADDR", ":8080"),
		DatabaseDSN:        getString("DATABASE_DSN", ""),
		IntegrationAPIKey:  strings.TrimSpace(os.Getenv("INTEGRATION_API_KEY")),
		HMACSecret:         strings.TrimSpace(os.Getenv("INTEGRATION_HMAC_SECRET")),
		GuestTelegramID:    getInt64("GUEST_TELEGRAM_ID", 0),
		BotToken:           strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		RateLimitPerMinute: int(getInt64("RATE_LIMIT_PER_MINUTE", 120)),
		Tracing: TracingConfig{
			Enabled:          getBool("TRACING_ENABLED", false),
			ServiceName:      getString("TRACING_SERVICE_NAME", "bonusgate"),
			ServiceVersion:   getString("TRACING_SERVICE_VERSION", "dev"),
			ExporterEndpoint: getString("TRACING_EXPORTER_ENDPOINT", ""),
			ExporterProtocol: getString("TRACING_EXPORTER_PROTOCOL", "http"),
			SamplingRatio:    getFloat("TRACING_SAMPLING_RATIO", 1.0),
		},
	}

	skew := getInt64("INTEGRATION_MAX_SKEW_SECONDS", 300)
	if skew <= 0 {
		return Config{}, fmt.Errorf("INTEGRATION_MAX_SKEW_SECONDS must be positive, got %d", skew)
	}
	cfg.HMACMaxSkew = time.Duration(skew) * time.Second

	replayTTL := getInt64("REPLAY_CACHE_TTL_SECONDS", 600)
	cfg.ReplayCacheTTL = time.Duration(replayTTL) * time.Second

	for _, ip := range strings.Split(os.Getenv("INTEGRATION_ALLOW_IPS"), ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			cfg.AllowedIPs = append(cfg.AllowedIPs, ip)
		}
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
