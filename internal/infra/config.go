package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backends understood by LoadConfig.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	SessionSecret    string
	StoragePath      string
	StorageBaseURL   string
	AllowedOrigins   []string
	GeoIPDBPath      string
	GoogleClientID   string
	GoogleIssuer     string
	ReplicateToken   string
	ReplicateBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
	ImagenModel      string
	QueueBackend     string
	RedisAddr        string
	RedisQueueKey    string
	RenderWorkers    int
	ProviderTimeout  time.Duration
	DownloadTimeout  time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8000"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		StoragePath:      getEnv("STORAGE_PATH", "./data"),
		StorageBaseURL:   os.Getenv("STORAGE_BASE_URL"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "*")),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		GoogleClientID:   os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleIssuer:     getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),
		ReplicateToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL: getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ImagenModel:      getEnv("IMAGEN_MODEL", "imagen-3.0-generate-002"),
		QueueBackend:     strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendMemory)),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisQueueKey:    getEnv("REDIS_QUEUE_KEY", "renders:queue"),
		RenderWorkers:    getEnvInt("RENDER_WORKERS", 2),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),
		DownloadTimeout:  time.Second * time.Duration(getEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 30)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SessionSecret == "" {
		if cfg.AppEnv != "development" {
			return nil, fmt.Errorf("SESSION_SECRET is required")
		}
		cfg.SessionSecret = "dev-secret-key-change-in-production"
	}

	switch cfg.QueueBackend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		return nil, fmt.Errorf("QUEUE_BACKEND %q is not supported", cfg.QueueBackend)
	}

	if cfg.RenderWorkers <= 0 {
		cfg.RenderWorkers = 2
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
