package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	ProviderBaseURL string
	ProviderAPIKey  string
	TTSBaseURL      string
	TTSAPIKey       string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	StoragePath    string
	StorageBaseURL string

	WorkDir           string
	PollInterval      time.Duration
	VideoPollBudget   time.Duration
	MusicPollBudget   time.Duration
	CrossfadeSeconds  float64
	SubmitConcurrency int
	MaxActiveJobs     int

	ReconcileInterval time.Duration
	StaleJobAge       time.Duration
	RetentionDays     int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ProviderBaseURL: getEnv("MEDIAGEN_BASE_URL", "https://api.runware.ai"),
		ProviderAPIKey:  os.Getenv("MEDIAGEN_API_KEY"),
		TTSBaseURL:      getEnv("TTS_BASE_URL", "https://texttospeech.googleapis.com/v1"),
		TTSAPIKey:       os.Getenv("TTS_API_KEY"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "promo-videos"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		WorkDir:           getEnv("WORK_DIR", os.TempDir()),
		PollInterval:      getEnvDuration("POLL_INTERVAL_SECONDS", 5*time.Second),
		VideoPollBudget:   getEnvDuration("VIDEO_POLL_BUDGET_SECONDS", 10*time.Minute),
		MusicPollBudget:   getEnvDuration("MUSIC_POLL_BUDGET_SECONDS", 2*time.Minute),
		CrossfadeSeconds:  getEnvFloat("CROSSFADE_SECONDS", 0.5),
		SubmitConcurrency: getEnvInt("SUBMIT_CONCURRENCY", 2),
		MaxActiveJobs:     getEnvInt("MAX_ACTIVE_JOBS", 4),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL_SECONDS", 30*time.Second),
		StaleJobAge:       getEnvDuration("STALE_JOB_AGE_SECONDS", 15*time.Minute),
		RetentionDays:     getEnvInt("RETENTION_DAYS", 60),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 30*time.Second),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60*time.Second),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SubmitConcurrency < 1 {
		cfg.SubmitConcurrency = 1
	}
	if cfg.MaxActiveJobs < 1 {
		cfg.MaxActiveJobs = 1
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
