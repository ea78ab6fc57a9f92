package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// TriggerSecret gates the /internal endpoints (process-one-job, artifact
	// processing, reaper run).
	TriggerSecret string

	StoragePath       string
	StorageBaseURL    string
	StorageSignSecret string

	ProviderBaseURL string
	ProviderAPIKey  string

	PollInterval    time.Duration
	PollMaxAttempts int

	BatchConcurrency int
	BatchStagger     time.Duration
	BatchMaxItems    int

	DownloadTimeout     time.Duration
	FFmpegPath          string
	PreviewMaxDim       int
	PreviewClipsEnabled bool

	ReaperInterval    time.Duration
	ReaperZombieAge   time.Duration
	ReaperArtifactAge time.Duration
	ReaperBatchSize   int

	KafkaBrokers []string
	KafkaTopic   string

	GeoIPDBPath string

	CORSAllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		TriggerSecret: os.Getenv("TRIGGER_SECRET"),

		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", ""),
		StorageSignSecret: os.Getenv("STORAGE_SIGN_SECRET"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.kie.ai"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),

		PollInterval:    getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 60),

		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 2),
		BatchStagger:     getEnvDuration("BATCH_STAGGER", 500*time.Millisecond),
		BatchMaxItems:    getEnvInt("BATCH_MAX_ITEMS", 10),

		DownloadTimeout:     getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		PreviewMaxDim:       getEnvInt("PREVIEW_MAX_DIM", 512),
		PreviewClipsEnabled: getEnvBool("PREVIEW_CLIPS_ENABLED", false),

		ReaperInterval:    getEnvDuration("REAPER_INTERVAL", 5*time.Minute),
		ReaperZombieAge:   getEnvDuration("REAPER_ZOMBIE_AGE", time.Hour),
		ReaperArtifactAge: getEnvDuration("REAPER_ARTIFACT_AGE", 10*time.Minute),
		ReaperBatchSize:   getEnvInt("REAPER_BATCH_SIZE", 50),

		KafkaTopic: getEnv("KAFKA_TOPIC", "job-events"),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TriggerSecret == "" {
		return nil, fmt.Errorf("TRIGGER_SECRET is required")
	}
	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/files"
	}
	if cfg.StorageSignSecret == "" {
		cfg.StorageSignSecret = cfg.TriggerSecret
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
