package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StorageLocal    = "local"
	StorageSupabase = "supabase"
	StorageMinio    = "minio"
)

type Config struct {
	// Database
	DatabaseURL    string
	DatabaseDriver string

	// Redis (optional project cache)
	RedisURL      string
	RedisCacheTTL time.Duration

	// Storage
	StorageBackend  string
	UploadDir       string
	UploadURLPrefix string
	MaxUploadBytes  int64

	// Supabase Storage
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Processing
	ProcessingDelay   time.Duration
	IdentityFrameURL  string
	CompletionTimeout time.Duration
	ResumeOnStartup   bool

	// Auth (optional)
	AuthJWTSecret string

	// Server
	Port            string
	Environment     string
	BaseURL         string
	LogLevel        string
	Version         string
	RateLimitRPS    float64
	RateLimitBurst  int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	// .env is optional; real deployments use the process environment
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisCacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", 10*time.Minute),

		StorageBackend:  getEnv("STORAGE_BACKEND", StorageLocal),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		UploadURLPrefix: getEnv("UPLOAD_URL_PREFIX", "/uploads"),
		MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 50<<20)),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "videos"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "videos"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),

		ProcessingDelay:   getEnvAsDuration("PROCESSING_DELAY", 5*time.Second),
		IdentityFrameURL:  getEnv("IDENTITY_FRAME_URL", "https://placehold.co/600x400/1a1a1a/FFF?text=Identity+Frame"),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 30*time.Second),
		ResumeOnStartup:   getEnvAsBool("RESUME_ON_STARTUP", true),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		Port:            getEnv("PORT", "5000"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:5000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Version:         getEnv("APP_VERSION", "1.0.0"),
		RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("PROCESSING_DELAY must not be negative")
	}
	switch c.DatabaseDriver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or pgx, got %q", c.DatabaseDriver)
	}
	switch c.StorageBackend {
	case StorageLocal:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for local storage")
		}
	case StorageSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required for supabase storage")
		}
		if c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY is required for supabase storage")
		}
	case StorageMinio:
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// NewLogger builds the JSON logrus logger used across the service.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
