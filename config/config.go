package config

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMinio  = "minio"
	StorageMemory = "memory"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	FFmpegPath  string
	FFprobePath string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	StorageDriver  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	PublicBaseURL  string // public URL prefix for stored media; derived from the endpoint when empty
	CacheControl   string // max-age hint sent with every stored object, in seconds
	UploadSpoolDir string // where upload bytes are retained so a failed upload can be retried

	JWTSecret string

	CleanupSchedule  string        // cron spec for the orphaned media sweep
	CleanupRetention time.Duration // objects younger than this are never swept
	StoryCacheTTL    time.Duration

	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a Go duration or returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() *Config {
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		FFmpegPath:  ffmpegPath,
		FFprobePath: getEnv("FFPROBE_PATH", probePathFor(ffmpegPath)),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "benirage"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageMinio)),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "benirage-media"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		PublicBaseURL:  strings.TrimRight(getEnv("MEDIA_PUBLIC_BASE_URL", ""), "/"),
		CacheControl:   getEnv("MEDIA_CACHE_CONTROL", "3600"),
		UploadSpoolDir: getEnv("UPLOAD_SPOOL_DIR", filepath.Join(os.TempDir(), "benirage-uploads")),

		JWTSecret: os.Getenv("JWT_SECRET"),

		CleanupSchedule:  getEnv("CLEANUP_SCHEDULE", "@daily"),
		CleanupRetention: getEnvDuration("CLEANUP_RETENTION", 7*24*time.Hour),
		StoryCacheTTL:    getEnvDuration("STORY_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// probePathFor derives the ffprobe binary that ships next to ffmpeg.
func probePathFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StorageDriver {
	case StorageMinio:
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required for the minio storage driver"))
		}
		if c.MinioBucket == "" {
			errs = append(errs, errors.New("MINIO_BUCKET is required for the minio storage driver"))
		}
	case StorageMemory:
	default:
		errs = append(errs, errors.New("STORAGE_DRIVER must be one of: minio, memory"))
	}
	if c.CleanupRetention <= 0 {
		errs = append(errs, errors.New("CLEANUP_RETENTION must be positive"))
	}
	return errors.Join(errs...)
}

// MediaBaseURL returns the prefix used to build public object URLs.
func (c *Config) MediaBaseURL() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}
	scheme := "http"
	if c.MinioUseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.MinioEndpoint + "/" + c.MinioBucket
}
