package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	Addr        string
	DatabaseURL string
	DBMaxOpen   int
	DBMaxIdle   int
	JWTSecret   string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	CORSOrigins []string
	LogLevel    string
	ReposDir    string
	PublicURL   string
	MaxUpload   int64
	// TrustProxy honours X-Forwarded-For / X-Real-IP from a fronting proxy
	TrustProxy bool
	// Redis holds refresh sessions and revoked access tokens
	RedisURL string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Object storage for original uploads
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Completion API; AI routes are disabled without a key
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAITimeout time.Duration
}

// Load reads the process configuration. A .env file in the working
// directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:           getenv("API_ADDR", ":8787"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxOpen:      getenvInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdle:      getenvInt("DB_MAX_IDLE_CONNS", 10),
		JWTSecret:      getenv("JWT_SECRET", "pageforge-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("ACCESS_TTL_SECONDS", 1800)) * time.Second,
		RefreshTTL:     time.Duration(getenvInt("REFRESH_TTL_SECONDS", 604800)) * time.Second,
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "*")),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		ReposDir:       getenv("REPOS_DIR", "./data/repos"),
		PublicURL:      getenv("PUBLIC_APP_URL", "http://localhost:3000"),
		MaxUpload:      int64(getenvInt("MAX_UPLOAD_BYTES", 25<<20)),
		TrustProxy:     getenvBool("TRUST_PROXY", false),
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "pageforge-uploads"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		// SMTP - empty by default, email disabled if not configured
		SMTPHost:      getenv("SMTP_HOST", ""),
		SMTPPort:      getenv("SMTP_PORT", "587"),
		SMTPUsername:  getenv("SMTP_USERNAME", ""),
		SMTPPassword:  getenv("SMTP_PASSWORD", ""),
		SMTPFrom:      getenv("SMTP_FROM", ""),
		SMTPFromName:  getenv("SMTP_FROM_NAME", "Pageforge"),
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
		OpenAITimeout: time.Duration(getenvInt("OPENAI_TIMEOUT_SECONDS", 60)) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
