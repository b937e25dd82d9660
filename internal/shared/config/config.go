package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is loaded once at process start
// and must not be mutated afterwards.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	CORSAllowOrigin []string
	JWTSecret       string

	ObjectStoreType string
	LocalStoreDir   string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool

	ProviderBaseURL   string
	ProviderAPIKey    string
	ProviderModel     string
	ProviderTimeout   time.Duration
	ProviderAttempts  int
	ProviderRetryBase time.Duration
	ProviderRetryMax  time.Duration
	MaxUploadBytes    int64
	AcceptedMimeTypes []string
	TesseractCmd      string
	TesseractLang     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		DatabaseURL:     dbURL,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "health-reports"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),

		ProviderBaseURL:   getEnv("GLM_BASE_URL", "https://open.bigmodel.cn/api/paas/v4"),
		ProviderAPIKey:    getEnv("GLM_API_KEY", ""),
		ProviderModel:     getEnv("GLM_MODEL", "glm-4-flash"),
		ProviderTimeout:   getEnvSeconds("PROVIDER_TIMEOUT_SECONDS", 60*time.Second),
		ProviderAttempts:  getEnvInt("PROVIDER_MAX_ATTEMPTS", 3),
		ProviderRetryBase: getEnvMillis("PROVIDER_RETRY_BASE_MS", 500*time.Millisecond),
		ProviderRetryMax:  getEnvMillis("PROVIDER_RETRY_MAX_MS", 8*time.Second),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		AcceptedMimeTypes: splitAndTrim(getEnv("ACCEPTED_MIME_TYPES", "image/jpeg,image/png,application/pdf")),
		TesseractCmd:      getEnv("TESSERACT_CMD", "tesseract"),
		TesseractLang:     getEnv("TESSERACT_LANG", "eng"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using default", key, raw)
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using default", key, raw)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool %q, using default", key, raw)
		return def
	}
	return val
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	if val := getEnvInt(key, 0); val > 0 {
		return time.Duration(val) * time.Second
	}
	return def
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if val := getEnvInt(key, 0); val > 0 {
		return time.Duration(val) * time.Millisecond
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
