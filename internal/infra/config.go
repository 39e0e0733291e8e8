package infra

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	JobServiceURL    string
	AccessToken      string
	AccessTokenFile  string
	TokenPoll        time.Duration
	BlobDir          string
	RefreshInterval  time.Duration
	RequestTimeout   time.Duration
	MaxUploadBytes   int64
	CORSOrigins      []string
	DefaultLocale    string
	GeoIPDBPath      string
	GenerateRate     int
	OIDCIssuer       string
	OIDCAudience     string
	JWTSecret        string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8090"),
		JobServiceURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("JOB_SERVICE_URL")), "/"),
		AccessToken:      strings.TrimSpace(os.Getenv("ACCESS_TOKEN")),
		AccessTokenFile:  strings.TrimSpace(os.Getenv("ACCESS_TOKEN_FILE")),
		TokenPoll:        time.Second * time.Duration(getEnvInt("TOKEN_POLL_SECONDS", 30)),
		BlobDir:          getEnv("BLOB_DIR", filepath.Join(os.TempDir(), "imagedash-blobs")),
		RefreshInterval:  time.Second * time.Duration(getEnvInt("REFRESH_INTERVAL_SECONDS", 0)),
		RequestTimeout:   time.Second * time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 5*1024*1024)),
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		GenerateRate:     getEnvInt("GENERATE_RATE_PER_MINUTE", 10),
		OIDCIssuer:       strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:     getEnv("OIDC_AUDIENCE", "authenticated"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.JobServiceURL == "" {
		return nil, fmt.Errorf("JOB_SERVICE_URL is required")
	}
	parsed, err := url.Parse(cfg.JobServiceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("JOB_SERVICE_URL must be an absolute http(s) url, got %q", cfg.JobServiceURL)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.TokenPoll <= 0 {
		cfg.TokenPoll = 30 * time.Second
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
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
