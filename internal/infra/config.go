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
	AppEnv string
	Port   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	// Artwork fetch/conversion limits.
	FetchTimeout  time.Duration
	MaxImageBytes int64

	// Dark-theme detection thresholds. Tuned empirically; kept configurable
	// rather than baked into the detector.
	DarkThemeTransparentRatio float64
	DarkThemeWhiteRatio       float64
	DarkThemeWhiteLevel       int

	// Autodesk Platform Services.
	APSClientID     string
	APSClientSecret string
	APSBaseURL      string
	APSBucket       string
	APSRegion       string

	// External CAD generator.
	CADGenBaseURL string
	CADGenAPIKey  string

	// Optional local archive for generated artifacts.
	ArtifactsDir string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", nil),

		FetchTimeout:  time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 120)),
		MaxImageBytes: int64(getEnvInt("MAX_IMAGE_MEGABYTES", 200)) * 1024 * 1024,

		DarkThemeTransparentRatio: getEnvFloat("DARK_THEME_TRANSPARENT_RATIO", 0.5),
		DarkThemeWhiteRatio:       getEnvFloat("DARK_THEME_WHITE_RATIO", 0.9),
		DarkThemeWhiteLevel:       getEnvInt("DARK_THEME_WHITE_LEVEL", 240),

		APSClientID:     os.Getenv("APS_CLIENT_ID"),
		APSClientSecret: os.Getenv("APS_CLIENT_SECRET"),
		APSBaseURL:      getEnv("APS_BASE_URL", "https://developer.api.autodesk.com"),
		APSBucket:       getEnv("APS_BUCKET", "lumenworks-staging"),
		APSRegion:       getEnv("APS_REGION", "US"),

		CADGenBaseURL: getEnv("CADGEN_BASE_URL", "http://localhost:9090"),
		CADGenAPIKey:  os.Getenv("CADGEN_API_KEY"),

		ArtifactsDir: os.Getenv("ARTIFACTS_DIR"),
	}

	if cfg.APSClientID == "" || cfg.APSClientSecret == "" {
		return nil, fmt.Errorf("APS_CLIENT_ID and APS_CLIENT_SECRET are required")
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
