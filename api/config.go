package api

import (
	"os"
	"strconv"
	"time"

	"github.com/oxhq/varix/auth"
)

// Config holds the server settings. Every field has a VARIX_* environment
// variable; flags on the serve command override the environment.
type Config struct {
	Host        string
	Port        int
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
	UploadsDir  string
	CORSOrigin  string
	Debug       bool

	// Seeded on first start when the users table is empty.
	InitialAdminUsername string
	InitialAdminEmail    string
	InitialAdminPassword string
}

// FromEnv builds a Config from the environment, falling back to
// development defaults.
func FromEnv() Config {
	return Config{
		Host:        envOr("VARIX_HOST", "0.0.0.0"),
		Port:        envIntOr("VARIX_PORT", 8000),
		DatabaseURL: envOr("VARIX_DATABASE_URL", "data/varix.db"),
		JWTSecret:   os.Getenv("VARIX_JWT_SECRET"),
		TokenTTL:    envDurationOr("VARIX_TOKEN_TTL", auth.DefaultTTL),
		UploadsDir:  envOr("VARIX_UPLOADS_DIR", "uploads"),
		CORSOrigin:  envOr("VARIX_CORS_ORIGIN", "*"),
		Debug:       os.Getenv("VARIX_DEBUG") == "1",

		InitialAdminUsername: envOr("VARIX_INITIAL_ADMIN_USERNAME", "admin"),
		InitialAdminEmail:    envOr("VARIX_INITIAL_ADMIN_EMAIL", "admin@firma.com"),
		InitialAdminPassword: envOr("VARIX_INITIAL_ADMIN_PASSWORD", "ChangeMe123!"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
