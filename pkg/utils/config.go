package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the API server needs from the environment.
type Config struct {
	Port        string
	DBPath      string
	ImagesDir   string
	CORSOrigins []string

	// PublicBaseURL, when set, overrides the scheme/host taken from the
	// incoming request when building image URLs (useful behind a proxy).
	PublicBaseURL string

	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

// Load reads the configuration from the environment, with a .env file
// picked up first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getEnv("GRIMOIRE_PORT", "4000"),
		DBPath:        getEnv("GRIMOIRE_DB_PATH", defaultDBPath()),
		ImagesDir:     getEnv("GRIMOIRE_IMAGES_DIR", "images"),
		CORSOrigins:   splitCSV(getEnv("GRIMOIRE_CORS_ORIGINS", "http://localhost:5173")),
		PublicBaseURL: getEnv("GRIMOIRE_PUBLIC_BASE_URL", ""),
		JWTSecret:     getEnv("GRIMOIRE_JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:     getEnv("GRIMOIRE_JWT_ISSUER", "grimoire"),
		JWTDuration:   time.Duration(getEnvAsInt("GRIMOIRE_JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".grimoire", "data.db")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
