package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	MongoURI   string
	MongoDB    string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	LogFile  string
	LogLevel string

	CascadeRetryMaxElapsed time.Duration
	StoreBreakerTimeout    time.Duration

	CORSOrigin string

	BootstrapAdminUsername string
	BootstrapAdminPassword string

	PasswordBlacklistFile string
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		ServerPort:             getenv("SERVER_PORT", "8080"),
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDB:                getenv("MONGO_DB_NAME", "waypoint"),
		AccessSecret:           getenv("JWT_ACCESS_SECRET", "dev-access-secret"),
		RefreshSecret:          getenv("JWT_REFRESH_SECRET", "dev-refresh-secret"),
		AccessTTL:              time.Duration(getenvInt("ACCESS_TTL_SECONDS", 60)) * time.Second,
		RefreshTTL:             time.Duration(getenvInt("REFRESH_TTL_SECONDS", 43200)) * time.Second,
		LogFile:                os.Getenv("LOG_FILE"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		CascadeRetryMaxElapsed: time.Duration(getenvInt("CASCADE_RETRY_MAX_ELAPSED_MS", 5000)) * time.Millisecond,
		StoreBreakerTimeout:    time.Duration(getenvInt("STORE_BREAKER_TIMEOUT_MS", 2000)) * time.Millisecond,
		CORSOrigin:             getenv("CORS_ORIGIN", "*"),
		BootstrapAdminUsername: os.Getenv("BOOTSTRAP_ADMIN_USERNAME"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		PasswordBlacklistFile:  os.Getenv("PASSWORD_BLACKLIST_FILE"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
