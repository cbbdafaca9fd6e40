package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Synchronizer tuning
	SyncSchedule   string // cron expression for the auto-sync sweep
	SyncPageSize   int    // Kobo submissions page size
	BackoffMinutes int    // watermark cushion subtracted before incremental runs
	PreferredLang  string // preferred language for Kobo label resolution
	DefaultChannel string // source tag stamped on tickets created by a sync
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:         getEnv("DB_NAME", "go-kobo-connect"),
		SkipAuth:       getEnv("SKIP_AUTH", "false") == "true",
		Environment:    getEnv("ENVIRONMENT", "development"),
		AppId:          getEnv("APP_ID", "go-kobo-connect"),
		SyncSchedule:   getEnv("SYNC_SCHEDULE", "@every 1m"),
		SyncPageSize:   getEnvInt("SYNC_PAGE_SIZE", 100),
		BackoffMinutes: getEnvInt("SYNC_BACKOFF_MINUTES", 10),
		PreferredLang:  getEnv("KOBO_LABEL_LANGUAGE", ""),
		DefaultChannel: getEnv("SYNC_DEFAULT_CHANNEL", "kobo"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
