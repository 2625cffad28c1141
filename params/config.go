package params

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePebble = "pebble"
	StoreMemory = "memory"
)

type Storage struct {
	// Backend is StorePebble or StoreMemory
	Backend string
	Path    string
	// JournalFile receives one line per settled match; empty disables it.
	JournalFile string
}

type API struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Log struct {
	File  string
	Level string
}

type Config struct {
	Storage Storage
	API     API
	Log     Log
	// Platforms enabled for signature verification; empty means all built-ins.
	Platforms []string
}

func Default() Config {
	return Config{
		Storage: Storage{
			Backend: StorePebble,
			Path:    "data/orders",
		},
		API: API{
			Addr:            ":5002",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.Backend = strings.ToLower(getEnv("STORE", cfg.Storage.Backend))
	cfg.Storage.Path = getEnv("DB_PATH", cfg.Storage.Path)
	cfg.Storage.JournalFile = getEnv("JOURNAL_FILE", cfg.Storage.JournalFile)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.API.ShutdownTimeout = d
		}
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	// Example: "Ethereum,Algorand"
	if platforms := os.Getenv("PLATFORMS"); platforms != "" {
		cfg.Platforms = splitList(platforms)
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
