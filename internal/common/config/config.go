package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ============================================================
// Configuration
// ============================================================

type Config struct {
	Port         string
	Environment  string
	ReadTimeout  int
	WriteTimeout int
	BodyLimitMB  int

	DBPath      string
	StorageRoot string
	AssetDir    string

	LogDir  string
	LogJSON bool
	Debug   bool

	AssetTimeout  time.Duration
	RenderWorkers int
	RenderDPI     float64
	SessionIdle   time.Duration
}

// Load reads configuration from the environment after applying an
// optional .env file. Variables already set win over the file.
func Load(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, fmt.Errorf("load %s: %w", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", dotEnvPath, err)
		}
	}

	return &Config{
		Port:         getEnv("PORT", "3000"),
		Environment:  getEnv("ENV", "development"),
		ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
		WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 60),
		BodyLimitMB:  getEnvAsInt("BODY_LIMIT_MB", 50),

		DBPath:      getEnv("STUDIO_DB_PATH", "data/db/studio.db"),
		StorageRoot: getEnv("STUDIO_STORAGE_ROOT", "data/storage"),
		AssetDir:    getEnv("STUDIO_ASSET_DIR", ""),

		LogDir:  getEnv("LOG_DIR", ""),
		LogJSON: getEnvAsBool("LOG_JSON", false),
		Debug:   getEnvAsBool("DEBUG", false),

		AssetTimeout:  getEnvAsDuration("ASSET_TIMEOUT", 10*time.Second),
		RenderWorkers: getEnvAsInt("RENDER_WORKERS", 4),
		RenderDPI:     getEnvAsFloat("RENDER_DPI", 300),
		SessionIdle:   getEnvAsDuration("SESSION_IDLE", 2*time.Hour),
	}, nil
}

// BodyLimit is the request body cap in bytes.
func (c *Config) BodyLimit() int {
	return c.BodyLimitMB << 20
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsDuration accepts Go durations ("15s") or whole seconds.
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
