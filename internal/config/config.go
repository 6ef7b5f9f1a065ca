// Package config loads runtime settings from the environment and the versioned
// keyword and mapping tables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	AppName     = "marktplatz-bot"
	EnvFileName = "config.env"
)

const (
	defaultDBPath      = "marktplatz.db"
	defaultLocale      = "de"
	defaultParallelism = 4
)

// Config holds the settings shared by the bot and the CLI.
type Config struct {
	BotToken     string
	GeminiAPIKey string
	DBPath       string
	Locale       string
	// TablesPath overrides the embedded keyword and mapping tables when set.
	TablesPath string
	// CategoryStoreDSN points at an external Postgres category store. When empty
	// the category tree is read from the local SQLite database.
	CategoryStoreDSN    string
	MaxParallelAnalyses int
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from a .env file in the working directory. Errors are
// ignored since neither file has to exist. Variables already set in the
// environment win.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:            strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		DBPath:              envOr("MARKTPLATZ_DB_PATH", defaultDBPath),
		Locale:              strings.ToLower(envOr("MARKTPLATZ_LOCALE", defaultLocale)),
		TablesPath:          strings.TrimSpace(os.Getenv("MARKTPLATZ_TABLES_PATH")),
		CategoryStoreDSN:    strings.TrimSpace(os.Getenv("CATEGORY_STORE_DSN")),
		MaxParallelAnalyses: defaultParallelism,
	}

	if v := strings.TrimSpace(os.Getenv("MAX_PARALLEL_ANALYSES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_PARALLEL_ANALYSES must be an integer: %w", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("MAX_PARALLEL_ANALYSES must be at least 1, got %d", n)
		}
		cfg.MaxParallelAnalyses = n
	}

	return cfg, nil
}

// MissingForBot returns the names of required bot settings that are not set.
func (c *Config) MissingForBot() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	return missing
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
