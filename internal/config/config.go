package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Telegram settings
	TelegramToken     string
	TelegramChannelID string

	// Feed settings
	Subreddit  string
	MaxItemAge time.Duration // bound for re-delivery when the cursor fell off the page

	// Affiliate converter settings
	EarnKaroToken      string
	ConvertAPIURL      string
	MaxConvertRequests int // per run (0 = unlimited)

	// Classifier settings
	GeminiAPIKey        string
	OpenAIAPIKey        string
	MaxClassifyRequests int // per run (0 = unlimited)

	// Cursor settings
	CursorFilePath string
	DatabaseURL    string // set -> Postgres cursor store instead of file

	// Filter settings
	RulesPath string

	// App settings
	Debug          bool
	RequestTimeout time.Duration
	PacingDelay    time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		Subreddit:      "dealsforindia",
		MaxItemAge:     24 * time.Hour,
		ConvertAPIURL:  "https://ekaro-api.affiliaters.in/api/converter/public",
		CursorFilePath: "cursor.json",
		RulesPath:      "configs/rules.yaml",
		RequestTimeout: 30 * time.Second,
		PacingDelay:    2 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     5 * time.Second,
	}

	// Load from environment
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChannelID = os.Getenv("TELEGRAM_CHANNEL_ID")
	cfg.EarnKaroToken = os.Getenv("EARNKARO_TOKEN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.Subreddit = getEnvOrDefault("SUBREDDIT", cfg.Subreddit)
	cfg.ConvertAPIURL = getEnvOrDefault("CONVERT_API_URL", cfg.ConvertAPIURL)
	cfg.CursorFilePath = getEnvOrDefault("CURSOR_FILE_PATH", cfg.CursorFilePath)
	cfg.RulesPath = getEnvOrDefault("RULES_PATH", cfg.RulesPath)

	if hours := getEnvIntOrDefault("MAX_ITEM_AGE_HOURS", 0); hours > 0 {
		cfg.MaxItemAge = time.Duration(hours) * time.Hour
	}
	if ms := getEnvIntOrDefault("PACING_DELAY_MS", 0); ms > 0 {
		cfg.PacingDelay = time.Duration(ms) * time.Millisecond
	}
	if secs := getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	cfg.MaxClassifyRequests = getEnvIntOrDefault("MAX_CLASSIFY_REQUESTS", 0)
	cfg.MaxConvertRequests = getEnvIntOrDefault("MAX_CONVERT_REQUESTS", 0)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Validate checks the delivery credentials. Everything else is optional:
// a missing converter token degrades to passthrough links and a missing
// classifier key disables the semantic stage.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.TelegramChannelID == "" {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required")
	}
	if c.Subreddit == "" {
		return fmt.Errorf("SUBREDDIT must not be empty")
	}
	return nil
}
