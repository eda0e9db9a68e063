package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	SlackBotToken string
	OpenAIAPIKey  string

	// Channels is the allow-list of channel names or IDs to sync.
	// Empty means all public channels the bot can see.
	Channels []string

	SyncInterval time.Duration
	RunOnce      bool
	BatchSize    int
	Workers      int

	ChunkMaxChars       int
	EmbeddingDimensions int

	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	FetchMaxAttempts int

	LogLevel    string
	LogFormat   string
	Environment string
}

func Load() *Config {
	return &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "postgres://localhost/slackrag?sslmode=disable"),

		SlackBotToken: os.Getenv("SLACK_BOT_TOKEN"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),

		Channels: splitList(os.Getenv("SLACK_CHANNELS")),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 60*time.Minute),
		RunOnce:      getEnvBool("RUN_ONCE", false),
		BatchSize:    getEnvInt("BATCH_SIZE", 50),
		Workers:      getEnvInt("SYNC_WORKERS", 4),

		ChunkMaxChars:       getEnvInt("CHUNK_MAX_CHARS", 4000),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		BackoffInitial:   getEnvDuration("BACKOFF_INITIAL", 500*time.Millisecond),
		BackoffMax:       getEnvDuration("BACKOFF_MAX", 30*time.Second),
		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 5),

		LogLevel:    getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "text"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
	}
}

func (c *Config) Validate() error {
	if c.SlackBotToken == "" {
		return errors.New("SLACK_BOT_TOKEN is required")
	}
	if !strings.HasPrefix(c.SlackBotToken, "xoxb-") {
		return errors.New("SLACK_BOT_TOKEN must start with 'xoxb-'")
	}
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("SYNC_WORKERS must be positive")
	}
	if c.ChunkMaxChars <= 0 {
		return errors.New("CHUNK_MAX_CHARS must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.New("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.FetchMaxAttempts <= 0 {
		return errors.New("FETCH_MAX_ATTEMPTS must be positive")
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return errors.New("backoff bounds invalid: need 0 < BACKOFF_INITIAL <= BACKOFF_MAX")
	}
	if !c.RunOnce && c.SyncInterval <= 0 {
		return errors.New("SYNC_INTERVAL must be positive unless RUN_ONCE is set")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		return errors.New("LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return errors.New("LOG_FORMAT must be one of: text, json")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration parses a Go duration string ("30m", "1h"). A bare number is
// treated as minutes so SYNC_INTERVAL=60 keeps working.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Minute
	}
	fmt.Fprintf(os.Stderr, "invalid duration for %s: %q, using default\n", key, value)
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
