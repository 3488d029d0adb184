// ABOUTME: Application configuration loaded from environment variables
// ABOUTME: One explicit Config struct passed into components, no ambient reads
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL is a Postgres DSN. When empty the local SQLite file at
	// DatabasePath is used instead.
	DatabaseURL  string
	DatabasePath string

	ListenAddr    string
	PublicBaseURL string

	CRMBaseURL       string
	CRMAuthURL       string
	CRMTokenURL      string
	CRMAPIVersion    string
	CRMClientID      string
	CRMClientSecret  string
	OAuthRedirectURL string
	AppSuccessURL    string
	AppErrorURL      string

	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMMaxTokens         int
	ClassifyTemperature  float64
	DraftTemperature     float64
	TranslateTemperature float64

	// AMQPURL selects the broker-backed queue. Empty runs the in-process queue.
	AMQPURL string

	SyncInterval       time.Duration
	RequestDelay       time.Duration
	BatchSize          int
	ApprovalTTL        time.Duration
	ClaimTTL           time.Duration
	FollowupStaleAfter time.Duration
}

// Load reads .env if present and assembles the configuration from the
// environment with defaults suitable for local development.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: getEnv("IMMOSYNC_DB_PATH", defaultDatabasePath()),

		ListenAddr:    getEnv("IMMOSYNC_LISTEN_ADDR", ":8080"),
		PublicBaseURL: getEnv("IMMOSYNC_PUBLIC_URL", "http://localhost:8080"),

		CRMBaseURL:       getEnv("GHL_BASE_URL", "https://services.leadconnectorhq.com"),
		CRMAuthURL:       getEnv("GHL_AUTH_URL", "https://marketplace.gohighlevel.com/oauth/chooselocation"),
		CRMTokenURL:      getEnv("GHL_TOKEN_URL", "https://services.leadconnectorhq.com/oauth/token"),
		CRMAPIVersion:    getEnv("GHL_API_VERSION", "2021-07-28"),
		CRMClientID:      os.Getenv("GHL_CLIENT_ID"),
		CRMClientSecret:  os.Getenv("GHL_CLIENT_SECRET"),
		OAuthRedirectURL: getEnv("GHL_REDIRECT_URL", "http://localhost:8080/oauth/callback"),
		AppSuccessURL:    getEnv("APP_OAUTH_SUCCESS_URL", "immoapp://oauth/success"),
		AppErrorURL:      getEnv("APP_OAUTH_ERROR_URL", "immoapp://oauth/error"),

		LLMBaseURL:           getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            os.Getenv("LLM_API_KEY"),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:         getEnvInt("LLM_MAX_TOKENS", 1024),
		ClassifyTemperature:  getEnvFloat("LLM_CLASSIFY_TEMPERATURE", 0.1),
		DraftTemperature:     getEnvFloat("LLM_DRAFT_TEMPERATURE", 0.7),
		TranslateTemperature: getEnvFloat("LLM_TRANSLATE_TEMPERATURE", 0.3),

		AMQPURL: os.Getenv("AMQP_URL"),

		SyncInterval:       getEnvDuration("IMMOSYNC_SYNC_INTERVAL", 30*time.Minute),
		RequestDelay:       getEnvDuration("IMMOSYNC_REQUEST_DELAY", 50*time.Millisecond),
		BatchSize:          getEnvInt("IMMOSYNC_BATCH_SIZE", 10),
		ApprovalTTL:        getEnvDuration("IMMOSYNC_APPROVAL_TTL", 48*time.Hour),
		ClaimTTL:           getEnvDuration("IMMOSYNC_CLAIM_TTL", 2*time.Minute),
		FollowupStaleAfter: getEnvDuration("IMMOSYNC_FOLLOWUP_STALE_AFTER", 72*time.Hour),
	}
}

// RequireCRMCredentials errors unless OAuth client credentials are configured.
func (c *Config) RequireCRMCredentials() error {
	if c.CRMClientID == "" || c.CRMClientSecret == "" {
		return fmt.Errorf("CRM OAuth credentials not configured. Set GHL_CLIENT_ID and GHL_CLIENT_SECRET environment variables")
	}
	return nil
}

// RequireLLM errors unless an LLM API key is configured.
func (c *Config) RequireLLM() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM API key not configured. Set LLM_API_KEY environment variable")
	}
	return nil
}

func defaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "immosync", "immosync.db")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
