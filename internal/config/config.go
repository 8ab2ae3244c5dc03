package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds every runtime setting for the API and the operator CLI.
type Config struct {
	Port    string
	GinMode string

	DatabaseURL    string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	DBMaxIdleConns int

	JWTSecret      string
	JWTTTL         time.Duration
	GoogleClientID string

	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	LedgerMaxAttempts          int
	ReverseAcceptBonusOnDelete bool

	NotifyQueueSize  int
	NotifyWorkers    int
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	InternalAPIKey string
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from the environment. Values from a local .env
// file are picked up by the godotenv autoload import.
func Load() (Config, error) {
	cfg := Config{
		Port:    getenv("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBHost:      getenv("DB_HOST", "localhost"),
		DBPort:      getenv("DB_PORT", "5432"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		DBSSLMode:   getenv("DB_SSLMODE", "disable"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),

		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		InternalAPIKey:   os.Getenv("INTERNAL_API_KEY"),
		LogLevel:         strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getenv("LOG_FORMAT", "json")),
	}

	var err error
	if cfg.DBMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 100); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = envDuration("JWT_TTL", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRequests, err = envInt("RATE_LIMIT_REQUESTS", 100); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LedgerMaxAttempts, err = envInt("LEDGER_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.ReverseAcceptBonusOnDelete, err = envBool("LEDGER_REVERSE_ACCEPT_BONUS_ON_DELETE", false); err != nil {
		return Config{}, err
	}
	if cfg.NotifyQueueSize, err = envInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.NotifyWorkers, err = envInt("NOTIFY_WORKERS", 2); err != nil {
		return Config{}, err
	}

	if cfg.LedgerMaxAttempts < 1 {
		return Config{}, fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", cfg.LedgerMaxAttempts)
	}
	if cfg.RateLimitRequests < 1 {
		return Config{}, fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	}
	if cfg.NotifyWorkers < 1 {
		return Config{}, fmt.Errorf("NOTIFY_WORKERS must be at least 1, got %d", cfg.NotifyWorkers)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value connection
// string built from the DB_* variables.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// TwilioEnabled reports whether SMS notifications can be sent.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback, nil
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
