// Package config loads runtime configuration from the environment.
//
// The SEC requires every automated client to identify itself with a
// real contact address, so ADMIN_EMAIL is mandatory and validated at
// startup instead of failing half way through an ingest run.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultAppName              = "DealGraph"
	DefaultSECBaseURL           = "https://www.sec.gov"
	DefaultSECRateLimitRequests = 10
	DefaultSECRateLimitWindow   = 1
	DefaultAttributionConfig    = "config/attribution_config.json"
)

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Config is the full runtime configuration.
type Config struct {
	AppName    string
	AdminEmail string

	DatabaseURL string

	SECBaseURL           string
	SECRateLimitRequests int
	SECRateLimitWindow   int // seconds

	AttributionConfigPath string
}

// Load reads .env (if present) and the environment, validating the
// mandatory fields. A missing or malformed ADMIN_EMAIL is fatal.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		AppName:               getenv("APP_NAME", DefaultAppName),
		AdminEmail:            os.Getenv("ADMIN_EMAIL"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SECBaseURL:            getenv("SEC_BASE_URL", DefaultSECBaseURL),
		SECRateLimitRequests:  getenvInt("SEC_RATE_LIMIT_REQUESTS", DefaultSECRateLimitRequests),
		SECRateLimitWindow:    getenvInt("SEC_RATE_LIMIT_WINDOW", DefaultSECRateLimitWindow),
		AttributionConfigPath: getenv("ATTRIBUTION_CONFIG_PATH", DefaultAttributionConfig),
	}

	if cfg.AdminEmail == "" {
		return nil, fmt.Errorf("config: ADMIN_EMAIL is required for SEC identification")
	}
	if !emailRE.MatchString(cfg.AdminEmail) {
		return nil, fmt.Errorf("config: ADMIN_EMAIL %q is not a valid email address", cfg.AdminEmail)
	}
	if cfg.SECRateLimitRequests <= 0 || cfg.SECRateLimitWindow <= 0 {
		return nil, fmt.Errorf("config: SEC rate limit must be positive")
	}
	return cfg, nil
}

// UserAgent builds the identification header the SEC expects.
func (c *Config) UserAgent() string {
	return c.AppName + " " + c.AdminEmail
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
	if err != nil {
		return fallback
	}
	return n
}
