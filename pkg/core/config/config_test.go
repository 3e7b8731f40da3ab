package config

import "testing"

func setEnv(t *testing.T, email string) {
	t.Helper()
	t.Setenv("ADMIN_EMAIL", email)
	t.Setenv("APP_NAME", "")
	t.Setenv("SEC_RATE_LIMIT_REQUESTS", "")
	t.Setenv("SEC_RATE_LIMIT_WINDOW", "")
}

func TestLoadRequiresAdminEmail(t *testing.T) {
	setEnv(t, "")
	if _, err := Load(); err == nil {
		t.Error("missing ADMIN_EMAIL must fail")
	}

	setEnv(t, "not-an-email")
	if _, err := Load(); err == nil {
		t.Error("malformed ADMIN_EMAIL must fail")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "ops@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != DefaultAppName {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.SECBaseURL != DefaultSECBaseURL {
		t.Errorf("SECBaseURL = %q", cfg.SECBaseURL)
	}
	if cfg.SECRateLimitRequests != 10 || cfg.SECRateLimitWindow != 1 {
		t.Errorf("rate limit defaults wrong: %d/%ds", cfg.SECRateLimitRequests, cfg.SECRateLimitWindow)
	}
	if got := cfg.UserAgent(); got != DefaultAppName+" ops@example.com" {
		t.Errorf("UserAgent = %q", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, "ops@example.com")
	t.Setenv("APP_NAME", "DealGraphStaging")
	t.Setenv("SEC_RATE_LIMIT_REQUESTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "DealGraphStaging" || cfg.SECRateLimitRequests != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
