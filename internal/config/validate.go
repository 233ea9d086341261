package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}
	if c.DB.Enabled {
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when DB_ENABLED is set")
		}
	}

	// Quota policy and storage keys
	if c.Quota.BaseMax < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_BASE_MAX must be at least 1, got %d", c.Quota.BaseMax))
	}
	if c.Quota.BonusAmount < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_BONUS_AMOUNT must not be negative, got %d", c.Quota.BonusAmount))
	}
	if c.Quota.Cycle <= 0 {
		errs = append(errs, "QUOTA_CYCLE must be positive")
	}
	if c.Quota.UsageKey == "" || c.Quota.BonusKey == "" {
		errs = append(errs, "QUOTA_USAGE_KEY and QUOTA_BONUS_KEY are required")
	} else if c.Quota.UsageKey == c.Quota.BonusKey {
		errs = append(errs, "QUOTA_USAGE_KEY and QUOTA_BONUS_KEY must differ")
	}
	if c.Quota.Mode != "limited" && c.Quota.Mode != "unlimited" {
		errs = append(errs, fmt.Sprintf("QUOTA_MODE must be limited or unlimited, got %q", c.Quota.Mode))
	}
	switch c.Quota.KeySource {
	case "ip":
	case "device":
		if len(c.Device.CookieSecret) < 32 {
			errs = append(errs, "DEVICE_COOKIE_SECRET must be at least 32 characters when QUOTA_KEY_SOURCE=device")
		}
	default:
		errs = append(errs, fmt.Sprintf("QUOTA_KEY_SOURCE must be ip or device, got %q", c.Quota.KeySource))
	}

	// Referral
	if c.Referral.Key == "" || c.Referral.ScratchKey == "" {
		errs = append(errs, "REFERRAL_KEY and REFERRAL_SCRATCH_KEY are required")
	} else if c.Referral.Key == c.Referral.ScratchKey {
		errs = append(errs, "REFERRAL_KEY and REFERRAL_SCRATCH_KEY must differ")
	}
	if c.Referral.TTL <= 0 {
		errs = append(errs, "REFERRAL_TTL must be positive")
	}
	if len(c.Referral.AllowedOrigins) == 0 {
		errs = append(errs, "REFERRAL_ALLOWED_ORIGINS must list at least one origin")
	}

	// Upstream model
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "LLM_TIMEOUT must be positive")
	}

	// Analytics
	if c.Analytics.QueueSize < 1 || c.Analytics.Workers < 1 {
		errs = append(errs, "ANALYTICS_QUEUE_SIZE and ANALYTICS_WORKERS must be at least 1")
	}
	if c.Analytics.Persist && (!c.DB.Enabled || c.NATS.URL == "") {
		errs = append(errs, "ANALYTICS_PERSIST requires DB_ENABLED and NATS_URL")
	}
	if c.Analytics.AdminToken != "" && len(c.Analytics.AdminToken) < 16 {
		errs = append(errs, "ANALYTICS_ADMIN_TOKEN must be at least 16 characters")
	}

	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		errs = append(errs, "RATELIMIT_REQUESTS and RATELIMIT_WINDOW must be positive")
	}

	if len(c.Device.HashKey) > 64 {
		errs = append(errs, "DEVICE_HASH_KEY must be at most 64 bytes")
	}

	// Warn only
	if c.Device.HashKey == "" {
		slog.Warn("DEVICE_HASH_KEY is empty, client hashes will change on every restart")
	}
	if c.Analytics.AdminToken != "" && !c.DB.Enabled {
		slog.Warn("ANALYTICS_ADMIN_TOKEN is set but DB_ENABLED is false, summary endpoint disabled")
	}
	if c.Sheets.SpreadsheetID != "" && c.Sheets.CredentialsFile == "" {
		slog.Warn("SHEETS_CREDENTIALS_FILE is empty, using application default credentials")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
