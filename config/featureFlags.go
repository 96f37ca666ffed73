package config

import (
	"os"
	"strings"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SkipMigrations disables AutoMigrate on startup (run migrations as a separate job instead).
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}

// RateLimitEnabled turns on the Redis backed limiter for public order submission.
//
// Set via env:
// - RATE_LIMIT_ENABLED=true
// - RATE_LIMIT_WINDOW_SECONDS=60
// - RATE_LIMIT_MAX_REQUESTS=30
func RateLimitEnabled() bool {
	return envBool("RATE_LIMIT_ENABLED")
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}
