package config

import (
	"os"
	"strings"
	"time"
)

const (
	// PublicMenuTimeout bounds the public-menu load; the loading indicator is cleared after it regardless of outcome.
	PublicMenuTimeout = 8 * time.Second

	defaultCountryCode    = "57"
	defaultMessagingHost  = "wa.me"
	defaultPublicMenuParm = "menu"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// SuperAdminAccountId is the single identity-provider account id that sees the super-admin panel.
// Empty disables the super-admin role entirely.
func SuperAdminAccountId() string {
	return strings.TrimSpace(os.Getenv("SUPER_ADMIN_ACCOUNT_ID"))
}

// DefaultCountryCode is the dialing code (digits only) prepended to local phone numbers.
func DefaultCountryCode() string {
	return getenv("DEFAULT_COUNTRY_CODE", defaultCountryCode)
}

func MessagingHost() string {
	return getenv("MESSAGING_HOST", defaultMessagingHost)
}

// PublicMenuParam is the query parameter naming the tenant for the public ordering page.
func PublicMenuParam() string {
	return getenv("PUBLIC_MENU_PARAM", defaultPublicMenuParm)
}

func IdentitySecret() string {
	return os.Getenv("IDENTITY_JWT_SECRET")
}

func StoreDriver() string {
	return strings.ToLower(getenv("STORE_DRIVER", StoreDriverMySQL))
}

// ResolverCacheTTL is how long a resolved public business stays in Redis. Zero disables caching.
func ResolverCacheTTL() time.Duration {
	return time.Duration(intFromEnv("RESOLVER_CACHE_TTL_SECONDS", 300)) * time.Second
}
