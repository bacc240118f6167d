package authority

import (
	"log/slog"

	"github.com/giantswarm/token-authority/internal/util"
)

// DefaultIssuer is used when Config.Issuer is empty
const DefaultIssuer = "http://localhost:8080"

// Config holds the token authority configuration
type Config struct {
	// Issuer is the public base URL of the authority. It selects whether
	// HSTS is sent and is the iss claim of signed access tokens.
	Issuer string

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the authority (default 1)
	TrustedProxyCount int

	// MaxRequestBytes bounds the size of a token request body (default 64KiB)
	MaxRequestBytes int64

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// applyDefaults fills zero values and returns a copy; the caller's Config is not modified.
func applyDefaults(config *Config) *Config {
	c := Config{}
	if config != nil {
		c = *config
	}

	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	c.Issuer = util.NormalizeURL(c.Issuer)

	if c.TrustedProxyCount <= 0 {
		c.TrustedProxyCount = 1
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 64 << 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.TrustProxy {
		c.Logger.Warn("Trusting proxy headers for client IP",
			"risk", "IP spoofing if proxy is not properly configured",
			"trusted_proxy_count", c.TrustedProxyCount)
	}
	return &c
}
