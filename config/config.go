package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port              string
	RateLimitCapacity int
	RateLimitWindow   time.Duration
	// Proxies whose X-Forwarded-For is honored, as addresses or CIDRs
	TrustedProxies []string

	// Key-value store for drafts and cached quotes
	StoreBackend string
	RedisAddr    string

	// Loan repository
	DBBackend    string
	SQLiteDBPath string

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string

	// Marketplace
	QuoteCacheTTL      time.Duration
	DraftTTL           time.Duration
	LedgerConfirmDelay time.Duration
	DefaultNetwork     string
	DefaultAPR         float64

	// Logging
	LogLevel  string
	LogFormat string
	LogDev    bool
}

func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		TrustedProxies:    getEnvList("TRUSTED_PROXIES"),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),

		DBBackend:    getEnv("DB_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/microlend.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "microlend"),

		QuoteCacheTTL:      getEnvDuration("QUOTE_CACHE_TTL", 10*time.Minute),
		DraftTTL:           getEnvDuration("DRAFT_TTL", 720*time.Hour),
		LedgerConfirmDelay: getEnvDuration("LEDGER_CONFIRM_DELAY", 3*time.Second),
		DefaultNetwork:     getEnv("DEFAULT_NETWORK", "solana"),
		DefaultAPR:         getEnvFloat("DEFAULT_APR", 12.5),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogDev:    getEnvBool("LOG_DEV", false),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitCapacity < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit capacity %d: must be at least 1", c.RateLimitCapacity))
	}
	if c.RateLimitWindow < time.Second {
		errs = append(errs, fmt.Sprintf("invalid rate limit window %v: must be at least 1 second", c.RateLimitWindow))
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err.Error())
	}

	storeBackends := []string{"memory", "redis"}
	if !slices.Contains(storeBackends, c.StoreBackend) {
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, storeBackends))
	}
	if c.StoreBackend == "redis" && c.RedisAddr == "" {
		errs = append(errs, "Redis address cannot be empty when using redis store backend")
	}

	dbBackends := []string{"memory", "sqlite"}
	if !slices.Contains(dbBackends, c.DBBackend) {
		errs = append(errs, fmt.Sprintf("invalid db backend '%s': must be one of %v", c.DBBackend, dbBackends))
	}
	if c.DBBackend == "sqlite" && c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.QuoteCacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("invalid quote cache TTL %v: must be positive", c.QuoteCacheTTL))
	}
	if c.DraftTTL <= 0 {
		errs = append(errs, fmt.Sprintf("invalid draft TTL %v: must be positive", c.DraftTTL))
	}
	if c.LedgerConfirmDelay < 0 {
		errs = append(errs, fmt.Sprintf("invalid ledger confirm delay %v: must not be negative", c.LedgerConfirmDelay))
	}

	networks := []string{"solana", "ethereum"}
	if !slices.Contains(networks, c.DefaultNetwork) {
		errs = append(errs, fmt.Sprintf("invalid default network '%s': must be one of %v", c.DefaultNetwork, networks))
	}
	if c.DefaultAPR < 0 || c.DefaultAPR > 1000 {
		errs = append(errs, fmt.Sprintf("invalid default APR %.2f: must be between 0 and 1000", c.DefaultAPR))
	}

	formats := []string{"json", "console"}
	if !slices.Contains(formats, c.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, formats))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is taken as a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy '%s': %v", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy '%s': %v", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
