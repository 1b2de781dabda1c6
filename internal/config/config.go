package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Ledger
	LedgerAPIURL      string        `envconfig:"LEDGER_API_URL" default:"https://api.testnet.hiro.so"`
	Deployer          string        `envconfig:"DEPLOYER" default:"ST356P5YEXBJC1ZANBWBNR0N0X7NT8AV7FZ017K55"`
	ContractsFile     string        `envconfig:"CONTRACTS_FILE"` // optional YAML manifest, see LoadManifest
	EventPageSize     int           `envconfig:"EVENT_PAGE_SIZE" default:"50"`
	LedgerTimeout     time.Duration `envconfig:"LEDGER_TIMEOUT" default:"30s"`
	LedgerReadRetries int           `envconfig:"LEDGER_READ_RETRIES" default:"2"`

	// Caching
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"60s"`
	DetailCacheSize int           `envconfig:"DETAIL_CACHE_SIZE" default:"512"`
	DetailCacheTTL  time.Duration `envconfig:"DETAIL_CACHE_TTL" default:"60s"`

	// HTTP
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"100"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS" default:"*"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// CORSOriginList returns the parsed, comma-separated CORS origins.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.LedgerAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("LEDGER_API_URL %q is not an http(s) URL", c.LedgerAPIURL)
	}
	if _, _, err := clarity.DecodeAddress(c.Deployer); err != nil {
		return fmt.Errorf("DEPLOYER: %w", err)
	}
	switch {
	case c.EventPageSize < 1 || c.EventPageSize > 50:
		return fmt.Errorf("EVENT_PAGE_SIZE must be between 1 and 50, got %d", c.EventPageSize)
	case c.LedgerTimeout <= 0:
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	case c.LedgerReadRetries < 0:
		return fmt.Errorf("LEDGER_READ_RETRIES must not be negative")
	case c.CacheTTL <= 0:
		return fmt.Errorf("CACHE_TTL must be positive")
	case c.DetailCacheSize < 1:
		return fmt.Errorf("DETAIL_CACHE_SIZE must be at least 1")
	case c.RateLimitRPS < 1 || c.RateLimitBurst < c.RateLimitRPS:
		return fmt.Errorf("RATE_LIMIT_BURST (%d) must be >= RATE_LIMIT_RPS (%d) >= 1", c.RateLimitBurst, c.RateLimitRPS)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
