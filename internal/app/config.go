package app

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/shopping-basket/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

var defaultConfigFiles = []string{"config.yaml", "/etc/basket/config.yaml"}

// Config holds the complete application configuration, loadable from
// environment variables (BASKET_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"Optional PostgreSQL URL to load pricing tables from (BASKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Pricing     PricingConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PricingConfig holds the static pricing tables. Entries use the form
// KEY=VALUE, e.g. SUMMER10=0.10 or UK=5.
type PricingConfig struct {
	VAT       string   `default:"0.20" usage:"VAT rate as a decimal fraction" flag:"vat"`
	Discounts []string `usage:"Discount codes as CODE=FRACTION" flag:"discounts"`
	Shipping  []string `usage:"Shipping regions as REGION=COST" flag:"shipping"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Secret    string        `usage:"HMAC secret for bearer tokens (BASKET_AUTH_SECRET or JWT_SECRET)" flag:"auth-secret"`
	Issuer    string        `default:"ShoppingBasket" usage:"Expected token issuer"`
	Audience  string        `default:"ShoppingBasket" usage:"Expected token audience"`
	ClockSkew time.Duration `default:"5m" usage:"Tolerated clock skew for token lifetime checks" flag:"clock-skew"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads an optional .env file, then configuration from environment
// variables, YAML config files and flags, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(os.Args[1:], defaultConfigFiles)
}

func loadConfig(args, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BASKET",
		Files:     files,
		Args:      args,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth secret is required: set BASKET_AUTH_SECRET or JWT_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the BASKET_-prefixed settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Tables parses the configured pricing tables.
func (c PricingConfig) Tables() (pricing.Tables, error) {
	discounts, err := parsePairs(c.Discounts)
	if err != nil {
		return pricing.Tables{}, errors.Wrap(err, "discounts")
	}
	shipping, err := parsePairs(c.Shipping)
	if err != nil {
		return pricing.Tables{}, errors.Wrap(err, "shipping")
	}
	return pricing.ParseTables(discounts, shipping, c.VAT)
}

func parsePairs(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, errors.Errorf("entry %q: expected KEY=VALUE", entry)
		}
		key = strings.TrimSpace(key)
		if _, dup := out[key]; dup {
			return nil, errors.Errorf("duplicate key %q", key)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
