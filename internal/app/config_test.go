package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearPlatformEnv blanks the unprefixed variables applyPlatformDefaults reads.
func clearPlatformEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"JWT_SECRET", "DATABASE_URL", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("BASKET_AUTH_SECRET", "s3cret")

	cfg, err := loadConfig([]string{}, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "0.20", cfg.Pricing.VAT)
	assert.Equal(t, "ShoppingBasket", cfg.Auth.Issuer)
	assert.Equal(t, "ShoppingBasket", cfg.Auth.Audience)
	assert.Equal(t, 5*time.Minute, cfg.Auth.ClockSkew)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	clearPlatformEnv(t)

	_, err := loadConfig([]string{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth secret is required")
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "platform-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/basket")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig([]string{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "platform-secret", cfg.Auth.Secret)
	assert.Equal(t, "postgres://localhost/basket", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_PrefixedEnvWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "platform-secret")
	t.Setenv("BASKET_AUTH_SECRET", "own-secret")
	t.Setenv("BASKET_ADDR", "127.0.0.1:7000")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig([]string{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "own-secret", cfg.Auth.Secret)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	clearPlatformEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:8181
pricing:
  vat: "0.25"
  discounts:
    - SUMMER10=0.10
    - WELCOME5=0.05
  shipping:
    - UK=5
    - US=12.50
auth:
  secret: from-file
`), 0o600))

	cfg, err := loadConfig([]string{}, []string{path})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8181", cfg.Addr)
	assert.Equal(t, "from-file", cfg.Auth.Secret)

	tables, err := cfg.Pricing.Tables()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.25").Equal(tables.VAT))
	assert.Len(t, tables.Discounts, 2)
	assert.True(t, decimal.RequireFromString("0.05").Equal(tables.Discounts["WELCOME5"]))
	assert.True(t, decimal.RequireFromString("12.5").Equal(tables.Shipping["US"]))
}

func TestPricingConfig_Tables(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PricingConfig
		wantErr string
	}{
		{
			name: "valid with padding",
			cfg:  PricingConfig{VAT: "0.2", Discounts: []string{" SUMMER10 = 0.10 ", ""}, Shipping: []string{"UK=5"}},
		},
		{
			name: "empty tables",
			cfg:  PricingConfig{VAT: "0"},
		},
		{
			name:    "missing separator",
			cfg:     PricingConfig{Discounts: []string{"SUMMER10"}},
			wantErr: "expected KEY=VALUE",
		},
		{
			name:    "duplicate key",
			cfg:     PricingConfig{Shipping: []string{"UK=5", "UK=6"}},
			wantErr: "duplicate key",
		},
		{
			name:    "out of range discount",
			cfg:     PricingConfig{Discounts: []string{"BIG=1.5"}},
			wantErr: "must be in (0, 1]",
		},
		{
			name:    "bad vat",
			cfg:     PricingConfig{VAT: "twenty"},
			wantErr: "parse vat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables, err := tt.cfg.Tables()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for code := range tables.Discounts {
				assert.Equal(t, "SUMMER10", code)
			}
		})
	}
}
