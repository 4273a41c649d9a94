// Command seed-db loads development pricing tables from a JSON file and
// prints a bearer token for a local user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopping-basket/internal/domain/pricing"
	"github.com/xenking/shopping-basket/internal/handler"
	"github.com/xenking/shopping-basket/internal/repository"
)

type options struct {
	databaseURL string
	pricingFile string
	username    string
	authSecret  string
	issuer      string
	audience    string
	tokenTTL    time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pricingFile, "pricing-file", "db/seed/pricing.json", "path to pricing tables JSON file")
	flag.StringVar(&opts.username, "username", "", "issue a bearer token for this user")
	flag.StringVar(&opts.authSecret, "auth-secret", "", "token signing secret (or BASKET_AUTH_SECRET / JWT_SECRET env)")
	flag.StringVar(&opts.issuer, "issuer", "ShoppingBasket", "token issuer")
	flag.StringVar(&opts.audience, "audience", "ShoppingBasket", "token audience")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.authSecret == "" {
		opts.authSecret = firstEnv("BASKET_AUTH_SECRET", "JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	if opts.databaseURL == "" && opts.username == "" {
		return errors.New("nothing to do: set --database-url and/or --username")
	}

	if opts.databaseURL != "" {
		if err := seedPricing(ctx, opts.databaseURL, opts.pricingFile); err != nil {
			return err
		}
	}

	if opts.username != "" {
		auth, err := handler.NewAuthenticator(handler.AuthConfig{
			Secret:   []byte(opts.authSecret),
			Issuer:   opts.issuer,
			Audience: opts.audience,
		})
		if err != nil {
			return errors.Wrap(err, "create authenticator")
		}
		token, err := auth.Issue(opts.username, opts.tokenTTL)
		if err != nil {
			return errors.Wrap(err, "issue token")
		}
		slog.Info("token issued", slog.String("username", opts.username), slog.Duration("ttl", opts.tokenTTL))
		fmt.Println(token)
	}

	return nil
}

func seedPricing(ctx context.Context, databaseURL, pricingFile string) error {
	tables, err := readPricingFile(pricingFile)
	if err != nil {
		return errors.Wrap(err, "read pricing file")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := repository.NewPricingRepository(pool).Replace(ctx, tables.Discounts, tables.Shipping); err != nil {
		return errors.Wrap(err, "write pricing tables")
	}

	slog.Info("seeded pricing tables",
		slog.Int("discount_codes", len(tables.Discounts)),
		slog.Int("shipping_regions", len(tables.Shipping)),
	)
	return nil
}

// readPricingFile decodes {"discounts":{CODE:rate},"shipping":{REGION:cost}}.
// Rates may be JSON numbers or numeric strings.
func readPricingFile(path string) (pricing.Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pricing.Tables{}, errors.Wrapf(err, "read %s", path)
	}

	discounts := map[string]string{}
	shipping := map[string]string{}
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "discounts":
			return decodeRates(d, discounts)
		case "shipping":
			return decodeRates(d, shipping)
		default:
			return d.Skip()
		}
	}); err != nil {
		return pricing.Tables{}, errors.Wrapf(err, "decode %s", path)
	}

	return pricing.ParseTables(discounts, shipping, "")
}

func decodeRates(d *jx.Decoder, into map[string]string) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch d.Next() {
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			into[key] = string(n)
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			into[key] = s
		default:
			return errors.Errorf("%s: expected a number", key)
		}
		return nil
	})
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
