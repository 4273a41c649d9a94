package pricing

import (
	"context"
	"maps"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Tables holds the process-wide pricing configuration. It is read-only once
// handed to a Service.
type Tables struct {
	// Discounts maps a discount code to the fraction taken off (0 < p <= 1).
	// Lookups are case-sensitive.
	Discounts map[string]decimal.Decimal
	// Shipping maps a region identifier to a flat shipping cost.
	Shipping map[string]decimal.Decimal
	// VAT is the fraction added to the post-shipping subtotal.
	VAT decimal.Decimal
}

// Repository loads discount and shipping tables from external storage.
type Repository interface {
	DiscountRates(ctx context.Context) (map[string]decimal.Decimal, error)
	ShippingRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

var one = decimal.NewFromInt(1)

// ParseTables builds Tables from textual configuration values and validates
// the result.
func ParseTables(discounts, shipping map[string]string, vat string) (Tables, error) {
	t := Tables{
		Discounts: make(map[string]decimal.Decimal, len(discounts)),
		Shipping:  make(map[string]decimal.Decimal, len(shipping)),
	}
	for code, raw := range discounts {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return Tables{}, errors.Wrapf(err, "parse discount %q", code)
		}
		t.Discounts[code] = d
	}
	for region, raw := range shipping {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return Tables{}, errors.Wrapf(err, "parse shipping cost %q", region)
		}
		t.Shipping[region] = d
	}
	if strings.TrimSpace(vat) != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(vat))
		if err != nil {
			return Tables{}, errors.Wrap(err, "parse vat")
		}
		t.VAT = d
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// LoadTables reads discount and shipping tables from repo and combines them
// with the given VAT rate.
func LoadTables(ctx context.Context, repo Repository, vat decimal.Decimal) (Tables, error) {
	discounts, err := repo.DiscountRates(ctx)
	if err != nil {
		return Tables{}, errors.Wrap(err, "load discount rates")
	}
	shipping, err := repo.ShippingRates(ctx)
	if err != nil {
		return Tables{}, errors.Wrap(err, "load shipping rates")
	}
	t := Tables{Discounts: discounts, Shipping: shipping, VAT: vat}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks that every table entry is usable for pricing.
func (t Tables) Validate() error {
	for code, p := range t.Discounts {
		if strings.TrimSpace(code) == "" {
			return errors.New("discount code must not be blank")
		}
		if !p.IsPositive() || p.GreaterThan(one) {
			return errors.Errorf("discount %q: percentage %s must be in (0, 1]", code, p)
		}
	}
	for region, cost := range t.Shipping {
		if strings.TrimSpace(region) == "" {
			return errors.New("shipping region must not be blank")
		}
		if cost.IsNegative() {
			return errors.Errorf("shipping %q: cost %s must not be negative", region, cost)
		}
	}
	if t.VAT.IsNegative() {
		return errors.Errorf("vat %s must not be negative", t.VAT)
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate a Service's tables.
func (t Tables) clone() Tables {
	return Tables{
		Discounts: maps.Clone(orEmpty(t.Discounts)),
		Shipping:  maps.Clone(orEmpty(t.Shipping)),
		VAT:       t.VAT,
	}
}

func orEmpty(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	if m == nil {
		return map[string]decimal.Decimal{}
	}
	return m
}
