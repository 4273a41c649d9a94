package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopping-basket/internal/domain/pricing"
)

const (
	listDiscountRatesSQL = `SELECT code, percentage FROM discount_codes`
	listShippingRatesSQL = `SELECT region, cost FROM shipping_rates`
)

var _ pricing.Repository = (*PricingRepository)(nil)

// PricingRepository reads and replaces the discount and shipping tables.
type PricingRepository struct {
	pool *pgxpool.Pool
}

// NewPricingRepository returns a PricingRepository that uses the given pool.
func NewPricingRepository(pool *pgxpool.Pool) *PricingRepository {
	return &PricingRepository{pool: pool}
}

// DiscountRates returns every discount code with its percentage.
func (r *PricingRepository) DiscountRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rates, err := r.collectRates(ctx, listDiscountRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return rates, nil
}

// ShippingRates returns every shipping region with its flat cost.
func (r *PricingRepository) ShippingRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rates, err := r.collectRates(ctx, listShippingRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rates: %w", err)
	}
	return rates, nil
}

// Replace swaps the stored discount and shipping tables for the given ones
// in a single transaction. A nil map leaves that table untouched.
func (r *PricingRepository) Replace(ctx context.Context, discounts, shipping map[string]decimal.Decimal) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if discounts != nil {
			if err := replaceTable(ctx, tx, "discount_codes", []string{"code", "percentage"}, discounts); err != nil {
				return errors.Wrap(err, "replace discount codes")
			}
		}
		if shipping != nil {
			if err := replaceTable(ctx, tx, "shipping_rates", []string{"region", "cost"}, shipping); err != nil {
				return errors.Wrap(err, "replace shipping rates")
			}
		}
		return nil
	})
}

func (r *PricingRepository) collectRates(ctx context.Context, query string) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, scanRate)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal, len(list))
	for _, rt := range list {
		rates[rt.key] = rt.value
	}
	return rates, nil
}

type rate struct {
	key   string
	value decimal.Decimal
}

func scanRate(row pgx.CollectableRow) (rate, error) {
	var rt rate
	err := row.Scan(&rt.key, &rt.value)
	return rt, err
}

func replaceTable(ctx context.Context, tx pgx.Tx, table string, columns []string, values map[string]decimal.Decimal) error {
	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
		return errors.Wrap(err, "delete rows")
	}

	rows := make([][]any, 0, len(values))
	for k, v := range values {
		rows = append(rows, []any{k, v})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return errors.Wrap(err, "copy rows")
	}
	return nil
}
