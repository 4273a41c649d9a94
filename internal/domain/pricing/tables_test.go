package pricing

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	discounts    map[string]decimal.Decimal
	shipping     map[string]decimal.Decimal
	discountsErr error
	shippingErr  error
}

func (m *mockRepo) DiscountRates(_ context.Context) (map[string]decimal.Decimal, error) {
	return m.discounts, m.discountsErr
}

func (m *mockRepo) ShippingRates(_ context.Context) (map[string]decimal.Decimal, error) {
	return m.shipping, m.shippingErr
}

func TestParseTables(t *testing.T) {
	tables, err := ParseTables(
		map[string]string{"SUMMER10": "0.10", "HALF": " 0.5 "},
		map[string]string{"UK": "5", "Other": "15.50"},
		"0.20",
	)
	require.NoError(t, err)

	assert.True(t, dec("0.10").Equal(tables.Discounts["SUMMER10"]))
	assert.True(t, dec("0.5").Equal(tables.Discounts["HALF"]))
	assert.True(t, dec("15.50").Equal(tables.Shipping["Other"]))
	assert.True(t, dec("0.20").Equal(tables.VAT))
}

func TestParseTables_Errors(t *testing.T) {
	tests := []struct {
		name      string
		discounts map[string]string
		shipping  map[string]string
		vat       string
		wantErr   string
	}{
		{
			name:      "unparsable discount",
			discounts: map[string]string{"X": "ten"},
			wantErr:   `parse discount "X"`,
		},
		{
			name:     "unparsable shipping",
			shipping: map[string]string{"UK": "five"},
			wantErr:  `parse shipping cost "UK"`,
		},
		{
			name:    "unparsable vat",
			vat:     "20%",
			wantErr: "parse vat",
		},
		{
			name:      "zero discount",
			discounts: map[string]string{"ZERO": "0"},
			wantErr:   "must be in (0, 1]",
		},
		{
			name:      "discount above one",
			discounts: map[string]string{"BIG": "1.5"},
			wantErr:   "must be in (0, 1]",
		},
		{
			name:     "negative shipping",
			shipping: map[string]string{"UK": "-1"},
			wantErr:  "must not be negative",
		},
		{
			name:    "negative vat",
			vat:     "-0.1",
			wantErr: "vat -0.1 must not be negative",
		},
		{
			name:     "blank region",
			shipping: map[string]string{" ": "1"},
			wantErr:  "shipping region must not be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTables(tt.discounts, tt.shipping, tt.vat)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTables_EmptyVATIsZero(t *testing.T) {
	tables, err := ParseTables(nil, nil, "")
	require.NoError(t, err)
	assert.True(t, tables.VAT.IsZero())
	assert.Empty(t, tables.Discounts)
}

func TestLoadTables(t *testing.T) {
	repo := &mockRepo{
		discounts: map[string]decimal.Decimal{"SUMMER10": dec("0.1")},
		shipping:  map[string]decimal.Decimal{"UK": dec("5")},
	}

	tables, err := LoadTables(context.Background(), repo, dec("0.2"))
	require.NoError(t, err)
	assert.Len(t, tables.Discounts, 1)
	assert.Len(t, tables.Shipping, 1)
	assert.True(t, dec("0.2").Equal(tables.VAT))
}

func TestLoadTables_Errors(t *testing.T) {
	t.Run("discount query fails", func(t *testing.T) {
		_, err := LoadTables(context.Background(), &mockRepo{discountsErr: errors.New("boom")}, decimal.Zero)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load discount rates")
	})

	t.Run("shipping query fails", func(t *testing.T) {
		_, err := LoadTables(context.Background(), &mockRepo{shippingErr: errors.New("boom")}, decimal.Zero)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load shipping rates")
	})

	t.Run("invalid stored rate", func(t *testing.T) {
		repo := &mockRepo{discounts: map[string]decimal.Decimal{"BAD": dec("2")}}
		_, err := LoadTables(context.Background(), repo, decimal.Zero)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `discount "BAD"`)
	})
}
