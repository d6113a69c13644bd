package service

import (
	"errors"
	"testing"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineSubtotalExactArithmetic(t *testing.T) {
	calc := NewFinancialCalculator()

	// 0.1 * 3 is inexact in binary floating point; it must be exact here.
	got := calc.LineSubtotal(dec(t, "3"), dec(t, "0.1"))
	assert.True(t, got.Equal(dec(t, "0.3")), "got %s", got)

	got = calc.LineSubtotal(dec(t, "2.5"), dec(t, "19.99"))
	assert.True(t, got.Equal(dec(t, "49.975")), "got %s", got)
}

func TestDocumentTotalsFormula(t *testing.T) {
	calc := NewFinancialCalculator()

	items := []model.LineItem{
		{Quantity: dec(t, "4"), UnitPrice: dec(t, "200")},
		{Quantity: dec(t, "1"), UnitPrice: dec(t, "200")},
	}
	totals := calc.DocumentTotals(items, dec(t, "100"), dec(t, "100"),
		dec(t, "90"), dec(t, "90"), decimal.Zero)

	assert.Equal(t, "1000.00", calc.Format(totals.Subtotal))
	assert.Equal(t, "1180.00", calc.Format(totals.Total))
}

func TestDocumentTotalsIgnoresStoredItemSubtotals(t *testing.T) {
	calc := NewFinancialCalculator()

	// A stale or tampered Subtotal on the item must not leak into totals.
	items := []model.LineItem{
		{Quantity: dec(t, "2"), UnitPrice: dec(t, "50"), Subtotal: dec(t, "9999")},
	}
	totals := calc.DocumentTotals(items, decimal.Zero, decimal.Zero,
		decimal.Zero, decimal.Zero, decimal.Zero)

	assert.Equal(t, "100.00", calc.Format(totals.Total))
}

func TestDivideByZero(t *testing.T) {
	calc := NewFinancialCalculator()

	_, err := calc.Divide(dec(t, "100"), decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	got, err := calc.Divide(dec(t, "100"), dec(t, "8"))
	require.NoError(t, err)
	assert.Equal(t, "12.50", calc.Format(got))
}

func TestFormatRoundsHalfUp(t *testing.T) {
	calc := NewFinancialCalculator()

	assert.Equal(t, "2.35", calc.Format(dec(t, "2.345")))
	assert.Equal(t, "2.34", calc.Format(dec(t, "2.344")))
	assert.Equal(t, "10.00", calc.Format(dec(t, "10")))
}

func TestCoversBalance(t *testing.T) {
	calc := NewFinancialCalculator()

	assert.True(t, calc.CoversBalance(dec(t, "100.00"), dec(t, "100.00")))
	assert.True(t, calc.CoversBalance(dec(t, "100.01"), dec(t, "100.00")))
	assert.False(t, calc.CoversBalance(dec(t, "99.99"), dec(t, "100.00")))
}
