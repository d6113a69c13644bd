package service

import (
	"backend/internal/model"

	"github.com/shopspring/decimal"
)

// FinancialCalculator derives line and document totals with exact decimal
// arithmetic. Monetary values never pass through binary floating point;
// storage serialization is fixed two-decimal with round-half-up applied as
// the final step only.
type FinancialCalculator struct{}

func NewFinancialCalculator() *FinancialCalculator {
	return &FinancialCalculator{}
}

// Totals is the fully re-derived monetary state of a document.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	CGST     decimal.Decimal
	SGST     decimal.Decimal
	IGST     decimal.Decimal
	Total    decimal.Decimal
}

// LineSubtotal computes quantity * unitPrice.
func (c *FinancialCalculator) LineSubtotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// DocumentTotals re-derives subtotal and total from the line items present
// in this operation. Caller-submitted aggregates are never trusted: a stale
// client cannot under- or over-state a document through this path.
//
//	total = subtotal - discount + shipping + cgst + sgst + igst
func (c *FinancialCalculator) DocumentTotals(items []model.LineItem, discount, shipping, cgst, sgst, igst decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(c.LineSubtotal(items[i].Quantity, items[i].UnitPrice))
	}

	total := subtotal.Sub(discount).Add(shipping).Add(cgst).Add(sgst).Add(igst)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		CGST:     cgst,
		SGST:     sgst,
		IGST:     igst,
		Total:    total,
	}
}

// Divide fails explicitly on a zero divisor instead of producing an
// infinite or NaN-like result (used for ratios such as average deal size).
func (c *FinancialCalculator) Divide(dividend, divisor decimal.Decimal) (decimal.Decimal, error) {
	if divisor.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return dividend.Div(divisor), nil
}

// Format serializes a monetary value at fixed two-decimal scale. StringFixed
// rounds half away from zero, which is round-half-up for non-negative money.
func (c *FinancialCalculator) Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// CoversBalance reports whether a payment amount meets or exceeds the
// outstanding balance, using exact decimal comparison.
func (c *FinancialCalculator) CoversBalance(payment, balance decimal.Decimal) bool {
	return payment.Cmp(balance) >= 0
}
