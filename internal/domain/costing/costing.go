// Package costing holds the pure money arithmetic used by the orchestrators:
// weighted-average unit cost for receipts and tax-inclusive line amounts for
// POS orders.
package costing

import (
	"github.com/shopspring/decimal"

	"stockflow/internal/core/types"
)

var (
	one     = decimal.NewFromInt(1)
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// Round2 rounds half-up (toward positive infinity on ties) to 2 decimals.
func Round2(d types.Money) types.Money {
	return d.Shift(2).Add(half).Floor().Shift(-2)
}

// CostBasis is the input and output of one weighted-average computation.
type CostBasis struct {
	CurrentQty   types.Quantity `json:"currentQty"`
	CurrentCost  types.Money    `json:"currentCost"`
	IncomingQty  types.Quantity `json:"incomingQty"`
	IncomingCost types.Money    `json:"incomingCost"`
	NewQty       types.Quantity `json:"newQty"`
	NewCost      types.Money    `json:"newCost"`
}

// WeightedAverage blends the current stock cost with an incoming receipt.
// A negative current quantity is treated as zero, so an oversold product
// takes the incoming cost instead of a distorted blend.
func WeightedAverage(currentQty types.Quantity, currentCost types.Money, incomingQty types.Quantity, incomingCost types.Money) CostBasis {
	if currentQty.IsNegative() {
		currentQty = 0
	}

	newQty := currentQty.Add(incomingQty)
	newCost := incomingCost
	if newQty.IsPositive() {
		total := currentQty.Decimal().Mul(currentCost).
			Add(incomingQty.Decimal().Mul(incomingCost))
		newCost = total.Div(newQty.Decimal())
	}

	return CostBasis{
		CurrentQty:   currentQty,
		CurrentCost:  currentCost,
		IncomingQty:  incomingQty,
		IncomingCost: incomingCost,
		NewQty:       newQty,
		NewCost:      newCost,
	}
}

// UsageSale marks a tax applicable to sales.
const UsageSale = "sale"

// Tax is the subset of a tax definition the engine needs.
type Tax struct {
	ID int64
	// Amount is the percentage as configured in the ERP (19 means 19%).
	Amount        decimal.Decimal
	PriceIncluded bool
	// Usage is the ERP's type_tax_use; empty is treated as sale.
	Usage string
}

// Rate returns Amount as a fraction.
func (t Tax) Rate() decimal.Decimal {
	return t.Amount.Div(hundred)
}

func (t Tax) appliesToSales() bool {
	return t.Usage == "" || t.Usage == UsageSale
}

// LineAmounts is the result of ApplyTaxes. Tax is the unrounded line tax;
// order totals round it once at the end.
type LineAmounts struct {
	Subtotal     types.Money `json:"subtotal"`
	SubtotalIncl types.Money `json:"subtotalIncl"`
	Tax          types.Money `json:"tax"`
}

// ApplyTaxes computes line amounts for qty units at unitPrice.
//
// Taxes are applied in the given order. A price-included tax is extracted
// from the running base, and later taxes see the reduced base. A
// price-excluded tax is added on top of the current base. Rounding happens
// once, after all taxes.
func ApplyTaxes(unitPrice types.Money, qty types.Quantity, taxes []Tax) LineAmounts {
	base := unitPrice.Mul(qty.Decimal())
	lineTax := decimal.Zero

	for _, tax := range taxes {
		if !tax.appliesToSales() {
			continue
		}
		rate := tax.Rate()
		if tax.PriceIncluded {
			reduced := base.Div(one.Add(rate))
			lineTax = lineTax.Add(base.Sub(reduced))
			base = reduced
			continue
		}
		lineTax = lineTax.Add(base.Mul(rate))
	}

	return LineAmounts{
		Subtotal:     Round2(base),
		SubtotalIncl: Round2(base.Add(lineTax)),
		Tax:          lineTax,
	}
}

// Totals are order-level amounts.
type Totals struct {
	AmountTax   types.Money `json:"amountTax"`
	AmountTotal types.Money `json:"amountTotal"`
}

// OrderTotals sums line amounts. Tax is rounded once over the raw line
// taxes; the total is the sum of the already rounded inclusive subtotals.
func OrderTotals(lines []LineAmounts) Totals {
	tax := decimal.Zero
	total := decimal.Zero
	for _, l := range lines {
		tax = tax.Add(l.Tax)
		total = total.Add(l.SubtotalIncl)
	}
	return Totals{AmountTax: Round2(tax), AmountTotal: total}
}

// Settlement describes how payments cover an order total.
type Settlement struct {
	AmountPaid   types.Money `json:"amountPaid"`
	Remaining    types.Money `json:"remaining"`
	AmountReturn types.Money `json:"amountReturn"`
}

// SettlePayments sums the positive payments against total.
func SettlePayments(total types.Money, payments []types.Money) Settlement {
	paid := decimal.Zero
	for _, p := range payments {
		if p.IsPositive() {
			paid = paid.Add(p)
		}
	}
	return Settlement{
		AmountPaid:   paid,
		Remaining:    decimal.Max(decimal.Zero, total.Sub(paid)),
		AmountReturn: decimal.Max(decimal.Zero, paid.Sub(total)),
	}
}
