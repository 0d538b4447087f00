package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/types"
)

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func money(s string) types.Money { return types.MustMoney(s) }

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestWeightedAverage_ReceiptScenario(t *testing.T) {
	got := WeightedAverage(qty(100), money("10.00"), qty(50), money("13.00"))

	assert.Equal(t, qty(150), got.NewQty)
	assertMoney(t, "11", got.NewCost)
}

func TestWeightedAverage_EmptyStockTakesIncomingCost(t *testing.T) {
	got := WeightedAverage(0, money("99"), qty(5), money("7.25"))

	assert.Equal(t, qty(5), got.NewQty)
	assertMoney(t, "7.25", got.NewCost)
}

func TestWeightedAverage_NegativeStockIsClamped(t *testing.T) {
	for _, current := range []float64{-1, -0.5, -250} {
		got := WeightedAverage(qty(current), money("3"), qty(4), money("8"))
		want := WeightedAverage(0, money("3"), qty(4), money("8"))

		assert.Equal(t, want.NewQty, got.NewQty)
		assertMoney(t, want.NewCost.String(), got.NewCost)
	}
}

func TestWeightedAverage_StaysBetweenCosts(t *testing.T) {
	cases := []struct {
		currentQty, incomingQty float64
		currentCost, incoming   string
	}{
		{1, 1, "10", "20"},
		{3, 7, "20", "10"},
		{0.5, 1000, "1.11", "1.12"},
		{999, 1, "5", "5"},
	}
	for _, c := range cases {
		got := WeightedAverage(qty(c.currentQty), money(c.currentCost), qty(c.incomingQty), money(c.incoming))
		lo := decimal.Min(money(c.currentCost), money(c.incoming))
		hi := decimal.Max(money(c.currentCost), money(c.incoming))

		assert.True(t, got.NewCost.GreaterThanOrEqual(lo), "%v below %v", got.NewCost, lo)
		assert.True(t, got.NewCost.LessThanOrEqual(hi), "%v above %v", got.NewCost, hi)
		assert.Equal(t, qty(c.currentQty+c.incomingQty), got.NewQty)
	}
}

func TestApplyTaxes_NoTaxes(t *testing.T) {
	got := ApplyTaxes(money("3.335"), qty(3), nil)

	assertMoney(t, "10.01", got.Subtotal)
	assertMoney(t, "10.01", got.SubtotalIncl)
	assert.True(t, got.Tax.IsZero())
}

func TestApplyTaxes_PriceExcluded(t *testing.T) {
	got := ApplyTaxes(money("1000"), qty(2), []Tax{{ID: 1, Amount: money("19"), Usage: UsageSale}})

	assertMoney(t, "2000.00", got.Subtotal)
	assertMoney(t, "380.00", got.Tax)
	assertMoney(t, "2380.00", got.SubtotalIncl)
}

func TestApplyTaxes_PriceIncluded(t *testing.T) {
	got := ApplyTaxes(money("1190"), qty(1), []Tax{{Amount: money("19"), PriceIncluded: true}})

	assertMoney(t, "1000.00", got.Subtotal)
	assertMoney(t, "1190.00", got.SubtotalIncl)
	assertMoney(t, "190", Round2(got.Tax))

	odd := ApplyTaxes(money("10"), qty(1), []Tax{{Amount: money("19"), PriceIncluded: true}})
	assertMoney(t, "8.40", odd.Subtotal)
	assertMoney(t, "10.00", odd.SubtotalIncl)
}

func TestApplyTaxes_CascadesInGivenOrder(t *testing.T) {
	included := Tax{ID: 1, Amount: money("10"), PriceIncluded: true}
	excluded := Tax{ID: 2, Amount: money("10")}

	// 110 -> base 100 (10 included), then 10% of the reduced base.
	got := ApplyTaxes(money("110"), qty(1), []Tax{included, excluded})
	assertMoney(t, "100.00", got.Subtotal)
	assertMoney(t, "120.00", got.SubtotalIncl)

	// Reversed: 10% of 110 first, then 10 extracted from 110.
	got = ApplyTaxes(money("110"), qty(1), []Tax{excluded, included})
	assertMoney(t, "100.00", got.Subtotal)
	assertMoney(t, "121.00", got.SubtotalIncl)
}

func TestApplyTaxes_SkipsNonSaleTaxes(t *testing.T) {
	got := ApplyTaxes(money("50"), qty(2), []Tax{
		{Amount: money("19"), Usage: "purchase"},
		{Amount: money("5"), Usage: "none"},
	})
	assertMoney(t, "100", got.Subtotal)
	assertMoney(t, "100", got.SubtotalIncl)
}

func TestRound2_HalfUp(t *testing.T) {
	assertMoney(t, "1.01", Round2(money("1.005")))
	assertMoney(t, "1.00", Round2(money("1.004999")))
	assertMoney(t, "-1.00", Round2(money("-1.005")))
	assertMoney(t, "2.68", Round2(money("2.675")))
}

func TestOrderTotals_LineLevelRounding(t *testing.T) {
	tax := []Tax{{Amount: money("19")}}
	lines := []LineAmounts{
		ApplyTaxes(money("0.05"), qty(1), tax),
		ApplyTaxes(money("0.05"), qty(1), tax),
		ApplyTaxes(money("0.05"), qty(1), tax),
	}
	totals := OrderTotals(lines)

	// each line: 0.0595 -> 0.06; tax 0.0285 summed raw -> 0.03
	assertMoney(t, "0.18", totals.AmountTotal)
	assertMoney(t, "0.03", totals.AmountTax)
}

func TestSettlePayments(t *testing.T) {
	s := SettlePayments(money("5000"), []types.Money{money("3000"), money("1000")})
	assertMoney(t, "4000", s.AmountPaid)
	assertMoney(t, "1000", s.Remaining)
	assertMoney(t, "0", s.AmountReturn)

	s = SettlePayments(money("5000"), []types.Money{money("6000")})
	assertMoney(t, "6000", s.AmountPaid)
	assertMoney(t, "0", s.Remaining)
	assertMoney(t, "1000", s.AmountReturn)

	s = SettlePayments(money("100"), []types.Money{money("-50"), money("0"), money("40")})
	assertMoney(t, "40", s.AmountPaid)
	assertMoney(t, "60", s.Remaining)
}
