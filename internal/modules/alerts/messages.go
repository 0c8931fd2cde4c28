package alerts

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// formatMoney renders amount in currency, e.g. "$51,000.00".
// Unknown currencies fall back to "51000.00 XYZ".
func formatMoney(amount float64, currency string) string {
	return formatMoneyDecimal(decimal.NewFromFloat(amount), currency)
}

func formatMoneyDecimal(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func floatPtr(v float64) *float64 {
	return &v
}
