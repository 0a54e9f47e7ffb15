package cmd

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// usd formats a cash amount in dollars, rounded to cents.
func usd(amount decimal.Decimal) string {
	cur := *money.New(0, money.USD).Currency()
	return cur.Formatter().Format(amount.Shift(int32(cur.Fraction)).Round(0).IntPart())
}

func usdFloat(amount float64) string {
	return usd(decimal.NewFromFloat(amount))
}

// usdPrice formats a unit price. Prices under a dollar keep 8 decimals.
func usdPrice(price decimal.Decimal) string {
	if price.IsPositive() && price.LessThan(one) {
		return money.New(0, money.USD).Currency().Grapheme + price.StringFixed(8)
	}
	return usd(price)
}

// pct formats a percentage with a sign.
func pct(p decimal.Decimal) string {
	s := p.StringFixed(2) + "%"
	if p.IsPositive() {
		return "+" + s
	}
	return s
}
