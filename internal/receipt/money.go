package receipt

import "github.com/shopspring/decimal"

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
