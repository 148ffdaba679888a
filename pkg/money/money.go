// Package money holds the fixed-scale decimal conventions used for every
// monetary amount in the system. Amounts are stored with two fractional
// digits; intermediate percentage math keeps four digits and rounds half-up
// only when an amount is persisted or presented.
package money

import "github.com/shopspring/decimal"

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// MustParse parses a decimal string such as "12.50" and panics on bad input.
// Intended for constants and test fixtures.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Round normalizes an amount to the two-digit storage scale, half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent computes pct% of base at four internal digits, then rounds
// half-up to the storage scale.
func Percent(base decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	raw := base.Mul(pct).Div(decimal.NewFromInt(100)).Round(4)
	return raw.Round(2)
}

// Clamp limits d to the inclusive range [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Split partitions total into n parts that sum exactly to total. The
// remainder cents are distributed to the first parts, so the first splits
// may be one cent larger than the last.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	cents := total.Shift(2).IntPart()
	base := cents / int64(n)
	rem := cents % int64(n)

	parts := make([]decimal.Decimal, n)
	for i := range parts {
		c := base
		if int64(i) < rem {
			c++
		}
		parts[i] = FromCents(c)
	}
	return parts
}
