// Package money centralizes the fixed-point conventions used for every
// monetary amount in the system (spec §9 Numerics): decimal.Decimal
// instead of native floating point, rounded to the asset's declared
// decimal scale only at the boundary where a value leaves the system.
package money

import "github.com/shopspring/decimal"

// Zero is the canonical zero-value amount.
var Zero = decimal.Zero

// Amount is an alias kept for readability at call sites; it is the same
// type as decimal.Decimal so it interoperates with the decimal package
// without conversion.
type Amount = decimal.Decimal

// FromFloat builds an Amount from a float64, used only at the boundary
// where external adapters (price feeds, RPC responses) hand us native
// floats; never used for accumulation inside the core.
func FromFloat(f float64) Amount {
	return decimal.NewFromFloat(f)
}

// RoundDown rounds amt to the given number of decimals, truncating rather
// than rounding up, which is the conservative choice for balances and fees.
func RoundDown(amt Amount, decimals int32) Amount {
	return amt.Truncate(decimals)
}

// PctDiff returns |a-b| / min(a,b) as a float64 in [0, +inf), matching the
// ArbitrageDetector's pct_diff definition (spec §4.6). Returns 0 if either
// side is zero or negative to avoid dividing by zero.
func PctDiff(a, b Amount) float64 {
	if a.Sign() <= 0 || b.Sign() <= 0 {
		return 0
	}
	diff := a.Sub(b).Abs()
	min := a
	if b.LessThan(a) {
		min = b
	}
	if min.Sign() == 0 {
		return 0
	}
	f, _ := diff.Div(min).Float64()
	return f
}

// WithinTolerance reports whether a and b differ by no more than tolerance
// as a fraction of the larger magnitude — used for the 0.1% conservation
// checks in spec §3/§8.
func WithinTolerance(a, b Amount, tolerance float64) bool {
	diff := a.Sub(b).Abs()
	base := a.Abs()
	if b.Abs().GreaterThan(base) {
		base = b.Abs()
	}
	if base.Sign() == 0 {
		return diff.Sign() == 0
	}
	ratio, _ := diff.Div(base).Float64()
	return ratio <= tolerance
}
