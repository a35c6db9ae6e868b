package escrow

import (
	"math/big"
	"strings"
)

// formatScaled renders an integer token amount as a decimal string with
// exactly `decimals` fractional digits. 500000000 at 7 decimals renders as
// "50.0000000".
func formatScaled(v *big.Int, decimals uint32) string {
	if v == nil {
		return NotAvailable
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if decimals == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}
	cut := len(digits) - int(decimals)
	out := digits[:cut] + "." + digits[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// roundScaled scales an integer token amount by `decimals` and rounds
// half-up to `places` fractional digits. Display rounding only; the raw
// stored precision is never mutated.
func roundScaled(v *big.Int, decimals uint32, places int) string {
	if v == nil {
		return NotAvailable
	}
	if places < 0 {
		places = 0
	}
	if places >= int(decimals) {
		out := formatScaled(v, decimals)
		if places == int(decimals) {
			return out
		}
		if decimals == 0 {
			return out + "." + strings.Repeat("0", places)
		}
		return out + strings.Repeat("0", places-int(decimals))
	}
	drop := int(decimals) - places
	div := pow10(drop)
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), div, new(big.Int))
	half := new(big.Int).Mul(r, big.NewInt(2))
	if half.Cmp(div) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if v.Sign() < 0 {
		q.Neg(q)
	}
	return formatScaled(q, uint32(places))
}

// scaledUnits reduces an integer token amount from `decimals` precision to
// `places` precision, rounding half-up, and returns the result in whole units
// of the coarser precision. Used for balance mismatch comparison.
func scaledUnits(v *big.Int, decimals uint32, places int) *big.Int {
	if v == nil {
		return nil
	}
	if places >= int(decimals) {
		shift := pow10(places - int(decimals))
		return new(big.Int).Mul(v, shift)
	}
	drop := int(decimals) - places
	div := pow10(drop)
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), div, new(big.Int))
	half := new(big.Int).Mul(r, big.NewInt(2))
	if half.Cmp(div) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if v.Sign() < 0 {
		q.Neg(q)
	}
	return q
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
