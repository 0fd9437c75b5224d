package vault

import (
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// SecondsPerYear is the annualisation base for every rate (365 days).
const SecondsPerYear = 31_536_000

// ScaleDecimals is the number of fixed-point decimals carried by rates.
const ScaleDecimals = 18

var (
	scaleBig    = new(big.Int).Exp(big.NewInt(10), big.NewInt(ScaleDecimals), nil)
	yearBig     = big.NewInt(SecondsPerYear)
	accrualBase = new(big.Int).Mul(scaleBig, yearBig)
)

// Scale returns 1.0 in rate fixed point.
func Scale() *uint256.Int {
	v, _ := uint256.FromBig(scaleBig)
	return v
}

// ParseRate converts a decimal fraction such as "0.08" into fixed point.
// Digits beyond the 18th decimal are rounded half up.
func ParseRate(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errInvalidRate
	}
	r, ok := new(big.Rat).SetString(trimmed)
	if !ok || r.Sign() < 0 {
		return nil, errInvalidRate
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scaleBig))
	num := scaled.Num()
	den := scaled.Denom()
	half := new(big.Int).Rsh(den, 1)
	result := new(big.Int).Quo(new(big.Int).Add(num, half), den)
	out, overflow := uint256.FromBig(result)
	if overflow {
		return nil, errInvalidRate
	}
	return out, nil
}

// RateFromBps converts basis points into fixed point.
func RateFromBps(bps uint64) *uint256.Int {
	rate := new(uint256.Int).Mul(uint256.NewInt(bps), Scale())
	return rate.Div(rate, uint256.NewInt(10_000))
}

// FormatRate renders a fixed-point rate as a trimmed decimal string.
func FormatRate(rate *uint256.Int) string {
	if rate == nil || rate.IsZero() {
		return "0"
	}
	r := new(big.Rat).SetFrac(rate.ToBig(), scaleBig)
	text := strings.TrimRight(r.FloatString(ScaleDecimals), "0")
	return strings.TrimSuffix(text, ".")
}

func zero() *uint256.Int { return new(uint256.Int) }

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return v
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return new(uint256.Int).Set(v)
}

// subFloor returns max(a-b, 0).
// addSaturating returns a+b, clamped at 2^256-1.
func addSaturating(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(amountOrZero(a), amountOrZero(b))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

func subFloor(a, b *uint256.Int) *uint256.Int {
	a, b = amountOrZero(a), amountOrZero(b)
	if a.Cmp(b) <= 0 {
		return zero()
	}
	return new(uint256.Int).Sub(a, b)
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	a, b = amountOrZero(a), amountOrZero(b)
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

func addSeconds(ts, d uint64) uint64 {
	if ts > math.MaxUint64-d {
		return math.MaxUint64
	}
	return ts + d
}
