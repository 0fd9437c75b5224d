package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Params are the contract-wide inputs of the accrual formula.
type Params struct {
	Schedule Schedule
	// StartTime anchors the tier windows. No reward accrues before it.
	StartTime uint64
	// EndTime stops accrual when HasEndTime is set.
	EndTime    uint64
	HasEndTime bool
}

// Accrue returns the reward earned by principal over [from, to] under params.
// The interval is clamped to [StartTime, EndTime]; an empty or inverted
// interval yields zero. Every contribution is summed in a wide accumulator
// and divided once by SecondsPerYear * 1e18. A result wider than 256 bits
// saturates at 2^256-1; payouts are bounded by the reward budget regardless.
func Accrue(principal *uint256.Int, from, to uint64, params Params) (*uint256.Int, error) {
	if principal == nil || principal.IsZero() {
		return zero(), nil
	}
	start, end := accrualWindow(from, to, params)
	if end <= start {
		return zero(), nil
	}

	p := principal.ToBig()
	acc := new(big.Int)
	switch params.Schedule.Kind {
	case ScheduleTiered:
		accrueTiered(acc, p, start, end, params)
	default:
		addContribution(acc, p, params.Schedule.Rate, end-start)
	}

	acc.Quo(acc, accrualBase)
	reward, overflow := uint256.FromBig(acc)
	if overflow {
		return new(uint256.Int).SetAllOne(), nil
	}
	return reward, nil
}

func accrualWindow(from, to uint64, params Params) (uint64, uint64) {
	start, end := from, to
	if start < params.StartTime {
		start = params.StartTime
	}
	if params.HasEndTime && params.EndTime < end {
		end = params.EndTime
	}
	return start, end
}

// accrueTiered walks the half-open tier windows [windowStart, windowEnd)
// laid out from StartTime and adds the tail beyond the last window.
func accrueTiered(acc, principal *big.Int, start, end uint64, params Params) {
	cursor := params.StartTime
	for _, tier := range params.Schedule.Tiers {
		if cursor >= end {
			return
		}
		windowEnd := addSeconds(cursor, tier.Length)
		lo := max(cursor, start)
		hi := min(windowEnd, end)
		if hi > lo {
			addContribution(acc, principal, tier.Rate, hi-lo)
		}
		cursor = windowEnd
	}
	tailStart := max(cursor, start)
	if end > tailStart {
		addContribution(acc, principal, params.Schedule.TailRate, end-tailStart)
	}
}

func addContribution(acc, principal *big.Int, rate *uint256.Int, seconds uint64) {
	if rate == nil || rate.IsZero() || seconds == 0 {
		return
	}
	term := new(big.Int).Mul(principal, rate.ToBig())
	term.Mul(term, new(big.Int).SetUint64(seconds))
	acc.Add(acc, term)
}
