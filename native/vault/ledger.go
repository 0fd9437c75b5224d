package vault

import "github.com/holiman/uint256"

// Checkpoint settles the reward pending since acc.LastUpdateTime into
// acc.AccruedReward and advances LastUpdateTime to now. Calling it twice at
// the same now adds nothing the second time. A now earlier than the last
// checkpoint accrues nothing and leaves LastUpdateTime where it was, so a
// jittering clock cannot replay an interval. The banked reward saturates
// rather than overflowing, so principal always remains withdrawable.
func Checkpoint(acc *Account, now uint64, params Params) error {
	acc.ensureDefaults()
	earned, err := Accrue(acc.Principal, acc.LastUpdateTime, now, params)
	if err != nil {
		return err
	}
	acc.AccruedReward = addSaturating(acc.AccruedReward, earned)
	if now > acc.LastUpdateTime {
		acc.LastUpdateTime = now
	}
	return nil
}

// Earned projects the reward of acc at now without mutating it. It equals
// AccruedReward after Checkpoint(acc, now, params).
func Earned(acc *Account, now uint64, params Params) (*uint256.Int, error) {
	if acc == nil {
		return zero(), nil
	}
	projected := acc.Clone().ensureDefaults()
	if err := Checkpoint(projected, now, params); err != nil {
		return nil, err
	}
	return projected.AccruedReward, nil
}
