package vault

import "github.com/holiman/uint256"

// RemainingBudget returns max(TotalRewardBudget - TotalRewardClaimed, 0).
func (v *Vault) RemainingBudget() *uint256.Int {
	return subFloor(v.TotalRewardBudget, v.TotalRewardClaimed)
}

// Ration caps requested against the remaining budget and records the payable
// amount as claimed. TotalRewardClaimed grows by exactly the returned value
// and never passes TotalRewardBudget, however large requested is.
func (v *Vault) Ration(requested *uint256.Int) *uint256.Int {
	v.ensureDefaults()
	payable := minAmount(requested, v.RemainingBudget())
	if payable.IsZero() {
		return payable
	}
	// payable <= budget - claimed, so the sum stays <= budget.
	v.TotalRewardClaimed = new(uint256.Int).Add(v.TotalRewardClaimed, payable)
	return payable
}
