package vault

import "github.com/holiman/uint256"

// Encumbered returns the balance owed to depositors: outstanding principal
// plus budgeted-but-unpaid reward. It saturates at 2^256-1.
func (v *Vault) Encumbered() *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(amountOrZero(v.TotalPrincipal), v.RemainingBudget())
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

// AvailableForAdminWithdraw returns max(tokenBalance - Encumbered(), 0).
func (v *Vault) AvailableForAdminWithdraw(tokenBalance *uint256.Int) *uint256.Int {
	return subFloor(tokenBalance, v.Encumbered())
}
