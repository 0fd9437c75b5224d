package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is the per-depositor ledger entry. A fully settled account has
// every field at its zero value and is removed from state.
type Account struct {
	// Principal is the deposited amount not yet withdrawn.
	Principal *uint256.Int
	// AccruedReward is the reward banked as of LastUpdateTime.
	AccruedReward *uint256.Int
	// LastUpdateTime is the last checkpoint. It never moves backwards.
	LastUpdateTime uint64
	// FirstDepositTime is set by the first deposit into an empty account
	// and anchors the lock.
	FirstDepositTime uint64
}

// NewAccount returns an empty account.
func NewAccount() *Account {
	return &Account{Principal: zero(), AccruedReward: zero()}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Principal = cloneAmount(a.Principal)
	clone.AccruedReward = cloneAmount(a.AccruedReward)
	return &clone
}

// IsEmpty reports whether the account holds no principal.
func (a *Account) IsEmpty() bool {
	return a == nil || a.Principal == nil || a.Principal.IsZero()
}

func (a *Account) ensureDefaults() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.Principal == nil {
		a.Principal = zero()
	}
	if a.AccruedReward == nil {
		a.AccruedReward = zero()
	}
	return a
}

// Vault is the contract-wide state.
type Vault struct {
	TotalPrincipal     *uint256.Int
	TotalRewardBudget  *uint256.Int
	TotalRewardClaimed *uint256.Int
	DepositsPaused     bool
	RewardEndTime      uint64
	HasRewardEndTime   bool
	RewardStartTime    uint64
	LockDuration       uint64
	Schedule           Schedule
}

// Clone returns a deep copy of the vault state.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.TotalPrincipal = cloneAmount(v.TotalPrincipal)
	clone.TotalRewardBudget = cloneAmount(v.TotalRewardBudget)
	clone.TotalRewardClaimed = cloneAmount(v.TotalRewardClaimed)
	clone.Schedule = v.Schedule.Clone()
	return &clone
}

// Params returns the accrual parameters derived from the vault state.
func (v *Vault) Params() Params {
	return Params{
		Schedule:   v.Schedule,
		StartTime:  v.RewardStartTime,
		EndTime:    v.RewardEndTime,
		HasEndTime: v.HasRewardEndTime,
	}
}

// UnlockTime returns the earliest time a withdrawal by acc pays reward, or
// zero for an account without principal.
func (v *Vault) UnlockTime(acc *Account) uint64 {
	if acc.IsEmpty() || v.LockDuration == 0 {
		return 0
	}
	return addSeconds(acc.FirstDepositTime, v.LockDuration)
}

// Locked reports whether a withdrawal at now would forfeit reward.
func (v *Vault) Locked(acc *Account, now uint64) bool {
	if acc.IsEmpty() || v.LockDuration == 0 {
		return false
	}
	return now < v.UnlockTime(acc)
}

func (v *Vault) ensureDefaults() *Vault {
	if v.TotalPrincipal == nil {
		v.TotalPrincipal = zero()
	}
	if v.TotalRewardBudget == nil {
		v.TotalRewardBudget = zero()
	}
	if v.TotalRewardClaimed == nil {
		v.TotalRewardClaimed = zero()
	}
	return v
}

// AccountInfo is the read-only projection of an account at a point in time.
type AccountInfo struct {
	Address          common.Address
	Principal        *uint256.Int
	AccruedReward    *uint256.Int
	Earned           *uint256.Int
	LastUpdateTime   uint64
	FirstDepositTime uint64
	UnlockTime       uint64
	Locked           bool
}

// Stats summarises the contract-wide state.
type Stats struct {
	Owner              common.Address
	TotalPrincipal     *uint256.Int
	TotalRewardBudget  *uint256.Int
	TotalRewardClaimed *uint256.Int
	RemainingBudget    *uint256.Int
	DepositsPaused     bool
	RewardStartTime    uint64
	RewardEndTime      uint64
	HasRewardEndTime   bool
	LockDuration       uint64
	Schedule           Schedule
}

// WithdrawResult describes a completed withdrawal.
type WithdrawResult struct {
	Principal *uint256.Int
	// Earned is the banked reward before rationing and the lock check.
	Earned *uint256.Int
	// Reward is what was actually paid.
	Reward *uint256.Int
	// Forfeited is reward withheld by the lock. When the budget is burned on
	// early exit it is the rationed amount charged to the budget, otherwise
	// the full Earned.
	Forfeited *uint256.Int
	// Rationed is reward withheld because the budget ran out.
	Rationed *uint256.Int
}

// ChangeSet is the write set of one entry point. A nil account value
// deletes the account.
type ChangeSet struct {
	Vault    *Vault
	Accounts map[common.Address]*Account
}
