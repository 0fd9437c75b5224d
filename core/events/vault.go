package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rewardvault/core/types"
)

const (
	// TypeVaultDeposited is emitted when principal is pulled into the vault.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultWithdrawn is emitted when an account exits with principal and reward.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultRewardRationed signals that the reward budget cut a payout short.
	TypeVaultRewardRationed = "vault.rewardRationed"
	// TypeVaultRewardForfeited signals that a withdrawal inside the lock paid no reward.
	TypeVaultRewardForfeited = "vault.rewardForfeited"
	// TypeVaultAdminWithdrawn is emitted when the owner sweeps unencumbered balance.
	TypeVaultAdminWithdrawn = "vault.adminWithdrawn"
	// TypeVaultDepositsPaused is emitted whenever the deposit pause flag is set.
	TypeVaultDepositsPaused = "vault.depositsPaused"
	// TypeVaultRewardEndTimeSet is emitted when the reward end time is set or cleared.
	TypeVaultRewardEndTimeSet = "vault.rewardEndTimeSet"
	// TypeVaultRewardBudgetSet is emitted when the total reward budget changes.
	TypeVaultRewardBudgetSet = "vault.rewardBudgetSet"
	// TypeVaultLockDurationSet is emitted when the lock duration changes.
	TypeVaultLockDurationSet = "vault.lockDurationSet"
	// TypeVaultOwnershipTransferred is emitted when the administrator changes.
	TypeVaultOwnershipTransferred = "vault.ownershipTransferred"
)

// VaultDeposited captures a deposit and the resulting principal.
type VaultDeposited struct {
	Account   common.Address
	Amount    *uint256.Int
	Principal *uint256.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// Event converts the structured payload into a broadcastable event.
func (e VaultDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposited,
		Attributes: map[string]string{
			"account":   formatAddr(e.Account),
			"amount":    formatAmount(e.Amount),
			"principal": formatAmount(e.Principal),
			"timestamp": formatTime(e.Timestamp),
		},
	}
}

// VaultWithdrawn captures a full exit.
type VaultWithdrawn struct {
	Account   common.Address
	Principal *uint256.Int
	// Earned is the raw banked reward before rationing and the lock check.
	Earned    *uint256.Int
	Reward    *uint256.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultWithdrawn,
		Attributes: map[string]string{
			"account":   formatAddr(e.Account),
			"principal": formatAmount(e.Principal),
			"earned":    formatAmount(e.Earned),
			"reward":    formatAmount(e.Reward),
			"timestamp": formatTime(e.Timestamp),
		},
	}
}

// VaultRewardRationed records the shortfall between requested and payable reward.
type VaultRewardRationed struct {
	Account   common.Address
	Requested *uint256.Int
	Payable   *uint256.Int
	Claimed   *uint256.Int
	Budget    *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultRewardRationed) EventType() string { return TypeVaultRewardRationed }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardRationed) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRewardRationed,
		Attributes: map[string]string{
			"account":   formatAddr(e.Account),
			"requested": formatAmount(e.Requested),
			"payable":   formatAmount(e.Payable),
			"claimed":   formatAmount(e.Claimed),
			"budget":    formatAmount(e.Budget),
		},
	}
}

// VaultRewardForfeited records reward withheld because the lock had not elapsed.
type VaultRewardForfeited struct {
	Account common.Address
	// Amount is the reward the lock withheld, after any budget rationing.
	Amount *uint256.Int
	// BudgetConsumed reports whether the forfeited amount still counted
	// against the reward budget.
	BudgetConsumed bool
	UnlockTime     uint64
}

// EventType satisfies the Event interface.
func (VaultRewardForfeited) EventType() string { return TypeVaultRewardForfeited }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardForfeited) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRewardForfeited,
		Attributes: map[string]string{
			"account":        formatAddr(e.Account),
			"amount":         formatAmount(e.Amount),
			"budgetConsumed": strconv.FormatBool(e.BudgetConsumed),
			"unlockTime":     formatTime(e.UnlockTime),
		},
	}
}

// VaultAdminWithdrawn captures an owner sweep.
type VaultAdminWithdrawn struct {
	Owner     common.Address
	Amount    *uint256.Int
	Available *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultAdminWithdrawn) EventType() string { return TypeVaultAdminWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultAdminWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultAdminWithdrawn,
		Attributes: map[string]string{
			"owner":     formatAddr(e.Owner),
			"amount":    formatAmount(e.Amount),
			"available": formatAmount(e.Available),
		},
	}
}

// VaultDepositsPaused captures a pause toggle.
type VaultDepositsPaused struct {
	Paused bool
}

// EventType satisfies the Event interface.
func (VaultDepositsPaused) EventType() string { return TypeVaultDepositsPaused }

// Event converts the structured payload into a broadcastable event.
func (e VaultDepositsPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeVaultDepositsPaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}

// VaultRewardEndTimeSet captures setting or clearing the reward end time.
type VaultRewardEndTimeSet struct {
	EndTime uint64
	Cleared bool
}

// EventType satisfies the Event interface.
func (VaultRewardEndTimeSet) EventType() string { return TypeVaultRewardEndTimeSet }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardEndTimeSet) Event() *types.Event {
	attrs := map[string]string{"cleared": strconv.FormatBool(e.Cleared)}
	if !e.Cleared {
		attrs["endTime"] = formatTime(e.EndTime)
	}
	return &types.Event{Type: TypeVaultRewardEndTimeSet, Attributes: attrs}
}

// VaultRewardBudgetSet captures a new reward budget.
type VaultRewardBudgetSet struct {
	Budget  *uint256.Int
	Claimed *uint256.Int
}

// EventType satisfies the Event interface.
func (VaultRewardBudgetSet) EventType() string { return TypeVaultRewardBudgetSet }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardBudgetSet) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRewardBudgetSet,
		Attributes: map[string]string{
			"budget":  formatAmount(e.Budget),
			"claimed": formatAmount(e.Claimed),
		},
	}
}

// VaultLockDurationSet captures a new lock duration.
type VaultLockDurationSet struct {
	Seconds uint64
}

// EventType satisfies the Event interface.
func (VaultLockDurationSet) EventType() string { return TypeVaultLockDurationSet }

// Event converts the structured payload into a broadcastable event.
func (e VaultLockDurationSet) Event() *types.Event {
	return &types.Event{
		Type:       TypeVaultLockDurationSet,
		Attributes: map[string]string{"seconds": strconv.FormatUint(e.Seconds, 10)},
	}
}

// VaultOwnershipTransferred captures an administrator change.
type VaultOwnershipTransferred struct {
	Previous common.Address
	Next     common.Address
}

// EventType satisfies the Event interface.
func (VaultOwnershipTransferred) EventType() string { return TypeVaultOwnershipTransferred }

// Event converts the structured payload into a broadcastable event.
func (e VaultOwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultOwnershipTransferred,
		Attributes: map[string]string{
			"previous": formatAddr(e.Previous),
			"next":     formatAddr(e.Next),
		},
	}
}
