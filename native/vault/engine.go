package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rewardvault/core/events"
	nativecommon "rewardvault/native/common"
	"rewardvault/observability/metrics"
)

const moduleName = "vault"

// DefaultMaxLockDuration bounds SetLockDuration when no limit is configured.
const DefaultMaxLockDuration = 365 * 24 * 60 * 60

type engineState interface {
	VaultGet() (*Vault, bool, error)
	AccountGet(addr common.Address) (*Account, bool, error)
	VaultCommit(changes *ChangeSet) error
}

// Token is the fungible token the vault custodies. Transfers originate from
// the vault's own account.
type Token interface {
	Transfer(to common.Address, amount *uint256.Int) error
	TransferFrom(from, to common.Address, amount *uint256.Int) error
	BalanceOf(addr common.Address) (*uint256.Int, error)
}

// AccessControl gates the administrative entry points.
type AccessControl interface {
	Owner() common.Address
	IsOwner(caller common.Address) bool
	TransferOwnership(caller, next common.Address) error
}

// Limits are the ceilings enforced on administrative set operations.
type Limits struct {
	// MaxRewardBudget bounds SetTotalRewardBudget. Nil or zero means
	// unbounded.
	MaxRewardBudget *uint256.Int
	// MaxLockDuration bounds SetLockDuration in seconds.
	MaxLockDuration uint64
}

// Policy selects behaviour that differs between deployments.
type Policy struct {
	// BurnBudgetOnEarlyExit rations reward before the lock check, so an
	// exit inside the lock still consumes budget while paying nothing.
	// When false the lock check runs first and consumes no budget.
	BurnBudgetOnEarlyExit bool
}

// DefaultPolicy burns budget on early exit.
func DefaultPolicy() Policy { return Policy{BurnBudgetOnEarlyExit: true} }

// Engine orchestrates deposits, withdrawals and administrative operations.
// Mutating calls are serialised; queries may run concurrently.
type Engine struct {
	mu      sync.RWMutex
	state   engineState
	token   Token
	access  AccessControl
	self    common.Address
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.VaultMetrics
	nowFn   func() uint64
	pauses  nativecommon.PauseView
	limits  Limits
	policy  Policy
}

// NewEngine constructs a vault engine that custodies token at self.
func NewEngine(self common.Address, token Token, access AccessControl) *Engine {
	return &Engine{
		self:    self,
		token:   token,
		access:  access,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.Vault(),
		nowFn:   systemNow,
		limits:  Limits{MaxLockDuration: DefaultMaxLockDuration},
		policy:  DefaultPolicy(),
	}
}

func systemNow() uint64 {
	now := time.Now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used for deterministic testing.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = systemNow
		return
	}
	e.nowFn = now
}

// SetPauses wires the module-wide emergency pause.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetLimits configures the administrative ceilings.
func (e *Engine) SetLimits(limits Limits) {
	if limits.MaxLockDuration == 0 {
		limits.MaxLockDuration = DefaultMaxLockDuration
	}
	if limits.MaxRewardBudget != nil {
		limits.MaxRewardBudget = new(uint256.Int).Set(limits.MaxRewardBudget)
	}
	e.limits = limits
}

// SetPolicy configures the lock/budget ordering.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// Address returns the account holding the vault's tokens.
func (e *Engine) Address() common.Address { return e.self }

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return systemNow()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	if e.access == nil {
		return errNilAccess
	}
	return nil
}

func (e *Engine) loadVault() (*Vault, error) {
	v, ok, err := e.state.VaultGet()
	if err != nil {
		return nil, err
	}
	if !ok || v == nil {
		return nil, errNotDeployed
	}
	return v.Clone().ensureDefaults(), nil
}

func (e *Engine) loadAccount(addr common.Address) (*Account, error) {
	acc, ok, err := e.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || acc == nil {
		return NewAccount(), nil
	}
	return acc.Clone().ensureDefaults(), nil
}

func (e *Engine) requireOwner(caller common.Address) error {
	if !e.access.IsOwner(caller) {
		return errNotOwner
	}
	return nil
}

func (e *Engine) observe(operation string, v *Vault, err error) {
	e.metrics.ObserveOperation(operation, err)
	if err == nil && v != nil {
		e.metrics.SetTotals(v.TotalPrincipal.ToBig(), v.RemainingBudget().ToBig())
	}
}

// Deploy initialises the contract-wide state. RewardStartTime defaults to
// the current time when zero; accounting counters always start at zero.
func (e *Engine) Deploy(genesis Vault) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok, err := e.state.VaultGet(); err != nil {
		return err
	} else if ok {
		return errAlreadyDeployed
	}
	if err := genesis.Schedule.Validate(); err != nil {
		return err
	}
	v := genesis.Clone()
	v.TotalPrincipal = zero()
	v.TotalRewardClaimed = zero()
	if v.TotalRewardBudget == nil {
		v.TotalRewardBudget = zero()
	}
	if v.RewardStartTime == 0 {
		v.RewardStartTime = e.now()
	}
	if v.LockDuration > e.limits.MaxLockDuration {
		return errLockAboveCeiling
	}
	if err := e.checkBudgetCeiling(v.TotalRewardBudget); err != nil {
		return err
	}
	if err := e.state.VaultCommit(&ChangeSet{Vault: v}); err != nil {
		return err
	}
	e.logger.Info("vault deployed",
		slog.String("schedule", v.Schedule.String()),
		slog.Uint64("rewardStartTime", v.RewardStartTime),
		slog.String("budget", v.TotalRewardBudget.Dec()))
	return nil
}

// Deposit checkpoints the caller, pulls amount tokens from the caller and
// adds them to its principal.
func (e *Engine) Deposit(caller common.Address, amount *uint256.Int) (acc *Account, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var v *Vault
	defer func() { e.observe("deposit", v, err) }()

	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, errModulePaused
	}
	if amount == nil || amount.IsZero() {
		return nil, errInvalidAmount
	}
	if v, err = e.loadVault(); err != nil {
		return nil, err
	}
	if v.DepositsPaused {
		return nil, errDepositsPaused
	}
	if acc, err = e.loadAccount(caller); err != nil {
		return nil, err
	}

	now := e.now()
	if acc.IsEmpty() {
		acc.FirstDepositTime = now
		acc.LastUpdateTime = now
	}
	if err := Checkpoint(acc, now, v.Params()); err != nil {
		return nil, err
	}
	principal, overflow := new(uint256.Int).AddOverflow(acc.Principal, amount)
	if overflow {
		return nil, errPrincipalOverflow
	}
	total, overflow := new(uint256.Int).AddOverflow(v.TotalPrincipal, amount)
	if overflow {
		return nil, errPrincipalOverflow
	}
	acc.Principal = principal
	v.TotalPrincipal = total

	if err := e.token.TransferFrom(caller, e.self, amount); err != nil {
		return nil, tokenFailure(err)
	}
	changes := &ChangeSet{Vault: v, Accounts: map[common.Address]*Account{caller: acc}}
	if err := e.state.VaultCommit(changes); err != nil {
		e.compensate("deposit", caller, amount, err)
		return nil, err
	}

	e.emit(events.VaultDeposited{Account: caller, Amount: amount.Clone(), Principal: acc.Principal.Clone(), Timestamp: now})
	return acc.Clone(), nil
}

// compensate refunds tokens already moved when the state commit fails.
func (e *Engine) compensate(operation string, to common.Address, amount *uint256.Int, cause error) {
	if err := e.token.Transfer(to, amount); err != nil {
		e.logger.Error("vault compensation failed",
			slog.String("operation", operation),
			slog.String("account", to.Hex()),
			slog.String("amount", amount.Dec()),
			slog.Any("cause", cause),
			slog.Any("error", err))
		return
	}
	e.logger.Warn("vault commit failed; tokens refunded",
		slog.String("operation", operation),
		slog.String("account", to.Hex()),
		slog.Any("error", cause))
}

// Withdraw returns the caller's full principal plus the rationed,
// lock-checked reward and resets the account.
func (e *Engine) Withdraw(caller common.Address) (res *WithdrawResult, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var v *Vault
	defer func() { e.observe("withdraw", v, err) }()

	if v, err = e.loadVault(); err != nil {
		return nil, err
	}
	prevVault := v.Clone()
	acc, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if acc.IsEmpty() {
		return nil, errNothingToWithdraw
	}
	prevAccount := acc.Clone()

	now := e.now()
	if err := Checkpoint(acc, now, v.Params()); err != nil {
		return nil, err
	}
	res = &WithdrawResult{
		Principal: acc.Principal.Clone(),
		Earned:    acc.AccruedReward.Clone(),
		Forfeited: zero(),
		Rationed:  zero(),
	}
	locked := v.Locked(acc, now)
	budgetConsumed := false
	if e.policy.BurnBudgetOnEarlyExit || !locked {
		payable := v.Ration(res.Earned)
		res.Rationed = subFloor(res.Earned, payable)
		res.Reward = payable
		if locked {
			res.Forfeited = payable
			res.Reward = zero()
			budgetConsumed = !payable.IsZero()
		}
	} else {
		res.Forfeited = res.Earned.Clone()
		res.Reward = zero()
	}

	if v.TotalPrincipal.Lt(res.Principal) {
		return nil, errLedgerInconsistent
	}
	v.TotalPrincipal = new(uint256.Int).Sub(v.TotalPrincipal, res.Principal)
	payout := addSaturating(res.Principal, res.Reward)

	if err := e.state.VaultCommit(&ChangeSet{Vault: v, Accounts: map[common.Address]*Account{caller: nil}}); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(caller, payout); err != nil {
		rollback := &ChangeSet{Vault: prevVault, Accounts: map[common.Address]*Account{caller: prevAccount}}
		if rbErr := e.state.VaultCommit(rollback); rbErr != nil {
			e.logger.Error("vault withdraw rollback failed",
				slog.String("account", caller.Hex()),
				slog.Any("error", rbErr))
			return nil, errors.Join(tokenFailure(err), rbErr)
		}
		return nil, tokenFailure(err)
	}

	if !res.Rationed.IsZero() {
		e.metrics.AddRewardRationed(res.Rationed.ToBig())
		e.emit(events.VaultRewardRationed{
			Account:   caller,
			Requested: res.Earned.Clone(),
			Payable:   subFloor(res.Earned, res.Rationed),
			Claimed:   v.TotalRewardClaimed.Clone(),
			Budget:    v.TotalRewardBudget.Clone(),
		})
	}
	if locked && !res.Earned.IsZero() {
		e.metrics.AddRewardForfeited(res.Forfeited.ToBig())
		e.emit(events.VaultRewardForfeited{
			Account:        caller,
			Amount:         res.Forfeited.Clone(),
			BudgetConsumed: budgetConsumed,
			UnlockTime:     v.UnlockTime(prevAccount),
		})
	}
	e.metrics.AddRewardPaid(res.Reward.ToBig())
	e.emit(events.VaultWithdrawn{
		Account:   caller,
		Principal: res.Principal.Clone(),
		Earned:    res.Earned.Clone(),
		Reward:    res.Reward.Clone(),
		Timestamp: now,
	})
	return res, nil
}

// AdminWithdraw sends amount of unencumbered balance to the owner. Deposits
// must be paused.
func (e *Engine) AdminWithdraw(caller common.Address, amount *uint256.Int) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var v *Vault
	defer func() { e.observe("adminWithdraw", v, err) }()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return errModulePaused
	}
	if amount == nil || amount.IsZero() {
		return errInvalidAmount
	}
	if v, err = e.loadVault(); err != nil {
		return err
	}
	if !v.DepositsPaused {
		return errDepositsNotPaused
	}
	balance, err := e.token.BalanceOf(e.self)
	if err != nil {
		return err
	}
	available := v.AvailableForAdminWithdraw(balance)
	if amount.Gt(available) {
		return fmt.Errorf("%w: requested %s, available %s", errExceedsAvailable, amount.Dec(), available.Dec())
	}
	if err := e.token.Transfer(caller, amount); err != nil {
		return tokenFailure(err)
	}
	e.metrics.AddAdminWithdrawn(amount.ToBig())
	e.logger.Info("vault admin withdrawal",
		slog.String("owner", caller.Hex()),
		slog.String("amount", amount.Dec()),
		slog.String("available", available.Dec()))
	e.emit(events.VaultAdminWithdrawn{Owner: caller, Amount: amount.Clone(), Available: available})
	return nil
}

// SetDepositsPaused toggles the deposit pause flag.
func (e *Engine) SetDepositsPaused(caller common.Address, paused bool) (err error) {
	return e.adminUpdate(caller, "setDepositsPaused", func(v *Vault) (events.Event, error) {
		v.DepositsPaused = paused
		return events.VaultDepositsPaused{Paused: paused}, nil
	})
}

// SetRewardEndTime stops accrual at endTime. Only allowed while deposits are
// paused.
func (e *Engine) SetRewardEndTime(caller common.Address, endTime uint64) error {
	return e.adminUpdate(caller, "setRewardEndTime", func(v *Vault) (events.Event, error) {
		if endTime == 0 {
			return nil, errInvalidEndTime
		}
		if !v.DepositsPaused {
			return nil, errDepositsNotPaused
		}
		v.RewardEndTime = endTime
		v.HasRewardEndTime = true
		return events.VaultRewardEndTimeSet{EndTime: endTime}, nil
	})
}

// ClearRewardEndTime removes the end time. Only allowed while deposits are
// live.
func (e *Engine) ClearRewardEndTime(caller common.Address) error {
	return e.adminUpdate(caller, "clearRewardEndTime", func(v *Vault) (events.Event, error) {
		if v.DepositsPaused {
			return nil, errDepositsPaused
		}
		v.RewardEndTime = 0
		v.HasRewardEndTime = false
		return events.VaultRewardEndTimeSet{Cleared: true}, nil
	})
}

// SetTotalRewardBudget replaces the reward budget ceiling.
func (e *Engine) SetTotalRewardBudget(caller common.Address, budget *uint256.Int) error {
	return e.adminUpdate(caller, "setTotalRewardBudget", func(v *Vault) (events.Event, error) {
		if budget == nil || budget.IsZero() {
			return nil, errInvalidAmount
		}
		if err := e.checkBudgetCeiling(budget); err != nil {
			return nil, err
		}
		v.TotalRewardBudget = budget.Clone()
		return events.VaultRewardBudgetSet{Budget: budget.Clone(), Claimed: v.TotalRewardClaimed.Clone()}, nil
	})
}

// SetLockDuration replaces the lock duration, in seconds.
func (e *Engine) SetLockDuration(caller common.Address, seconds uint64) error {
	return e.adminUpdate(caller, "setLockDuration", func(v *Vault) (events.Event, error) {
		if seconds == 0 {
			return nil, errInvalidDuration
		}
		if seconds > e.limits.MaxLockDuration {
			return nil, errLockAboveCeiling
		}
		v.LockDuration = seconds
		return events.VaultLockDurationSet{Seconds: seconds}, nil
	})
}

// TransferOwnership hands the administrator capability to next.
func (e *Engine) TransferOwnership(caller, next common.Address) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe("transferOwnership", nil, err) }()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return errInvalidOwner
	}
	if err := e.access.TransferOwnership(caller, next); err != nil {
		return fmt.Errorf("%w: %v", errNotOwner, err)
	}
	e.logger.Info("vault ownership transferred",
		slog.String("previous", caller.Hex()),
		slog.String("next", next.Hex()))
	e.emit(events.VaultOwnershipTransferred{Previous: caller, Next: next})
	return nil
}

func (e *Engine) checkBudgetCeiling(budget *uint256.Int) error {
	ceiling := e.limits.MaxRewardBudget
	if ceiling == nil || ceiling.IsZero() {
		return nil
	}
	if budget.Gt(ceiling) {
		return errBudgetAboveCeiling
	}
	return nil
}

func (e *Engine) adminUpdate(caller common.Address, operation string, apply func(v *Vault) (events.Event, error)) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var v *Vault
	defer func() { e.observe(operation, v, err) }()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if v, err = e.loadVault(); err != nil {
		return err
	}
	evt, err := apply(v)
	if err != nil {
		return err
	}
	if err := e.state.VaultCommit(&ChangeSet{Vault: v}); err != nil {
		return err
	}
	e.logger.Info("vault admin update", slog.String("operation", operation), slog.String("owner", caller.Hex()))
	e.emit(evt)
	return nil
}

// Earned projects the reward of addr at the current time.
func (e *Engine) Earned(addr common.Address) (*uint256.Int, error) {
	info, err := e.AccountInfo(addr)
	if err != nil {
		return nil, err
	}
	return info.Earned, nil
}

// AccountInfo returns the account state with reward projected to now.
func (e *Engine) AccountInfo(addr common.Address) (*AccountInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	now := e.now()
	earned, err := Earned(acc, now, v.Params())
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		Address:          addr,
		Principal:        acc.Principal.Clone(),
		AccruedReward:    acc.AccruedReward.Clone(),
		Earned:           earned,
		LastUpdateTime:   acc.LastUpdateTime,
		FirstDepositTime: acc.FirstDepositTime,
		UnlockTime:       v.UnlockTime(acc),
		Locked:           v.Locked(acc, now),
	}, nil
}

// AvailableForAdminWithdraw returns the unencumbered token balance.
func (e *Engine) AvailableForAdminWithdraw() (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	balance, err := e.token.BalanceOf(e.self)
	if err != nil {
		return nil, err
	}
	return v.AvailableForAdminWithdraw(balance), nil
}

// Stats returns the contract-wide counters and parameters.
func (e *Engine) Stats() (*Stats, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return &Stats{
		Owner:              e.access.Owner(),
		TotalPrincipal:     v.TotalPrincipal,
		TotalRewardBudget:  v.TotalRewardBudget,
		TotalRewardClaimed: v.TotalRewardClaimed,
		RemainingBudget:    v.RemainingBudget(),
		DepositsPaused:     v.DepositsPaused,
		RewardStartTime:    v.RewardStartTime,
		RewardEndTime:      v.RewardEndTime,
		HasRewardEndTime:   v.HasRewardEndTime,
		LockDuration:       v.LockDuration,
		Schedule:           v.Schedule,
	}, nil
}
