package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"rewardvault/core/events"
	"rewardvault/native/access"
	nativecommon "rewardvault/native/common"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

const (
	genesisTime = 1_000
	halfYear    = SecondsPerYear / 2
)

type mockState struct {
	vault     *Vault
	accounts  map[common.Address]*Account
	commitErr error
	commits   int
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[common.Address]*Account)}
}

func (m *mockState) VaultGet() (*Vault, bool, error) {
	if m.vault == nil {
		return nil, false, nil
	}
	return m.vault.Clone(), true, nil
}

func (m *mockState) AccountGet(addr common.Address) (*Account, bool, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	return acc.Clone(), true, nil
}

func (m *mockState) VaultCommit(changes *ChangeSet) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	if changes.Vault != nil {
		m.vault = changes.Vault.Clone()
	}
	for addr, acc := range changes.Accounts {
		if acc.IsEmpty() {
			delete(m.accounts, addr)
			continue
		}
		m.accounts[addr] = acc.Clone()
	}
	return nil
}

type mockToken struct {
	self         common.Address
	balances     map[common.Address]*uint256.Int
	transferErr  error
	pullErr      error
	transferCall int
}

func newMockToken(self common.Address) *mockToken {
	return &mockToken{self: self, balances: make(map[common.Address]*uint256.Int)}
}

func (m *mockToken) balance(addr common.Address) *uint256.Int {
	if bal, ok := m.balances[addr]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (m *mockToken) move(from, to common.Address, amount *uint256.Int) error {
	bal := m.balance(from)
	if bal.Lt(amount) {
		return errors.New("insufficient balance")
	}
	m.balances[from] = new(uint256.Int).Sub(bal, amount)
	m.balances[to] = new(uint256.Int).Add(m.balance(to), amount)
	return nil
}

func (m *mockToken) Transfer(to common.Address, amount *uint256.Int) error {
	m.transferCall++
	if m.transferErr != nil {
		return m.transferErr
	}
	return m.move(m.self, to, amount)
}

func (m *mockToken) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	if m.pullErr != nil {
		return m.pullErr
	}
	return m.move(from, to, amount)
}

func (m *mockToken) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return m.balance(addr), nil
}

type harness struct {
	engine   *Engine
	state    *mockState
	token    *mockToken
	recorder *events.Recorder
	now      uint64
}

func (h *harness) advance(seconds uint64) { h.now += seconds }

func (h *harness) types() []string {
	out := make([]string, 0)
	for _, evt := range h.recorder.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func newHarness(t *testing.T, genesis Vault) *harness {
	t.Helper()
	h := &harness{state: newMockState(), token: newMockToken(vaultAddr), recorder: &events.Recorder{}, now: genesisTime}
	admin, err := access.NewOwnable(owner)
	require.NoError(t, err)

	h.engine = NewEngine(vaultAddr, h.token, admin)
	h.engine.SetState(h.state)
	h.engine.SetEmitter(h.recorder)
	h.engine.SetNowFunc(func() uint64 { return h.now })

	if genesis.RewardStartTime == 0 {
		genesis.RewardStartTime = genesisTime
	}
	require.NoError(t, h.engine.Deploy(genesis))
	h.token.balances[vaultAddr] = cloneAmount(genesis.TotalRewardBudget)
	h.token.balances[alice] = units(1_000)
	h.token.balances[bob] = units(1_000)
	return h
}

func flatGenesis(t *testing.T, budget uint64) Vault {
	return Vault{
		TotalRewardBudget: units(budget),
		Schedule:          FlatSchedule(mustRate(t, "0.10")),
	}
}

func TestDepositWithdrawPaysFlatReward(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 1_000))

	acc, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	require.Equal(t, units(100), acc.Principal)
	require.Equal(t, uint64(genesisTime), acc.FirstDepositTime)

	h.advance(SecondsPerYear)
	earned, err := h.engine.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, units(10), earned)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, units(100), res.Principal)
	require.Equal(t, units(10), res.Reward)
	require.True(t, res.Forfeited.IsZero())
	require.True(t, res.Rationed.IsZero())

	require.Equal(t, units(1_010), h.token.balance(alice))
	require.Equal(t, units(990), h.token.balance(vaultAddr))
	_, ok := h.state.accounts[alice]
	require.False(t, ok)

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.True(t, stats.TotalPrincipal.IsZero())
	require.Equal(t, units(10), stats.TotalRewardClaimed)
	require.Equal(t, units(990), stats.RemainingBudget)
	require.Equal(t, owner, stats.Owner)

	require.Equal(t, []string{events.TypeVaultDeposited, events.TypeVaultWithdrawn}, h.types())
}

func TestDepositTopUpSettlesAccruedReward(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 1_000))

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(halfYear)

	acc, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	require.Equal(t, units(200), acc.Principal)
	require.Equal(t, units(5), acc.AccruedReward)
	require.Equal(t, uint64(genesisTime), acc.FirstDepositTime)
	require.Equal(t, uint64(genesisTime+halfYear), acc.LastUpdateTime)

	h.advance(halfYear)
	info, err := h.engine.AccountInfo(alice)
	require.NoError(t, err)
	require.Equal(t, units(15), info.Earned)
	require.Equal(t, units(5), info.AccruedReward)
	require.False(t, info.Locked)
}

func TestWithdrawInsideLockBurnsBudget(t *testing.T) {
	genesis := flatGenesis(t, 100)
	genesis.LockDuration = 30 * day
	h := newHarness(t, genesis)

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(10 * day)

	info, err := h.engine.AccountInfo(alice)
	require.NoError(t, err)
	require.True(t, info.Locked)
	require.Equal(t, uint64(genesisTime+30*day), info.UnlockTime)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.False(t, res.Earned.IsZero())
	require.True(t, res.Reward.IsZero())
	require.Equal(t, res.Earned, res.Forfeited)
	require.Equal(t, units(1_000), h.token.balance(alice))

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, res.Earned, stats.TotalRewardClaimed)

	var forfeited *events.VaultRewardForfeited
	for _, evt := range h.recorder.Events() {
		if f, ok := evt.(events.VaultRewardForfeited); ok {
			forfeited = &f
		}
	}
	require.NotNil(t, forfeited)
	require.True(t, forfeited.BudgetConsumed)
	require.Equal(t, res.Forfeited, forfeited.Amount)
	require.Equal(t, uint64(genesisTime+30*day), forfeited.UnlockTime)
}

func TestWithdrawInsideLockForfeitsOnlyRationedReward(t *testing.T) {
	genesis := flatGenesis(t, 0)
	genesis.TotalRewardBudget = uint256.NewInt(1_000)
	genesis.LockDuration = 30 * day
	h := newHarness(t, genesis)

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(10 * day)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.True(t, res.Earned.Gt(uint256.NewInt(1_000)))
	require.Equal(t, uint256.NewInt(1_000), res.Forfeited)
	require.Equal(t, new(uint256.Int).Sub(res.Earned, res.Forfeited), res.Rationed)
	require.True(t, res.Reward.IsZero())

	var forfeited *events.VaultRewardForfeited
	for _, evt := range h.recorder.Events() {
		if f, ok := evt.(events.VaultRewardForfeited); ok {
			forfeited = &f
		}
	}
	require.NotNil(t, forfeited)
	require.Equal(t, res.Forfeited, forfeited.Amount)

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, res.Forfeited, stats.TotalRewardClaimed)
}

func TestAccountInfoWithoutDepositHasNoUnlockTime(t *testing.T) {
	genesis := flatGenesis(t, 100)
	genesis.LockDuration = 30 * day
	h := newHarness(t, genesis)

	info, err := h.engine.AccountInfo(bob)
	require.NoError(t, err)
	require.Zero(t, info.UnlockTime)
	require.False(t, info.Locked)
	require.True(t, info.Earned.IsZero())
}

func TestWithdrawReturnsPrincipalWhenAccrualSaturates(t *testing.T) {
	h := newHarness(t, Vault{Schedule: FlatSchedule(mustRate(t, "1"))})
	principal := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	h.token.balances[alice] = principal.Clone()

	_, err := h.engine.Deposit(alice, principal)
	require.NoError(t, err)
	h.advance(2 * SecondsPerYear)

	earned, err := h.engine.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).SetAllOne(), earned)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, principal, res.Principal)
	require.True(t, res.Reward.IsZero())
	require.Equal(t, principal, h.token.balance(alice))
	_, ok := h.state.accounts[alice]
	require.False(t, ok)
}

func TestWithdrawInsideLockKeepsBudgetWhenConfigured(t *testing.T) {
	genesis := flatGenesis(t, 100)
	genesis.LockDuration = 30 * day
	h := newHarness(t, genesis)
	h.engine.SetPolicy(Policy{BurnBudgetOnEarlyExit: false})

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(10 * day)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.True(t, res.Reward.IsZero())
	require.Equal(t, res.Earned, res.Forfeited)

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.True(t, stats.TotalRewardClaimed.IsZero())
}

func TestWithdrawAtUnlockPaysReward(t *testing.T) {
	genesis := flatGenesis(t, 100)
	genesis.LockDuration = 30 * day
	h := newHarness(t, genesis)

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(30 * day)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.False(t, res.Reward.IsZero())
	require.Equal(t, res.Earned, res.Reward)
	require.Equal(t, new(uint256.Int).Add(units(1_000), res.Reward), h.token.balance(alice))
}

func TestWithdrawRationsToBudget(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 1))

	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	_, err = h.engine.Deposit(bob, units(100))
	require.NoError(t, err)
	h.advance(SecondsPerYear)

	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, units(10), res.Earned)
	require.Equal(t, units(1), res.Reward)
	require.Equal(t, units(9), res.Rationed)

	res, err = h.engine.Withdraw(bob)
	require.NoError(t, err)
	require.Equal(t, units(100), res.Principal)
	require.True(t, res.Reward.IsZero())
	require.Equal(t, units(10), res.Rationed)
	require.Equal(t, units(1_000), h.token.balance(bob))

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, stats.TotalRewardBudget, stats.TotalRewardClaimed)
	require.Contains(t, h.types(), events.TypeVaultRewardRationed)
}

func TestWithdrawWithoutPrincipal(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))
	_, err := h.engine.Withdraw(alice)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.Zero(t, h.token.transferCall)
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))

	_, err := h.engine.Deposit(alice, new(uint256.Int))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.engine.Deposit(alice, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.engine.Deposit(alice, units(5_000))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Empty(t, h.state.accounts)

	require.NoError(t, h.engine.SetDepositsPaused(owner, true))
	_, err = h.engine.Deposit(alice, units(1))
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.Equal(t, units(1_000), h.token.balance(alice))
}

func TestDepositRefundsWhenCommitFails(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))
	h.state.commitErr = errors.New("disk full")

	_, err := h.engine.Deposit(alice, units(40))
	require.Error(t, err)
	require.Equal(t, units(1_000), h.token.balance(alice))
	require.Equal(t, units(10), h.token.balance(vaultAddr))
	require.Empty(t, h.state.accounts)
	require.Empty(t, h.types())
}

func TestWithdrawRollsBackWhenTransferFails(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 100))
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(SecondsPerYear)
	h.recorder.Reset()

	h.token.transferErr = errors.New("token halted")
	_, err = h.engine.Withdraw(alice)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	acc, ok := h.state.accounts[alice]
	require.True(t, ok)
	require.Equal(t, units(100), acc.Principal)
	require.Equal(t, uint64(genesisTime), acc.LastUpdateTime)
	require.Equal(t, units(100), h.state.vault.TotalPrincipal)
	require.True(t, h.state.vault.TotalRewardClaimed.IsZero())
	require.Empty(t, h.types())

	h.token.transferErr = nil
	res, err := h.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, units(10), res.Reward)
}

func TestModulePauseBlocksDepositOnly(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 100))
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)

	h.engine.SetPauses(nativecommon.NewPauseSet("vault"))
	_, err = h.engine.Deposit(alice, units(1))
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, h.engine.SetDepositsPaused(owner, true))
	require.ErrorIs(t, h.engine.AdminWithdraw(owner, units(1)), ErrPreconditionFailed)

	_, err = h.engine.Withdraw(alice)
	require.NoError(t, err)
}

func TestAdminWithdrawSolvency(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 50))
	h.token.balances[vaultAddr] = units(70)
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)

	err = h.engine.AdminWithdraw(owner, units(1))
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.Equal(t, units(170), h.token.balance(vaultAddr))

	require.NoError(t, h.engine.SetDepositsPaused(owner, true))
	require.ErrorIs(t, h.engine.AdminWithdraw(bob, units(1)), ErrUnauthorized)

	available, err := h.engine.AvailableForAdminWithdraw()
	require.NoError(t, err)
	require.Equal(t, units(20), available)

	require.ErrorIs(t, h.engine.AdminWithdraw(owner, units(21)), ErrInsufficientFunds)
	require.NoError(t, h.engine.AdminWithdraw(owner, units(20)))
	require.Equal(t, units(20), h.token.balance(owner))
	require.Equal(t, units(150), h.token.balance(vaultAddr))

	available, err = h.engine.AvailableForAdminWithdraw()
	require.NoError(t, err)
	require.True(t, available.IsZero())
}

func TestRewardEndTimeRules(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 1_000))
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)

	endTime := uint64(genesisTime + halfYear)
	require.ErrorIs(t, h.engine.SetRewardEndTime(owner, endTime), ErrPreconditionFailed)
	require.NoError(t, h.engine.SetDepositsPaused(owner, true))
	require.ErrorIs(t, h.engine.SetRewardEndTime(owner, 0), ErrInvalidArgument)
	require.ErrorIs(t, h.engine.SetRewardEndTime(bob, endTime), ErrUnauthorized)
	require.NoError(t, h.engine.SetRewardEndTime(owner, endTime))

	h.advance(SecondsPerYear)
	earned, err := h.engine.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, units(5), earned)

	require.ErrorIs(t, h.engine.ClearRewardEndTime(owner), ErrPreconditionFailed)
	require.NoError(t, h.engine.SetDepositsPaused(owner, false))
	require.NoError(t, h.engine.ClearRewardEndTime(owner))

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.False(t, stats.HasRewardEndTime)
	require.Zero(t, stats.RewardEndTime)
}

func TestAdminOperationsRequireOwner(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))

	require.ErrorIs(t, h.engine.SetDepositsPaused(bob, true), ErrUnauthorized)
	require.ErrorIs(t, h.engine.ClearRewardEndTime(bob), ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetTotalRewardBudget(bob, units(1)), ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetLockDuration(bob, day), ErrUnauthorized)
	require.ErrorIs(t, h.engine.TransferOwnership(bob, bob), ErrUnauthorized)
	require.ErrorIs(t, h.engine.AdminWithdraw(bob, units(1)), ErrUnauthorized)
	require.Empty(t, h.types())
}

func TestAdminSettersEnforceCeilings(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))
	h.engine.SetLimits(Limits{MaxRewardBudget: units(500)})

	require.ErrorIs(t, h.engine.SetLockDuration(owner, 0), ErrInvalidArgument)
	require.ErrorIs(t, h.engine.SetLockDuration(owner, DefaultMaxLockDuration+1), ErrInvalidArgument)
	require.NoError(t, h.engine.SetLockDuration(owner, 7*day))

	require.ErrorIs(t, h.engine.SetTotalRewardBudget(owner, new(uint256.Int)), ErrInvalidArgument)
	require.ErrorIs(t, h.engine.SetTotalRewardBudget(owner, units(501)), ErrInvalidArgument)
	require.NoError(t, h.engine.SetTotalRewardBudget(owner, units(400)))

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(7*day), stats.LockDuration)
	require.Equal(t, units(400), stats.TotalRewardBudget)
	require.Equal(t, []string{events.TypeVaultLockDurationSet, events.TypeVaultRewardBudgetSet}, h.types())
}

func TestBudgetLoweredBelowClaimedLeavesNothingRemaining(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 100))
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	h.advance(SecondsPerYear)
	_, err = h.engine.Withdraw(alice)
	require.NoError(t, err)

	require.NoError(t, h.engine.SetTotalRewardBudget(owner, units(5)))
	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, units(10), stats.TotalRewardClaimed)
	require.True(t, stats.RemainingBudget.IsZero())
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))

	require.ErrorIs(t, h.engine.TransferOwnership(owner, common.Address{}), ErrInvalidArgument)
	require.NoError(t, h.engine.TransferOwnership(owner, bob))
	require.ErrorIs(t, h.engine.SetDepositsPaused(owner, true), ErrUnauthorized)
	require.NoError(t, h.engine.SetDepositsPaused(bob, true))

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, bob, stats.Owner)
	require.Equal(t, []string{events.TypeVaultOwnershipTransferred, events.TypeVaultDepositsPaused}, h.types())
}

func TestDeployOnce(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 10))
	require.ErrorIs(t, h.engine.Deploy(flatGenesis(t, 10)), ErrPreconditionFailed)

	fresh := NewEngine(vaultAddr, h.token, nil)
	fresh.SetState(newMockState())
	_, err := fresh.Deposit(alice, units(1))
	require.Error(t, err)

	admin, err := access.NewOwnable(owner)
	require.NoError(t, err)
	fresh = NewEngine(vaultAddr, h.token, admin)
	fresh.SetState(newMockState())
	_, err = fresh.Deposit(alice, units(1))
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.ErrorIs(t, fresh.Deploy(Vault{Schedule: TieredSchedule(nil, nil)}), ErrInvalidArgument)
}

func TestClockRegressionDoesNotReplayReward(t *testing.T) {
	h := newHarness(t, flatGenesis(t, 1_000))
	h.advance(halfYear)
	_, err := h.engine.Deposit(alice, units(100))
	require.NoError(t, err)

	h.now = genesisTime
	earned, err := h.engine.Earned(alice)
	require.NoError(t, err)
	require.True(t, earned.IsZero())

	_, err = h.engine.Deposit(alice, units(100))
	require.NoError(t, err)
	require.Equal(t, uint64(genesisTime+halfYear), h.state.accounts[alice].LastUpdateTime)

	h.now = genesisTime + SecondsPerYear
	earned, err = h.engine.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, units(10), earned)
}

func TestTokenConservationAcrossAccounts(t *testing.T) {
	genesis := flatGenesis(t, 3)
	genesis.LockDuration = 20 * day
	h := newHarness(t, genesis)

	total := func() *uint256.Int {
		sum := new(uint256.Int)
		for _, bal := range h.token.balances {
			sum.Add(sum, bal)
		}
		return sum
	}
	start := total()

	for i := 0; i < 12; i++ {
		who := alice
		if i%3 == 0 {
			who = bob
		}
		if i%4 == 3 {
			if _, err := h.engine.Withdraw(who); err != nil {
				require.ErrorIs(t, err, ErrPreconditionFailed)
			}
		} else {
			_, err := h.engine.Deposit(who, units(uint64(10+i)))
			require.NoError(t, err)
		}
		h.advance(uint64(7+i) * day)

		require.Equal(t, start, total())
		v := h.state.vault
		require.False(t, v.TotalRewardClaimed.Gt(v.TotalRewardBudget))
		require.False(t, h.token.balance(vaultAddr).Lt(new(uint256.Int).Add(v.TotalPrincipal, v.RemainingBudget())))
	}
}
