package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"rewardvault/native/token"
	nativevault "rewardvault/native/vault"
	"rewardvault/storage"
)

var (
	vaultStateKey      = []byte("vault/state")
	vaultOwnerKey      = []byte("vault/owner")
	vaultAccountPrefix = []byte("vault/account/")
	tokenBalancePrefix = []byte("token/balance/")
	tokenAllowPrefix   = []byte("token/allowance/")
	tokenSupplyKey     = []byte("token/supply")
)

// Manager persists vault, account, owner and token records as rlp values in
// a key-value database. Multi-record updates are written in one batch.
type Manager struct {
	db storage.Database
}

// NewManager wraps db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type tierRecord struct {
	Length uint64
	Rate   *uint256.Int
}

type vaultRecord struct {
	TotalPrincipal     *uint256.Int
	TotalRewardBudget  *uint256.Int
	TotalRewardClaimed *uint256.Int
	DepositsPaused     bool
	RewardEndTime      uint64
	HasRewardEndTime   bool
	RewardStartTime    uint64
	LockDuration       uint64
	ScheduleKind       uint8
	Rate               *uint256.Int
	Tiers              []tierRecord
	TailRate           *uint256.Int
}

type accountRecord struct {
	Principal        *uint256.Int
	AccruedReward    *uint256.Int
	LastUpdateTime   uint64
	FirstDepositTime uint64
}

func amount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func newVaultRecord(v *nativevault.Vault) *vaultRecord {
	rec := &vaultRecord{
		TotalPrincipal:     amount(v.TotalPrincipal),
		TotalRewardBudget:  amount(v.TotalRewardBudget),
		TotalRewardClaimed: amount(v.TotalRewardClaimed),
		DepositsPaused:     v.DepositsPaused,
		RewardEndTime:      v.RewardEndTime,
		HasRewardEndTime:   v.HasRewardEndTime,
		RewardStartTime:    v.RewardStartTime,
		LockDuration:       v.LockDuration,
		ScheduleKind:       uint8(v.Schedule.Kind),
		Rate:               amount(v.Schedule.Rate),
		TailRate:           amount(v.Schedule.TailRate),
		Tiers:              []tierRecord{},
	}
	for _, tier := range v.Schedule.Tiers {
		rec.Tiers = append(rec.Tiers, tierRecord{Length: tier.Length, Rate: amount(tier.Rate)})
	}
	return rec
}

func (r *vaultRecord) vault() *nativevault.Vault {
	v := &nativevault.Vault{
		TotalPrincipal:     amount(r.TotalPrincipal),
		TotalRewardBudget:  amount(r.TotalRewardBudget),
		TotalRewardClaimed: amount(r.TotalRewardClaimed),
		DepositsPaused:     r.DepositsPaused,
		RewardEndTime:      r.RewardEndTime,
		HasRewardEndTime:   r.HasRewardEndTime,
		RewardStartTime:    r.RewardStartTime,
		LockDuration:       r.LockDuration,
		Schedule: nativevault.Schedule{
			Kind:     nativevault.ScheduleKind(r.ScheduleKind),
			Rate:     amount(r.Rate),
			TailRate: amount(r.TailRate),
		},
	}
	for _, tier := range r.Tiers {
		v.Schedule.Tiers = append(v.Schedule.Tiers, nativevault.Tier{Length: tier.Length, Rate: amount(tier.Rate)})
	}
	return v
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, vaultAccountPrefix...), addr.Bytes()...)
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte{}, tokenBalancePrefix...), addr.Bytes()...)
}

func allowanceKey(owner, spender common.Address) []byte {
	key := append(append([]byte{}, tokenAllowPrefix...), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

// get decodes the record at key into out, reporting whether it existed.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func put(batch storage.Batch, key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	batch.Put(key, encoded)
	return nil
}

// VaultGet loads the contract-wide state.
func (m *Manager) VaultGet() (*nativevault.Vault, bool, error) {
	rec := new(vaultRecord)
	ok, err := m.get(vaultStateKey, rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.vault(), true, nil
}

// AccountGet loads the ledger entry of addr.
func (m *Manager) AccountGet(addr common.Address) (*nativevault.Account, bool, error) {
	rec := new(accountRecord)
	ok, err := m.get(accountKey(addr), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &nativevault.Account{
		Principal:        amount(rec.Principal),
		AccruedReward:    amount(rec.AccruedReward),
		LastUpdateTime:   rec.LastUpdateTime,
		FirstDepositTime: rec.FirstDepositTime,
	}, true, nil
}

// VaultCommit writes the change set atomically. Empty accounts are deleted.
func (m *Manager) VaultCommit(changes *nativevault.ChangeSet) error {
	if changes == nil {
		return nil
	}
	batch := m.db.NewBatch()
	if changes.Vault != nil {
		if err := put(batch, vaultStateKey, newVaultRecord(changes.Vault)); err != nil {
			return err
		}
	}
	for addr, acc := range changes.Accounts {
		if acc.IsEmpty() {
			batch.Delete(accountKey(addr))
			continue
		}
		rec := &accountRecord{
			Principal:        amount(acc.Principal),
			AccruedReward:    amount(acc.AccruedReward),
			LastUpdateTime:   acc.LastUpdateTime,
			FirstDepositTime: acc.FirstDepositTime,
		}
		if err := put(batch, accountKey(addr), rec); err != nil {
			return err
		}
	}
	return batch.Write()
}

// OwnerGet loads the vault administrator.
func (m *Manager) OwnerGet() (common.Address, bool, error) {
	var owner common.Address
	ok, err := m.get(vaultOwnerKey, &owner)
	return owner, ok, err
}

// OwnerPut stores the vault administrator.
func (m *Manager) OwnerPut(owner common.Address) error {
	batch := m.db.NewBatch()
	if err := put(batch, vaultOwnerKey, owner); err != nil {
		return err
	}
	return batch.Write()
}

// TokenBalanceGet loads the token balance of addr.
func (m *Manager) TokenBalanceGet(addr common.Address) (*uint256.Int, error) {
	bal := new(uint256.Int)
	if _, err := m.get(balanceKey(addr), bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// TokenAllowanceGet loads the allowance granted by owner to spender.
func (m *Manager) TokenAllowanceGet(owner, spender common.Address) (*uint256.Int, error) {
	allowed := new(uint256.Int)
	if _, err := m.get(allowanceKey(owner, spender), allowed); err != nil {
		return nil, err
	}
	return allowed, nil
}

// TokenSupplyGet loads the total minted supply.
func (m *Manager) TokenSupplyGet() (*uint256.Int, error) {
	supply := new(uint256.Int)
	if _, err := m.get(tokenSupplyKey, supply); err != nil {
		return nil, err
	}
	return supply, nil
}

// TokenApply writes a token ledger update atomically.
func (m *Manager) TokenApply(update *token.Update) error {
	if update == nil {
		return nil
	}
	batch := m.db.NewBatch()
	for addr, bal := range update.Balances {
		if err := put(batch, balanceKey(addr), amount(bal)); err != nil {
			return err
		}
	}
	for key, allowed := range update.Allowances {
		if err := put(batch, allowanceKey(key.Owner, key.Spender), amount(allowed)); err != nil {
			return err
		}
	}
	if update.Supply != nil {
		if err := put(batch, tokenSupplyKey, amount(update.Supply)); err != nil {
			return err
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	return batch.Write()
}
