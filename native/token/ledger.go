package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	errNilState              = errors.New("token ledger: state not configured")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	ErrZeroAddress           = errors.New("token ledger: zero address")
	ErrSupplyOverflow        = errors.New("token ledger: supply overflow")
)

// Allowance keys an approval by owner and spender.
type Allowance struct {
	Owner   common.Address
	Spender common.Address
}

// Update is the write set of a single ledger operation. It is applied
// atomically by the state backend.
type Update struct {
	Balances   map[common.Address]*uint256.Int
	Allowances map[Allowance]*uint256.Int
	Supply     *uint256.Int
}

type ledgerState interface {
	TokenBalanceGet(addr common.Address) (*uint256.Int, error)
	TokenAllowanceGet(owner, spender common.Address) (*uint256.Int, error)
	TokenSupplyGet() (*uint256.Int, error)
	TokenApply(update *Update) error
}

// Ledger is a fungible token with ERC-20 style transfer semantics. Every
// operation either applies fully or leaves the state untouched.
type Ledger struct {
	mu    sync.Mutex
	state ledgerState
}

// NewLedger constructs a ledger over the supplied state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr)
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply()
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender)
}

// Mint credits amount to the recipient and grows the supply.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.supply()
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amountOrZero(amount))
	if overflow {
		return ErrSupplyOverflow
	}
	bal, err := l.balance(to)
	if err != nil {
		return err
	}
	// The supply bounds every balance, so this addition cannot overflow.
	next := new(uint256.Int).Add(bal, amountOrZero(amount))
	return l.state.TokenApply(&Update{
		Balances: map[common.Address]*uint256.Int{to: next},
		Supply:   nextSupply,
	})
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.TokenApply(&Update{
		Allowances: map[Allowance]*uint256.Int{{Owner: owner, Spender: spender}: new(uint256.Int).Set(amountOrZero(amount))},
	})
}

// Transfer moves amount from sender to the recipient.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	update, err := l.move(from, to, amountOrZero(amount))
	if err != nil {
		return err
	}
	return l.state.TokenApply(update)
}

// TransferFrom moves amount from owner to the recipient, spending the
// allowance granted to spender.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amount = amountOrZero(amount)
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed, err := l.allowance(from, spender)
	if err != nil {
		return err
	}
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	update, err := l.move(from, to, amount)
	if err != nil {
		return err
	}
	update.Allowances = map[Allowance]*uint256.Int{
		{Owner: from, Spender: spender}: new(uint256.Int).Sub(allowed, amount),
	}
	return l.state.TokenApply(update)
}

// Bind returns a handle that acts on behalf of self.
func (l *Ledger) Bind(self common.Address) *Binding {
	return &Binding{ledger: l, self: self}
}

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) (*Update, error) {
	if from == (common.Address{}) || to == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	fromBal, err := l.balance(from)
	if err != nil {
		return nil, err
	}
	if fromBal.Lt(amount) {
		return nil, ErrInsufficientBalance
	}
	if from == to {
		return &Update{}, nil
	}
	toBal, err := l.balance(to)
	if err != nil {
		return nil, err
	}
	return &Update{
		Balances: map[common.Address]*uint256.Int{
			from: new(uint256.Int).Sub(fromBal, amount),
			to:   new(uint256.Int).Add(toBal, amount),
		},
	}, nil
}

func (l *Ledger) balance(addr common.Address) (*uint256.Int, error) {
	bal, err := l.state.TokenBalanceGet(addr)
	if err != nil {
		return nil, err
	}
	return amountOrZero(bal), nil
}

func (l *Ledger) allowance(owner, spender common.Address) (*uint256.Int, error) {
	allowed, err := l.state.TokenAllowanceGet(owner, spender)
	if err != nil {
		return nil, err
	}
	return amountOrZero(allowed), nil
}

func (l *Ledger) supply() (*uint256.Int, error) {
	supply, err := l.state.TokenSupplyGet()
	if err != nil {
		return nil, err
	}
	return amountOrZero(supply), nil
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Binding is a ledger handle whose transfers originate from a fixed
// account, the way a contract calls a token on its own behalf.
type Binding struct {
	ledger *Ledger
	self   common.Address
}

// Address returns the account the binding acts for.
func (b *Binding) Address() common.Address { return b.self }

// Transfer sends amount from the bound account.
func (b *Binding) Transfer(to common.Address, amount *uint256.Int) error {
	return b.ledger.Transfer(b.self, to, amount)
}

// TransferFrom pulls amount from owner using the bound account's allowance.
func (b *Binding) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	return b.ledger.TransferFrom(b.self, from, to, amount)
}

// BalanceOf proxies to the ledger.
func (b *Binding) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return b.ledger.BalanceOf(addr)
}
