package access

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotOwner is returned when a non-owner attempts an owner-only action.
	ErrNotOwner = errors.New("access: caller is not the owner")
	// ErrInvalidOwner is returned for the zero address.
	ErrInvalidOwner = errors.New("access: new owner is the zero address")
)

// Store persists the owner across process restarts.
type Store interface {
	OwnerGet() (common.Address, bool, error)
	OwnerPut(owner common.Address) error
}

// Ownable is a single-owner capability holder. It is safe for concurrent use.
type Ownable struct {
	mu    sync.RWMutex
	owner common.Address
	store Store
}

// NewOwnable returns an Ownable administered by owner.
func NewOwnable(owner common.Address) (*Ownable, error) {
	if owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	return &Ownable{owner: owner}, nil
}

// LoadOwnable restores the owner from store, seeding it with fallback on
// first use.
func LoadOwnable(store Store, fallback common.Address) (*Ownable, error) {
	if store == nil {
		return NewOwnable(fallback)
	}
	owner, ok, err := store.OwnerGet()
	if err != nil {
		return nil, err
	}
	if !ok || owner == (common.Address{}) {
		if fallback == (common.Address{}) {
			return nil, ErrInvalidOwner
		}
		if err := store.OwnerPut(fallback); err != nil {
			return nil, err
		}
		owner = fallback
	}
	return &Ownable{owner: owner, store: store}, nil
}

// Owner returns the current owner.
func (o *Ownable) Owner() common.Address {
	if o == nil {
		return common.Address{}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// IsOwner reports whether caller holds the owner capability.
func (o *Ownable) IsOwner(caller common.Address) bool {
	if o == nil || caller == (common.Address{}) {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner == caller
}

// TransferOwnership hands the capability to next. Only the current owner may
// call it.
func (o *Ownable) TransferOwnership(caller, next common.Address) error {
	if o == nil {
		return ErrNotOwner
	}
	if next == (common.Address{}) {
		return ErrInvalidOwner
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return ErrNotOwner
	}
	if o.store != nil {
		if err := o.store.OwnerPut(next); err != nil {
			return err
		}
	}
	o.owner = next
	return nil
}
