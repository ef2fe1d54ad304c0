package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/types"
)

// DefaultStorageByteCost is the per-byte storage price used when none is
// configured: 10^19 base units.
var DefaultStorageByteCost = types.Pow10(19)

// StoragePricer supplies the network's current per-byte storage price.
// The price is an environment input and never stored with an account.
type StoragePricer interface {
	StorageByteCost(ctx context.Context) types.Amount
}

// FixedStoragePrice is a StoragePricer that never changes.
type FixedStoragePrice types.Amount

// StorageByteCost implements StoragePricer.
func (p FixedStoragePrice) StorageByteCost(context.Context) types.Amount {
	return types.Amount(p)
}

// Directory owns every account record. It is the only writer of account
// state and refuses to persist an insolvent record.
//
// Directory methods do not serialize access on their own. Callers that
// load, mutate and save a record hold Lock for that principal across the
// whole sequence.
type Directory struct {
	store  account.Store
	pricer StoragePricer
	locks  keyedMutex
	now    func() time.Time
}

// NewDirectory returns a Directory over s. A nil pricer selects
// DefaultStorageByteCost.
func NewDirectory(s account.Store, pricer StoragePricer) *Directory {
	if pricer == nil {
		pricer = FixedStoragePrice(DefaultStorageByteCost)
	}
	return &Directory{
		store:  s,
		pricer: pricer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Lock serializes record updates for p. The returned function releases it.
func (d *Directory) Lock(p account.Principal) (unlock func()) {
	return d.locks.lock(string(p))
}

// ByteCost returns the current per-byte storage price.
func (d *Directory) ByteCost(ctx context.Context) types.Amount {
	return d.pricer.StorageByteCost(ctx)
}

// MinRent returns the minimum rent deposit for a new account.
func (d *Directory) MinRent(ctx context.Context) types.Amount {
	return account.MinRent(d.ByteCost(ctx))
}

// Get loads the record of p. found is false if p is not registered.
func (d *Directory) Get(ctx context.Context, p account.Principal) (a *account.Account, found bool, err error) {
	a, err = d.store.GetAccount(ctx, p)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// Require loads the record of p and fails with ErrAccountNotRegistered
// if there is none.
func (d *Directory) Require(ctx context.Context, p account.Principal) (*account.Account, error) {
	a, found, err := d.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotRegistered, p)
	}
	return a, nil
}

// GetOrDefault loads the record of p or returns a fresh, unsaved one.
func (d *Directory) GetOrDefault(ctx context.Context, p account.Principal) (*account.Account, error) {
	a, found, err := d.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if !found {
		return account.New(p), nil
	}
	return a, nil
}

// Save persists a after checking solvency. A rejected save leaves the
// stored record untouched.
func (d *Directory) Save(ctx context.Context, a *account.Account) error {
	if err := a.AssertSolvent(d.ByteCost(ctx)); err != nil {
		return err
	}
	return d.put(ctx, a)
}

// saveEscrow persists the escrow record without the solvency check, so
// that failed transfers can always be parked even before the owner has
// paid rent.
func (d *Directory) saveEscrow(ctx context.Context, a *account.Account) error {
	return d.put(ctx, a)
}

func (d *Directory) put(ctx context.Context, a *account.Account) error {
	a.UpdatedAt = d.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
	return d.store.PutAccount(ctx, a)
}

// Register adds amount to the rent deposit of p, creating the record if
// needed. The result must be solvent.
func (d *Directory) Register(ctx context.Context, p account.Principal, amount types.Amount) (*account.Account, error) {
	a, err := d.GetOrDefault(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := a.AddRent(amount); err != nil {
		return nil, err
	}
	if err := d.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Remove deletes the record of p and returns its full rent deposit. The
// account must hold no tokens.
func (d *Directory) Remove(ctx context.Context, p account.Principal) (types.Amount, error) {
	a, err := d.Require(ctx, p)
	if err != nil {
		return types.ZeroAmount, err
	}
	if !a.IsEmpty() {
		return types.ZeroAmount, fmt.Errorf("%w: %s", ErrNonZeroBalance, p)
	}
	if err := d.store.DeleteAccount(ctx, p); err != nil {
		return types.ZeroAmount, err
	}
	return a.RentDeposit, nil
}
