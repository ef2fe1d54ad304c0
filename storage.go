package custody

import (
	"context"
	"fmt"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/types"
)

// StorageBalance is the rent deposit of an account. Available is the part
// above the storage rent cost that may be withdrawn.
type StorageBalance struct {
	Total     types.Amount `json:"total"`
	Available types.Amount `json:"available"`
}

// StorageBalanceBounds are the limits on a rent deposit. A nil Max means
// there is no upper bound.
type StorageBalanceBounds struct {
	Min types.Amount  `json:"min"`
	Max *types.Amount `json:"max"`
}

func (l *Ledger) storageBalance(ctx context.Context, a *account.Account) *StorageBalance {
	return &StorageBalance{
		Total:     a.RentDeposit,
		Available: a.StorageAvailable(l.dir.ByteCost(ctx)),
	}
}

// StorageDeposit pays the attached deposit into the rent deposit of
// accountID, or of the caller when accountID is empty. A new account needs
// at least the minimum balance.
//
// With registrationOnly set, an unregistered account is created with
// exactly the minimum and the rest is refunded, while an already
// registered account gets the whole deposit back. The returned refund is
// owed to the caller.
func (l *Ledger) StorageDeposit(ctx context.Context, accountID account.Principal, registrationOnly bool) (*StorageBalance, types.Amount, error) {
	if accountID == "" {
		p, err := caller(ctx)
		if err != nil {
			return nil, types.ZeroAmount, err
		}
		accountID = p
	} else if err := accountID.Validate(); err != nil {
		return nil, types.ZeroAmount, err
	}
	amount := AttachedDepositFrom(ctx)

	unlock := l.dir.Lock(accountID)
	defer unlock()

	a, registered, err := l.dir.Get(ctx, accountID)
	if err != nil {
		return nil, types.ZeroAmount, err
	}

	minimum := l.dir.MinRent(ctx)
	if !registered && amount.Lt(minimum) {
		return nil, types.ZeroAmount, fmt.Errorf("%w: got %s, want %s", ErrDepositBelowMinimum, amount, minimum)
	}

	credit, refund := amount, types.ZeroAmount
	if registrationOnly {
		if registered {
			l.logger.Info("account is already registered",
				"principal", accountID,
				"refund", amount,
			)
			return l.storageBalance(ctx, a), amount, nil
		}
		credit, refund = minimum, amount.SaturatingSub(minimum)
	}

	a, err = l.dir.Register(ctx, accountID, credit)
	if err != nil {
		return nil, types.ZeroAmount, err
	}

	l.plugins.EmitAccountRegistered(ctx, a, credit)
	return l.storageBalance(ctx, a), refund, nil
}

// StorageWithdraw releases rent above the storage cost of the caller. A
// zero amount withdraws everything available. It needs an attached
// deposit of exactly one base unit and returns the amount released.
func (l *Ledger) StorageWithdraw(ctx context.Context, amount types.Amount) (*StorageBalance, types.Amount, error) {
	if err := requireOneUnit(ctx); err != nil {
		return nil, types.ZeroAmount, err
	}
	p, err := caller(ctx)
	if err != nil {
		return nil, types.ZeroAmount, err
	}

	a, withdrawn, err := l.storageWithdraw(ctx, p, amount)
	if err != nil {
		return nil, types.ZeroAmount, err
	}

	l.plugins.EmitRentWithdrawn(ctx, p, withdrawn)
	return l.storageBalance(ctx, a), withdrawn, nil
}

func (l *Ledger) storageWithdraw(ctx context.Context, p account.Principal, amount types.Amount) (*account.Account, types.Amount, error) {
	unlock := l.dir.Lock(p)
	defer unlock()

	a, err := l.dir.Require(ctx, p)
	if err != nil {
		return nil, types.ZeroAmount, err
	}

	available := a.StorageAvailable(l.dir.ByteCost(ctx))
	if available.IsZero() {
		return nil, types.ZeroAmount, ErrNothingToWithdraw
	}
	if amount.IsZero() {
		amount = available
	}
	if amount.Gt(available) {
		return nil, types.ZeroAmount, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientDeposit, amount, available)
	}

	if err := a.WithdrawRent(amount); err != nil {
		return nil, types.ZeroAmount, err
	}
	if err := l.dir.Save(ctx, a); err != nil {
		return nil, types.ZeroAmount, err
	}
	return a, amount, nil
}

// StorageUnregister removes the caller's account and returns its rent
// deposit. It reports false when the caller is not registered and fails
// with ErrNonZeroBalance while the account still holds tokens. force is
// accepted for interface compatibility and does not bypass that check.
func (l *Ledger) StorageUnregister(ctx context.Context, force bool) (bool, types.Amount, error) {
	if err := requireOneUnit(ctx); err != nil {
		return false, types.ZeroAmount, err
	}
	p, err := caller(ctx)
	if err != nil {
		return false, types.ZeroAmount, err
	}

	unlock := l.dir.Lock(p)
	defer unlock()

	if _, registered, err := l.dir.Get(ctx, p); err != nil || !registered {
		return false, types.ZeroAmount, err
	}

	refund, err := l.dir.Remove(ctx, p)
	if err != nil {
		return false, types.ZeroAmount, err
	}

	l.logger.Info("account unregistered", "principal", p, "refund", refund, "force", force)
	l.plugins.EmitAccountUnregistered(ctx, p, refund)
	return true, refund, nil
}

// StorageBalanceOf returns the storage balance of p, or nil if p is not
// registered.
func (l *Ledger) StorageBalanceOf(ctx context.Context, p account.Principal) (*StorageBalance, error) {
	a, registered, err := l.dir.Get(ctx, p)
	if err != nil || !registered {
		return nil, err
	}
	return l.storageBalance(ctx, a), nil
}

// StorageBalanceBounds returns the minimum rent deposit for a new account.
func (l *Ledger) StorageBalanceBounds(ctx context.Context) StorageBalanceBounds {
	return StorageBalanceBounds{Min: l.dir.MinRent(ctx)}
}
