package custody

import (
	"context"
	"fmt"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/types"
)

// Register adds amount to the rent deposit of p, creating the account on
// first use. Repeated calls accumulate. The resulting deposit must cover
// the account's storage rent.
func (l *Ledger) Register(ctx context.Context, p account.Principal, amount types.Amount) (*account.Account, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	unlock := l.dir.Lock(p)
	defer unlock()

	a, err := l.dir.Register(ctx, p, amount)
	if err != nil {
		return nil, err
	}

	l.plugins.EmitAccountRegistered(ctx, a, amount)
	return a, nil
}

// Deposit adds amount to the locked balance of p. It is the host's
// credit entry point and does not consult the caller.
func (l *Ledger) Deposit(ctx context.Context, p account.Principal, amount types.Amount) (*account.Account, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	a, err := l.deposit(ctx, p, amount)
	if err != nil {
		return nil, err
	}

	l.plugins.EmitDeposited(ctx, p, amount)
	return a, nil
}

func (l *Ledger) deposit(ctx context.Context, p account.Principal, amount types.Amount) (*account.Account, error) {
	unlock := l.dir.Lock(p)
	defer unlock()

	a, err := l.dir.Require(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := a.Deposit(amount); err != nil {
		return nil, err
	}
	if err := l.dir.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Claim makes the caller's entire locked balance claimable and returns
// the amount moved. Claiming an empty locked balance succeeds with zero.
func (l *Ledger) Claim(ctx context.Context) (types.Amount, error) {
	p, err := caller(ctx)
	if err != nil {
		return types.ZeroAmount, err
	}

	amount, err := l.claim(ctx, p)
	if err != nil {
		return types.ZeroAmount, err
	}

	l.logger.Debug("tokens claimed", "principal", p, "amount", amount)
	l.plugins.EmitClaimed(ctx, p, amount)
	return amount, nil
}

func (l *Ledger) claim(ctx context.Context, p account.Principal) (types.Amount, error) {
	unlock := l.dir.Lock(p)
	defer unlock()

	a, err := l.dir.Require(ctx, p)
	if err != nil {
		return types.ZeroAmount, err
	}
	amount := a.AmountLocked
	if err := a.Claim(amount); err != nil {
		return types.ZeroAmount, err
	}
	if err := l.dir.Save(ctx, a); err != nil {
		return types.ZeroAmount, err
	}
	return amount, nil
}

// Purchase buys amount tokens for the caller at the configured token
// price. The attached deposit must equal the total price exactly. The
// tokens are credited to the locked balance.
func (l *Ledger) Purchase(ctx context.Context, amount types.Amount) (*account.Account, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	price, err := amount.Mul(l.tokenPrice)
	if err != nil {
		return nil, fmt.Errorf("custody: purchase price: %w", err)
	}
	if attached := AttachedDepositFrom(ctx); !attached.Eq(price) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongAttachedDeposit, attached, price)
	}

	a, err := l.deposit(ctx, p, amount)
	if err != nil {
		return nil, err
	}

	l.logger.Info("tokens purchased", "principal", p, "amount", amount, "price", price)
	l.plugins.EmitDeposited(ctx, p, amount)
	return a, nil
}

// GetBalance returns the locked and claimed balances of p.
func (l *Ledger) GetBalance(ctx context.Context, p account.Principal) (locked, claimed types.Amount, err error) {
	if err := p.Validate(); err != nil {
		return types.ZeroAmount, types.ZeroAmount, err
	}
	a, err := l.dir.Require(ctx, p)
	if err != nil {
		return types.ZeroAmount, types.ZeroAmount, err
	}
	locked, claimed = a.Balance()
	return locked, claimed, nil
}

// GetAccount returns the full record of p.
func (l *Ledger) GetAccount(ctx context.Context, p account.Principal) (*account.Account, error) {
	return l.dir.Require(ctx, p)
}

// ListAccounts lists registered accounts ordered by principal.
func (l *Ledger) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, opts)
}
