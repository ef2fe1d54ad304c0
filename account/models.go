// Package account holds the per-principal balance record and its checked
// arithmetic. Nothing here touches storage; persistence goes through Store.
package account

import (
	"errors"
	"fmt"

	"github.com/xraph/custody/types"
)

// Balance errors. Insufficient-balance errors wrap types.ErrUnderflow so
// that callers matching on arithmetic failures see them too.
var (
	ErrInsufficientLocked  = fmt.Errorf("custody: insufficient locked balance: %w", types.ErrUnderflow)
	ErrInsufficientClaimed = fmt.Errorf("custody: insufficient claimed balance: %w", types.ErrUnderflow)
	ErrInsufficientDeposit = errors.New("custody: insufficient deposit for storage")
	ErrNonZeroBalance      = errors.New("custody: account has a non-zero token balance")
)

// StorageUsage is a size in bytes.
type StorageUsage uint64

// InitStorage is the storage attributed to one account record: three
// 16-byte balances plus an 8-byte usage counter.
const InitStorage StorageUsage = 16 + 16 + 16 + 8

// Account is the balance record of one principal.
type Account struct {
	types.Entity
	Principal     Principal    `json:"principal"`
	RentDeposit   types.Amount `json:"rent_deposit"`
	AmountLocked  types.Amount `json:"amount_locked"`
	AmountClaimed types.Amount `json:"amount_claimed"`
	StorageUsed   StorageUsage `json:"storage_used"`
}

// New returns an unsaved, empty account for p.
func New(p Principal) *Account {
	return &Account{
		Entity:      types.NewEntity(),
		Principal:   p,
		StorageUsed: InitStorage,
	}
}

// Deposit adds amount to the locked balance.
func (a *Account) Deposit(amount types.Amount) error {
	locked, err := a.AmountLocked.Add(amount)
	if err != nil {
		return fmt.Errorf("deposit %s to %s: %w", amount, a.Principal, err)
	}
	a.AmountLocked = locked
	return nil
}

// Withdraw subtracts amount from the claimed balance.
func (a *Account) Withdraw(amount types.Amount) error {
	if amount.Gt(a.AmountClaimed) {
		return ErrInsufficientClaimed
	}
	claimed, err := a.AmountClaimed.Sub(amount)
	if err != nil {
		return err
	}
	a.AmountClaimed = claimed
	return nil
}

// Claim moves amount from locked to claimed. Either both fields change or
// neither does.
func (a *Account) Claim(amount types.Amount) error {
	if amount.Gt(a.AmountLocked) {
		return ErrInsufficientLocked
	}
	locked, err := a.AmountLocked.Sub(amount)
	if err != nil {
		return err
	}
	claimed, err := a.AmountClaimed.Add(amount)
	if err != nil {
		return fmt.Errorf("claim %s for %s: %w", amount, a.Principal, err)
	}
	a.AmountLocked, a.AmountClaimed = locked, claimed
	return nil
}

// DepositToClaim credits amount straight to the claimed balance. It is only
// used to return or park funds from a failed transfer.
func (a *Account) DepositToClaim(amount types.Amount) error {
	claimed, err := a.AmountClaimed.Add(amount)
	if err != nil {
		return fmt.Errorf("credit %s to %s: %w", amount, a.Principal, err)
	}
	a.AmountClaimed = claimed
	return nil
}

// AddRent increases the storage rent deposit.
func (a *Account) AddRent(amount types.Amount) error {
	rent, err := a.RentDeposit.Add(amount)
	if err != nil {
		return fmt.Errorf("add rent %s to %s: %w", amount, a.Principal, err)
	}
	a.RentDeposit = rent
	return nil
}

// WithdrawRent decreases the storage rent deposit. It does not check
// solvency; the directory does that on save.
func (a *Account) WithdrawRent(amount types.Amount) error {
	rent, err := a.RentDeposit.Sub(amount)
	if err != nil {
		return fmt.Errorf("withdraw rent %s from %s: %w", amount, a.Principal, err)
	}
	a.RentDeposit = rent
	return nil
}

// StorageRentCost is the rent this record must carry at the given per-byte
// price. It saturates at types.MaxAmount.
func (a *Account) StorageRentCost(byteCost types.Amount) types.Amount {
	return rentFor(a.StorageUsed, byteCost)
}

// StorageAvailable is the rent deposit above the required minimum, floored at zero.
func (a *Account) StorageAvailable(byteCost types.Amount) types.Amount {
	return a.RentDeposit.SaturatingSub(a.StorageRentCost(byteCost))
}

// AssertSolvent fails with ErrInsufficientDeposit when the rent deposit does
// not cover the storage cost.
func (a *Account) AssertSolvent(byteCost types.Amount) error {
	cost := a.StorageRentCost(byteCost)
	if cost.Gt(a.RentDeposit) {
		return fmt.Errorf("%w: %s needs %s, has %s", ErrInsufficientDeposit, a.Principal, cost, a.RentDeposit)
	}
	return nil
}

// IsSolvent is AssertSolvent without the error detail.
func (a *Account) IsSolvent(byteCost types.Amount) bool {
	return a.AssertSolvent(byteCost) == nil
}

// IsEmpty reports whether the account holds no tokens. Rent is not counted.
func (a *Account) IsEmpty() bool {
	return a.AmountLocked.IsZero() && a.AmountClaimed.IsZero()
}

// Balance returns (locked, claimed).
func (a *Account) Balance() (locked, claimed types.Amount) {
	return a.AmountLocked, a.AmountClaimed
}

// Clone returns a copy that can be mutated without touching a.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// MinRent is the smallest rent deposit a new account can register with.
func MinRent(byteCost types.Amount) types.Amount {
	return rentFor(InitStorage, byteCost)
}

func rentFor(usage StorageUsage, byteCost types.Amount) types.Amount {
	cost, err := types.NewAmount(uint64(usage)).Mul(byteCost)
	if err != nil {
		return types.MaxAmount()
	}
	return cost
}
