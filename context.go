package custody

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/types"
)

type contextKey int

const (
	callerKey contextKey = iota
	attachedDepositKey
)

// WithCaller returns a context carrying the principal that issued the call.
func WithCaller(ctx context.Context, p account.Principal) context.Context {
	return context.WithValue(ctx, callerKey, p)
}

// CallerFrom returns the calling principal, if any.
func CallerFrom(ctx context.Context) (account.Principal, bool) {
	p, ok := ctx.Value(callerKey).(account.Principal)
	return p, ok && p != ""
}

// WithAttachedDeposit returns a context carrying the native funds attached
// to the call.
func WithAttachedDeposit(ctx context.Context, amount types.Amount) context.Context {
	return context.WithValue(ctx, attachedDepositKey, amount)
}

// AttachedDepositFrom returns the attached deposit, zero if none.
func AttachedDepositFrom(ctx context.Context) types.Amount {
	if v, ok := ctx.Value(attachedDepositKey).(types.Amount); ok {
		return v
	}
	return types.ZeroAmount
}

// caller returns the validated calling principal.
func caller(ctx context.Context) (account.Principal, error) {
	p, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrMissingCaller
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

var oneUnit = types.NewAmount(1)

// requireOneUnit enforces the 1 base unit authorization deposit.
func requireOneUnit(ctx context.Context) error {
	if !AttachedDepositFrom(ctx).Eq(oneUnit) {
		return ErrAttachedDepositRequired
	}
	return nil
}
