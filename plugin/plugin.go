// Package plugin provides an extensible plugin system for Custody.
// Plugins can hook into balance and settlement events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered is called after a rent deposit was accepted for an account.
type OnAccountRegistered interface {
	Plugin
	OnAccountRegistered(ctx context.Context, a *account.Account, deposit types.Amount) error
}

// OnAccountUnregistered is called after an account record was removed.
type OnAccountUnregistered interface {
	Plugin
	OnAccountUnregistered(ctx context.Context, p account.Principal, refund types.Amount) error
}

// OnRentWithdrawn is called after surplus rent was released to its owner.
type OnRentWithdrawn interface {
	Plugin
	OnRentWithdrawn(ctx context.Context, p account.Principal, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposited is called after tokens were added to a locked balance.
type OnDeposited interface {
	Plugin
	OnDeposited(ctx context.Context, p account.Principal, amount types.Amount) error
}

// OnClaimed is called after locked tokens became claimable.
type OnClaimed interface {
	Plugin
	OnClaimed(ctx context.Context, p account.Principal, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested is called once a withdrawal has been debited and
// its pending settlement persisted.
type OnWithdrawalRequested interface {
	Plugin
	OnWithdrawalRequested(ctx context.Context, s *settlement.Settlement) error
}

// OnWithdrawalDispatched is called after a settlement was handed to the transferer.
type OnWithdrawalDispatched interface {
	Plugin
	OnWithdrawalDispatched(ctx context.Context, s *settlement.Settlement) error
}

// OnSettlementResolved is called once per settlement when it reaches a
// terminal status. elapsed runs from the withdrawal request.
type OnSettlementResolved interface {
	Plugin
	OnSettlementResolved(ctx context.Context, s *settlement.Settlement, elapsed time.Duration) error
}

// OnEscrowCredited is called when a failed transfer could not be returned
// to its sender and was credited to the owner instead.
type OnEscrowCredited interface {
	Plugin
	OnEscrowCredited(ctx context.Context, s *settlement.Settlement, owner account.Principal) error
}

// OnProtocolViolation is called when a transfer callback was rejected.
type OnProtocolViolation interface {
	Plugin
	OnProtocolViolation(ctx context.Context, settlementID string, err error) error
}
