// Package custody keeps per-principal token balances for a custodial
// service and settles withdrawals through an external token transfer.
//
// Custody is designed as a library, not a service. Every account carries:
//
//   - a rent deposit in the native currency that pays for its storage
//   - a locked balance of purchased or granted tokens
//   - a claimed balance that may be withdrawn
//
// No record is ever persisted while its rent deposit is below its
// storage rent cost, and every balance change uses checked 128-bit
// arithmetic.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/custody"
//	    "github.com/xraph/custody/store/postgres"
//	)
//
//	l, err := custody.New(store,
//	    custody.WithOwner("treasury.example"),
//	    custody.WithTransferer(wallet),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// Caller identity and the native funds attached to a call travel in the
// context:
//
//	ctx = custody.WithCaller(ctx, "alice.example")
//	ctx = custody.WithAttachedDeposit(ctx, custody.NewAmount(1))
//	st, err := l.Withdraw(ctx, custody.MustParseAmount("100"))
//
// # Settlement
//
// A withdrawal debits the claimed balance and persists a pending
// settlement before anything leaves the ledger. Dispatch workers hand it
// to the Transferer and the outcome is applied exactly once:
//
//	pending -> dispatched -> committed | refunded | escrowed
//
// A failed transfer is credited back to the sender while the sender is
// registered and solvent. Otherwise the funds go to the owner account.
// Transferers that learn the outcome later report it through Reconcile.
//
// # TypeID
//
// Settlements and transfers use TypeIDs:
//
//	stl_01h2xcejqtf2nbrexx3vqjhp41  // Settlement ID
//	xfr_01h2xcejqtf2nbrexx3vqjhp41  // Transfer ID
package custody
