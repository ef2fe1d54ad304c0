package store

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
)

// Store is the unified storage interface for all Custody records.
// Drivers return custody.ErrAccountNotFound and custody.ErrSettlementNotFound
// for missing records so the engine can tell absence from failure.
type Store interface {
	account.Store
	settlement.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
