package custody

import (
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// Re-export common types for convenience so users don't have to import the
// model packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Principal is re-exported from account package.
type Principal = account.Principal

// Account is re-exported from account package.
type Account = account.Account

// Settlement is re-exported from settlement package.
type Settlement = settlement.Settlement

// Re-export Amount constructors
var (
	NewAmount       = types.NewAmount
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	MaxAmount       = types.MaxAmount
	ZeroAmount      = types.ZeroAmount
	Sum             = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
