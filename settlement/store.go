package settlement

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
)

type Store interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, settlementID id.SettlementID) (*Settlement, error)
	ListSettlements(ctx context.Context, opts ListOpts) ([]*Settlement, error)
	// TransitionSettlement replaces the stored record with next only if its
	// current status is from. Otherwise it returns ErrSettlementConflict.
	TransitionSettlement(ctx context.Context, from Status, next *Settlement) error
}

type ListOpts struct {
	Status Status
	Sender account.Principal
	Limit  int
	Offset int
}
