package account

import "context"

type Store interface {
	GetAccount(ctx context.Context, p Principal) (*Account, error)
	PutAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, p Principal) error
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
