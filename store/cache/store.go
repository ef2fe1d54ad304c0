// Package cache decorates a Store with an in-process LRU of account records.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/store"
)

var _ store.Store = (*Store)(nil)

// DefaultSize is the number of accounts kept when no size is given.
const DefaultSize = 4096

// Store serves account reads from an LRU and writes through to the
// wrapped store. Settlement records are never cached.
type Store struct {
	store.Store

	// mu spans the backing read and the cache fill so a concurrent write
	// cannot be overwritten by a stale load.
	mu    sync.Mutex
	cache *lru.Cache
}

// New wraps inner. size <= 0 selects DefaultSize.
func New(inner store.Store, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Store{Store: inner, cache: c}, nil
}

func (s *Store) GetAccount(ctx context.Context, p account.Principal) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(p); ok {
		return v.(*account.Account).Clone(), nil
	}
	a, err := s.Store.GetAccount(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cache.Add(p, a.Clone())
	return a, nil
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Store.PutAccount(ctx, a); err != nil {
		s.cache.Remove(a.Principal)
		return err
	}
	s.cache.Add(a.Principal, a.Clone())
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, p account.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Remove(p)
	return s.Store.DeleteAccount(ctx, p)
}

// Purge drops every cached account.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
}

// Len returns the number of cached accounts.
func (s *Store) Len() int {
	return s.cache.Len()
}
