package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
)

// Store keeps every record in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[account.Principal]*account.Account

	// Settlement storage
	settlements map[string]*settlement.Settlement

	closed bool
}

func New() *Store {
	return &Store{
		accounts:    make(map[account.Principal]*account.Account),
		settlements: make(map[string]*settlement.Settlement),
	}
}

// Account Store implementation
func (s *Store) GetAccount(_ context.Context, p account.Principal) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[p]; ok {
		return a.Clone(), nil
	}
	return nil, custody.ErrAccountNotFound
}

func (s *Store) PutAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	s.accounts[a.Principal] = a.Clone()
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, p account.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[p]; !ok {
		return custody.ErrAccountNotFound
	}
	delete(s.accounts, p)
	return nil
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Principal < result[j].Principal })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Settlement Store implementation
func (s *Store) CreateSettlement(_ context.Context, st *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	if _, exists := s.settlements[st.ID.String()]; exists {
		return custody.ErrAlreadyExists
	}
	s.settlements[st.ID.String()] = st.Clone()
	return nil
}

func (s *Store) GetSettlement(_ context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.settlements[settlementID.String()]; ok {
		return st.Clone(), nil
	}
	return nil, custody.ErrSettlementNotFound
}

func (s *Store) ListSettlements(_ context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*settlement.Settlement
	for _, st := range s.settlements {
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		if opts.Sender != "" && st.Sender != opts.Sender {
			continue
		}
		result = append(result, st.Clone())
	}
	// TypeIDs are time ordered.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) TransitionSettlement(_ context.Context, from settlement.Status, next *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.settlements[next.ID.String()]
	if !ok {
		return custody.ErrSettlementNotFound
	}
	if current.Status != from {
		return custody.ErrSettlementConflict
	}
	s.settlements[next.ID.String()] = next.Clone()
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
