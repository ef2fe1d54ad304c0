package leveldb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/leveldb"
	"github.com/xraph/custody/store/storetest"
	"github.com/xraph/custody/types"
)

func newMem(t *testing.T) store.Store {
	t.Helper()
	s, err := leveldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newMem)
}

func TestPersistentReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "custody")

	s, err := leveldb.New(path, leveldb.Options{})
	require.NoError(t, err)

	a := account.New("alice")
	a.RentDeposit = types.NewAmount(560)
	require.NoError(t, s.PutAccount(ctx, a))
	st := settlement.New("alice", types.NewAmount(9))
	require.NoError(t, s.CreateSettlement(ctx, st))
	require.NoError(t, s.Close())

	s, err = leveldb.New(path, leveldb.Options{CacheSize: 32})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "560", got.RentDeposit.String())

	pending, err := s.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, st.ID.String(), pending[0].ID.String())
}

func TestStatusIndexFollowsTransitions(t *testing.T) {
	ctx := context.Background()
	s := newMem(t)

	st := settlement.New("alice", types.NewAmount(1))
	require.NoError(t, s.CreateSettlement(ctx, st))
	require.NoError(t, s.TransitionSettlement(ctx, settlement.StatusPending, st.MarkDispatched(st.CreatedAt)))

	pending, err := s.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	dispatched, err := s.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusDispatched})
	require.NoError(t, err)
	assert.Len(t, dispatched, 1)
}

func TestPingAfterClose(t *testing.T) {
	s, err := leveldb.NewMem()
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
