// Package storetest is a conformance suite shared by the store drivers.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
)

// Run exercises s against the behavior every driver must share.
// newStore is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("AccountRoundTrip", func(t *testing.T) { testAccountRoundTrip(t, newStore(t)) })
	t.Run("AccountUpsert", func(t *testing.T) { testAccountUpsert(t, newStore(t)) })
	t.Run("AccountDelete", func(t *testing.T) { testAccountDelete(t, newStore(t)) })
	t.Run("AccountList", func(t *testing.T) { testAccountList(t, newStore(t)) })
	t.Run("SettlementRoundTrip", func(t *testing.T) { testSettlementRoundTrip(t, newStore(t)) })
	t.Run("SettlementTransition", func(t *testing.T) { testSettlementTransition(t, newStore(t)) })
	t.Run("SettlementList", func(t *testing.T) { testSettlementList(t, newStore(t)) })
}

func newAccount(t *testing.T, p account.Principal, locked, claimed, rent string) *account.Account {
	t.Helper()
	a := account.New(p)
	a.AmountLocked = types.MustParseAmount(locked)
	a.AmountClaimed = types.MustParseAmount(claimed)
	a.RentDeposit = types.MustParseAmount(rent)
	return a
}

func testAccountRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "alice")
	require.ErrorIs(t, err, custody.ErrAccountNotFound)

	// 2^128-1 must survive every encoding.
	a := newAccount(t, "alice", "340282366920938463463374607431768211455", "7", "560")
	require.NoError(t, s.PutAccount(ctx, a))

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a.Principal, got.Principal)
	assert.True(t, a.AmountLocked.Eq(got.AmountLocked), "locked %s", got.AmountLocked)
	assert.True(t, a.AmountClaimed.Eq(got.AmountClaimed))
	assert.True(t, a.RentDeposit.Eq(got.RentDeposit))
	assert.Equal(t, account.InitStorage, got.StorageUsed)

	// Mutating the returned record must not leak into the store.
	require.NoError(t, got.DepositToClaim(types.NewAmount(1)))
	again, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "7", again.AmountClaimed.String())
}

func testAccountUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutAccount(ctx, newAccount(t, "alice", "1", "0", "560")))
	require.NoError(t, s.PutAccount(ctx, newAccount(t, "alice", "0", "1", "600")))

	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0", got.AmountLocked.String())
	assert.Equal(t, "1", got.AmountClaimed.String())
	assert.Equal(t, "600", got.RentDeposit.String())

	list, err := s.ListAccounts(ctx, account.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testAccountDelete(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutAccount(ctx, newAccount(t, "alice", "0", "0", "560")))
	require.NoError(t, s.DeleteAccount(ctx, "alice"))

	_, err := s.GetAccount(ctx, "alice")
	require.ErrorIs(t, err, custody.ErrAccountNotFound)
	require.ErrorIs(t, s.DeleteAccount(ctx, "alice"), custody.ErrAccountNotFound)
}

func testAccountList(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, p := range []account.Principal{"carol", "alice", "bob"} {
		require.NoError(t, s.PutAccount(ctx, newAccount(t, p, "0", "0", "560")))
	}

	all, err := s.ListAccounts(ctx, account.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, account.Principal("alice"), all[0].Principal)
	assert.Equal(t, account.Principal("carol"), all[2].Principal)

	page, err := s.ListAccounts(ctx, account.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, account.Principal("bob"), page[0].Principal)
}

func testSettlementRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSettlement(ctx, id.NewSettlementID())
	require.ErrorIs(t, err, custody.ErrSettlementNotFound)

	st := settlement.New("alice", types.MustParseAmount("1000000000000000000000000"))
	require.NoError(t, s.CreateSettlement(ctx, st))

	got, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID.String(), got.ID.String())
	assert.Equal(t, st.TransferID.String(), got.TransferID.String())
	assert.Equal(t, st.Sender, got.Sender)
	assert.True(t, st.Amount.Eq(got.Amount))
	assert.Equal(t, settlement.StatusPending, got.Status)
	assert.Nil(t, got.DispatchedAt)
	assert.Nil(t, got.ResolvedAt)
}

func testSettlementTransition(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	st := settlement.New("alice", types.NewAmount(5))
	require.NoError(t, s.CreateSettlement(ctx, st))

	dispatched := st.MarkDispatched(now)
	require.NoError(t, s.TransitionSettlement(ctx, settlement.StatusPending, dispatched))

	// A second dispatch of the same record loses the race.
	err := s.TransitionSettlement(ctx, settlement.StatusPending, dispatched)
	require.ErrorIs(t, err, custody.ErrSettlementConflict)

	resolved := dispatched.Resolve(settlement.StatusEscrowed, "owner", "rejected", now)
	require.NoError(t, s.TransitionSettlement(ctx, settlement.StatusDispatched, resolved))

	got, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusEscrowed, got.Status)
	assert.Equal(t, account.Principal("owner"), got.Beneficiary)
	assert.Equal(t, "rejected", got.FailureReason)
	require.NotNil(t, got.DispatchedAt)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, now.Equal(*got.ResolvedAt), "resolved at %v", got.ResolvedAt)

	missing := settlement.New("bob", types.NewAmount(1))
	err = s.TransitionSettlement(ctx, settlement.StatusPending, missing)
	require.ErrorIs(t, err, custody.ErrSettlementNotFound)
}

func testSettlementList(t *testing.T, s store.Store) {
	ctx := context.Background()

	a1 := settlement.New("alice", types.NewAmount(1))
	a2 := settlement.New("alice", types.NewAmount(2))
	b1 := settlement.New("bob", types.NewAmount(3))
	for _, st := range []*settlement.Settlement{a1, a2, b1} {
		require.NoError(t, s.CreateSettlement(ctx, st))
	}
	require.NoError(t, s.TransitionSettlement(ctx, settlement.StatusPending, a2.MarkDispatched(time.Now().UTC())))

	pending, err := s.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	alice, err := s.ListSettlements(ctx, settlement.ListOpts{Sender: "alice"})
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	limited, err := s.ListSettlements(ctx, settlement.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
