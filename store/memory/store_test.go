package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestClosed(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Ping(context.Background()), custody.ErrStoreClosed)
	require.ErrorIs(t, s.PutAccount(context.Background(), account.New("alice")), custody.ErrStoreClosed)
}
