package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

type recorder struct {
	name string
	mu   sync.Mutex
	got  []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	return r.err
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func (r *recorder) OnDeposited(_ context.Context, p account.Principal, a types.Amount) error {
	return r.add("deposited:" + p.String() + ":" + a.String())
}

func (r *recorder) OnSettlementResolved(_ context.Context, s *settlement.Settlement, _ time.Duration) error {
	return r.add("resolved:" + string(s.Status))
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnClaimed(ctx context.Context, _ account.Principal, _ types.Amount) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	require.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("b"))
	assert.Len(t, r.List(), 1)
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))

	ctx := context.Background()
	r.EmitDeposited(ctx, "alice", types.NewAmount(5))
	st := settlement.New("alice", types.NewAmount(1))
	st.Status = settlement.StatusCommitted
	r.EmitSettlementResolved(ctx, st, time.Second)
	// Not implemented by recorder; must be a no-op.
	r.EmitClaimed(ctx, "alice", types.NewAmount(1))

	assert.Equal(t, []string{"deposited:alice:5", "resolved:committed"}, rec.events())
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec", err: errors.New("boom")}
	require.NoError(t, r.Register(rec))

	r.EmitDeposited(context.Background(), "alice", types.NewAmount(1))
	assert.Len(t, rec.events(), 1)
}

func TestHookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	r.EmitClaimed(ctx, "alice", types.NewAmount(1))
	assert.Less(t, time.Since(start), time.Second)
}
