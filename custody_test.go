package custody_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

const owner account.Principal = "owner.custody"

// byteCost 10 puts the minimum rent at 560.
var byteCost = types.NewAmount(10)

func amt(n uint64) types.Amount { return types.NewAmount(n) }

// pricer is a StoragePricer whose price can change mid-test.
type pricer struct {
	mu   sync.Mutex
	cost types.Amount
}

func (p *pricer) StorageByteCost(context.Context) types.Amount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cost
}

func (p *pricer) set(cost types.Amount) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cost = cost
}

// scripted answers every transfer with result and records the requests.
type scripted struct {
	mu       sync.Mutex
	result   transfer.Result
	requests []transfer.Request
}

func (s *scripted) Transfer(_ context.Context, req transfer.Request) transfer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result
}

func (s *scripted) sent() []transfer.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transfer.Request(nil), s.requests...)
}

// recorder counts plugin events.
type recorder struct {
	mu         sync.Mutex
	resolved   []settlement.Status
	escrowed   int
	violations int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnSettlementResolved(_ context.Context, s *settlement.Settlement, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, s.Status)
	return nil
}

func (r *recorder) OnEscrowCredited(context.Context, *settlement.Settlement, account.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escrowed++
	return nil
}

func (r *recorder) OnProtocolViolation(context.Context, string, error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations++
	return nil
}

type harness struct {
	l     *custody.Ledger
	store *memory.Store
	xfer  *scripted
	price *pricer
	rec   *recorder
}

func newHarness(t *testing.T, result transfer.Result, opts ...custody.Option) *harness {
	t.Helper()

	h := &harness{
		store: memory.New(),
		xfer:  &scripted{result: result},
		price: &pricer{cost: byteCost},
		rec:   &recorder{},
	}
	base := []custody.Option{
		custody.WithOwner(owner),
		custody.WithTransferer(h.xfer),
		custody.WithStoragePricer(h.price),
		custody.WithTokenID("token.custody"),
		custody.WithPlugin(h.rec),
	}
	l, err := custody.New(h.store, append(base, opts...)...)
	require.NoError(t, err)
	h.l = l
	return h
}

// as returns a context for a call by p with deposit attached.
func as(p account.Principal, deposit uint64) context.Context {
	ctx := custody.WithCaller(context.Background(), p)
	return custody.WithAttachedDeposit(ctx, amt(deposit))
}

// fund registers p and makes claimed tokens available to it.
func (h *harness) fund(t *testing.T, p account.Principal, claimed uint64) {
	t.Helper()
	ctx := context.Background()

	_, err := h.l.Register(ctx, p, amt(560))
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, p, amt(claimed))
	require.NoError(t, err)
	got, err := h.l.Claim(as(p, 0))
	require.NoError(t, err)
	require.Equal(t, claimed, mustUint64(t, got))
}

func (h *harness) balance(t *testing.T, p account.Principal) (locked, claimed uint64) {
	t.Helper()
	l, c, err := h.l.GetBalance(context.Background(), p)
	require.NoError(t, err)
	return mustUint64(t, l), mustUint64(t, c)
}

func mustUint64(t *testing.T, a types.Amount) uint64 {
	t.Helper()
	n, ok := a.Uint64()
	require.True(t, ok, "amount %s does not fit uint64", a)
	return n
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := custody.New(memory.New())
	require.ErrorIs(t, err, custody.ErrOwnerRequired)

	_, err = custody.New(memory.New(), custody.WithOwner("Not Valid"))
	require.ErrorIs(t, err, custody.ErrInvalidPrincipal)
}

func TestRegisterAccumulates(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()

	_, err := h.l.Register(ctx, "alice", amt(559))
	require.ErrorIs(t, err, custody.ErrInsufficientDeposit)
	_, err = h.l.GetAccount(ctx, "alice")
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)

	_, err = h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)
	a, err := h.l.Register(ctx, "alice", amt(40))
	require.NoError(t, err)
	assert.Equal(t, "600", a.RentDeposit.String())

	_, err = h.l.Register(ctx, "-alice", amt(560))
	require.ErrorIs(t, err, custody.ErrInvalidPrincipal)
}

func TestDepositRequiresRegistration(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()

	_, err := h.l.Deposit(ctx, "alice", amt(1))
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)

	_, err = h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, "alice", types.ZeroAmount)
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	_, err = h.l.Deposit(ctx, "alice", types.MaxAmount())
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, "alice", amt(1))
	require.ErrorIs(t, err, custody.ErrOverflow)
}

func TestClaimMovesEntireLockedBalance(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()

	_, err := h.l.Claim(as("alice", 0))
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)

	_, err = h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)

	got, err := h.l.Claim(as("alice", 0))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = h.l.Deposit(ctx, "alice", amt(100))
	require.NoError(t, err)
	got, err = h.l.Claim(as("alice", 0))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())

	locked, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(0), locked)
	assert.Equal(t, uint64(100), claimed)

	_, err = h.l.Claim(context.Background())
	require.ErrorIs(t, err, custody.ErrMissingCaller)
}

func TestClaimOverflowLeavesBothBalances(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()

	_, err := h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, "alice", types.MaxAmount())
	require.NoError(t, err)
	_, err = h.l.Claim(as("alice", 0))
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, "alice", amt(1))
	require.NoError(t, err)

	_, err = h.l.Claim(as("alice", 0))
	require.ErrorIs(t, err, custody.ErrOverflow)

	locked, claimed, err := h.l.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", locked.String())
	assert.True(t, claimed.Eq(types.MaxAmount()))
}

func TestGetBalanceUnregistered(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))

	_, _, err := h.l.GetBalance(context.Background(), "nobody")
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)
	assert.True(t, custody.IsValidation(err))
}

func TestPurchase(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""), custody.WithTokenPrice(amt(1000)))
	ctx := context.Background()

	_, err := h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)

	_, err = h.l.Purchase(as("alice", 1999), amt(2))
	require.ErrorIs(t, err, custody.ErrWrongAttachedDeposit)
	_, err = h.l.Purchase(as("alice", 2001), amt(2))
	require.ErrorIs(t, err, custody.ErrWrongAttachedDeposit)

	a, err := h.l.Purchase(as("alice", 2000), amt(2))
	require.NoError(t, err)
	assert.Equal(t, "2", a.AmountLocked.String())

	_, err = h.l.Purchase(as("alice", 0), types.MaxAmount())
	require.ErrorIs(t, err, custody.ErrOverflow)

	_, err = h.l.Purchase(as("alice", 0), types.ZeroAmount)
	require.ErrorIs(t, err, custody.ErrInvalidAmount)

	_, err = h.l.Purchase(as("bob", 1000), amt(1))
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)
}

func TestPurchaseDefaultPrice(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := custody.WithCaller(context.Background(), "alice")
	ctx = custody.WithAttachedDeposit(ctx, types.MustParseAmount("3000000000000000000000000"))

	_, err := h.l.Register(context.Background(), "alice", amt(560))
	require.NoError(t, err)
	a, err := h.l.Purchase(ctx, amt(3))
	require.NoError(t, err)
	assert.Equal(t, "3", a.AmountLocked.String())
}

func TestWithdrawValidation(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	h.fund(t, "alice", 100)

	tests := []struct {
		name   string
		ctx    context.Context
		amount types.Amount
		want   error
	}{
		{"no token", as("alice", 0), amt(10), custody.ErrAttachedDepositRequired},
		{"two units", as("alice", 2), amt(10), custody.ErrAttachedDepositRequired},
		{"zero amount", as("alice", 1), types.ZeroAmount, custody.ErrInvalidAmount},
		{"no caller", custody.WithAttachedDeposit(context.Background(), amt(1)), amt(10), custody.ErrMissingCaller},
		{"bad caller", as("Alice", 1), amt(10), custody.ErrInvalidPrincipal},
		{"unregistered", as("bob", 1), amt(10), custody.ErrAccountNotRegistered},
		{"too much", as("alice", 1), amt(101), custody.ErrInsufficientClaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.l.Withdraw(tt.ctx, tt.amount)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, custody.IsValidation(err) || custody.IsArithmetic(err), "unclassified: %v", err)
		})
	}

	_, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(100), claimed)

	list, err := h.l.ListSettlements(context.Background(), settlement.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWithdrawSuccessCommits(t *testing.T) {
	h := newHarness(t, transfer.Succeeded("0xabc"))
	h.fund(t, "alice", 100)
	ctx := context.Background()

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPending, st.Status)

	// The debit is visible before dispatch.
	locked, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(0), locked)
	assert.Equal(t, uint64(0), claimed)

	n, err := h.l.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent := h.xfer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, account.Principal("alice"), sent[0].Receiver)
	assert.Equal(t, "100", sent[0].Amount.String())
	assert.Equal(t, "token.custody", sent[0].TokenID)
	assert.Equal(t, st.TransferID.String(), sent[0].TransferID.String())

	got, err := h.l.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusCommitted, got.Status)
	assert.Empty(t, got.Beneficiary)

	_, claimed = h.balance(t, "alice")
	assert.Equal(t, uint64(0), claimed)
	_, err = h.l.GetAccount(ctx, owner)
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)

	// A second sweep finds nothing to send.
	n, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, h.xfer.sent(), 1)
	assert.Equal(t, []settlement.Status{settlement.StatusCommitted}, h.rec.resolved)
}

func TestWithdrawFailureRefundsSender(t *testing.T) {
	h := newHarness(t, transfer.Failed(errors.New("receiver not registered with token")))
	h.fund(t, "alice", 100)

	st, err := h.l.Withdraw(as("alice", 1), amt(60))
	require.NoError(t, err)
	_, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(40), claimed)

	_, err = h.l.DispatchPending(context.Background())
	require.NoError(t, err)

	got, err := h.l.GetSettlement(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusRefunded, got.Status)
	assert.Equal(t, account.Principal("alice"), got.Beneficiary)
	assert.Equal(t, "receiver not registered with token", got.FailureReason)

	_, claimed = h.balance(t, "alice")
	assert.Equal(t, uint64(100), claimed)
	assert.Zero(t, h.rec.escrowed)
}

func TestWithdrawFailureEscrowsForUnregisteredSender(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(context.Background())
	require.NoError(t, err)

	got, err := h.l.GetSettlement(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusDispatched, got.Status)

	// The sender leaves while the transfer is in flight.
	ok, refund, err := h.l.StorageUnregister(as("alice", 1), false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "560", refund.String())

	resolved, err := h.l.Reconcile(context.Background(), st.ID, transfer.Failed(nil))
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusEscrowed, resolved.Status)
	assert.Equal(t, owner, resolved.Beneficiary)

	locked, claimed := h.balance(t, owner)
	assert.Equal(t, uint64(0), locked)
	assert.Equal(t, uint64(100), claimed)
	assert.Equal(t, 1, h.rec.escrowed)

	_, err = h.l.GetAccount(context.Background(), "alice")
	require.ErrorIs(t, err, custody.ErrAccountNotRegistered)
}

func TestWithdrawFailureEscrowsForInsolventSender(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	h.fund(t, owner, 5)

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(context.Background())
	require.NoError(t, err)

	// Storage got more expensive; alice's rent no longer covers her record.
	h.price.set(amt(20))

	resolved, err := h.l.Reconcile(context.Background(), st.ID, transfer.Failed(nil))
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusEscrowed, resolved.Status)

	_, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(0), claimed)
	_, claimed = h.balance(t, owner)
	assert.Equal(t, uint64(105), claimed)
}

func TestWithdrawFailureEscrowsWhenRefundOverflows(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	ctx := context.Background()

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)

	// Fill alice's claimed balance while the transfer is in flight.
	_, err = h.l.Deposit(ctx, "alice", types.MaxAmount())
	require.NoError(t, err)
	_, err = h.l.Claim(as("alice", 0))
	require.NoError(t, err)

	resolved, err := h.l.Reconcile(ctx, st.ID, transfer.Failed(nil))
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusEscrowed, resolved.Status)
	assert.Equal(t, owner, resolved.Beneficiary)

	_, claimed, err := h.l.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, claimed.Eq(types.MaxAmount()))

	locked, ownerClaimed := h.balance(t, owner)
	assert.Equal(t, uint64(0), locked)
	assert.Equal(t, uint64(100), ownerClaimed)
	assert.Equal(t, 1, h.rec.escrowed)
	assert.Equal(t, []settlement.Status{settlement.StatusEscrowed}, h.rec.resolved)
}

func TestEscrowOverflowLeavesSettlementDispatched(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	ctx := context.Background()

	_, err := h.l.Register(ctx, owner, amt(560))
	require.NoError(t, err)
	_, err = h.l.Deposit(ctx, owner, types.MaxAmount())
	require.NoError(t, err)
	_, err = h.l.Claim(as(owner, 0))
	require.NoError(t, err)

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)
	ok, _, err := h.l.StorageUnregister(as("alice", 1), false)
	require.NoError(t, err)
	require.True(t, ok)

	for range 2 {
		_, err = h.l.Reconcile(ctx, st.ID, transfer.Failed(nil))
		require.ErrorIs(t, err, custody.ErrOverflow)
		assert.False(t, custody.IsProtocolViolation(err))

		got, err := h.l.GetSettlement(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusDispatched, got.Status)
	}

	_, claimed, err := h.l.GetBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, claimed.Eq(types.MaxAmount()))
	assert.Zero(t, h.rec.escrowed)
	assert.Zero(t, h.rec.violations)
	assert.Empty(t, h.rec.resolved)
}

func TestEscrowOwnerMustRegisterBeforeWithdrawing(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	ctx := context.Background()

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)
	_, _, err = h.l.StorageUnregister(as("alice", 1), false)
	require.NoError(t, err)
	_, err = h.l.Reconcile(ctx, st.ID, transfer.Failed(nil))
	require.NoError(t, err)

	// The escrow record exists without any rent behind it.
	a, err := h.l.GetAccount(ctx, owner)
	require.NoError(t, err)
	assert.True(t, a.RentDeposit.IsZero())
	assert.Equal(t, "100", a.AmountClaimed.String())
	bal, err := h.l.StorageBalanceOf(ctx, owner)
	require.NoError(t, err)
	assert.True(t, bal.Total.IsZero())

	_, err = h.l.Withdraw(as(owner, 1), amt(100))
	require.ErrorIs(t, err, custody.ErrInsufficientDeposit)
	_, claimed := h.balance(t, owner)
	assert.Equal(t, uint64(100), claimed)

	_, err = h.l.Register(ctx, owner, amt(560))
	require.NoError(t, err)
	_, err = h.l.Withdraw(as(owner, 1), amt(100))
	require.NoError(t, err)
	_, claimed = h.balance(t, owner)
	assert.Equal(t, uint64(0), claimed)
}

func TestReconcileProtocolViolations(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	ctx := context.Background()

	pending, err := h.l.Withdraw(as("alice", 1), amt(10))
	require.NoError(t, err)

	// Not dispatched yet.
	_, err = h.l.Reconcile(ctx, pending.ID, transfer.Succeeded(""))
	require.ErrorIs(t, err, custody.ErrProtocolViolation)

	_, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)

	tests := []struct {
		name    string
		results []transfer.Result
	}{
		{"no result", nil},
		{"two results", []transfer.Result{transfer.Succeeded(""), transfer.Failed(nil)}},
		{"not ready", []transfer.Result{transfer.NotReady()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.l.Reconcile(ctx, pending.ID, tt.results...)
			require.ErrorIs(t, err, custody.ErrProtocolViolation)
			assert.True(t, custody.IsProtocolViolation(err))
		})
	}

	_, err = h.l.Reconcile(ctx, settlement.New("alice", amt(1)).ID, transfer.Succeeded(""))
	require.ErrorIs(t, err, custody.ErrProtocolViolation)
	require.ErrorIs(t, err, custody.ErrSettlementNotFound)

	// The settlement is still open and resolves exactly once.
	_, err = h.l.Reconcile(ctx, pending.ID, transfer.Failed(nil))
	require.NoError(t, err)
	_, err = h.l.Reconcile(ctx, pending.ID, transfer.Failed(nil))
	require.ErrorIs(t, err, custody.ErrProtocolViolation)

	_, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(100), claimed)
	assert.Equal(t, 6, h.rec.violations)
	assert.Equal(t, []settlement.Status{settlement.StatusRefunded}, h.rec.resolved)
}

func TestConcurrentReconcileCreditsOnce(t *testing.T) {
	h := newHarness(t, transfer.NotReady())
	h.fund(t, "alice", 100)
	ctx := context.Background()

	st, err := h.l.Withdraw(as("alice", 1), amt(100))
	require.NoError(t, err)
	_, err = h.l.DispatchPending(ctx)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.l.Reconcile(ctx, st.ID, transfer.Failed(nil)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	_, claimed := h.balance(t, "alice")
	assert.Equal(t, uint64(100), claimed)
}

func TestConcurrentDeposits(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()
	_, err := h.l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.l.Deposit(ctx, "alice", amt(2))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	locked, _ := h.balance(t, "alice")
	assert.Equal(t, uint64(100), locked)
}

// failingSettlements rejects every new settlement.
type failingSettlements struct {
	*memory.Store
}

func (failingSettlements) CreateSettlement(context.Context, *settlement.Settlement) error {
	return custody.ErrStoreNotReady
}

func TestWithdrawRestoresAccountWhenSettlementWriteFails(t *testing.T) {
	s := failingSettlements{memory.New()}
	l, err := custody.New(s,
		custody.WithOwner(owner),
		custody.WithTransferer(&scripted{result: transfer.Succeeded("")}),
		custody.WithStoragePricer(custody.FixedStoragePrice(byteCost)),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Register(ctx, "alice", amt(560))
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "alice", amt(50))
	require.NoError(t, err)
	_, err = l.Claim(as("alice", 0))
	require.NoError(t, err)

	_, err = l.Withdraw(as("alice", 1), amt(50))
	require.ErrorIs(t, err, custody.ErrStoreNotReady)
	assert.True(t, custody.IsRetryable(err))

	_, claimed, err := l.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "50", claimed.String())
}

// flakyAccounts fails the next n account writes once armed.
type flakyAccounts struct {
	*memory.Store
	failures atomic.Int32
}

func (s *flakyAccounts) PutAccount(ctx context.Context, a *account.Account) error {
	if s.failures.Add(-1) >= 0 {
		return custody.ErrStoreNotReady
	}
	return s.Store.PutAccount(ctx, a)
}

func TestReconcileRevertsWhenCreditWriteFails(t *testing.T) {
	tests := []struct {
		name        string
		unregister  bool
		want        settlement.Status
		beneficiary account.Principal
	}{
		{"refund", false, settlement.StatusRefunded, "alice"},
		{"escrow", true, settlement.StatusEscrowed, owner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakyAccounts{Store: memory.New()}
			rec := &recorder{}
			l, err := custody.New(s,
				custody.WithOwner(owner),
				custody.WithTransferer(&scripted{result: transfer.NotReady()}),
				custody.WithStoragePricer(custody.FixedStoragePrice(byteCost)),
				custody.WithPlugin(rec),
			)
			require.NoError(t, err)
			ctx := context.Background()

			_, err = l.Register(ctx, "alice", amt(560))
			require.NoError(t, err)
			_, err = l.Deposit(ctx, "alice", amt(100))
			require.NoError(t, err)
			_, err = l.Claim(as("alice", 0))
			require.NoError(t, err)

			st, err := l.Withdraw(as("alice", 1), amt(100))
			require.NoError(t, err)
			_, err = l.DispatchPending(ctx)
			require.NoError(t, err)
			if tt.unregister {
				_, _, err = l.StorageUnregister(as("alice", 1), false)
				require.NoError(t, err)
			}

			s.failures.Store(1)
			_, err = l.Reconcile(ctx, st.ID, transfer.Failed(nil))
			require.ErrorIs(t, err, custody.ErrStoreNotReady)
			assert.False(t, custody.IsProtocolViolation(err))

			got, err := l.GetSettlement(ctx, st.ID)
			require.NoError(t, err)
			assert.Equal(t, settlement.StatusDispatched, got.Status)
			assert.Empty(t, got.Beneficiary)
			_, err = l.GetAccount(ctx, owner)
			require.ErrorIs(t, err, custody.ErrAccountNotRegistered)
			if !tt.unregister {
				_, claimed, err := l.GetBalance(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, claimed.IsZero())
			}

			resolved, err := l.Reconcile(ctx, st.ID, transfer.Failed(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolved.Status)
			assert.Equal(t, tt.beneficiary, resolved.Beneficiary)

			_, err = l.Reconcile(ctx, st.ID, transfer.Failed(nil))
			require.ErrorIs(t, err, custody.ErrProtocolViolation)

			_, claimed, err := l.GetBalance(ctx, tt.beneficiary)
			require.NoError(t, err)
			assert.Equal(t, "100", claimed.String())
			assert.Equal(t, []settlement.Status{tt.want}, rec.resolved)
		})
	}
}

func TestStartDispatchesInBackground(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""),
		custody.WithDispatchConfig(8, 2, 20*time.Millisecond),
	)
	h.fund(t, "alice", 100)
	ctx := context.Background()

	require.NoError(t, h.l.Start(ctx))
	require.ErrorIs(t, h.l.Start(ctx), custody.ErrAlreadyStarted)

	st, err := h.l.Withdraw(as("alice", 1), amt(30))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.l.GetSettlement(ctx, st.ID)
		return err == nil && got.Status == settlement.StatusCommitted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.l.Stop())
	assert.Len(t, h.xfer.sent(), 1)
}

func TestStartRequiresTransferer(t *testing.T) {
	l, err := custody.New(memory.New(), custody.WithOwner(owner))
	require.NoError(t, err)

	require.ErrorIs(t, l.Start(context.Background()), custody.ErrTransfererNotConfigured)
	_, err = l.DispatchPending(context.Background())
	require.ErrorIs(t, err, custody.ErrTransfererNotConfigured)
}

func TestListAccounts(t *testing.T) {
	h := newHarness(t, transfer.Succeeded(""))
	ctx := context.Background()

	for _, p := range []account.Principal{"carol", "alice", "bob"} {
		_, err := h.l.Register(ctx, p, amt(560))
		require.NoError(t, err)
	}

	list, err := h.l.ListAccounts(ctx, account.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, account.Principal("alice"), list[0].Principal)
	assert.Equal(t, account.Principal("bob"), list[1].Principal)
}
