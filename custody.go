package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// DefaultTokenPrice is the native price of one token in a purchase: 10^24.
var DefaultTokenPrice = types.Pow10(24)

// Ledger is the custody engine. It keeps per-principal balances and runs
// withdrawals through the settlement protocol.
type Ledger struct {
	store      store.Store
	dir        *Directory
	plugins    *plugin.Registry
	logger     *slog.Logger
	owner      account.Principal
	pricer     StoragePricer
	transferer transfer.Transferer
	tokenID    string
	tokenPrice types.Amount
	now        func() time.Time

	// settlementLocks serializes reconciliation per settlement.
	settlementLocks keyedMutex

	// Background workers
	dispatchQueue chan id.SettlementID
	stopChan      chan struct{}
	stopOnce      sync.Once
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	started       atomic.Bool

	// Configuration
	dispatchBufferSize int
	dispatchWorkers    int
	sweepInterval      time.Duration
	skipMigrate        bool
}

// New creates a new Ledger instance. WithOwner is required.
func New(s store.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		tokenPrice:         DefaultTokenPrice,
		now:                func() time.Time { return time.Now().UTC() },
		stopChan:           make(chan struct{}),
		dispatchBufferSize: 1024,
		dispatchWorkers:    4,
		sweepInterval:      30 * time.Second,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.owner == "" {
		return nil, ErrOwnerRequired
	}
	if err := l.owner.Validate(); err != nil {
		return nil, fmt.Errorf("custody: owner: %w", err)
	}

	l.dir = NewDirectory(s, l.pricer)
	l.dir.now = l.now
	l.dispatchQueue = make(chan id.SettlementID, l.dispatchBufferSize)

	return l, nil
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithOwner sets the principal that receives funds from failed transfers
// that cannot be returned to their sender.
func WithOwner(p account.Principal) Option {
	return func(l *Ledger) {
		l.owner = p
	}
}

// WithStoragePricer sets the source of the per-byte storage price.
func WithStoragePricer(p StoragePricer) Option {
	return func(l *Ledger) {
		l.pricer = p
	}
}

// WithTransferer sets the outbound transfer boundary.
func WithTransferer(t transfer.Transferer) Option {
	return func(l *Ledger) {
		l.transferer = t
	}
}

// WithTokenID sets the token contract identifier sent with every transfer.
func WithTokenID(tokenID string) Option {
	return func(l *Ledger) {
		l.tokenID = tokenID
	}
}

// WithTokenPrice sets the native price of one token for Purchase.
func WithTokenPrice(price types.Amount) Option {
	return func(l *Ledger) {
		l.tokenPrice = price
	}
}

// WithDispatchConfig configures the dispatch queue, worker count and the
// interval of the pending settlement sweep.
func WithDispatchConfig(bufferSize, workers int, sweepInterval time.Duration) Option {
	return func(l *Ledger) {
		if bufferSize > 0 {
			l.dispatchBufferSize = bufferSize
		}
		if workers > 0 {
			l.dispatchWorkers = workers
		}
		if sweepInterval > 0 {
			l.sweepInterval = sweepInterval
		}
	}
}

// WithoutMigrate makes Start skip store migration.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Directory returns the account directory.
func (l *Ledger) Directory() *Directory { return l.dir }

// Owner returns the escrow principal.
func (l *Ledger) Owner() account.Principal { return l.owner }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store and begins background dispatch.
func (l *Ledger) Start(ctx context.Context) error {
	if l.transferer == nil {
		return ErrTransfererNotConfigured
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// Migrate database
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			l.started.Store(false)
			return err
		}
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel

	for i := range l.dispatchWorkers {
		l.wg.Add(1)
		go l.dispatchWorker(runCtx, i)
	}
	l.wg.Add(1)
	go l.sweepWorker(runCtx)

	l.logger.Info("custody started",
		"owner", l.owner,
		"token_id", l.tokenID,
		"dispatch_workers", l.dispatchWorkers,
		"dispatch_buffer", l.dispatchBufferSize,
		"sweep_interval", l.sweepInterval,
	)

	return nil
}

// Stop shuts down the Ledger. Settlements still queued stay pending in
// the store and are picked up by the next sweep.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.cancel != nil {
			l.cancel()
		}
	})
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// dispatchWorker hands queued settlements to the transferer.
func (l *Ledger) dispatchWorker(ctx context.Context, n int) {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			return

		case settlementID := <-l.dispatchQueue:
			if err := l.dispatch(ctx, settlementID); err != nil {
				l.logger.Error("failed to dispatch settlement",
					"error", err,
					"settlement_id", settlementID,
					"worker", n,
				)
			}
		}
	}
}

// sweepWorker periodically dispatches settlements that never made it
// through the queue.
func (l *Ledger) sweepWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			start := time.Now()
			n, err := l.DispatchPending(ctx)
			if err != nil {
				l.logger.Error("pending settlement sweep failed", "error", err, "dispatched", n)
				continue
			}
			if n > 0 {
				l.logger.Debug("swept pending settlements",
					"dispatched", n,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}

// enqueue offers a settlement to the dispatch workers without blocking.
func (l *Ledger) enqueue(settlementID id.SettlementID) {
	select {
	case l.dispatchQueue <- settlementID:
	default:
		l.logger.Warn("dispatch queue full, settlement left for sweep",
			"settlement_id", settlementID,
		)
	}
}
