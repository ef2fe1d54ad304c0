package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onAccountRegistered    []OnAccountRegistered
	onAccountUnregistered  []OnAccountUnregistered
	onRentWithdrawn        []OnRentWithdrawn
	onDeposited            []OnDeposited
	onClaimed              []OnClaimed
	onWithdrawalRequested  []OnWithdrawalRequested
	onWithdrawalDispatched []OnWithdrawalDispatched
	onSettlementResolved   []OnSettlementResolved
	onEscrowCredited       []OnEscrowCredited
	onProtocolViolation    []OnProtocolViolation
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountRegistered); ok {
		r.onAccountRegistered = append(r.onAccountRegistered, v)
	}
	if v, ok := p.(OnAccountUnregistered); ok {
		r.onAccountUnregistered = append(r.onAccountUnregistered, v)
	}
	if v, ok := p.(OnRentWithdrawn); ok {
		r.onRentWithdrawn = append(r.onRentWithdrawn, v)
	}
	if v, ok := p.(OnDeposited); ok {
		r.onDeposited = append(r.onDeposited, v)
	}
	if v, ok := p.(OnClaimed); ok {
		r.onClaimed = append(r.onClaimed, v)
	}
	if v, ok := p.(OnWithdrawalRequested); ok {
		r.onWithdrawalRequested = append(r.onWithdrawalRequested, v)
	}
	if v, ok := p.(OnWithdrawalDispatched); ok {
		r.onWithdrawalDispatched = append(r.onWithdrawalDispatched, v)
	}
	if v, ok := p.(OnSettlementResolved); ok {
		r.onSettlementResolved = append(r.onSettlementResolved, v)
	}
	if v, ok := p.(OnEscrowCredited); ok {
		r.onEscrowCredited = append(r.onEscrowCredited, v)
	}
	if v, ok := p.(OnProtocolViolation); ok {
		r.onProtocolViolation = append(r.onProtocolViolation, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountRegistered", reflect.TypeFor[OnAccountRegistered]()},
	{"OnAccountUnregistered", reflect.TypeFor[OnAccountUnregistered]()},
	{"OnRentWithdrawn", reflect.TypeFor[OnRentWithdrawn]()},
	{"OnDeposited", reflect.TypeFor[OnDeposited]()},
	{"OnClaimed", reflect.TypeFor[OnClaimed]()},
	{"OnWithdrawalRequested", reflect.TypeFor[OnWithdrawalRequested]()},
	{"OnWithdrawalDispatched", reflect.TypeFor[OnWithdrawalDispatched]()},
	{"OnSettlementResolved", reflect.TypeFor[OnSettlementResolved]()},
	{"OnEscrowCredited", reflect.TypeFor[OnEscrowCredited]()},
	{"OnProtocolViolation", reflect.TypeFor[OnProtocolViolation]()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks. Failures are logged and never
// propagated to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := hooks(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, l) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitAccountRegistered calls OnAccountRegistered for all plugins that implement it.
func (r *Registry) EmitAccountRegistered(ctx context.Context, a *account.Account, deposit types.Amount) {
	emit(ctx, r, "OnAccountRegistered", func(r *Registry) []OnAccountRegistered { return r.onAccountRegistered },
		func(p OnAccountRegistered) error { return p.OnAccountRegistered(ctx, a, deposit) })
}

// EmitAccountUnregistered calls OnAccountUnregistered for all plugins that implement it.
func (r *Registry) EmitAccountUnregistered(ctx context.Context, who account.Principal, refund types.Amount) {
	emit(ctx, r, "OnAccountUnregistered", func(r *Registry) []OnAccountUnregistered { return r.onAccountUnregistered },
		func(p OnAccountUnregistered) error { return p.OnAccountUnregistered(ctx, who, refund) })
}

// EmitRentWithdrawn calls OnRentWithdrawn for all plugins that implement it.
func (r *Registry) EmitRentWithdrawn(ctx context.Context, who account.Principal, amount types.Amount) {
	emit(ctx, r, "OnRentWithdrawn", func(r *Registry) []OnRentWithdrawn { return r.onRentWithdrawn },
		func(p OnRentWithdrawn) error { return p.OnRentWithdrawn(ctx, who, amount) })
}

// EmitDeposited calls OnDeposited for all plugins that implement it.
func (r *Registry) EmitDeposited(ctx context.Context, who account.Principal, amount types.Amount) {
	emit(ctx, r, "OnDeposited", func(r *Registry) []OnDeposited { return r.onDeposited },
		func(p OnDeposited) error { return p.OnDeposited(ctx, who, amount) })
}

// EmitClaimed calls OnClaimed for all plugins that implement it.
func (r *Registry) EmitClaimed(ctx context.Context, who account.Principal, amount types.Amount) {
	emit(ctx, r, "OnClaimed", func(r *Registry) []OnClaimed { return r.onClaimed },
		func(p OnClaimed) error { return p.OnClaimed(ctx, who, amount) })
}

// EmitWithdrawalRequested calls OnWithdrawalRequested for all plugins that implement it.
func (r *Registry) EmitWithdrawalRequested(ctx context.Context, s *settlement.Settlement) {
	emit(ctx, r, "OnWithdrawalRequested", func(r *Registry) []OnWithdrawalRequested { return r.onWithdrawalRequested },
		func(p OnWithdrawalRequested) error { return p.OnWithdrawalRequested(ctx, s) })
}

// EmitWithdrawalDispatched calls OnWithdrawalDispatched for all plugins that implement it.
func (r *Registry) EmitWithdrawalDispatched(ctx context.Context, s *settlement.Settlement) {
	emit(ctx, r, "OnWithdrawalDispatched", func(r *Registry) []OnWithdrawalDispatched { return r.onWithdrawalDispatched },
		func(p OnWithdrawalDispatched) error { return p.OnWithdrawalDispatched(ctx, s) })
}

// EmitSettlementResolved calls OnSettlementResolved for all plugins that implement it.
func (r *Registry) EmitSettlementResolved(ctx context.Context, s *settlement.Settlement, elapsed time.Duration) {
	emit(ctx, r, "OnSettlementResolved", func(r *Registry) []OnSettlementResolved { return r.onSettlementResolved },
		func(p OnSettlementResolved) error { return p.OnSettlementResolved(ctx, s, elapsed) })
}

// EmitEscrowCredited calls OnEscrowCredited for all plugins that implement it.
func (r *Registry) EmitEscrowCredited(ctx context.Context, s *settlement.Settlement, owner account.Principal) {
	emit(ctx, r, "OnEscrowCredited", func(r *Registry) []OnEscrowCredited { return r.onEscrowCredited },
		func(p OnEscrowCredited) error { return p.OnEscrowCredited(ctx, s, owner) })
}

// EmitProtocolViolation calls OnProtocolViolation for all plugins that implement it.
func (r *Registry) EmitProtocolViolation(ctx context.Context, settlementID string, cause error) {
	emit(ctx, r, "OnProtocolViolation", func(r *Registry) []OnProtocolViolation { return r.onProtocolViolation },
		func(p OnProtocolViolation) error { return p.OnProtocolViolation(ctx, settlementID, cause) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
