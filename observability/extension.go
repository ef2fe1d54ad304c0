// Package observability provides a metrics extension for Custody that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnAccountRegistered    = (*MetricsExtension)(nil)
	_ plugin.OnAccountUnregistered  = (*MetricsExtension)(nil)
	_ plugin.OnRentWithdrawn        = (*MetricsExtension)(nil)
	_ plugin.OnDeposited            = (*MetricsExtension)(nil)
	_ plugin.OnClaimed              = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalRequested  = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalDispatched = (*MetricsExtension)(nil)
	_ plugin.OnSettlementResolved   = (*MetricsExtension)(nil)
	_ plugin.OnEscrowCredited       = (*MetricsExtension)(nil)
	_ plugin.OnProtocolViolation    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Custody plugin to automatically track balance and
// settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountRegistered   Counter
	AccountUnregistered Counter
	RentWithdrawn       Counter

	// Balance metrics
	TokensDeposited Counter
	TokensClaimed   Counter

	// Settlement metrics
	WithdrawalRequested  Counter
	WithdrawalDispatched Counter
	SettlementCommitted  Counter
	SettlementRefunded   Counter
	SettlementEscrowed   Counter
	SettlementLatency    Histogram
	EscrowCredited       Counter

	// Error metrics
	ProtocolViolations Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountRegistered:   factory.Counter("custody.account.registered"),
		AccountUnregistered: factory.Counter("custody.account.unregistered"),
		RentWithdrawn:       factory.Counter("custody.account.rent_withdrawn"),

		// Balance metrics
		TokensDeposited: factory.Counter("custody.balance.deposited"),
		TokensClaimed:   factory.Counter("custody.balance.claimed"),

		// Settlement metrics
		WithdrawalRequested:  factory.Counter("custody.withdrawal.requested"),
		WithdrawalDispatched: factory.Counter("custody.withdrawal.dispatched"),
		SettlementCommitted:  factory.Counter("custody.settlement.committed"),
		SettlementRefunded:   factory.Counter("custody.settlement.refunded"),
		SettlementEscrowed:   factory.Counter("custody.settlement.escrowed"),
		SettlementLatency:    factory.Histogram("custody.settlement.latency_ms"),
		EscrowCredited:       factory.Counter("custody.escrow.credited"),

		// Error metrics
		ProtocolViolations: factory.Counter("custody.settlement.protocol_violations"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (m *MetricsExtension) OnAccountRegistered(_ context.Context, _ *account.Account, _ types.Amount) error {
	m.AccountRegistered.Inc()
	return nil
}

// OnAccountUnregistered implements plugin.OnAccountUnregistered.
func (m *MetricsExtension) OnAccountUnregistered(_ context.Context, _ account.Principal, _ types.Amount) error {
	m.AccountUnregistered.Inc()
	return nil
}

// OnRentWithdrawn implements plugin.OnRentWithdrawn.
func (m *MetricsExtension) OnRentWithdrawn(_ context.Context, _ account.Principal, _ types.Amount) error {
	m.RentWithdrawn.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (m *MetricsExtension) OnDeposited(_ context.Context, _ account.Principal, _ types.Amount) error {
	m.TokensDeposited.Inc()
	return nil
}

// OnClaimed implements plugin.OnClaimed.
func (m *MetricsExtension) OnClaimed(_ context.Context, _ account.Principal, _ types.Amount) error {
	m.TokensClaimed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested implements plugin.OnWithdrawalRequested.
func (m *MetricsExtension) OnWithdrawalRequested(_ context.Context, _ *settlement.Settlement) error {
	m.WithdrawalRequested.Inc()
	return nil
}

// OnWithdrawalDispatched implements plugin.OnWithdrawalDispatched.
func (m *MetricsExtension) OnWithdrawalDispatched(_ context.Context, _ *settlement.Settlement) error {
	m.WithdrawalDispatched.Inc()
	return nil
}

// OnSettlementResolved implements plugin.OnSettlementResolved.
func (m *MetricsExtension) OnSettlementResolved(_ context.Context, s *settlement.Settlement, elapsed time.Duration) error {
	switch s.Status {
	case settlement.StatusCommitted:
		m.SettlementCommitted.Inc()
	case settlement.StatusRefunded:
		m.SettlementRefunded.Inc()
	case settlement.StatusEscrowed:
		m.SettlementEscrowed.Inc()
	}
	m.SettlementLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnEscrowCredited implements plugin.OnEscrowCredited.
func (m *MetricsExtension) OnEscrowCredited(_ context.Context, _ *settlement.Settlement, _ account.Principal) error {
	m.EscrowCredited.Inc()
	return nil
}

// OnProtocolViolation implements plugin.OnProtocolViolation.
func (m *MetricsExtension) OnProtocolViolation(_ context.Context, _ string, _ error) error {
	m.ProtocolViolations.Inc()
	return nil
}
