// Package audithook bridges Custody lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnAccountRegistered    = (*Extension)(nil)
	_ plugin.OnAccountUnregistered  = (*Extension)(nil)
	_ plugin.OnRentWithdrawn        = (*Extension)(nil)
	_ plugin.OnDeposited            = (*Extension)(nil)
	_ plugin.OnClaimed              = (*Extension)(nil)
	_ plugin.OnWithdrawalRequested  = (*Extension)(nil)
	_ plugin.OnWithdrawalDispatched = (*Extension)(nil)
	_ plugin.OnSettlementResolved   = (*Extension)(nil)
	_ plugin.OnProtocolViolation    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Custody lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (e *Extension) OnAccountRegistered(ctx context.Context, a *account.Account, deposit types.Amount) error {
	return e.record(ctx, ActionAccountRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.Principal.String(), CategoryAccount, nil,
		"deposit", deposit.String(),
		"rent_deposit", a.RentDeposit.String(),
	)
}

// OnAccountUnregistered implements plugin.OnAccountUnregistered.
func (e *Extension) OnAccountUnregistered(ctx context.Context, p account.Principal, refund types.Amount) error {
	return e.record(ctx, ActionAccountUnregistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, p.String(), CategoryAccount, nil,
		"refund", refund.String(),
	)
}

// OnRentWithdrawn implements plugin.OnRentWithdrawn.
func (e *Extension) OnRentWithdrawn(ctx context.Context, p account.Principal, amount types.Amount) error {
	return e.record(ctx, ActionRentWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceAccount, p.String(), CategoryAccount, nil,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (e *Extension) OnDeposited(ctx context.Context, p account.Principal, amount types.Amount) error {
	return e.record(ctx, ActionTokensDeposited, SeverityInfo, OutcomeSuccess,
		ResourceBalance, p.String(), CategoryBalance, nil,
		"amount", amount.String(),
	)
}

// OnClaimed implements plugin.OnClaimed.
func (e *Extension) OnClaimed(ctx context.Context, p account.Principal, amount types.Amount) error {
	return e.record(ctx, ActionTokensClaimed, SeverityInfo, OutcomeSuccess,
		ResourceBalance, p.String(), CategoryBalance, nil,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested implements plugin.OnWithdrawalRequested.
func (e *Extension) OnWithdrawalRequested(ctx context.Context, s *settlement.Settlement) error {
	return e.record(ctx, ActionWithdrawalRequested, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, s.ID.String(), CategorySettlement, nil,
		"sender", s.Sender.String(),
		"amount", s.Amount.String(),
	)
}

// OnWithdrawalDispatched implements plugin.OnWithdrawalDispatched.
func (e *Extension) OnWithdrawalDispatched(ctx context.Context, s *settlement.Settlement) error {
	return e.record(ctx, ActionWithdrawalDispatched, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, s.ID.String(), CategorySettlement, nil,
		"transfer_id", s.TransferID.String(),
	)
}

// OnSettlementResolved implements plugin.OnSettlementResolved.
func (e *Extension) OnSettlementResolved(ctx context.Context, s *settlement.Settlement, elapsed time.Duration) error {
	action, severity, outcome := ActionSettlementCommitted, SeverityInfo, OutcomeSuccess
	switch s.Status {
	case settlement.StatusRefunded:
		action, outcome = ActionSettlementRefunded, OutcomeFailure
	case settlement.StatusEscrowed:
		// Funds did not reach the sender and were not returned to them either.
		action, severity, outcome = ActionSettlementEscrowed, SeverityWarning, OutcomePartial
	}

	var err error
	if s.FailureReason != "" {
		err = errors.New(s.FailureReason)
	}
	return e.record(ctx, action, severity, outcome,
		ResourceSettlement, s.ID.String(), CategorySettlement, err,
		"sender", s.Sender.String(),
		"amount", s.Amount.String(),
		"beneficiary", s.Beneficiary.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnProtocolViolation implements plugin.OnProtocolViolation.
func (e *Extension) OnProtocolViolation(ctx context.Context, settlementID string, cause error) error {
	return e.record(ctx, ActionProtocolViolation, SeverityCritical, OutcomeFailure,
		ResourceSettlement, settlementID, CategorySecurity, cause,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
