package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Withdraw debits amount from the caller's claimed balance and schedules
// the outbound transfer. The call needs an attached deposit of exactly one
// base unit.
//
// The returned settlement is pending. Its outcome never reaches the
// caller; a failed transfer shows up later as a re-credit to the sender
// or to the owner.
func (l *Ledger) Withdraw(ctx context.Context, amount types.Amount) (*settlement.Settlement, error) {
	if err := requireOneUnit(ctx); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	sender, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	st, err := l.debit(ctx, sender, amount)
	if err != nil {
		return nil, err
	}

	l.plugins.EmitWithdrawalRequested(ctx, st)
	l.enqueue(st.ID)

	return st, nil
}

// debit takes amount from sender and records the pending settlement as
// one unit: if the settlement cannot be stored, the account is restored.
func (l *Ledger) debit(ctx context.Context, sender account.Principal, amount types.Amount) (*settlement.Settlement, error) {
	unlock := l.dir.Lock(sender)
	defer unlock()

	acct, err := l.dir.Require(ctx, sender)
	if err != nil {
		return nil, err
	}
	prev := acct.Clone()

	if err := acct.Withdraw(amount); err != nil {
		return nil, err
	}
	if err := l.dir.Save(ctx, acct); err != nil {
		return nil, err
	}

	st := settlement.New(sender, amount)
	st.CreatedAt, st.UpdatedAt = l.now(), l.now()
	if err := l.store.CreateSettlement(ctx, st); err != nil {
		if rbErr := l.dir.put(ctx, prev); rbErr != nil {
			l.logger.Error("failed to restore account after settlement write failure",
				"principal", sender,
				"amount", amount,
				"error", rbErr,
			)
		}
		return nil, fmt.Errorf("custody: record settlement: %w", err)
	}

	return st, nil
}

// DispatchPending hands every pending settlement to the transferer and
// returns how many it dispatched.
func (l *Ledger) DispatchPending(ctx context.Context) (int, error) {
	if l.transferer == nil {
		return 0, ErrTransfererNotConfigured
	}

	pending, err := l.store.ListSettlements(ctx, settlement.ListOpts{Status: settlement.StatusPending})
	if err != nil {
		return 0, err
	}

	var errs MultiError
	n := 0
	for _, st := range pending {
		if err := l.dispatch(ctx, st.ID); err != nil {
			errs.Add(fmt.Errorf("settlement %s: %w", st.ID, err))
			continue
		}
		n++
	}
	if errs.HasErrors() {
		return n, errs
	}
	return n, nil
}

// dispatch moves one settlement from pending to dispatched and calls the
// transferer. Settlements that are no longer pending are skipped.
func (l *Ledger) dispatch(ctx context.Context, settlementID id.SettlementID) error {
	if l.transferer == nil {
		return ErrTransfererNotConfigured
	}

	st, err := l.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return err
	}
	if st.Status != settlement.StatusPending {
		return nil
	}

	next := st.MarkDispatched(l.now())
	if err := l.store.TransitionSettlement(ctx, settlement.StatusPending, next); err != nil {
		if errors.Is(err, ErrSettlementConflict) {
			// Another worker got there first.
			return nil
		}
		return err
	}
	l.plugins.EmitWithdrawalDispatched(ctx, next)

	res := l.transferer.Transfer(ctx, transfer.Request{
		SettlementID: next.ID,
		TransferID:   next.TransferID,
		TokenID:      l.tokenID,
		Receiver:     next.Sender,
		Amount:       next.Amount,
	})
	if res.Status == transfer.StatusNotReady {
		return nil
	}

	_, err = l.Reconcile(ctx, next.ID, res)
	return err
}

// Reconcile resolves a dispatched settlement with the outcome reported by
// the token platform. It takes exactly one result, which must be final.
//
// A successful transfer commits the debit. A failed one is credited back
// to the sender if the sender is still registered and solvent, otherwise
// to the owner. Each settlement is resolved at most once; later calls
// fail with ErrProtocolViolation.
//
// If the credit cannot be applied, because persisting it fails or the
// owner's claimed balance would overflow, the settlement stays dispatched
// and Reconcile may be called again.
func (l *Ledger) Reconcile(ctx context.Context, settlementID id.SettlementID, results ...transfer.Result) (*settlement.Settlement, error) {
	st, err := l.reconcile(ctx, settlementID, results)
	if err != nil {
		if IsProtocolViolation(err) {
			l.logger.Error("rejected transfer callback",
				"settlement_id", settlementID,
				"error", err,
			)
			l.plugins.EmitProtocolViolation(ctx, settlementID.String(), err)
		}
		return nil, err
	}

	l.plugins.EmitSettlementResolved(ctx, st, st.ResolvedAt.Sub(st.CreatedAt))
	return st, nil
}

func (l *Ledger) reconcile(ctx context.Context, settlementID id.SettlementID, results []transfer.Result) (*settlement.Settlement, error) {
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: expected 1 transfer result, got %d", ErrProtocolViolation, len(results))
	}
	res := results[0]
	if res.Status != transfer.StatusSuccessful && res.Status != transfer.StatusFailed {
		return nil, fmt.Errorf("%w: transfer result is %s", ErrProtocolViolation, res.Status)
	}

	unlock := l.settlementLocks.lock(settlementID.String())
	defer unlock()

	st, err := l.store.GetSettlement(ctx, settlementID)
	if errors.Is(err, ErrSettlementNotFound) {
		return nil, fmt.Errorf("%w: %w: %s", ErrProtocolViolation, err, settlementID)
	}
	if err != nil {
		return nil, err
	}
	if st.Status != settlement.StatusDispatched {
		return nil, fmt.Errorf("%w: settlement %s is %s", ErrProtocolViolation, settlementID, st.Status)
	}

	if res.IsSuccess() {
		next := st.Resolve(settlement.StatusCommitted, "", "", l.now())
		if err := l.transition(ctx, next); err != nil {
			return nil, err
		}
		return next, nil
	}

	next, refunded, err := l.refund(ctx, st, res.Reason())
	if err != nil || refunded {
		return next, err
	}
	return l.escrow(ctx, st, res.Reason())
}

// refund re-credits the sender of a failed transfer. It reports false,
// with no error and no change, when the sender cannot take the funds back.
func (l *Ledger) refund(ctx context.Context, st *settlement.Settlement, reason string) (*settlement.Settlement, bool, error) {
	unlock := l.dir.Lock(st.Sender)
	defer unlock()

	acct, found, err := l.dir.Get(ctx, st.Sender)
	if err != nil {
		return nil, false, err
	}
	if !found {
		l.logger.Warn("account is not registered, depositing to owner",
			"settlement_id", st.ID,
			"principal", st.Sender,
			"owner", l.owner,
			"amount", st.Amount,
		)
		return nil, false, nil
	}
	if !acct.IsSolvent(l.dir.ByteCost(ctx)) {
		l.logger.Warn("account has not enough storage, depositing to owner",
			"settlement_id", st.ID,
			"principal", st.Sender,
			"owner", l.owner,
			"amount", st.Amount,
		)
		return nil, false, nil
	}
	if err := acct.DepositToClaim(st.Amount); err != nil {
		l.logger.Warn("refund would overflow, depositing to owner",
			"settlement_id", st.ID,
			"principal", st.Sender,
			"owner", l.owner,
			"error", err,
		)
		return nil, false, nil
	}

	next := st.Resolve(settlement.StatusRefunded, st.Sender, reason, l.now())
	if err := l.transition(ctx, next); err != nil {
		return nil, false, err
	}
	if err := l.dir.Save(ctx, acct); err != nil {
		l.revert(ctx, next, st)
		return nil, false, fmt.Errorf("custody: refund %s: %w", st.ID, err)
	}
	return next, true, nil
}

// escrow credits the owner with the funds of a failed transfer.
func (l *Ledger) escrow(ctx context.Context, st *settlement.Settlement, reason string) (*settlement.Settlement, error) {
	unlock := l.dir.Lock(l.owner)
	defer unlock()

	owner, err := l.dir.GetOrDefault(ctx, l.owner)
	if err != nil {
		return nil, err
	}
	if err := owner.DepositToClaim(st.Amount); err != nil {
		return nil, fmt.Errorf("custody: escrow %s: %w", st.ID, err)
	}

	next := st.Resolve(settlement.StatusEscrowed, l.owner, reason, l.now())
	if err := l.transition(ctx, next); err != nil {
		return nil, err
	}
	if err := l.dir.saveEscrow(ctx, owner); err != nil {
		l.revert(ctx, next, st)
		return nil, fmt.Errorf("custody: escrow %s: %w", st.ID, err)
	}

	l.plugins.EmitEscrowCredited(ctx, next, l.owner)
	return next, nil
}

// transition moves a dispatched settlement to its resolved state.
func (l *Ledger) transition(ctx context.Context, next *settlement.Settlement) error {
	err := l.store.TransitionSettlement(ctx, settlement.StatusDispatched, next)
	if errors.Is(err, ErrSettlementConflict) {
		return fmt.Errorf("%w: settlement %s already resolved", ErrProtocolViolation, next.ID)
	}
	return err
}

// revert puts a settlement back to dispatched after its credit could not
// be persisted, so the outcome can be reported again.
func (l *Ledger) revert(ctx context.Context, resolved, dispatched *settlement.Settlement) {
	if err := l.store.TransitionSettlement(ctx, resolved.Status, dispatched); err != nil {
		l.logger.Error("failed to revert settlement after credit failure",
			"settlement_id", resolved.ID,
			"status", resolved.Status,
			"error", err,
		)
	}
}

// GetSettlement returns a settlement by ID.
func (l *Ledger) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	return l.store.GetSettlement(ctx, settlementID)
}

// ListSettlements lists settlements matching opts.
func (l *Ledger) ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	return l.store.ListSettlements(ctx, opts)
}
