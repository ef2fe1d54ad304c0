// Package settlement records withdrawals that have left the caller's
// balance but whose outbound transfer has not been resolved yet.
package settlement

import (
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

type Status string

const (
	// StatusPending: debited and persisted, not yet handed to the transferer.
	StatusPending Status = "pending"
	// StatusDispatched: handed off, outcome outstanding.
	StatusDispatched Status = "dispatched"
	// StatusCommitted: the transfer succeeded and the debit stands.
	StatusCommitted Status = "committed"
	// StatusRefunded: the transfer failed and the sender was re-credited.
	StatusRefunded Status = "refunded"
	// StatusEscrowed: the transfer failed and the funds went to the owner.
	StatusEscrowed Status = "escrowed"
)

// IsTerminal reports whether s can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCommitted, StatusRefunded, StatusEscrowed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDispatched, StatusCommitted, StatusRefunded, StatusEscrowed:
		return true
	default:
		return false
	}
}

type Settlement struct {
	types.Entity
	ID            id.SettlementID   `json:"id"`
	TransferID    id.TransferID     `json:"transfer_id"`
	Sender        account.Principal `json:"sender"`
	Amount        types.Amount      `json:"amount"`
	Status        Status            `json:"status"`
	Beneficiary   account.Principal `json:"beneficiary,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	DispatchedAt  *time.Time        `json:"dispatched_at,omitempty"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
}

// New returns a pending settlement of amount for sender.
func New(sender account.Principal, amount types.Amount) *Settlement {
	return &Settlement{
		Entity:     types.NewEntity(),
		ID:         id.NewSettlementID(),
		TransferID: id.NewTransferID(),
		Sender:     sender,
		Amount:     amount,
		Status:     StatusPending,
	}
}

// IsTerminal reports whether the settlement has been resolved.
func (s *Settlement) IsTerminal() bool { return s.Status.IsTerminal() }

// Clone returns a shallow copy with its own timestamp pointers.
func (s *Settlement) Clone() *Settlement {
	c := *s
	if s.DispatchedAt != nil {
		t := *s.DispatchedAt
		c.DispatchedAt = &t
	}
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// MarkDispatched returns the dispatched successor of s.
func (s *Settlement) MarkDispatched(at time.Time) *Settlement {
	next := s.Clone()
	next.Status = StatusDispatched
	next.DispatchedAt = &at
	next.UpdatedAt = at
	return next
}

// Resolve returns the terminal successor of s.
func (s *Settlement) Resolve(status Status, beneficiary account.Principal, reason string, at time.Time) *Settlement {
	next := s.Clone()
	next.Status = status
	next.Beneficiary = beneficiary
	next.FailureReason = reason
	next.ResolvedAt = &at
	next.UpdatedAt = at
	return next
}
