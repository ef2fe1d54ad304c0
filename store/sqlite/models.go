package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/types"
)

// ==================== Account models ====================

// Balances are stored as decimal TEXT since they can exceed BIGINT.
type accountModel struct {
	grove.BaseModel `grove:"table:custody_accounts"`

	Principal     string    `grove:"principal,pk"`
	RentDeposit   string    `grove:"rent_deposit"`
	AmountLocked  string    `grove:"amount_locked"`
	AmountClaimed string    `grove:"amount_claimed"`
	StorageUsed   int64     `grove:"storage_used"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		Principal:     a.Principal.String(),
		RentDeposit:   a.RentDeposit.String(),
		AmountLocked:  a.AmountLocked.String(),
		AmountClaimed: a.AmountClaimed.String(),
		StorageUsed:   int64(a.StorageUsed), //nolint:gosec // record sizes are tiny
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	rent, err := types.ParseAmount(m.RentDeposit)
	if err != nil {
		return nil, fmt.Errorf("account %s rent_deposit: %w", m.Principal, err)
	}
	locked, err := types.ParseAmount(m.AmountLocked)
	if err != nil {
		return nil, fmt.Errorf("account %s amount_locked: %w", m.Principal, err)
	}
	claimed, err := types.ParseAmount(m.AmountClaimed)
	if err != nil {
		return nil, fmt.Errorf("account %s amount_claimed: %w", m.Principal, err)
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Principal:     account.Principal(m.Principal),
		RentDeposit:   rent,
		AmountLocked:  locked,
		AmountClaimed: claimed,
		StorageUsed:   account.StorageUsage(m.StorageUsed), //nolint:gosec // never negative
	}, nil
}

// ==================== Settlement models ====================

type settlementModel struct {
	grove.BaseModel `grove:"table:custody_settlements"`

	ID            string     `grove:"id,pk"`
	TransferID    string     `grove:"transfer_id"`
	Sender        string     `grove:"sender"`
	Amount        string     `grove:"amount"`
	Status        string     `grove:"status"`
	Beneficiary   string     `grove:"beneficiary"`
	FailureReason string     `grove:"failure_reason"`
	DispatchedAt  *time.Time `grove:"dispatched_at"`
	ResolvedAt    *time.Time `grove:"resolved_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSettlementModel(s *settlement.Settlement) *settlementModel {
	return &settlementModel{
		ID:            s.ID.String(),
		TransferID:    s.TransferID.String(),
		Sender:        s.Sender.String(),
		Amount:        s.Amount.String(),
		Status:        string(s.Status),
		Beneficiary:   s.Beneficiary.String(),
		FailureReason: s.FailureReason,
		DispatchedAt:  s.DispatchedAt,
		ResolvedAt:    s.ResolvedAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSettlementModel(m *settlementModel) (*settlement.Settlement, error) {
	settlementID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	var transferID id.TransferID
	if m.TransferID != "" {
		if transferID, err = id.ParseTransferID(m.TransferID); err != nil {
			return nil, err
		}
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("settlement %s amount: %w", m.ID, err)
	}

	return &settlement.Settlement{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            settlementID,
		TransferID:    transferID,
		Sender:        account.Principal(m.Sender),
		Amount:        amount,
		Status:        settlement.Status(m.Status),
		Beneficiary:   account.Principal(m.Beneficiary),
		FailureReason: m.FailureReason,
		DispatchedAt:  m.DispatchedAt,
		ResolvedAt:    m.ResolvedAt,
	}, nil
}
