package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/settlement"
	custodystore "github.com/xraph/custody/store"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("custody/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/postgres: %w: %w", custody.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, p account.Principal) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("principal = $1", p.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrAccountNotFound
		}
		return nil, fmt.Errorf("custody/postgres: get account %s: %w", p, err)
	}
	return fromAccountModel(m)
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.pg.NewInsert(m).
		OnConflict("(principal) DO UPDATE").
		Set("rent_deposit = EXCLUDED.rent_deposit").
		Set("amount_locked = EXCLUDED.amount_locked").
		Set("amount_claimed = EXCLUDED.amount_claimed").
		Set("storage_used = EXCLUDED.storage_used").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/postgres: put account %s: %w", a.Principal, err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, p account.Principal) error {
	res, err := s.pg.NewDelete((*accountModel)(nil)).
		Where("principal = $1", p.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/postgres: delete account %s: %w", p, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("principal ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/postgres: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Settlement Store ====================

func (s *Store) CreateSettlement(ctx context.Context, st *settlement.Settlement) error {
	m := toSettlementModel(st)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/postgres: create settlement %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, settlementID id.SettlementID) (*settlement.Settlement, error) {
	m := new(settlementModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", settlementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("custody/postgres: get settlement %s: %w", settlementID, err)
	}
	return fromSettlementModel(m)
}

func (s *Store) ListSettlements(ctx context.Context, opts settlement.ListOpts) ([]*settlement.Settlement, error) {
	var models []settlementModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Sender != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("sender = $%d", argIdx), opts.Sender.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/postgres: list settlements: %w", err)
	}

	result := make([]*settlement.Settlement, len(models))
	for i := range models {
		st, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

func (s *Store) TransitionSettlement(ctx context.Context, from settlement.Status, next *settlement.Settlement) error {
	m := toSettlementModel(next)
	res, err := s.pg.NewUpdate((*settlementModel)(nil)).
		Set("status = $1", m.Status).
		Set("beneficiary = $2", m.Beneficiary).
		Set("failure_reason = $3", m.FailureReason).
		Set("dispatched_at = $4", m.DispatchedAt).
		Set("resolved_at = $5", m.ResolvedAt).
		Set("updated_at = $6", m.UpdatedAt).
		Where("id = $7", m.ID).
		Where("status = $8", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/postgres: transition settlement %s: %w", next.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	// Nothing matched: tell a missing record from a lost race.
	if _, err := s.GetSettlement(ctx, next.ID); err != nil {
		return err
	}
	return custody.ErrSettlementConflict
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
