package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Custody store.
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_accounts",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_accounts (
    principal      TEXT PRIMARY KEY,
    rent_deposit   TEXT NOT NULL DEFAULT '0',
    amount_locked  TEXT NOT NULL DEFAULT '0',
    amount_claimed TEXT NOT NULL DEFAULT '0',
    storage_used   BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_settlements",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_settlements (
    id             TEXT PRIMARY KEY,
    transfer_id    TEXT NOT NULL DEFAULT '',
    sender         TEXT NOT NULL,
    amount         TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    beneficiary    TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    dispatched_at  TIMESTAMPTZ,
    resolved_at    TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_settlements_transfer ON custody_settlements (transfer_id);
CREATE INDEX IF NOT EXISTS idx_custody_settlements_status ON custody_settlements (status, id);
CREATE INDEX IF NOT EXISTS idx_custody_settlements_sender ON custody_settlements (sender, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_settlements`)
				return err
			},
		},
	)
}
