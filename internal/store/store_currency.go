package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) GetUserBalance(ctx context.Context, tenantID, username string, platform models.Platform) (models.UserBalance, error) {
	var b models.UserBalance
	err := d.GetContext(ctx, &b, `
		SELECT tenant_id, username, platform, balance FROM user_balances
		WHERE tenant_id = $1 AND username = $2 AND platform = $3`, tenantID, username, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserBalance{TenantID: tenantID, Username: username, Platform: platform, Balance: 0}, nil
	}
	if err != nil {
		return models.UserBalance{}, fmt.Errorf("store: get user balance: %w", err)
	}
	return b, nil
}

// ApplyCurrencyDelta appends a CurrencyTransaction and updates the
// projected UserBalance inside one transaction, preserving the invariant
// balance == sum(transactions.delta) (spec §8 invariant 4).
func (d *DB) ApplyCurrencyDelta(ctx context.Context, tenantID, username string, platform models.Platform, delta int64, reason string, kind models.TransactionKind) (models.UserBalance, error) {
	var out models.UserBalance
	err := withTx(ctx, d.DB, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO currency_transactions (id, tenant_id, username, platform, delta, reason, kind, created_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now())`,
			tenantID, username, platform, delta, reason, kind)
		if err != nil {
			return fmt.Errorf("store: insert currency transaction: %w", err)
		}

		row := tx.QueryRowxContext(ctx, `
			INSERT INTO user_balances (tenant_id, username, platform, balance)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, username, platform) DO UPDATE SET
				balance = user_balances.balance + EXCLUDED.balance
			RETURNING tenant_id, username, platform, balance`,
			tenantID, username, platform, delta)
		if err := row.Scan(&out.TenantID, &out.Username, &out.Platform, &out.Balance); err != nil {
			return fmt.Errorf("store: upsert user balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.UserBalance{}, err
	}
	return out, nil
}

func (d *DB) ListLeaderboard(ctx context.Context, tenantID string, platform models.Platform, limit int) ([]models.UserBalance, error) {
	if limit <= 0 {
		limit = 10
	}
	var bs []models.UserBalance
	err := d.SelectContext(ctx, &bs, `
		SELECT tenant_id, username, platform, balance FROM user_balances
		WHERE tenant_id = $1 AND platform = $2 ORDER BY balance DESC LIMIT $3`,
		tenantID, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list leaderboard: %w", err)
	}
	return bs, nil
}
