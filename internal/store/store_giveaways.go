package store

import (
	"context"
	"fmt"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) GetActiveGiveaway(ctx context.Context, tenantID string) (models.Giveaway, error) {
	var g models.Giveaway
	err := d.GetContext(ctx, &g, `
		SELECT id, tenant_id, title, keyword, requires_subscription, max_winners, started_at, ended_at, status
		FROM giveaways WHERE tenant_id = $1 AND status = 'active'`, tenantID)
	if err != nil {
		return models.Giveaway{}, mapNoRows(fmt.Errorf("store: get active giveaway: %w", err))
	}
	return g, nil
}

// InsertGiveawayEntry relies on the unique index over
// (giveaway_id, username, platform) to enforce invariant 3 from spec §8;
// a unique-violation is reported as a non-error duplicate, not propagated.
func (d *DB) InsertGiveawayEntry(ctx context.Context, e models.GiveawayEntry) (bool, error) {
	res, err := d.ExecContext(ctx, `
		INSERT INTO giveaway_entries (id, giveaway_id, username, platform, is_subscriber, entered_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, now())
		ON CONFLICT (giveaway_id, username, platform) DO NOTHING`,
		e.GiveawayID, e.Username, e.Platform, e.IsSubscriber)
	if err != nil {
		return false, fmt.Errorf("store: insert giveaway entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert giveaway entry rows affected: %w", err)
	}
	return n > 0, nil
}

func (d *DB) CountGiveawayEntries(ctx context.Context, giveawayID string) (int, error) {
	var n int
	err := d.GetContext(ctx, &n, `SELECT count(*) FROM giveaway_entries WHERE giveaway_id = $1`, giveawayID)
	if err != nil {
		return 0, fmt.Errorf("store: count giveaway entries: %w", err)
	}
	return n, nil
}
