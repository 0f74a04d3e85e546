package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// OpenStreamSession enforces "if any session for (tenant, platform) has
// endedAt=null it is first ended, then a new one is opened" (spec §4.7).
func (d *DB) OpenStreamSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error) {
	var out models.StreamSession
	err := withTx(ctx, d.DB, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE stream_sessions SET ended_at = now()
			WHERE tenant_id = $1 AND platform = $2 AND ended_at IS NULL`, tenantID, platform); err != nil {
			return fmt.Errorf("store: close dangling session: %w", err)
		}
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO stream_sessions (id, tenant_id, platform, started_at, peak_viewers, total_messages, unique_chatters)
			VALUES (gen_random_uuid(), $1, $2, now(), 0, 0, 0)
			RETURNING id, tenant_id, platform, started_at, ended_at, peak_viewers, total_messages, unique_chatters`,
			tenantID, platform)
		return row.Scan(&out.ID, &out.TenantID, &out.Platform, &out.StartedAt, &out.EndedAt,
			&out.PeakViewers, &out.TotalMessages, &out.UniqueChatters)
	})
	return out, err
}

func (d *DB) EndStreamSession(ctx context.Context, sessionID string) error {
	_, err := d.ExecContext(ctx, `
		UPDATE stream_sessions SET ended_at = now() WHERE id = $1 AND ended_at IS NULL`, sessionID)
	if err != nil {
		return fmt.Errorf("store: end stream session: %w", err)
	}
	return nil
}

func (d *DB) GetOpenStreamSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error) {
	var s models.StreamSession
	err := d.GetContext(ctx, &s, `
		SELECT id, tenant_id, platform, started_at, ended_at, peak_viewers, total_messages, unique_chatters
		FROM stream_sessions WHERE tenant_id = $1 AND platform = $2 AND ended_at IS NULL`, tenantID, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StreamSession{}, errors.Join(errNoOpenSession, err)
	}
	if err != nil {
		return models.StreamSession{}, fmt.Errorf("store: get open stream session: %w", err)
	}
	return s, nil
}

var errNoOpenSession = errors.New("store: no open stream session")

func (d *DB) AppendViewerSnapshot(ctx context.Context, sessionID string, viewerCount int) error {
	return withTx(ctx, d.DB, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO viewer_snapshots (id, session_id, viewer_count, timestamp)
			VALUES (gen_random_uuid(), $1, $2, now())`, sessionID, viewerCount); err != nil {
			return fmt.Errorf("store: append viewer snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE stream_sessions SET peak_viewers = GREATEST(peak_viewers, $2) WHERE id = $1`,
			sessionID, viewerCount); err != nil {
			return fmt.Errorf("store: bump peak viewers: %w", err)
		}
		return nil
	})
}

func (d *DB) AppendChatActivity(ctx context.Context, sessionID, username string) error {
	return withTx(ctx, d.DB, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_activity (id, session_id, username, timestamp)
			VALUES (gen_random_uuid(), $1, $2, now())`, sessionID, username); err != nil {
			return fmt.Errorf("store: append chat activity: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE stream_sessions SET
				total_messages = (SELECT count(*) FROM chat_activity WHERE session_id = $1),
				unique_chatters = (SELECT count(DISTINCT username) FROM chat_activity WHERE session_id = $1)
			WHERE id = $1`, sessionID); err != nil {
			return fmt.Errorf("store: project chat activity totals: %w", err)
		}
		return nil
	})
}
