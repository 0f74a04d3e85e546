package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) CreateOAuthSession(ctx context.Context, s models.OAuthSession) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO oauth_sessions (state, tenant_id, platform, code_verifier, expires_at, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.State, s.TenantID, s.Platform, s.CodeVerifier, s.ExpiresAt, s.IPAddress)
	if err != nil {
		return fmt.Errorf("store: create oauth session: %w", err)
	}
	return nil
}

// ConsumeOAuthSession is the atomic single-use consume from spec §4.3/§5:
// UPDATE ... WHERE used_at IS NULL AND expires_at > now RETURNING *. Zero
// rows updated means replay or expiry; classifyOAuthMiss tells which by a
// follow-up lookup.
func (d *DB) ConsumeOAuthSession(ctx context.Context, state string) (models.OAuthSession, error) {
	var s models.OAuthSession
	row := d.QueryRowxContext(ctx, `
		UPDATE oauth_sessions SET used_at = now()
		WHERE state = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING state, tenant_id, platform, code_verifier, expires_at, used_at, ip_address`, state)
	err := row.Scan(&s.State, &s.TenantID, &s.Platform, &s.CodeVerifier, &s.ExpiresAt, &s.UsedAt, &s.IPAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OAuthSession{}, d.classifyOAuthMiss(ctx, state)
	}
	if err != nil {
		return models.OAuthSession{}, fmt.Errorf("store: consume oauth session: %w", err)
	}
	return s, nil
}

// classifyOAuthMiss distinguishes a genuine replay (state exists, already
// used) from an unknown/expired state, per spec §4.3's callback
// classification.
func (d *DB) classifyOAuthMiss(ctx context.Context, state string) error {
	var usedAt *time.Time
	var expiresAt time.Time
	err := d.QueryRowContext(ctx, `SELECT used_at, expires_at FROM oauth_sessions WHERE state = $1`, state).
		Scan(&usedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrOAuthStateNotFound
	}
	if err != nil {
		return fmt.Errorf("store: classify oauth miss: %w", err)
	}
	if usedAt != nil {
		return apperrors.ErrReplayDetected
	}
	return apperrors.ErrOAuthStateNotFound
}

func (d *DB) RecordTokenRotation(ctx context.Context, h models.TokenRotationHistory) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO token_rotation_history (
			id, tenant_id, platform, rotation_type, previous_expires_at,
			new_expires_at, success, error_message, rotated_at
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, now())`,
		h.TenantID, h.Platform, h.RotationType, h.PreviousExpiresAt, h.NewExpiresAt, h.Success, h.ErrorMessage)
	if err != nil {
		return fmt.Errorf("store: record token rotation: %w", err)
	}
	return nil
}

// RaiseTokenExpiryAlert is idempotent per (tenant, platform, alertType)
// while unacknowledged (spec §3/§4.3); returns false if one already exists.
func (d *DB) RaiseTokenExpiryAlert(ctx context.Context, a models.TokenExpiryAlert) (bool, error) {
	res, err := d.ExecContext(ctx, `
		INSERT INTO token_expiry_alerts (id, tenant_id, platform, alert_type, token_expires_at, notified, acknowledged)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, false)
		ON CONFLICT (tenant_id, platform, alert_type) WHERE NOT acknowledged DO NOTHING`,
		a.TenantID, a.Platform, a.AlertType, a.TokenExpiresAt, a.Notified)
	if err != nil {
		return false, fmt.Errorf("store: raise token expiry alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: raise token expiry alert rows affected: %w", err)
	}
	return n > 0, nil
}

func (d *DB) ListConnectionsExpiringBefore(ctx context.Context, before time.Time) ([]models.PlatformConnection, error) {
	var cs []models.PlatformConnection
	err := d.SelectContext(ctx, &cs, `
		SELECT id, tenant_id, platform, platform_user_id, platform_username,
			access_token_cipher, refresh_token_cipher, token_expires_at,
			connected, last_connected_at, connection_data
		FROM platform_connections WHERE connected = true AND token_expires_at <= $1`, before)
	if err != nil {
		return nil, fmt.Errorf("store: list connections expiring before: %w", err)
	}
	return cs, nil
}
