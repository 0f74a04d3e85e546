package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	var t models.Tenant
	err := d.GetContext(ctx, &t, `SELECT id, display_name, created_at, deleted_at FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return models.Tenant{}, mapNoRows(fmt.Errorf("store: get tenant: %w", err))
	}
	return t, nil
}

// UpsertPlatformConnection enforces the at-most-one-per-(tenant,platform)
// invariant via the unique index from spec §6.3.
func (d *DB) UpsertPlatformConnection(ctx context.Context, c models.PlatformConnection) (models.PlatformConnection, error) {
	const q = `
		INSERT INTO platform_connections (
			id, tenant_id, platform, platform_user_id, platform_username,
			access_token_cipher, refresh_token_cipher, token_expires_at,
			connected, last_connected_at, connection_data
		) VALUES (gen_random_uuid(), :tenant_id, :platform, :platform_user_id, :platform_username,
			:access_token_cipher, :refresh_token_cipher, :token_expires_at,
			:connected, :last_connected_at, :connection_data)
		ON CONFLICT (tenant_id, platform) DO UPDATE SET
			platform_user_id = EXCLUDED.platform_user_id,
			platform_username = EXCLUDED.platform_username,
			access_token_cipher = EXCLUDED.access_token_cipher,
			refresh_token_cipher = EXCLUDED.refresh_token_cipher,
			token_expires_at = EXCLUDED.token_expires_at,
			connected = EXCLUDED.connected,
			last_connected_at = EXCLUDED.last_connected_at,
			connection_data = EXCLUDED.connection_data
		RETURNING id, tenant_id, platform, platform_user_id, platform_username,
			access_token_cipher, refresh_token_cipher, token_expires_at,
			connected, last_connected_at, connection_data`

	rows, err := d.NamedQueryContext(ctx, q, c)
	if err != nil {
		return models.PlatformConnection{}, fmt.Errorf("store: upsert connection: %w", err)
	}
	defer rows.Close()
	var out models.PlatformConnection
	if rows.Next() {
		if err := rows.StructScan(&out); err != nil {
			return models.PlatformConnection{}, fmt.Errorf("store: scan connection: %w", err)
		}
	}
	return out, nil
}

func (d *DB) GetPlatformConnection(ctx context.Context, tenantID string, platform models.Platform) (models.PlatformConnection, error) {
	var c models.PlatformConnection
	err := d.GetContext(ctx, &c, `
		SELECT id, tenant_id, platform, platform_user_id, platform_username,
			access_token_cipher, refresh_token_cipher, token_expires_at,
			connected, last_connected_at, connection_data
		FROM platform_connections WHERE tenant_id = $1 AND platform = $2`, tenantID, platform)
	if err != nil {
		return models.PlatformConnection{}, mapNoRows(fmt.Errorf("store: get connection: %w", err))
	}
	return c, nil
}

func (d *DB) ListActiveConnections(ctx context.Context) ([]models.PlatformConnection, error) {
	var cs []models.PlatformConnection
	err := d.SelectContext(ctx, &cs, `
		SELECT id, tenant_id, platform, platform_user_id, platform_username,
			access_token_cipher, refresh_token_cipher, token_expires_at,
			connected, last_connected_at, connection_data
		FROM platform_connections WHERE connected = true`)
	if err != nil {
		return nil, fmt.Errorf("store: list active connections: %w", err)
	}
	return cs, nil
}

func (d *DB) SetConnectionStatus(ctx context.Context, tenantID string, platform models.Platform, connected bool) error {
	_, err := d.ExecContext(ctx, `
		UPDATE platform_connections SET connected = $3 WHERE tenant_id = $1 AND platform = $2`,
		tenantID, platform, connected)
	if err != nil {
		return fmt.Errorf("store: set connection status: %w", err)
	}
	return nil
}

func (d *DB) GetBotConfig(ctx context.Context, tenantID string) (models.BotConfig, error) {
	var cfg models.BotConfig
	var keywords, banned, platforms []string
	row := d.QueryRowxContext(ctx, `
		SELECT tenant_id, interval_mode, fixed_interval_minutes, random_min_minutes,
			random_max_minutes, ai_model, ai_prompt_template, ai_temperature,
			chat_keywords, banned_words, active_platforms, is_active, last_posted_at
		FROM bot_configs WHERE tenant_id = $1`, tenantID)
	if err := row.Scan(&cfg.TenantID, &cfg.IntervalMode, &cfg.FixedIntervalMinutes,
		&cfg.RandomMinMinutes, &cfg.RandomMaxMinutes, &cfg.AIModel, &cfg.AIPromptTemplate,
		&cfg.AITemperature, pq.Array(&keywords), pq.Array(&banned),
		pq.Array(&platforms), &cfg.IsActive, &cfg.LastPostedAt); err != nil {
		return models.BotConfig{}, mapNoRows(fmt.Errorf("store: get bot config: %w", err))
	}
	cfg.ChatKeywords = keywords
	cfg.BannedWords = banned
	for _, p := range platforms {
		cfg.ActivePlatforms = append(cfg.ActivePlatforms, models.Platform(p))
	}
	return cfg, nil
}

func (d *DB) SaveBotConfig(ctx context.Context, cfg models.BotConfig) error {
	activePlatforms := make([]string, 0, len(cfg.ActivePlatforms))
	for _, p := range cfg.ActivePlatforms {
		activePlatforms = append(activePlatforms, string(p))
	}
	_, err := d.ExecContext(ctx, `
		INSERT INTO bot_configs (
			tenant_id, interval_mode, fixed_interval_minutes, random_min_minutes,
			random_max_minutes, ai_model, ai_prompt_template, ai_temperature,
			chat_keywords, banned_words, active_platforms, is_active, last_posted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id) DO UPDATE SET
			interval_mode = EXCLUDED.interval_mode,
			fixed_interval_minutes = EXCLUDED.fixed_interval_minutes,
			random_min_minutes = EXCLUDED.random_min_minutes,
			random_max_minutes = EXCLUDED.random_max_minutes,
			ai_model = EXCLUDED.ai_model,
			ai_prompt_template = EXCLUDED.ai_prompt_template,
			ai_temperature = EXCLUDED.ai_temperature,
			chat_keywords = EXCLUDED.chat_keywords,
			banned_words = EXCLUDED.banned_words,
			active_platforms = EXCLUDED.active_platforms,
			is_active = EXCLUDED.is_active,
			last_posted_at = EXCLUDED.last_posted_at`,
		cfg.TenantID, cfg.IntervalMode, cfg.FixedIntervalMinutes, cfg.RandomMinMinutes,
		cfg.RandomMaxMinutes, cfg.AIModel, cfg.AIPromptTemplate, cfg.AITemperature,
		pq.Array(cfg.ChatKeywords), pq.Array(cfg.BannedWords), pq.Array(activePlatforms),
		cfg.IsActive, cfg.LastPostedAt)
	if err != nil {
		return fmt.Errorf("store: save bot config: %w", err)
	}
	return nil
}
