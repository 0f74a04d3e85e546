package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// defaultGameCooldowns backs GameSettings when a tenant has never saved one.
func defaultGameCooldowns() map[models.GameKind]int {
	return map[models.GameKind]int{
		models.GameTrivia:    2,
		models.GameDuel:      1,
		models.GameSlots:     1,
		models.GameRoulette:  1,
		models.GameEightBall: 1,
	}
}

func (d *DB) GetCurrencySettings(ctx context.Context, tenantID string) (models.CurrencySettings, error) {
	var s models.CurrencySettings
	err := d.GetContext(ctx, &s, `
		SELECT tenant_id, enabled, currency_name, earn_per_message, gamble_min_bet, gamble_max_bet
		FROM currency_settings WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CurrencySettings{TenantID: tenantID, Enabled: false, CurrencyName: "points", EarnPerMessage: 1, GambleMinBet: 10, GambleMaxBet: 1000}, nil
	}
	if err != nil {
		return models.CurrencySettings{}, fmt.Errorf("store: get currency settings: %w", err)
	}
	return s, nil
}

func (d *DB) SaveCurrencySettings(ctx context.Context, s models.CurrencySettings) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO currency_settings (tenant_id, enabled, currency_name, earn_per_message, gamble_min_bet, gamble_max_bet)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled, currency_name = EXCLUDED.currency_name,
			earn_per_message = EXCLUDED.earn_per_message, gamble_min_bet = EXCLUDED.gamble_min_bet,
			gamble_max_bet = EXCLUDED.gamble_max_bet`,
		s.TenantID, s.Enabled, s.CurrencyName, s.EarnPerMessage, s.GambleMinBet, s.GambleMaxBet)
	if err != nil {
		return fmt.Errorf("store: save currency settings: %w", err)
	}
	return nil
}

func (d *DB) GetGameSettings(ctx context.Context, tenantID string) (models.GameSettings, error) {
	var raw string
	err := d.GetContext(ctx, &raw, `SELECT cooldowns_json FROM game_settings WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameSettings{TenantID: tenantID, CooldownMinutes: defaultGameCooldowns()}, nil
	}
	if err != nil {
		return models.GameSettings{}, fmt.Errorf("store: get game settings: %w", err)
	}
	var cd map[models.GameKind]int
	if err := json.Unmarshal([]byte(raw), &cd); err != nil {
		return models.GameSettings{}, fmt.Errorf("store: decode game settings: %w", err)
	}
	return models.GameSettings{TenantID: tenantID, CooldownMinutes: cd}, nil
}

func (d *DB) SaveGameSettings(ctx context.Context, s models.GameSettings) error {
	raw, err := json.Marshal(s.CooldownMinutes)
	if err != nil {
		return fmt.Errorf("store: encode game settings: %w", err)
	}
	_, err = d.ExecContext(ctx, `
		INSERT INTO game_settings (tenant_id, cooldowns_json) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET cooldowns_json = EXCLUDED.cooldowns_json`,
		s.TenantID, string(raw))
	if err != nil {
		return fmt.Errorf("store: save game settings: %w", err)
	}
	return nil
}

func (d *DB) GetShoutoutSettings(ctx context.Context, tenantID string) (models.ShoutoutSettings, error) {
	var s models.ShoutoutSettings
	err := d.GetContext(ctx, &s, `SELECT tenant_id, message_template FROM shoutout_settings WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ShoutoutSettings{TenantID: tenantID, MessageTemplate: "Go check out {user}, they were awesome!"}, nil
	}
	if err != nil {
		return models.ShoutoutSettings{}, fmt.Errorf("store: get shoutout settings: %w", err)
	}
	return s, nil
}

func (d *DB) SaveShoutoutSettings(ctx context.Context, s models.ShoutoutSettings) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO shoutout_settings (tenant_id, message_template) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET message_template = EXCLUDED.message_template`,
		s.TenantID, s.MessageTemplate)
	if err != nil {
		return fmt.Errorf("store: save shoutout settings: %w", err)
	}
	return nil
}

func (d *DB) GetAlertSettings(ctx context.Context, tenantID string) (models.AlertSettings, error) {
	var s models.AlertSettings
	err := d.GetContext(ctx, &s, `SELECT tenant_id, notify_on_expiry, notify_on_error FROM alert_settings WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AlertSettings{TenantID: tenantID, NotifyOnExpiry: true, NotifyOnError: true}, nil
	}
	if err != nil {
		return models.AlertSettings{}, fmt.Errorf("store: get alert settings: %w", err)
	}
	return s, nil
}

func (d *DB) SaveAlertSettings(ctx context.Context, s models.AlertSettings) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO alert_settings (tenant_id, notify_on_expiry, notify_on_error) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id) DO UPDATE SET notify_on_expiry = EXCLUDED.notify_on_expiry, notify_on_error = EXCLUDED.notify_on_error`,
		s.TenantID, s.NotifyOnExpiry, s.NotifyOnError)
	if err != nil {
		return fmt.Errorf("store: save alert settings: %w", err)
	}
	return nil
}
