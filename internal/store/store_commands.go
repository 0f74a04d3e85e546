package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) ListCustomCommands(ctx context.Context, tenantID string) ([]models.CustomCommand, error) {
	var cmds []models.CustomCommand
	err := d.SelectContext(ctx, &cmds, `
		SELECT id, tenant_id, name, response, cooldown_seconds, is_active, usage_count, permission_level
		FROM custom_commands WHERE tenant_id = $1 AND is_active = true`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list custom commands: %w", err)
	}
	return cmds, nil
}

// GetCustomCommand looks up by case-insensitive name, per spec §4.2 step 6.
func (d *DB) GetCustomCommand(ctx context.Context, tenantID, name string) (models.CustomCommand, error) {
	var c models.CustomCommand
	err := d.GetContext(ctx, &c, `
		SELECT id, tenant_id, name, response, cooldown_seconds, is_active, usage_count, permission_level
		FROM custom_commands WHERE tenant_id = $1 AND lower(name) = lower($2)`,
		tenantID, strings.TrimPrefix(name, "!"))
	if err != nil {
		return models.CustomCommand{}, mapNoRows(fmt.Errorf("store: get custom command: %w", err))
	}
	return c, nil
}

func (d *DB) IncrementCommandUsage(ctx context.Context, commandID string) (int, error) {
	var count int
	err := d.GetContext(ctx, &count, `
		UPDATE custom_commands SET usage_count = usage_count + 1 WHERE id = $1 RETURNING usage_count`, commandID)
	if err != nil {
		return 0, fmt.Errorf("store: increment command usage: %w", err)
	}
	return count, nil
}

func (d *DB) ListModerationRules(ctx context.Context, tenantID string) ([]models.ModerationRule, error) {
	var rules []models.ModerationRule
	err := d.SelectContext(ctx, &rules, `
		SELECT id, tenant_id, rule_type, enabled, action, severity_threshold, timeout_seconds
		FROM moderation_rules WHERE tenant_id = $1 AND enabled = true`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list moderation rules: %w", err)
	}
	return rules, nil
}

func (d *DB) ListLinkWhitelist(ctx context.Context, tenantID string) ([]string, error) {
	var domains []string
	err := d.SelectContext(ctx, &domains, `SELECT domain FROM link_whitelist WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list link whitelist: %w", err)
	}
	return domains, nil
}
