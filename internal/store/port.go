package store

import (
	"context"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// Port is the full Persistence Port contract. Every other component
// depends only on this interface, never on *DB directly, so the in-memory
// fake in memory.go can stand in for unit tests.
type Port interface {
	// Tenants / connections / config
	GetTenant(ctx context.Context, tenantID string) (models.Tenant, error)
	UpsertPlatformConnection(ctx context.Context, c models.PlatformConnection) (models.PlatformConnection, error)
	GetPlatformConnection(ctx context.Context, tenantID string, platform models.Platform) (models.PlatformConnection, error)
	ListActiveConnections(ctx context.Context) ([]models.PlatformConnection, error)
	SetConnectionStatus(ctx context.Context, tenantID string, platform models.Platform, connected bool) error
	GetBotConfig(ctx context.Context, tenantID string) (models.BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg models.BotConfig) error

	// Per-tenant settings groups. Each Get returns sane defaults when no
	// row exists yet, so callers never special-case "unconfigured".
	GetCurrencySettings(ctx context.Context, tenantID string) (models.CurrencySettings, error)
	SaveCurrencySettings(ctx context.Context, s models.CurrencySettings) error
	GetGameSettings(ctx context.Context, tenantID string) (models.GameSettings, error)
	SaveGameSettings(ctx context.Context, s models.GameSettings) error
	GetShoutoutSettings(ctx context.Context, tenantID string) (models.ShoutoutSettings, error)
	SaveShoutoutSettings(ctx context.Context, s models.ShoutoutSettings) error
	GetAlertSettings(ctx context.Context, tenantID string) (models.AlertSettings, error)
	SaveAlertSettings(ctx context.Context, s models.AlertSettings) error

	// Commands / moderation
	ListCustomCommands(ctx context.Context, tenantID string) ([]models.CustomCommand, error)
	GetCustomCommand(ctx context.Context, tenantID, name string) (models.CustomCommand, error)
	IncrementCommandUsage(ctx context.Context, commandID string) (int, error)
	ListModerationRules(ctx context.Context, tenantID string) ([]models.ModerationRule, error)
	ListLinkWhitelist(ctx context.Context, tenantID string) ([]string, error)

	// Giveaways
	GetActiveGiveaway(ctx context.Context, tenantID string) (models.Giveaway, error)
	InsertGiveawayEntry(ctx context.Context, e models.GiveawayEntry) (bool, error) // false if duplicate
	CountGiveawayEntries(ctx context.Context, giveawayID string) (int, error)

	// Currency
	GetUserBalance(ctx context.Context, tenantID, username string, platform models.Platform) (models.UserBalance, error)
	ApplyCurrencyDelta(ctx context.Context, tenantID, username string, platform models.Platform, delta int64, reason string, kind models.TransactionKind) (models.UserBalance, error)
	ListLeaderboard(ctx context.Context, tenantID string, platform models.Platform, limit int) ([]models.UserBalance, error)

	// Stats
	OpenStreamSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error)
	EndStreamSession(ctx context.Context, sessionID string) error
	GetOpenStreamSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error)
	AppendViewerSnapshot(ctx context.Context, sessionID string, viewerCount int) error
	AppendChatActivity(ctx context.Context, sessionID, username string) error

	// Message queue
	EnqueueMessage(ctx context.Context, item models.MessageQueueItem) (models.MessageQueueItem, error)
	ClaimMessages(ctx context.Context, platform models.Platform, limit int) ([]models.MessageQueueItem, error)
	CompleteMessage(ctx context.Context, id string, success bool, errMsg string) error

	// Token lifecycle
	CreateOAuthSession(ctx context.Context, s models.OAuthSession) error
	ConsumeOAuthSession(ctx context.Context, state string) (models.OAuthSession, error)
	RecordTokenRotation(ctx context.Context, h models.TokenRotationHistory) error
	RaiseTokenExpiryAlert(ctx context.Context, a models.TokenExpiryAlert) (bool, error) // false if already raised & unacked
	ListConnectionsExpiringBefore(ctx context.Context, before time.Time) ([]models.PlatformConnection, error)
}
