// Package models holds the domain entities shared across the runtime, per
// the data model contract. Entities are defined by contract, not storage
// layout; the Persistence Port is free to lay out columns however it likes
// as long as it returns these shapes.
package models

import "time"

// Platform enumerates the live-stream chat networks the core connects to.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformKick    Platform = "kick"
	PlatformSpotify Platform = "spotify"
)

// IntervalMode controls how a tenant's scheduled post timer behaves.
type IntervalMode string

const (
	IntervalManual IntervalMode = "manual"
	IntervalFixed  IntervalMode = "fixed"
	IntervalRandom IntervalMode = "random"
)

// Tenant is one end user (streamer) of the platform.
type Tenant struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// PlatformConnection is a tenant's credentials for one platform.
// Invariant: at most one row per (tenantId, platform). Tokens at rest are
// always ciphertext.
type PlatformConnection struct {
	ID                 string     `db:"id" json:"id"`
	TenantID           string     `db:"tenant_id" json:"tenantId"`
	Platform           Platform   `db:"platform" json:"platform"`
	PlatformUserID     string     `db:"platform_user_id" json:"platformUserId"`
	PlatformUsername   string     `db:"platform_username" json:"platformUsername"`
	AccessTokenCipher  string     `db:"access_token_cipher" json:"-"`
	RefreshTokenCipher string     `db:"refresh_token_cipher" json:"-"`
	TokenExpiresAt     time.Time  `db:"token_expires_at" json:"tokenExpiresAt"`
	Connected          bool       `db:"connected" json:"connected"`
	LastConnectedAt    *time.Time `db:"last_connected_at" json:"lastConnectedAt,omitempty"`
	ConnectionData     string     `db:"connection_data" json:"connectionData,omitempty"`
}

// BotConfig holds a tenant's operational parameters.
type BotConfig struct {
	TenantID             string       `db:"tenant_id" json:"tenantId"`
	IntervalMode         IntervalMode `db:"interval_mode" json:"intervalMode"`
	FixedIntervalMinutes int          `db:"fixed_interval_minutes" json:"fixedIntervalMinutes"`
	RandomMinMinutes     int          `db:"random_min_minutes" json:"randomMinMinutes"`
	RandomMaxMinutes     int          `db:"random_max_minutes" json:"randomMaxMinutes"`
	AIModel              string       `db:"ai_model" json:"aiModel"`
	AIPromptTemplate     string       `db:"ai_prompt_template" json:"aiPromptTemplate"`
	AITemperature        int          `db:"ai_temperature" json:"aiTemperature"` // 0..20 scaled
	ChatKeywords         []string     `db:"-" json:"chatKeywords"`
	BannedWords          []string     `db:"-" json:"bannedWords"`
	ActivePlatforms      []Platform   `db:"-" json:"activePlatforms"`
	IsActive             bool         `db:"is_active" json:"isActive"`
	LastPostedAt         *time.Time   `db:"last_posted_at" json:"lastPostedAt,omitempty"`
}

// Valid enforces the random-interval invariant from §3.
func (c BotConfig) Valid() bool {
	if c.IntervalMode != IntervalRandom {
		return true
	}
	return c.RandomMinMinutes > 0 && c.RandomMaxMinutes > 0 && c.RandomMinMinutes <= c.RandomMaxMinutes
}

// CurrencySettings configures a tenant's currency ledger: whether chat
// accrual is active, the per-message reward, and gamble bet bounds for the
// built-in `!gamble` command.
type CurrencySettings struct {
	TenantID       string `db:"tenant_id" json:"tenantId"`
	Enabled        bool   `db:"enabled" json:"enabled"`
	CurrencyName   string `db:"currency_name" json:"currencyName"`
	EarnPerMessage int64  `db:"earn_per_message" json:"earnPerMessage"`
	GambleMinBet   int64  `db:"gamble_min_bet" json:"gambleMinBet"`
	GambleMaxBet   int64  `db:"gamble_max_bet" json:"gambleMaxBet"`
}

// GameSettings holds per-game cooldowns (minutes) for the built-in chat
// games, keyed per (user, game) at evaluation time.
type GameSettings struct {
	TenantID        string           `db:"tenant_id" json:"tenantId"`
	CooldownMinutes map[GameKind]int `db:"-" json:"cooldownMinutes"`
}

// ShoutoutSettings configures the `!so`/`!shoutout` response template,
// rendered through the same {user}/{channel} tokens as custom commands.
type ShoutoutSettings struct {
	TenantID        string `db:"tenant_id" json:"tenantId"`
	MessageTemplate string `db:"message_template" json:"messageTemplate"`
}

// AlertSettings controls which Token Manager alerts reach the admin
// notification sink versus staying silent in the Persistence Port only.
type AlertSettings struct {
	TenantID       string `db:"tenant_id" json:"tenantId"`
	NotifyOnExpiry bool   `db:"notify_on_expiry" json:"notifyOnExpiry"`
	NotifyOnError  bool   `db:"notify_on_error" json:"notifyOnError"`
}

// PermissionLevel gates who may invoke a custom command.
type PermissionLevel string

const (
	PermissionEveryone  PermissionLevel = "everyone"
	PermissionSubscriber PermissionLevel = "subscriber"
	PermissionModerator PermissionLevel = "moderator"
	PermissionBroadcaster PermissionLevel = "broadcaster"
)

// CustomCommand is a tenant-defined `!name` response template.
type CustomCommand struct {
	ID              string          `db:"id" json:"id"`
	TenantID        string          `db:"tenant_id" json:"tenantId"`
	Name            string          `db:"name" json:"name"`
	Response        string          `db:"response" json:"response"`
	CooldownSeconds int             `db:"cooldown_seconds" json:"cooldownSeconds"`
	IsActive        bool            `db:"is_active" json:"isActive"`
	UsageCount      int             `db:"usage_count" json:"usageCount"`
	PermissionLevel PermissionLevel `db:"permission_level" json:"permissionLevel"`
}

// ModerationRuleType enumerates the moderation chain's rule kinds, checked
// in this fixed order: toxic, spam, links, caps, symbols.
type ModerationRuleType string

const (
	RuleToxic   ModerationRuleType = "toxic"
	RuleSpam    ModerationRuleType = "spam"
	RuleLinks   ModerationRuleType = "links"
	RuleCaps    ModerationRuleType = "caps"
	RuleSymbols ModerationRuleType = "symbols"
)

// ModerationAction is what a triggered rule does to the message/author.
type ModerationAction string

const (
	ActionAllow   ModerationAction = "allow"
	ActionWarn    ModerationAction = "warn"
	ActionTimeout ModerationAction = "timeout"
	ActionBan     ModerationAction = "ban"
)

// Severity classifies how bad a detected violation is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ModerationRule configures one rule of the moderation chain for a tenant.
type ModerationRule struct {
	ID                string             `db:"id" json:"id"`
	TenantID          string             `db:"tenant_id" json:"tenantId"`
	RuleType          ModerationRuleType `db:"rule_type" json:"ruleType"`
	Enabled           bool               `db:"enabled" json:"enabled"`
	Action            ModerationAction   `db:"action" json:"action"`
	SeverityThreshold Severity           `db:"severity_threshold" json:"severityThreshold"`
	TimeoutSeconds    int                `db:"timeout_seconds" json:"timeoutSeconds"`
}

// LinkWhitelist is a permitted domain for the links rule.
type LinkWhitelist struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenantId"`
	Domain   string `db:"domain" json:"domain"`
}

// GiveawayStatus tracks a giveaway's lifecycle.
type GiveawayStatus string

const (
	GiveawayActive    GiveawayStatus = "active"
	GiveawayDrawn     GiveawayStatus = "drawn"
	GiveawayCancelled GiveawayStatus = "cancelled"
)

// Giveaway is a keyword-entry drawing. At most one active row per tenant.
type Giveaway struct {
	ID                   string         `db:"id" json:"id"`
	TenantID             string         `db:"tenant_id" json:"tenantId"`
	Title                string         `db:"title" json:"title"`
	Keyword              string         `db:"keyword" json:"keyword"`
	RequiresSubscription bool           `db:"requires_subscription" json:"requiresSubscription"`
	MaxWinners           int            `db:"max_winners" json:"maxWinners"`
	StartedAt            time.Time      `db:"started_at" json:"startedAt"`
	EndedAt              *time.Time     `db:"ended_at" json:"endedAt,omitempty"`
	Status               GiveawayStatus `db:"status" json:"status"`
}

// GiveawayEntry is unique on (giveawayId, username, platform).
type GiveawayEntry struct {
	ID           string    `db:"id" json:"id"`
	GiveawayID   string    `db:"giveaway_id" json:"giveawayId"`
	Username     string    `db:"username" json:"username"`
	Platform     Platform  `db:"platform" json:"platform"`
	IsSubscriber bool      `db:"is_subscriber" json:"isSubscriber"`
	EnteredAt    time.Time `db:"entered_at" json:"enteredAt"`
}

// GameKind enumerates the built-in chat games.
type GameKind string

const (
	GameTrivia    GameKind = "trivia"
	GameDuel      GameKind = "duel"
	GameSlots     GameKind = "slots"
	GameRoulette  GameKind = "roulette"
	GameEightBall GameKind = "eightball"
)

// GameState is transient per (tenant, username, platform) trivia/duel state.
type GameState struct {
	TenantID  string         `json:"tenantId"`
	Username  string         `json:"username"`
	Platform  Platform       `json:"platform"`
	Kind      GameKind       `json:"kind"`
	Payload   map[string]any `json:"payload"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// UserBalance is the projected current balance of a currency ledger.
// Invariant: balance == sum of CurrencyTransaction.Delta for the same key.
type UserBalance struct {
	TenantID string   `db:"tenant_id" json:"tenantId"`
	Username string   `db:"username" json:"username"`
	Platform Platform `db:"platform" json:"platform"`
	Balance  int64    `db:"balance" json:"balance"`
}

// TransactionKind classifies a currency ledger entry.
type TransactionKind string

const (
	TxEarn    TransactionKind = "earn"
	TxGamble  TransactionKind = "gamble"
	TxRedeem  TransactionKind = "redeem"
	TxAdjust  TransactionKind = "adjust"
)

// CurrencyTransaction is one append-only ledger entry.
type CurrencyTransaction struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"tenantId"`
	Username  string          `db:"username" json:"username"`
	Platform  Platform        `db:"platform" json:"platform"`
	Delta     int64           `db:"delta" json:"delta"`
	Reason    string          `db:"reason" json:"reason"`
	Kind      TransactionKind `db:"kind" json:"kind"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// StreamSession tracks one live broadcast on one platform for one tenant.
// Invariant: exactly one session per (tenantId, platform) has EndedAt==nil.
type StreamSession struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenantId"`
	Platform       Platform   `db:"platform" json:"platform"`
	StartedAt      time.Time  `db:"started_at" json:"startedAt"`
	EndedAt        *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	PeakViewers    int        `db:"peak_viewers" json:"peakViewers"`
	TotalMessages  int        `db:"total_messages" json:"totalMessages"`
	UniqueChatters int        `db:"unique_chatters" json:"uniqueChatters"`
}

// ViewerSnapshot is a point-in-time viewer count, appended at fixed cadence.
type ViewerSnapshot struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"sessionId"`
	ViewerCount int       `db:"viewer_count" json:"viewerCount"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}

// ChatActivity is one row per inbound message; session totals are
// projections over this table.
type ChatActivity struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	Username  string    `db:"username" json:"username"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// CircuitState is one of the three Circuit Breaker states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// PlatformHealth is the per-platform critical section tracked by the
// Circuit Breaker.
type PlatformHealth struct {
	Platform          Platform     `json:"platform"`
	CircuitState      CircuitState `json:"circuitState"`
	FailureCount      int          `json:"failureCount"`
	SuccessCount      int          `json:"successCount"`
	IsThrottled       bool         `json:"isThrottled"`
	ThrottledUntil    time.Time    `json:"throttledUntil,omitempty"`
	AvgResponseTimeMs float64      `json:"avgResponseTimeMs"`
	RequestsToday     int64        `json:"requestsToday"`
	ErrorsToday       int64        `json:"errorsToday"`
	LastSuccessAt     time.Time    `json:"lastSuccessAt,omitempty"`
	LastFailureAt     time.Time    `json:"lastFailureAt,omitempty"`
}

// QueueStatus is the lifecycle state of a MessageQueueItem.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// MessageQueueItem is one durable outbound message backlog entry.
type MessageQueueItem struct {
	ID           string      `db:"id" json:"id"`
	TenantID     string      `db:"tenant_id" json:"tenantId"`
	Platform     Platform    `db:"platform" json:"platform"`
	MessageType  string      `db:"message_type" json:"messageType"`
	Content      string      `db:"content" json:"content"`
	Metadata     string      `db:"metadata" json:"metadata,omitempty"`
	Status       QueueStatus `db:"status" json:"status"`
	Priority     int         `db:"priority" json:"priority"` // 0..10
	ScheduledFor time.Time   `db:"scheduled_for" json:"scheduledFor"`
	RetryCount   int         `db:"retry_count" json:"retryCount"`
	MaxRetries   int         `db:"max_retries" json:"maxRetries"`
	LastError    string      `db:"last_error" json:"lastError,omitempty"`
	ProcessedAt  *time.Time  `db:"processed_at" json:"processedAt,omitempty"`
}

// RotationType classifies why a PlatformConnection's tokens were rotated.
type RotationType string

const (
	RotationScheduled     RotationType = "scheduled"
	RotationOnError       RotationType = "on_error"
	RotationManual        RotationType = "manual"
	RotationExpiryWarning RotationType = "expiry_warning"
)

// TokenRotationHistory is an append-only audit trail of refresh attempts.
type TokenRotationHistory struct {
	ID                string       `db:"id" json:"id"`
	TenantID          string       `db:"tenant_id" json:"tenantId"`
	Platform          Platform     `db:"platform" json:"platform"`
	RotationType      RotationType `db:"rotation_type" json:"rotationType"`
	PreviousExpiresAt time.Time    `db:"previous_expires_at" json:"previousExpiresAt"`
	NewExpiresAt      time.Time    `db:"new_expires_at" json:"newExpiresAt"`
	Success           bool         `db:"success" json:"success"`
	ErrorMessage      string       `db:"error_message" json:"errorMessage,omitempty"`
	RotatedAt         time.Time    `db:"rotated_at" json:"rotatedAt"`
}

// AlertType enumerates the Token Manager's expiry alert kinds.
type AlertType string

const (
	Alert24hrWarning   AlertType = "24hr_warning"
	Alert1hrWarning    AlertType = "1hr_warning"
	AlertExpired       AlertType = "expired"
	AlertRefreshFailed AlertType = "refresh_failed"
)

// TokenExpiryAlert is unique on (tenantId, platform, alertType) among
// non-acknowledged rows.
type TokenExpiryAlert struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenantId"`
	Platform       Platform  `db:"platform" json:"platform"`
	AlertType      AlertType `db:"alert_type" json:"alertType"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"tokenExpiresAt"`
	Notified       bool      `db:"notified" json:"notified"`
	Acknowledged   bool      `db:"acknowledged" json:"acknowledged"`
}

// OAuthSession is a short-lived, single-use PKCE exchange record.
type OAuthSession struct {
	State        string     `db:"state" json:"state"`
	TenantID     string     `db:"tenant_id" json:"tenantId"`
	Platform     Platform   `db:"platform" json:"platform"`
	CodeVerifier string     `db:"code_verifier" json:"-"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expiresAt"`
	UsedAt       *time.Time `db:"used_at" json:"usedAt,omitempty"`
	IPAddress    string     `db:"ip_address" json:"ipAddress,omitempty"`
}

// ChatTags is the concrete replacement for the structural `tags.subscriber
// || tags.badges?.subscriber` access pattern: a normalized shape every
// platform adapter must translate its native tags into.
type ChatTags struct {
	IsSubscriber  bool
	IsModerator   bool
	IsBroadcaster bool
	Badges        map[string]struct{}
}

// ChatEvent is the canonical inbound message shape every adapter normalizes
// its platform frame into.
type ChatEvent struct {
	Platform  Platform
	Channel   string
	Username  string
	Text      string
	Tags      ChatTags
	ArrivedAt time.Time
}

// RaidEvent is a canonical incoming-raid notification.
type RaidEvent struct {
	Username string
	Viewers  int
}

// ChatActionKind enumerates what an outbound ChatAction asks the adapter
// to do.
type ChatActionKind string

const (
	ActionSend    ChatActionKind = "send"
	ActionTimeoutUser ChatActionKind = "timeout"
	ActionBanUser ChatActionKind = "ban"
)

// ChatAction is one outbound effect produced by a policy pipeline stage.
type ChatAction struct {
	Kind           ChatActionKind
	Platform       Platform
	Channel        string
	Username       string // target of timeout/ban; empty for plain sends
	Text           string
	TimeoutSeconds int
	Reason         string
	Priority       int
	ScheduledFor   time.Time
}

// EventKind enumerates the Event Bus's event kinds.
type EventKind string

const (
	EventStatusChanged    EventKind = "status_changed"
	EventNewMessage       EventKind = "new_message"
	EventError            EventKind = "error"
	EventModerationAction EventKind = "moderation_action"
	EventGiveawayEntry    EventKind = "giveaway_entry"
	EventTrainingProgress EventKind = "training_progress"
)

// Event is one item published on the Event Bus.
type Event struct {
	Kind      EventKind      `json:"kind"`
	TenantID  string         `json:"tenantId"`
	Platform  Platform       `json:"platform,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
