package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// Memory is an in-process fake satisfying Port, used by package tests
// instead of a real Postgres instance (see SPEC_FULL.md's test-tooling
// section: "the Persistence Port is exercised through an interface with an
// in-memory fake for unit tests").
type Memory struct {
	mu sync.Mutex

	tenants      map[string]models.Tenant
	connections  map[string]models.PlatformConnection // key tenantID|platform
	botConfigs   map[string]models.BotConfig
	commands     map[string][]models.CustomCommand
	modRules     map[string][]models.ModerationRule
	linkWhitelist map[string][]string
	giveaways    map[string][]models.Giveaway
	entries      map[string]map[string]models.GiveawayEntry // giveawayID -> key(username|platform)
	balances     map[string]models.UserBalance
	sessions     map[string]models.StreamSession
	chatActivity map[string][]models.ChatActivity
	queue        map[string]models.MessageQueueItem
	oauth        map[string]models.OAuthSession
	rotations    []models.TokenRotationHistory
	alerts       map[string]models.TokenExpiryAlert

	currencySettings map[string]models.CurrencySettings
	gameSettings     map[string]models.GameSettings
	shoutoutSettings map[string]models.ShoutoutSettings
	alertSettings    map[string]models.AlertSettings
}

func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]models.Tenant),
		connections:   make(map[string]models.PlatformConnection),
		botConfigs:    make(map[string]models.BotConfig),
		commands:      make(map[string][]models.CustomCommand),
		modRules:      make(map[string][]models.ModerationRule),
		linkWhitelist: make(map[string][]string),
		giveaways:     make(map[string][]models.Giveaway),
		entries:       make(map[string]map[string]models.GiveawayEntry),
		balances:      make(map[string]models.UserBalance),
		sessions:      make(map[string]models.StreamSession),
		chatActivity:  make(map[string][]models.ChatActivity),
		queue:         make(map[string]models.MessageQueueItem),
		oauth:         make(map[string]models.OAuthSession),
		alerts:        make(map[string]models.TokenExpiryAlert),

		currencySettings: make(map[string]models.CurrencySettings),
		gameSettings:     make(map[string]models.GameSettings),
		shoutoutSettings: make(map[string]models.ShoutoutSettings),
		alertSettings:    make(map[string]models.AlertSettings),
	}
}

func connKey(tenantID string, platform models.Platform) string {
	return tenantID + "|" + string(platform)
}

// SeedTenant is a test helper, not part of Port.
func (m *Memory) SeedTenant(t models.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

func (m *Memory) GetTenant(_ context.Context, tenantID string) (models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return models.Tenant{}, apperrors.ErrNotFound
	}
	return t, nil
}

func (m *Memory) UpsertPlatformConnection(_ context.Context, c models.PlatformConnection) (models.PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.connections[connKey(c.TenantID, c.Platform)] = c
	return c, nil
}

func (m *Memory) GetPlatformConnection(_ context.Context, tenantID string, platform models.Platform) (models.PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[connKey(tenantID, platform)]
	if !ok {
		return models.PlatformConnection{}, apperrors.ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListActiveConnections(_ context.Context) ([]models.PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PlatformConnection
	for _, c := range m.connections {
		if c.Connected {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) SetConnectionStatus(_ context.Context, tenantID string, platform models.Platform, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := connKey(tenantID, platform)
	c, ok := m.connections[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Connected = connected
	m.connections[key] = c
	return nil
}

func (m *Memory) GetBotConfig(_ context.Context, tenantID string) (models.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.botConfigs[tenantID]
	if !ok {
		return models.BotConfig{}, apperrors.ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) SaveBotConfig(_ context.Context, cfg models.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botConfigs[cfg.TenantID] = cfg
	return nil
}

func (m *Memory) ListCustomCommands(_ context.Context, tenantID string) ([]models.CustomCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CustomCommand{}, m.commands[tenantID]...), nil
}

func (m *Memory) GetCustomCommand(_ context.Context, tenantID, name string) (models.CustomCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.ToLower(strings.TrimPrefix(name, "!"))
	for _, c := range m.commands[tenantID] {
		if strings.ToLower(c.Name) == name {
			return c, nil
		}
	}
	return models.CustomCommand{}, apperrors.ErrNotFound
}

// SeedCustomCommand is a test helper, not part of Port.
func (m *Memory) SeedCustomCommand(c models.CustomCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.commands[c.TenantID] = append(m.commands[c.TenantID], c)
}

func (m *Memory) IncrementCommandUsage(_ context.Context, commandID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenantID, cmds := range m.commands {
		for i, c := range cmds {
			if c.ID == commandID {
				cmds[i].UsageCount++
				m.commands[tenantID] = cmds
				return cmds[i].UsageCount, nil
			}
		}
	}
	return 0, apperrors.ErrNotFound
}

func (m *Memory) ListModerationRules(_ context.Context, tenantID string) ([]models.ModerationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ModerationRule{}, m.modRules[tenantID]...), nil
}

// SeedModerationRules is a test helper, not part of Port.
func (m *Memory) SeedModerationRules(tenantID string, rules []models.ModerationRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modRules[tenantID] = rules
}

func (m *Memory) ListLinkWhitelist(_ context.Context, tenantID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.linkWhitelist[tenantID]...), nil
}

// SeedLinkWhitelist is a test helper, not part of Port.
func (m *Memory) SeedLinkWhitelist(tenantID string, domains []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkWhitelist[tenantID] = domains
}

func (m *Memory) GetActiveGiveaway(_ context.Context, tenantID string) (models.Giveaway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.giveaways[tenantID] {
		if g.Status == models.GiveawayActive {
			return g, nil
		}
	}
	return models.Giveaway{}, apperrors.ErrNotFound
}

// SeedGiveaway is a test helper, not part of Port.
func (m *Memory) SeedGiveaway(g models.Giveaway) models.Giveaway {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.giveaways[g.TenantID] = append(m.giveaways[g.TenantID], g)
	return g
}

func (m *Memory) InsertGiveawayEntry(_ context.Context, e models.GiveawayEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.Username + "|" + string(e.Platform)
	bucket, ok := m.entries[e.GiveawayID]
	if !ok {
		bucket = make(map[string]models.GiveawayEntry)
		m.entries[e.GiveawayID] = bucket
	}
	if _, exists := bucket[key]; exists {
		return false, nil
	}
	e.EnteredAt = time.Now()
	bucket[key] = e
	return true, nil
}

func (m *Memory) CountGiveawayEntries(_ context.Context, giveawayID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[giveawayID]), nil
}

func (m *Memory) GetUserBalance(_ context.Context, tenantID, username string, platform models.Platform) (models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", tenantID, username, platform)
	b, ok := m.balances[key]
	if !ok {
		return models.UserBalance{TenantID: tenantID, Username: username, Platform: platform}, nil
	}
	return b, nil
}

func (m *Memory) ApplyCurrencyDelta(_ context.Context, tenantID, username string, platform models.Platform, delta int64, _ string, _ models.TransactionKind) (models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", tenantID, username, platform)
	b := m.balances[key]
	b.TenantID, b.Username, b.Platform = tenantID, username, platform
	b.Balance += delta
	m.balances[key] = b
	return b, nil
}

func (m *Memory) ListLeaderboard(_ context.Context, tenantID string, platform models.Platform, limit int) ([]models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserBalance
	for _, b := range m.balances {
		if b.TenantID == tenantID && b.Platform == platform {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) OpenStreamSession(_ context.Context, tenantID string, platform models.Platform) (models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.TenantID == tenantID && s.Platform == platform && s.EndedAt == nil {
			now := time.Now()
			s.EndedAt = &now
			m.sessions[id] = s
		}
	}
	s := models.StreamSession{ID: uuid.NewString(), TenantID: tenantID, Platform: platform, StartedAt: time.Now()}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *Memory) EndStreamSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if s.EndedAt == nil {
		now := time.Now()
		s.EndedAt = &now
		m.sessions[sessionID] = s
	}
	return nil
}

func (m *Memory) GetOpenStreamSession(_ context.Context, tenantID string, platform models.Platform) (models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TenantID == tenantID && s.Platform == platform && s.EndedAt == nil {
			return s, nil
		}
	}
	return models.StreamSession{}, apperrors.ErrNotFound
}

func (m *Memory) AppendViewerSnapshot(_ context.Context, sessionID string, viewerCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if viewerCount > s.PeakViewers {
		s.PeakViewers = viewerCount
		m.sessions[sessionID] = s
	}
	return nil
}

func (m *Memory) AppendChatActivity(_ context.Context, sessionID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	m.chatActivity[sessionID] = append(m.chatActivity[sessionID], models.ChatActivity{
		ID: uuid.NewString(), SessionID: sessionID, Username: username, Timestamp: time.Now(),
	})
	seen := make(map[string]struct{})
	for _, a := range m.chatActivity[sessionID] {
		seen[a.Username] = struct{}{}
	}
	s.TotalMessages = len(m.chatActivity[sessionID])
	s.UniqueChatters = len(seen)
	m.sessions[sessionID] = s
	return nil
}

func (m *Memory) EnqueueMessage(_ context.Context, item models.MessageQueueItem) (models.MessageQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Priority == 0 {
		item.Priority = 5
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = time.Now()
	}
	if item.MaxRetries == 0 {
		item.MaxRetries = 3
	}
	item.Status = models.QueuePending
	m.queue[item.ID] = item
	return item, nil
}

func (m *Memory) ClaimMessages(_ context.Context, platform models.Platform, limit int) ([]models.MessageQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []models.MessageQueueItem
	now := time.Now()
	for _, item := range m.queue {
		if item.Platform != platform {
			continue
		}
		if item.Status != models.QueuePending && item.Status != models.QueueFailed {
			continue
		}
		if item.ScheduledFor.After(now) {
			continue
		}
		candidates = append(candidates, item)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ScheduledFor.Before(candidates[j].ScheduledFor)
	})
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, item := range candidates {
		item.Status = models.QueueProcessing
		m.queue[item.ID] = item
	}
	return candidates, nil
}

func (m *Memory) CompleteMessage(_ context.Context, id string, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if success {
		item.Status = models.QueueCompleted
		now := time.Now()
		item.ProcessedAt = &now
		m.queue[id] = item
		return nil
	}
	item.RetryCount++
	item.LastError = errMsg
	if item.RetryCount > item.MaxRetries {
		item.Status = models.QueueFailed
	} else {
		item.Status = models.QueuePending
		item.ScheduledFor = time.Now().Add(time.Duration(1<<uint(item.RetryCount)) * time.Second)
	}
	m.queue[id] = item
	return nil
}

func (m *Memory) CreateOAuthSession(_ context.Context, s models.OAuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oauth[s.State] = s
	return nil
}

func (m *Memory) ConsumeOAuthSession(_ context.Context, state string) (models.OAuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.oauth[state]
	if !ok {
		return models.OAuthSession{}, apperrors.ErrOAuthStateNotFound
	}
	if s.UsedAt != nil {
		return models.OAuthSession{}, apperrors.ErrReplayDetected
	}
	if time.Now().After(s.ExpiresAt) {
		return models.OAuthSession{}, apperrors.ErrOAuthStateNotFound
	}
	now := time.Now()
	s.UsedAt = &now
	m.oauth[state] = s
	return s, nil
}

func (m *Memory) RecordTokenRotation(_ context.Context, h models.TokenRotationHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = uuid.NewString()
	h.RotatedAt = time.Now()
	m.rotations = append(m.rotations, h)
	return nil
}

func (m *Memory) RaiseTokenExpiryAlert(_ context.Context, a models.TokenExpiryAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", a.TenantID, a.Platform, a.AlertType)
	if existing, ok := m.alerts[key]; ok && !existing.Acknowledged {
		return false, nil
	}
	a.ID = uuid.NewString()
	m.alerts[key] = a
	return true, nil
}

func (m *Memory) ListConnectionsExpiringBefore(_ context.Context, before time.Time) ([]models.PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PlatformConnection
	for _, c := range m.connections {
		if c.Connected && !c.TokenExpiresAt.After(before) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetCurrencySettings(_ context.Context, tenantID string) (models.CurrencySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.currencySettings[tenantID]; ok {
		return s, nil
	}
	return models.CurrencySettings{TenantID: tenantID, Enabled: false, CurrencyName: "points", EarnPerMessage: 1, GambleMinBet: 10, GambleMaxBet: 1000}, nil
}

func (m *Memory) SaveCurrencySettings(_ context.Context, s models.CurrencySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currencySettings[s.TenantID] = s
	return nil
}

func (m *Memory) GetGameSettings(_ context.Context, tenantID string) (models.GameSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.gameSettings[tenantID]; ok {
		return s, nil
	}
	return models.GameSettings{TenantID: tenantID, CooldownMinutes: defaultGameCooldowns()}, nil
}

func (m *Memory) SaveGameSettings(_ context.Context, s models.GameSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameSettings[s.TenantID] = s
	return nil
}

func (m *Memory) GetShoutoutSettings(_ context.Context, tenantID string) (models.ShoutoutSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.shoutoutSettings[tenantID]; ok {
		return s, nil
	}
	return models.ShoutoutSettings{TenantID: tenantID, MessageTemplate: "Go check out {user}, they were awesome!"}, nil
}

func (m *Memory) SaveShoutoutSettings(_ context.Context, s models.ShoutoutSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shoutoutSettings[s.TenantID] = s
	return nil
}

func (m *Memory) GetAlertSettings(_ context.Context, tenantID string) (models.AlertSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.alertSettings[tenantID]; ok {
		return s, nil
	}
	return models.AlertSettings{TenantID: tenantID, NotifyOnExpiry: true, NotifyOnError: true}, nil
}

func (m *Memory) SaveAlertSettings(_ context.Context, s models.AlertSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertSettings[s.TenantID] = s
	return nil
}

var _ Port = (*Memory)(nil)
