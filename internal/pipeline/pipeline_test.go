package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// recordingOutbound captures every dispatched action for assertions.
type recordingOutbound struct {
	mu      sync.Mutex
	actions []models.ChatAction
}

func (r *recordingOutbound) Dispatch(_ context.Context, action models.ChatAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingOutbound) last() (models.ChatAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actions) == 0 {
		return models.ChatAction{}, false
	}
	return r.actions[len(r.actions)-1], true
}

func (r *recordingOutbound) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *recordingOutbound) {
	t.Helper()
	mem := store.NewMemory()
	ob := &recordingOutbound{}
	log := logrus.NewEntry(logrus.New())
	eng := New(mem, log, nil, nil, nil, ob)
	return eng, mem, ob
}

func baseConfig(tenantID string) models.BotConfig {
	return models.BotConfig{TenantID: tenantID, IntervalMode: models.IntervalFixed, FixedIntervalMinutes: 30}
}

func baseEvent(text string) models.ChatEvent {
	return models.ChatEvent{
		Platform: models.PlatformTwitch,
		Channel:  "somechannel",
		Username: "viewer1",
		Text:     text,
	}
}

func TestProcessBannedWordAbortsAndTimesOut(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	cfg := baseConfig("t1")
	cfg.BannedWords = []string{"slur"}
	require.NoError(t, mem.SaveBotConfig(context.Background(), cfg))

	evt := baseEvent("don't use that slur here")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, models.ActionTimeoutUser, action.Kind)
	assert.Equal(t, "viewer1", action.Username)
	assert.Equal(t, 300, action.TimeoutSeconds)
}

func TestProcessBannedWordDoesNotMatchSubstring(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	cfg := baseConfig("t1")
	cfg.BannedWords = []string{"ass"}
	require.NoError(t, mem.SaveBotConfig(context.Background(), cfg))

	evt := baseEvent("class dismissed")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))
	assert.Equal(t, 0, ob.count())
}

func TestModerationChainFirstViolationWins(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedModerationRules("t1", []models.ModerationRule{
		{RuleType: models.RuleLinks, Enabled: true, Action: models.ActionTimeout, TimeoutSeconds: 60},
		{RuleType: models.RuleCaps, Enabled: true, Action: models.ActionWarn},
	})

	evt := baseEvent("CHECK OUT HTTP://SPAM.EXAMPLE.COM NOW")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, models.ActionTimeoutUser, action.Kind)
	assert.Equal(t, 1, ob.count(), "only the first-firing rule (links) should act; caps never evaluated")
}

func TestModerationLinksWhitelistAllowsKnownDomain(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedModerationRules("t1", []models.ModerationRule{
		{RuleType: models.RuleLinks, Enabled: true, Action: models.ActionTimeout, TimeoutSeconds: 60},
	})
	mem.SeedLinkWhitelist("t1", []string{"twitch.tv"})

	evt := baseEvent("raid at https://www.twitch.tv/somechannel")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))
	assert.Equal(t, 0, ob.count())
}

func TestModerationCapsRule(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedModerationRules("t1", []models.ModerationRule{
		{RuleType: models.RuleCaps, Enabled: true, Action: models.ActionWarn},
	})

	evt := baseEvent("THIS IS REALLY LOUD CHAT MESSAGE")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, models.ActionSend, action.Kind)
}

func TestSpamRuleFiresOnRepeatedMessages(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedModerationRules("t1", []models.ModerationRule{
		{RuleType: models.RuleSpam, Enabled: true, Action: models.ActionTimeout, TimeoutSeconds: 30},
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		evt := baseEvent("buy followers now")
		require.NoError(t, eng.Process(ctx, "t1", evt))
	}
	assert.Equal(t, 0, ob.count(), "fewer than 5 messages seen so far")

	evt := baseEvent("buy followers now")
	require.NoError(t, eng.Process(ctx, "t1", evt))
	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, models.ActionTimeoutUser, action.Kind)
}

func TestTriviaCorrectAnswerAwardsPointsAndAborts(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	require.NoError(t, mem.SaveCurrencySettings(context.Background(), models.CurrencySettings{
		TenantID: "t1", Enabled: true, CurrencyName: "coins",
	}))

	key := gameKey("t1", "viewer1", models.PlatformTwitch)
	eng.games.setTrivia(key, triviaQuestion{question: "q", answer: "42", points: 10, expiresAt: time.Now().Add(60 * time.Second)})

	evt := baseEvent("42")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, models.ActionSend, action.Kind)
	assert.Contains(t, action.Text, "got it right")

	bal, err := mem.GetUserBalance(context.Background(), "t1", "viewer1", models.PlatformTwitch)
	require.NoError(t, err)
	assert.EqualValues(t, 10, bal.Balance)

	_, stillThere := eng.games.getTrivia(key)
	assert.False(t, stillThere)
}

func TestTriviaWrongAnswerFallsThroughToCommandDispatch(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	key := gameKey("t1", "viewer1", models.PlatformTwitch)
	eng.games.setTrivia(key, triviaQuestion{question: "q", answer: "42", points: 10, expiresAt: time.Now().Add(60 * time.Second)})

	evt := baseEvent("not even close")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))
	assert.Equal(t, 0, ob.count())
	_, stillThere := eng.games.getTrivia(key)
	assert.True(t, stillThere)
}

func TestCustomCommandRendersTemplateAndIncrementsUsage(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedCustomCommand(models.CustomCommand{
		TenantID: "t1", Name: "hello", Response: "hi {user}, use #{count}", IsActive: true,
		PermissionLevel: models.PermissionEveryone,
	})

	evt := baseEvent("!hello")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, "hi viewer1, use #1", action.Text)
}

func TestCustomCommandModeratorOnlyBlocksRegularViewer(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	mem.SeedCustomCommand(models.CustomCommand{
		TenantID: "t1", Name: "mod", Response: "secret", IsActive: true,
		PermissionLevel: models.PermissionModerator,
	})

	evt := baseEvent("!mod")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))
	assert.Equal(t, 0, ob.count())
}

func TestGiveawayEntryRecordsOnce(t *testing.T) {
	eng, mem, ob := newTestEngine(t)
	require.NoError(t, mem.SaveBotConfig(context.Background(), baseConfig("t1")))
	g := mem.SeedGiveaway(models.Giveaway{TenantID: "t1", Title: "PC Giveaway", Keyword: "!enter", Status: models.GiveawayActive})

	ctx := context.Background()
	evt := baseEvent("!enter")
	require.NoError(t, eng.Process(ctx, "t1", evt))
	require.NoError(t, eng.Process(ctx, "t1", evt))

	count, err := mem.CountGiveawayEntries(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type fakeFacts struct {
	fact string
}

func (f fakeFacts) GenerateFact(_ context.Context, _ string, _ string, _ string, _ int) (string, error) {
	return f.fact, nil
}

func TestKeywordTriggerPostsGeneratedFact(t *testing.T) {
	mem := store.NewMemory()
	ob := &recordingOutbound{}
	log := logrus.NewEntry(logrus.New())
	eng := New(mem, log, nil, fakeFacts{fact: "Octopuses have three hearts."}, nil, ob)

	cfg := baseConfig("t1")
	cfg.ChatKeywords = []string{"octopus"}
	require.NoError(t, mem.SaveBotConfig(context.Background(), cfg))

	evt := baseEvent("did you know about the octopus tank?")
	require.NoError(t, eng.Process(context.Background(), "t1", evt))

	action, ok := ob.last()
	require.True(t, ok)
	assert.Equal(t, "Octopuses have three hearts.", action.Text)
}
