package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/breaker"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/config"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/eventbus"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/queue"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/quota"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// fakeSession is a minimal in-memory platform.Session for worker tests.
type fakeSession struct {
	mu         sync.Mutex
	events     chan models.ChatEvent
	raids      chan models.RaidEvent
	sent       []string
	closed     bool
	sendResult platform.Result
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan models.ChatEvent, 16),
		raids:  make(chan models.RaidEvent, 4),
	}
}

func (f *fakeSession) Events() <-chan models.ChatEvent     { return f.events }
func (f *fakeSession) RaidEvents() <-chan models.RaidEvent { return f.raids }

func (f *fakeSession) Send(_ context.Context, _, text string) platform.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if f.sendResult.Kind == 0 && f.sendResult.Err == nil {
		return platform.Result{Kind: platform.ResultSuccess}
	}
	return f.sendResult
}

func (f *fakeSession) Timeout(context.Context, string, string, int, string) platform.Result {
	return platform.Result{Kind: platform.ResultSuccess}
}
func (f *fakeSession) Ban(context.Context, string, string, string) platform.Result {
	return platform.Result{Kind: platform.ResultSuccess}
}
func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAdapter struct {
	platform models.Platform
	sess     *fakeSession
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }
func (a *fakeAdapter) Connect(context.Context, models.PlatformConnection) (platform.Session, error) {
	return a.sess, nil
}

type fakeTokens struct{}

func (fakeTokens) EnsureFreshToken(context.Context, string, models.Platform) (string, error) {
	return "tok", nil
}

type fakeFacts struct{ fact string }

func (f fakeFacts) GenerateFact(context.Context, string, string, string, int) (string, error) {
	return f.fact, nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		InboundChannelBufferSize: 8,
		HeartbeatInterval:        20 * time.Millisecond,
		ViewerSnapshotEvery:      time.Hour, // effectively disabled for these tests
		WorkerStopGrace:          2 * time.Second,
		ExternalCallTimeout:      time.Second,
	}
}

func seedTenant(t *testing.T, mem *store.Memory, tenantID string, platforms []models.Platform) {
	t.Helper()
	cfg := models.BotConfig{
		TenantID:        tenantID,
		IntervalMode:    models.IntervalManual,
		ActivePlatforms: platforms,
		IsActive:        true,
	}
	require.NoError(t, mem.SaveBotConfig(context.Background(), cfg))
	for _, p := range platforms {
		_, err := mem.UpsertPlatformConnection(context.Background(), models.PlatformConnection{
			TenantID: tenantID, Platform: p, PlatformUsername: "streamer_" + string(p), Connected: true,
		})
		require.NoError(t, err)
	}
}

func newTestWorker(t *testing.T, tenantID string, sess *fakeSession, platformID models.Platform) (*Worker, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	seedTenant(t, mem, tenantID, []models.Platform{platformID})

	log := logrus.NewEntry(logrus.New())
	q := queue.New(mem, breaker.New(log, nil), nil, log, 50)
	bus := eventbus.New()

	deps := Deps{
		Store:    mem,
		Tokens:   fakeTokens{},
		Queue:    q,
		Bus:      bus,
		Stats:    fakeStats{},
		Facts:    fakeFacts{fact: "did you know..."},
		Adapters: map[models.Platform]platform.Adapter{platformID: &fakeAdapter{platform: platformID, sess: sess}},
		Config:   testConfig(),
		Log:      log,
	}
	return New(tenantID, deps, log), mem
}

// fakeStats satisfies worker.StatsPort without touching the real
// internal/stats package (keeps this test package's dependency graph
// minimal).
type fakeStats struct{}

func (fakeStats) CreateSession(context.Context, string, models.Platform) (models.StreamSession, error) {
	return models.StreamSession{ID: "sess-1", StartedAt: time.Now()}, nil
}
func (fakeStats) EndSession(context.Context, string, models.Platform, string) error { return nil }
func (fakeStats) TrackViewerCount(context.Context, string, int) error               { return nil }
func (fakeStats) Uptime(context.Context, string, models.Platform) (time.Duration, bool) {
	return time.Minute, true
}

func TestStartConnectsPlatformAndReachesRunning(t *testing.T) {
	sess := newFakeSession()
	w, _ := newTestWorker(t, "t1", sess, models.PlatformTwitch)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateRunning, w.State())

	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, StateStopped, w.State())
	assert.True(t, sess.closed)
}

func TestStartIsIdempotent(t *testing.T) {
	sess := newFakeSession()
	w, _ := newTestWorker(t, "t1", sess, models.PlatformTwitch)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateRunning, w.State())
	require.NoError(t, w.Stop(context.Background()))
}

func TestStopIsIdempotent(t *testing.T) {
	w, _ := newTestWorker(t, "t1", newFakeSession(), models.PlatformTwitch)
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, StateStopped, w.State())
}

func TestDispatchSendEnqueuesAndDrainerDeliversIt(t *testing.T) {
	sess := newFakeSession()
	w, _ := newTestWorker(t, "t1", sess, models.PlatformTwitch)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	w.Dispatch(context.Background(), models.ChatAction{
		Kind: models.ActionSend, Platform: models.PlatformTwitch, Channel: "streamer_twitch", Text: "hello chat",
	})

	require.Eventually(t, func() bool { return sess.sentCount() > 0 }, time.Second, 10*time.Millisecond)
}

func TestEnqueueInboundDropsOldestNonCommandWhenFull(t *testing.T) {
	w, _ := newTestWorker(t, "t1", newFakeSession(), models.PlatformTwitch)
	w.inbound = make(chan models.ChatEvent, 2)

	w.enqueueInbound(models.ChatEvent{Text: "hi"})
	w.enqueueInbound(models.ChatEvent{Text: "there"})
	w.enqueueInbound(models.ChatEvent{Text: "newcomer"})

	assert.Equal(t, int64(1), w.Dropped())
	first := <-w.inbound
	assert.Equal(t, "there", first.Text)
}

func TestEnqueueInboundPreservesCommandOverNewMessage(t *testing.T) {
	w, _ := newTestWorker(t, "t1", newFakeSession(), models.PlatformTwitch)
	w.inbound = make(chan models.ChatEvent, 1)

	w.enqueueInbound(models.ChatEvent{Text: "!trivia"})
	w.enqueueInbound(models.ChatEvent{Text: "some chatter"})

	assert.Equal(t, int64(1), w.Dropped())
	remaining := <-w.inbound
	assert.Equal(t, "!trivia", remaining.Text)
}

func TestReloadConnectsNewlyActivatedPlatform(t *testing.T) {
	sess := newFakeSession()
	mem := store.NewMemory()
	seedTenant(t, mem, "t1", []models.Platform{models.PlatformTwitch})

	log := logrus.NewEntry(logrus.New())
	q := queue.New(mem, breaker.New(log, nil), nil, log, 50)
	kickSess := newFakeSession()
	deps := Deps{
		Store:  mem,
		Tokens: fakeTokens{},
		Queue:  q,
		Bus:    eventbus.New(),
		Stats:  fakeStats{},
		Facts:  fakeFacts{fact: "fact"},
		Adapters: map[models.Platform]platform.Adapter{
			models.PlatformTwitch: &fakeAdapter{platform: models.PlatformTwitch, sess: sess},
			models.PlatformKick:   &fakeAdapter{platform: models.PlatformKick, sess: kickSess},
		},
		Config: testConfig(),
		Log:    log,
	}
	w := New("t1", deps, log)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	cfg, err := mem.GetBotConfig(context.Background(), "t1")
	require.NoError(t, err)
	cfg.ActivePlatforms = []models.Platform{models.PlatformTwitch, models.PlatformKick}
	require.NoError(t, mem.SaveBotConfig(context.Background(), cfg))
	_, err = mem.UpsertPlatformConnection(context.Background(), models.PlatformConnection{
		TenantID: "t1", Platform: models.PlatformKick, PlatformUsername: "streamer_kick",
	})
	require.NoError(t, err)

	require.NoError(t, w.Reload(context.Background()))

	_, ok := w.sessionFor(models.PlatformKick)
	assert.True(t, ok)
}

func TestQuotaInterfaceMatchesTrackerStatus(t *testing.T) {
	var _ Quota = (*quotaTrackerAdapter)(nil)
}

// quotaTrackerAdapter exists only to pin the Quota interface's shape to
// quota.Status at compile time without importing *quota.Tracker's full
// constructor in this test file.
type quotaTrackerAdapter struct{}

func (quotaTrackerAdapter) CheckQuota(context.Context, models.Platform, int64) (quota.Status, error) {
	return quota.Status{Allowed: true}, nil
}
