package supervisor

import (
	"context"
	"fmt"
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
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/worker"
)

type fakeSession struct{}

func (fakeSession) Events() <-chan models.ChatEvent     { return make(chan models.ChatEvent) }
func (fakeSession) RaidEvents() <-chan models.RaidEvent { return make(chan models.RaidEvent) }
func (fakeSession) Send(context.Context, string, string) platform.Result {
	return platform.Result{Kind: platform.ResultSuccess}
}
func (fakeSession) Timeout(context.Context, string, string, int, string) platform.Result {
	return platform.Result{Kind: platform.ResultSuccess}
}
func (fakeSession) Ban(context.Context, string, string, string) platform.Result {
	return platform.Result{Kind: platform.ResultSuccess}
}
func (fakeSession) Close() error { return nil }

type fakeAdapter struct{}

func (fakeAdapter) Platform() models.Platform { return models.PlatformTwitch }
func (fakeAdapter) Connect(context.Context, models.PlatformConnection) (platform.Session, error) {
	return fakeSession{}, nil
}

type fakeTokens struct{}

func (fakeTokens) EnsureFreshToken(context.Context, string, models.Platform) (string, error) {
	return "tok", nil
}

type fakeFacts struct{}

func (fakeFacts) GenerateFact(context.Context, string, string, string, int) (string, error) {
	return "fact", nil
}

type fakeStats struct{}

func (fakeStats) CreateSession(context.Context, string, models.Platform) (models.StreamSession, error) {
	return models.StreamSession{ID: "s1", StartedAt: time.Now()}, nil
}
func (fakeStats) EndSession(context.Context, string, models.Platform, string) error { return nil }
func (fakeStats) TrackViewerCount(context.Context, string, int) error               { return nil }
func (fakeStats) Uptime(context.Context, string, models.Platform) (time.Duration, bool) {
	return time.Minute, true
}

func newTestSupervisor(t *testing.T, mem *store.Memory) (*Supervisor, *eventbus.Bus) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	bus := eventbus.New()
	q := queue.New(mem, breaker.New(log, nil), nil, log, 50)
	cfg := &config.AppConfig{
		InboundChannelBufferSize: 8,
		HeartbeatInterval:        20 * time.Millisecond,
		ViewerSnapshotEvery:      time.Hour,
		WorkerStopGrace:          2 * time.Second,
		ExternalCallTimeout:      time.Second,
	}
	factory := func(tenantID string) worker.Deps {
		return worker.Deps{
			Store:    mem,
			Tokens:   fakeTokens{},
			Queue:    q,
			Bus:      bus,
			Stats:    fakeStats{},
			Facts:    fakeFacts{},
			Adapters: map[models.Platform]platform.Adapter{models.PlatformTwitch: fakeAdapter{}},
			Config:   cfg,
			Log:      log,
		}
	}
	return New(factory, bus, log), bus
}

func seedTenant(t *testing.T, mem *store.Memory, tenantID string) {
	t.Helper()
	require.NoError(t, mem.SaveBotConfig(context.Background(), models.BotConfig{
		TenantID:        tenantID,
		IntervalMode:    models.IntervalManual,
		ActivePlatforms: []models.Platform{models.PlatformTwitch},
		IsActive:        true,
	}))
	_, err := mem.UpsertPlatformConnection(context.Background(), models.PlatformConnection{
		TenantID: tenantID, Platform: models.PlatformTwitch, PlatformUsername: "streamer", Connected: true,
	})
	require.NoError(t, err)
}

func TestStartIsIdempotentAndReportsRunning(t *testing.T) {
	mem := store.NewMemory()
	seedTenant(t, mem, "t1")
	sup, _ := newTestSupervisor(t, mem)

	st, err := sup.Start(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, worker.StateRunning, st.State)

	st2, err := sup.Start(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, worker.StateRunning, st2.State)

	require.NoError(t, sup.Stop(context.Background(), "t1"))
}

func TestStopUnknownTenantIsNoop(t *testing.T) {
	mem := store.NewMemory()
	sup, _ := newTestSupervisor(t, mem)
	assert.NoError(t, sup.Stop(context.Background(), "ghost"))
}

func TestStatusReportsStoppedForNeverStartedTenant(t *testing.T) {
	mem := store.NewMemory()
	sup, _ := newTestSupervisor(t, mem)
	st := sup.Status("never-started")
	assert.Equal(t, worker.StateStopped, st.State)
	assert.True(t, st.Since.IsZero())
}

func TestRestartBringsWorkerBackToRunning(t *testing.T) {
	mem := store.NewMemory()
	seedTenant(t, mem, "t1")
	sup, _ := newTestSupervisor(t, mem)

	_, err := sup.Start(context.Background(), "t1")
	require.NoError(t, err)

	st, err := sup.Restart(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, worker.StateRunning, st.State)

	require.NoError(t, sup.Stop(context.Background(), "t1"))
}

func TestReloadRequiresAStartedWorker(t *testing.T) {
	mem := store.NewMemory()
	sup, _ := newTestSupervisor(t, mem)
	err := sup.Reload(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestSubscribeReplaysThenStreamsUntilUnsubscribe(t *testing.T) {
	mem := store.NewMemory()
	sup, bus := newTestSupervisor(t, mem)

	bus.Publish("t1", models.Event{Kind: models.EventNewMessage, TenantID: "t1", Timestamp: time.Now()})

	var mu sync.Mutex
	var received []models.Event
	unsubscribe := sup.Subscribe("t1", func(evt models.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, evt)
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	bus.Publish("t1", models.Event{Kind: models.EventStatusChanged, TenantID: "t1", Timestamp: time.Now()})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe() // must be safe to call twice

	bus.Publish("t1", models.Event{Kind: models.EventError, TenantID: "t1", Timestamp: time.Now()})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestRecordCrashEmitsErrorEventAndLeavesWorkerStopped(t *testing.T) {
	mem := store.NewMemory()
	sup, bus := newTestSupervisor(t, mem)

	ch, _ := bus.Topic("t1").Subscribe()
	sup.RecordCrash("t1", fmt.Errorf("adapter panicked"))

	select {
	case evt := <-ch:
		assert.Equal(t, models.EventError, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected an error event")
	}

	st := sup.Status("t1")
	assert.Equal(t, worker.StateStopped, st.State)
}

func TestTenantsListsOnlyStartedTenants(t *testing.T) {
	mem := store.NewMemory()
	seedTenant(t, mem, "t1")
	sup, _ := newTestSupervisor(t, mem)

	assert.Empty(t, sup.Tenants())
	_, err := sup.Start(context.Background(), "t1")
	require.NoError(t, err)
	defer sup.Stop(context.Background(), "t1")

	assert.Equal(t, []string{"t1"}, sup.Tenants())
}
