package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/supervisor"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/worker"
)

const testToken = "shared-secret"

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

type fakeTokenManager struct {
	authURL      string
	completeErr  error
	completeConn models.PlatformConnection
}

func (f fakeTokenManager) BeginAuth(context.Context, string, models.Platform, string, []string) (string, error) {
	return f.authURL, nil
}
func (f fakeTokenManager) CompleteAuth(context.Context, string, string) (models.PlatformConnection, error) {
	return f.completeConn, f.completeErr
}

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveBotConfig(context.Background(), models.BotConfig{
		TenantID:        "t1",
		IntervalMode:    models.IntervalManual,
		ActivePlatforms: []models.Platform{models.PlatformTwitch},
		IsActive:        true,
	}))
	_, err := mem.UpsertPlatformConnection(context.Background(), models.PlatformConnection{
		TenantID: "t1", Platform: models.PlatformTwitch, PlatformUsername: "streamer", Connected: true,
	})
	require.NoError(t, err)

	log := logrus.NewEntry(logrus.New())
	bus := eventbus.New()
	q := queue.New(mem, breaker.New(log, nil), nil, log, 50)
	workerCfg := &config.AppConfig{
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
			Config:   workerCfg,
			Log:      log,
		}
	}
	sup := supervisor.New(factory, bus, log)

	srv := New(sup, fakeTokenManager{authURL: "https://provider.example/authorize"}, mem, Config{
		ServiceAuthToken:   testToken,
		CORSAllowedOrigins: "http://localhost:5173",
		CORSMaxAge:         300,
	}, log)
	return srv, mem
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Tenant-ID", "t1")
	return req
}

func TestHealthzIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bot/status", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRouteRejectsMissingTenant(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bot/status", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBotStartStopLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	startReq := authed(httptest.NewRequest(http.MethodPost, "/bot/start", nil))
	startRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(startRec, startReq)
	require.Equal(t, http.StatusOK, startRec.Code)
	assert.Contains(t, startRec.Body.String(), `"isRunning":true`)

	stopReq := authed(httptest.NewRequest(http.MethodPost, "/bot/stop", nil))
	stopRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(stopRec, stopReq)
	assert.Equal(t, http.StatusAccepted, stopRec.Code)
}

func TestAuthBeginRedirectsToProviderURL(t *testing.T) {
	srv, _ := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodPost, "/auth/twitch", nil))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://provider.example/authorize", rec.Header().Get("Location"))
}

func TestAuthBeginRejectsUnknownPlatform(t *testing.T) {
	srv, _ := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodPost, "/auth/myspace", nil))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostManualRejectsEmptyPlatformList(t *testing.T) {
	srv, _ := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodPost, "/bot/post-manual", strings.NewReader(`{"platforms":[]}`)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostManualRequiresRunningBot(t *testing.T) {
	srv, _ := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodPost, "/bot/post-manual", strings.NewReader(`{"platforms":["twitch"],"fact":"hi"}`)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostManualDispatchesWhenRunning(t *testing.T) {
	srv, _ := newTestServer(t)
	startReq := authed(httptest.NewRequest(http.MethodPost, "/bot/start", nil))
	startRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(startRec, startReq)
	require.Equal(t, http.StatusOK, startRec.Code)

	req := authed(httptest.NewRequest(http.MethodPost, "/bot/post-manual", strings.NewReader(`{"platforms":["twitch"],"fact":"hi"}`)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	stopReq := authed(httptest.NewRequest(http.MethodPost, "/bot/stop", nil))
	srv.Router().ServeHTTP(httptest.NewRecorder(), stopReq)
}

func TestAuthDisconnectClearsConnectedFlag(t *testing.T) {
	srv, mem := newTestServer(t)
	req := authed(httptest.NewRequest(http.MethodDelete, "/auth/twitch/disconnect", nil))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	conn, err := mem.GetPlatformConnection(context.Background(), "t1", models.PlatformTwitch)
	require.NoError(t, err)
	assert.False(t, conn.Connected)
}
