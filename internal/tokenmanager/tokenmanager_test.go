package tokenmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/breaker"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/cryptobox"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

func TestPKCEVerifierLengthWithinSpec(t *testing.T) {
	pair, err := newPKCEPair()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(pair.verifier), 43)
	assert.LessOrEqual(t, len(pair.verifier), 128)
	assert.NotEmpty(t, pair.challenge)
	assert.NotEqual(t, pair.verifier, pair.challenge)
}

func newTestManager(t *testing.T, tokenURL string) (*Manager, store.Port) {
	t.Helper()
	box, err := cryptobox.New("test-session-secret-at-least-32-bytes!!")
	require.NoError(t, err)
	mem := store.NewMemory()
	b := breaker.New(nil, nil)
	cfg := map[models.Platform]*oauth2.Config{
		models.PlatformTwitch: {
			ClientID: "client", ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{AuthURL: "https://id.twitch.tv/oauth2/authorize", TokenURL: tokenURL},
			RedirectURL: "https://example.test/callback",
		},
	}
	return New(mem, box, cfg, b.Fns(), nil, nil, time.Second), mem
}

// S3 — OAuth replay: two callbacks with the same state; exactly one
// completes, the other observes ErrReplayDetected.
func TestCompleteAuthReplayDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	mgr, _ := newTestManager(t, srv.URL)
	ctx := context.Background()

	authURL, err := mgr.BeginAuth(ctx, "tenant-1", models.PlatformTwitch, "127.0.0.1", nil)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	_, err1 := mgr.CompleteAuth(ctx, state, "code-123")
	_, err2 := mgr.CompleteAuth(ctx, state, "code-123")

	successCount, replayCount := 0, 0
	for _, err := range []error{err1, err2} {
		switch {
		case err == nil:
			successCount++
		case err == apperrors.ErrReplayDetected:
			replayCount++
		}
	}
	assert.Equal(t, 1, successCount)
	assert.Equal(t, 1, replayCount)
}
