// Package spotify implements a read-only platform.Adapter over Spotify's
// Web API "currently playing" endpoint. Spotify is not a chat platform: it
// exposes now-playing state through the session's CurrentTrack method (no
// chat command or template token reads it) and never carries chat events, so Events()/RaidEvents() return closed,
// empty channels and Timeout/Ban are unsupported. No Spotify SDK appears
// anywhere in the example pack, so this stays on net/http per DESIGN.md.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
)

const nowPlayingURL = "https://api.spotify.com/v1/me/player/currently-playing"

type Adapter struct {
	log *logrus.Entry
	hc  *http.Client
}

func New(log *logrus.Entry) *Adapter {
	return &Adapter{log: log, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformSpotify }

func (a *Adapter) Connect(ctx context.Context, conn models.PlatformConnection) (platform.Session, error) {
	closedEvents := make(chan models.ChatEvent)
	closedRaids := make(chan models.RaidEvent)
	close(closedEvents)
	close(closedRaids)
	return &session{
		hc:          a.hc,
		accessToken: conn.ConnectionData,
		events:      closedEvents,
		raidEvents:  closedRaids,
	}, nil
}

type session struct {
	hc          *http.Client
	accessToken string
	events      chan models.ChatEvent
	raidEvents  chan models.RaidEvent

	mu       sync.RWMutex
	lastTrack NowPlaying
}

// NowPlaying is the normalized currently-playing track returned by
// CurrentTrack.
type NowPlaying struct {
	Track    string
	Artist   string
	IsPaused bool
}

func (s *session) Events() <-chan models.ChatEvent     { return s.events }
func (s *session) RaidEvents() <-chan models.RaidEvent { return s.raidEvents }

// CurrentTrack fetches the current playback state directly from Spotify on
// each call; the session runs no background poll.
func (s *session) CurrentTrack(ctx context.Context) (NowPlaying, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nowPlayingURL, nil)
	if err != nil {
		return NowPlaying{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.hc.Do(req)
	if err != nil {
		return NowPlaying{}, fmt.Errorf("spotify: now playing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		np := NowPlaying{IsPaused: true}
		s.mu.Lock()
		s.lastTrack = np
		s.mu.Unlock()
		return np, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return NowPlaying{}, apperrors.ErrAuthExpired
	}
	if resp.StatusCode >= 300 {
		return NowPlaying{}, fmt.Errorf("spotify: now playing status %d", resp.StatusCode)
	}

	var body struct {
		IsPlaying bool `json:"is_playing"`
		Item      struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return NowPlaying{}, fmt.Errorf("spotify: decode now playing: %w", err)
	}
	np := NowPlaying{Track: body.Item.Name, IsPaused: !body.IsPlaying}
	if len(body.Item.Artists) > 0 {
		np.Artist = body.Item.Artists[0].Name
	}
	s.mu.Lock()
	s.lastTrack = np
	s.mu.Unlock()
	return np, nil
}

func (s *session) Send(ctx context.Context, channel, text string) platform.Result {
	return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("spotify: adapter is read-only, send unsupported")}
}

func (s *session) Timeout(ctx context.Context, channel, username string, seconds int, reason string) platform.Result {
	return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("spotify: adapter is read-only, moderation unsupported")}
}

func (s *session) Ban(ctx context.Context, channel, username, reason string) platform.Result {
	return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("spotify: adapter is read-only, moderation unsupported")}
}

func (s *session) Close() error { return nil }
