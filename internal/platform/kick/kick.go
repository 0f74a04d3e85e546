// Package kick implements the platform.Adapter contract over Kick's chat
// websocket, which rides Pusher's protocol (JSON envelopes with an "event"
// field, app-level events nested as a JSON string in "data"). The
// connection lifecycle — read pump, write pump, ping ticker, write-deadline
// guarded writes — follows the teacher's internal/websocket/client.go.
package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
)

const (
	// pusherWSURL is Kick's public Pusher app key endpoint for chatrooms.
	pusherWSURL = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=7.4.0&flash=false"
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 8) / 10
	sendAPIURL  = "https://kick.com/api/v2/messages/send/%s"
)

type Adapter struct {
	log *logrus.Entry
	hc  *http.Client
}

func New(log *logrus.Entry) *Adapter {
	return &Adapter{log: log, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformKick }

func (a *Adapter) Connect(ctx context.Context, conn models.PlatformConnection) (platform.Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, pusherWSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kick: dial pusher ws: %w", err)
	}

	sess := &session{
		ws:          ws,
		log:         a.log,
		hc:          a.hc,
		accessToken: conn.ConnectionData,
		chatroomID:  conn.PlatformUserID,
		channel:     conn.PlatformUsername,
		events:      make(chan models.ChatEvent, 256),
		raidEvents:  make(chan models.RaidEvent, 16),
		closed:      make(chan struct{}),
	}
	if err := sess.subscribe(); err != nil {
		ws.Close()
		return nil, err
	}
	go sess.readPump()
	go sess.writePump()
	return sess, nil
}

type session struct {
	ws          *websocket.Conn
	log         *logrus.Entry
	hc          *http.Client
	accessToken string
	chatroomID  string
	channel     string
	events      chan models.ChatEvent
	raidEvents  chan models.RaidEvent

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  chan struct{}
	didShut bool
}

type pusherEnvelope struct {
	Event   string `json:"event"`
	Data    string `json:"data"`
	Channel string `json:"channel,omitempty"`
}

func (s *session) subscribe() error {
	env := pusherEnvelope{
		Event: "pusher:subscribe",
		Data:  fmt.Sprintf(`{"auth":"","channel":"chatrooms.%s.v2"}`, s.chatroomID),
	}
	return s.write(env)
}

func (s *session) write(env pusherEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kick: marshal envelope: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, b)
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.ws.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				if s.log != nil {
					s.log.WithError(err).Warn("kick: ping write failed")
				}
				return
			}
		}
	}
}

func (s *session) readPump() {
	defer s.shutdown()
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Info("kick: read pump closed")
			}
			return
		}
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		var env pusherEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		s.handleEnvelope(env)
	}
}

type chatMessageData struct {
	Content string `json:"content"`
	Sender  struct {
		Username string `json:"username"`
		Identity struct {
			Badges []struct {
				Type string `json:"type"`
			} `json:"badges"`
		} `json:"identity"`
	} `json:"sender"`
}

type raidEventData struct {
	Username  string `json:"from_channel_username"`
	ViewerCnt int    `json:"viewer_count"`
}

func (s *session) handleEnvelope(env pusherEnvelope) {
	switch env.Event {
	case "App\\Events\\ChatMessageEvent":
		var data chatMessageData
		if err := json.Unmarshal([]byte(env.Data), &data); err != nil {
			return
		}
		ct := models.ChatTags{Badges: map[string]struct{}{}}
		for _, b := range data.Sender.Identity.Badges {
			ct.Badges[b.Type] = struct{}{}
			switch b.Type {
			case "moderator":
				ct.IsModerator = true
			case "broadcaster":
				ct.IsBroadcaster = true
			case "subscriber":
				ct.IsSubscriber = true
			}
		}
		evt := models.ChatEvent{
			Platform:  models.PlatformKick,
			Channel:   s.channel,
			Username:  data.Sender.Username,
			Text:      data.Content,
			Tags:      ct,
			ArrivedAt: time.Now(),
		}
		select {
		case s.events <- evt:
		default:
			if s.log != nil {
				s.log.Warn("kick: inbound event dropped, channel full")
			}
		}
	case "App\\Events\\StreamHostEvent", "App\\Events\\RaidEvent":
		var data raidEventData
		if err := json.Unmarshal([]byte(env.Data), &data); err != nil {
			return
		}
		select {
		case s.raidEvents <- models.RaidEvent{Username: data.Username, Viewers: data.ViewerCnt}:
		default:
		}
	}
}

func (s *session) Events() <-chan models.ChatEvent     { return s.events }
func (s *session) RaidEvents() <-chan models.RaidEvent { return s.raidEvents }

// Send posts a chat message via Kick's REST send endpoint; the Pusher
// websocket is subscribe-only (Kick has no websocket publish path for
// bots), so outbound actions use the authenticated HTTP API instead.
func (s *session) Send(ctx context.Context, channel, text string) platform.Result {
	return s.postMessage(ctx, map[string]string{"content": text, "type": "message"})
}

func (s *session) Timeout(ctx context.Context, channel, username string, seconds int, reason string) platform.Result {
	body := fmt.Sprintf(`/timeout %s %d`, username, seconds)
	return s.postMessage(ctx, map[string]string{"content": body, "type": "message"})
}

func (s *session) Ban(ctx context.Context, channel, username, reason string) platform.Result {
	body := fmt.Sprintf(`/ban %s`, username)
	return s.postMessage(ctx, map[string]string{"content": body, "type": "message"})
}

func (s *session) postMessage(ctx context.Context, payload map[string]string) platform.Result {
	b, _ := json.Marshal(payload)
	url := fmt.Sprintf(sendAPIURL, s.chatroomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
	if err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 30
		if v := resp.Header.Get("Retry-After"); v != "" {
			fmt.Sscanf(v, "%d", &retryAfter)
		}
		return platform.Result{Kind: platform.ResultThrottled, RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusUnauthorized:
		return platform.Result{Kind: platform.ResultAuthError, Err: fmt.Errorf("kick: unauthorized")}
	case resp.StatusCode >= 300:
		return platform.Result{Kind: platform.ResultTransientError, Err: fmt.Errorf("kick: send failed with status %d", resp.StatusCode)}
	default:
		return platform.Result{Kind: platform.ResultSuccess}
	}
}

func (s *session) Close() error {
	s.shutdown()
	return s.ws.Close()
}

func (s *session) shutdown() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.didShut {
		return
	}
	s.didShut = true
	close(s.closed)
	close(s.events)
	close(s.raidEvents)
}
