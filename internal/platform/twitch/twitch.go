// Package twitch implements the platform.Adapter contract over Twitch's IRC
// chat protocol tunneled through its websocket endpoint
// (wss://irc-ws.chat.twitch.tv), the modern, TLS-native replacement for the
// raw TCP IRC gateway. Connection lifecycle and ping/pong handling follow
// the teacher's internal/websocket/client.go read/write pump split; IRCv3
// tag parsing follows the shape used by Guliveer's twitch-miner-go chat
// package.
package twitch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
)

const (
	ircWSURL       = "wss://irc-ws.chat.twitch.tv:443"
	writeWait      = 10 * time.Second
	pongWait       = 4*time.Minute + 30*time.Second // Twitch PINGs roughly every 5 minutes
	helixSendURL   = "https://api.twitch.tv/helix/chat/messages"
	helixBanURL    = "https://api.twitch.tv/helix/moderation/bans"
)

// Adapter connects to Twitch IRC on behalf of a tenant's bot account.
type Adapter struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Adapter {
	return &Adapter{log: log}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformTwitch }

func (a *Adapter) Connect(ctx context.Context, conn models.PlatformConnection) (platform.Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, ircWSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("twitch: dial irc-ws: %w", err)
	}

	sess := &session{
		ws:         ws,
		log:        a.log,
		botUser:    strings.ToLower(conn.PlatformUsername),
		channel:    strings.ToLower(conn.PlatformUsername),
		events:     make(chan models.ChatEvent, 256),
		raidEvents: make(chan models.RaidEvent, 16),
		closed:     make(chan struct{}),
	}
	if err := sess.login(accessToken(conn)); err != nil {
		ws.Close()
		return nil, err
	}
	go sess.readPump()
	go sess.pingLoop()
	return sess, nil
}

// accessToken resolves the bearer credential for this connection. Decryption
// happens at the call site (tokenmanager.EnsureFreshToken) before Connect is
// invoked; ConnectionData carries the plaintext oauth token for the duration
// of the live session only, never persisted.
func accessToken(conn models.PlatformConnection) string {
	return conn.ConnectionData
}

type session struct {
	ws         *websocket.Conn
	log        *logrus.Entry
	botUser    string
	channel    string
	events     chan models.ChatEvent
	raidEvents chan models.RaidEvent

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  chan struct{}
	didShut bool
}

func (s *session) login(token string) error {
	cmds := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		fmt.Sprintf("PASS oauth:%s", strings.TrimPrefix(token, "oauth:")),
		fmt.Sprintf("NICK %s", s.botUser),
		fmt.Sprintf("JOIN #%s", s.channel),
	}
	for _, c := range cmds {
		if err := s.writeLine(c); err != nil {
			return fmt.Errorf("twitch: login: %w", err)
		}
	}
	return nil
}

func (s *session) writeLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

func (s *session) pingLoop() {
	ticker := time.NewTicker(pongWait / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			if err := s.writeLine("PING :tmi.twitch.tv"); err != nil {
				s.log.WithError(err).Warn("twitch: ping write failed")
			}
		}
	}
}

func (s *session) readPump() {
	defer s.shutdown()
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Info("twitch: read pump closed")
			}
			return
		}
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		for _, line := range strings.Split(strings.TrimRight(string(raw), "\r\n"), "\r\n") {
			if line == "" {
				continue
			}
			s.handleLine(line)
		}
	}
}

func (s *session) handleLine(line string) {
	msg := parseIRCLine(line)
	switch msg.command {
	case "PING":
		s.writeLine("PONG :tmi.twitch.tv")
	case "PRIVMSG":
		if len(msg.params) < 2 {
			return
		}
		evt := models.ChatEvent{
			Platform:  models.PlatformTwitch,
			Channel:   strings.TrimPrefix(msg.params[0], "#"),
			Username:  msg.nick(),
			Text:      msg.params[1],
			Tags:      tagsToChatTags(msg.tags),
			ArrivedAt: time.Now(),
		}
		select {
		case s.events <- evt:
		default:
			if s.log != nil {
				s.log.Warn("twitch: inbound event dropped, channel full")
			}
		}
	case "USERNOTICE":
		if msg.tags["msg-id"] == "raid" {
			viewers, _ := strconv.Atoi(msg.tags["msg-param-viewerCount"])
			select {
			case s.raidEvents <- models.RaidEvent{Username: msg.tags["msg-param-displayName"], Viewers: viewers}:
			default:
			}
		}
	case "RECONNECT":
		if s.log != nil {
			s.log.Warn("twitch: server requested reconnect")
		}
	}
}

func tagsToChatTags(tags map[string]string) models.ChatTags {
	ct := models.ChatTags{Badges: map[string]struct{}{}}
	if tags["subscriber"] == "1" {
		ct.IsSubscriber = true
	}
	mod := tags["mod"] == "1"
	badgesRaw := tags["badges"]
	for _, b := range strings.Split(badgesRaw, ",") {
		name := strings.SplitN(b, "/", 2)[0]
		if name == "" {
			continue
		}
		ct.Badges[name] = struct{}{}
		if name == "broadcaster" {
			ct.IsBroadcaster = true
		}
		if name == "moderator" {
			mod = true
		}
	}
	ct.IsModerator = mod
	return ct
}

func (s *session) Events() <-chan models.ChatEvent       { return s.events }
func (s *session) RaidEvents() <-chan models.RaidEvent   { return s.raidEvents }

func (s *session) Send(ctx context.Context, channel, text string) platform.Result {
	if err := s.writeLine(fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(channel), text)); err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	return platform.Result{Kind: platform.ResultSuccess}
}

func (s *session) Timeout(ctx context.Context, channel, username string, seconds int, reason string) platform.Result {
	cmd := fmt.Sprintf(".timeout %s %d %s", username, seconds, reason)
	if err := s.writeLine(fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(channel), cmd)); err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	return platform.Result{Kind: platform.ResultSuccess}
}

func (s *session) Ban(ctx context.Context, channel, username, reason string) platform.Result {
	cmd := fmt.Sprintf(".ban %s %s", username, reason)
	if err := s.writeLine(fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(channel), cmd)); err != nil {
		return platform.Result{Kind: platform.ResultTransientError, Err: err}
	}
	return platform.Result{Kind: platform.ResultSuccess}
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

// ircMessage is one parsed IRCv3 line: optional @tags, optional :prefix,
// command, and space-delimited params (last may carry a ':'-prefixed
// trailing argument with embedded spaces).
type ircMessage struct {
	tags    map[string]string
	prefix  string
	command string
	params  []string
}

func (m ircMessage) nick() string {
	if i := strings.IndexByte(m.prefix, '!'); i != -1 {
		return m.prefix[:i]
	}
	return m.prefix
}

func parseIRCLine(line string) ircMessage {
	var msg ircMessage
	msg.tags = map[string]string{}

	if strings.HasPrefix(line, "@") {
		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			return msg
		}
		for _, kv := range strings.Split(line[1:sp], ";") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				msg.tags[parts[0]] = unescapeTagValue(parts[1])
			}
		}
		line = line[sp+1:]
	}

	if strings.HasPrefix(line, ":") {
		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			return msg
		}
		msg.prefix = line[1:sp]
		line = line[sp+1:]
	}

	if idx := strings.Index(line, " :"); idx != -1 {
		head := strings.Fields(line[:idx])
		if len(head) > 0 {
			msg.command = head[0]
			msg.params = append(head[1:], line[idx+2:])
		}
		return msg
	}
	fields := strings.Fields(line)
	if len(fields) > 0 {
		msg.command = fields[0]
		msg.params = fields[1:]
	}
	return msg
}

func unescapeTagValue(v string) string {
	r := strings.NewReplacer(`\s`, " ", `\:`, ";", `\\`, `\`, `\r`, "\r", `\n`, "\n")
	return r.Replace(v)
}
