// Package notify implements the admin notification sink: a Telegram bot
// that receives operator-facing alerts (token expiry, worker crashes).
//
// Grounded on the teacher's internal/telemetry/telegram.go: same
// bot-token/chat-id configuration, the same fire-and-forget sendMessage
// goroutine with its own recover, and the same "instance is nil means
// disabled" pattern — adapted from a global package-level singleton with a
// polling admin-command loop to a plain send-only *Sink value satisfying
// tokenmanager.Notifier, since this system has no Telegram-side admin
// command surface to poll for.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

const (
	telegramAPIURL = "https://api.telegram.org/bot%s/sendMessage"
	requestTimeout = 10 * time.Second
)

// Sink sends operator-facing alerts to a Telegram chat. A zero-value Sink
// (empty token/chatID) is a safe, fully functional no-op, so callers never
// need a separate "telemetry disabled" branch.
type Sink struct {
	token  string
	chatID string
	log    *logrus.Entry
	client *http.Client
}

// New builds a Sink. An empty token or chatID makes every method a no-op.
func New(token, chatID string, log *logrus.Entry) *Sink {
	return &Sink{
		token:  token,
		chatID: chatID,
		log:    log,
		client: &http.Client{Timeout: requestTimeout},
	}
}

func (s *Sink) enabled() bool {
	return s != nil && s.token != "" && s.chatID != ""
}

// NotifyTokenAlert implements tokenmanager.Notifier.
func (s *Sink) NotifyTokenAlert(ctx context.Context, alert models.TokenExpiryAlert) {
	if !s.enabled() {
		return
	}
	var emoji string
	switch alert.AlertType {
	case models.AlertExpired, models.AlertRefreshFailed:
		emoji = "🔴"
	default:
		emoji = "🟡"
	}
	text := fmt.Sprintf("%s *Token alert*\nTenant: `%s`\nPlatform: %s\nType: %s\nExpires: %s",
		emoji, alert.TenantID, alert.Platform, alert.AlertType, alert.TokenExpiresAt.Format(time.RFC3339))
	s.send(ctx, text)
}

// NotifyWorkerCrash reports a Bot Worker crash the Supervisor chose not to
// auto-restart (spec §4.5: "a worker that crashes is not automatically
// restarted").
func (s *Sink) NotifyWorkerCrash(ctx context.Context, tenantID string, cause error) {
	if !s.enabled() {
		return
	}
	text := fmt.Sprintf("🔴 *Worker crashed*\nTenant: `%s`\nCause: %s", tenantID, cause)
	s.send(ctx, text)
}

func (s *Sink) send(ctx context.Context, text string) {
	go func() {
		defer func() {
			if r := recover(); r != nil && s.log != nil {
				s.log.Errorf("notify: recovered from panic sending alert: %v", r)
			}
		}()

		payload, _ := json.Marshal(map[string]string{
			"chat_id":    s.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		})

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()

		url := fmt.Sprintf(telegramAPIURL, s.token)
		req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Warn("notify: build request failed")
			}
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).Warn("notify: send failed")
			}
			return
		}
		defer resp.Body.Close()
	}()
}
