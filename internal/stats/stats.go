// Package stats implements the Stats Aggregator from spec §4.7: a thin,
// named API in front of the Persistence Port's append-only stream-session
// projections, plus the in-process uptime tracking the policy pipeline's
// {uptime} template token needs.
//
// Grounded on the already-built internal/store/store_stats.go CRUD (which
// itself follows the teacher's internal/database transactional-write idiom,
// see DESIGN.md's Persistence Port entry); this package adds nothing new
// to the SQL, only the public verbs spec §4.7 names and an in-memory
// started-at cache so the Bot Worker doesn't round-trip to the database on
// every {uptime} render.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// Aggregator wraps store.Port with the named operations spec §4.7
// describes, plus a per-(tenant,platform) session-start cache satisfying
// pipeline.SessionUptime.
type Aggregator struct {
	store store.Port
	log   *logrus.Entry

	mu      sync.RWMutex
	started map[string]time.Time
}

func New(st store.Port, log *logrus.Entry) *Aggregator {
	return &Aggregator{store: st, log: log, started: make(map[string]time.Time)}
}

func sessionKey(tenantID string, platform models.Platform) string {
	return tenantID + "|" + string(platform)
}

// CreateSession opens a new stream session, closing any dangling one for
// the same (tenant, platform) first (store.OpenStreamSession already
// enforces this atomically).
func (a *Aggregator) CreateSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error) {
	sess, err := a.store.OpenStreamSession(ctx, tenantID, platform)
	if err != nil {
		return models.StreamSession{}, fmt.Errorf("stats: create session: %w", err)
	}
	a.mu.Lock()
	a.started[sessionKey(tenantID, platform)] = sess.StartedAt
	a.mu.Unlock()
	return sess, nil
}

// EndSession closes a session. Idempotent per store.EndStreamSession's
// `WHERE ended_at IS NULL` guard.
func (a *Aggregator) EndSession(ctx context.Context, tenantID string, platform models.Platform, sessionID string) error {
	if err := a.store.EndStreamSession(ctx, sessionID); err != nil {
		return fmt.Errorf("stats: end session: %w", err)
	}
	a.mu.Lock()
	delete(a.started, sessionKey(tenantID, platform))
	a.mu.Unlock()
	return nil
}

// TrackViewerCount appends a viewer snapshot and bumps the session's peak.
func (a *Aggregator) TrackViewerCount(ctx context.Context, sessionID string, viewerCount int) error {
	if err := a.store.AppendViewerSnapshot(ctx, sessionID, viewerCount); err != nil {
		return fmt.Errorf("stats: track viewer count: %w", err)
	}
	return nil
}

// TrackChatMessage appends a ChatActivity row; the Persistence Port
// recomputes totalMessages/uniqueChatters from it.
func (a *Aggregator) TrackChatMessage(ctx context.Context, sessionID, username string) error {
	if err := a.store.AppendChatActivity(ctx, sessionID, username); err != nil {
		return fmt.Errorf("stats: track chat message: %w", err)
	}
	return nil
}

// Uptime implements pipeline.SessionUptime: how long has (tenant, platform)
// had an open session, if any.
func (a *Aggregator) Uptime(ctx context.Context, tenantID string, platform models.Platform) (time.Duration, bool) {
	a.mu.RLock()
	startedAt, ok := a.started[sessionKey(tenantID, platform)]
	a.mu.RUnlock()
	if ok {
		return time.Since(startedAt), true
	}

	sess, err := a.store.GetOpenStreamSession(ctx, tenantID, platform)
	if err != nil {
		return 0, false
	}
	a.mu.Lock()
	a.started[sessionKey(tenantID, platform)] = sess.StartedAt
	a.mu.Unlock()
	return time.Since(sess.StartedAt), true
}
