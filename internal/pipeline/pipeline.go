// Package pipeline implements the Bot Worker's policy pipeline from spec
// §4.2: an ordered, short-circuiting chain of stages applied to every
// inbound normalized ChatEvent. Grounded on the teacher's
// internal/engine/engine.go ProcessRequest shape — a fixed sequence of
// named private stage methods run against one shared per-event context,
// each capable of producing outbound effects — adapted here from an
// LLM-thinking/synthesis pipeline to moderation/command/giveaway stages.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/cmdtemplate"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// Outbound is how a pipeline stage hands a produced effect back to the Bot
// Worker, which owns the quota/breaker/send/retry sequence from spec
// §4.2.2. The pipeline never talks to a platform adapter directly.
type Outbound interface {
	Dispatch(ctx context.Context, action models.ChatAction)
}

// ToxicClassifier scores a message's toxicity via an external moderation
// API. Implementations live outside this package; the pipeline only caches
// their decisions.
type ToxicClassifier interface {
	Classify(ctx context.Context, text string) (models.Severity, error)
}

// FactGenerator produces an AI-written fact for the keyword-trigger stage
// (step 8) and the scheduled post timer. Implementations live in
// internal/ai.
type FactGenerator interface {
	GenerateFact(ctx context.Context, tenantID string, promptTemplate, model string, temperature int) (string, error)
}

// SessionUptime reports how long a tenant's active stream session (if any)
// has been running, for the {uptime} command template token.
type SessionUptime interface {
	Uptime(ctx context.Context, tenantID string, platform models.Platform) (time.Duration, bool)
}

// Engine runs the eight-step policy pipeline for one tenant. One Engine
// instance is shared across all of a tenant's platform sessions (the
// pipeline is platform-agnostic; only the outbound sink differs).
type Engine struct {
	store    store.Port
	log      *logrus.Entry
	toxic    ToxicClassifier
	facts    FactGenerator
	uptime   SessionUptime
	outbound Outbound

	toxicCache *toxicCache
	spam       *spamTracker
	games      *gameState
	cooldowns  *cooldownTracker
}

// SweepCaches drops expired entries from the engine's process-local caches.
// Meant to be driven by a periodic ticker in the owning worker; never called
// from the hot path.
func (e *Engine) SweepCaches(now time.Time) {
	e.toxicCache.sweep(now)
}

func New(st store.Port, log *logrus.Entry, toxic ToxicClassifier, facts FactGenerator, uptime SessionUptime, outbound Outbound) *Engine {
	return &Engine{
		store:      st,
		log:        log,
		toxic:      toxic,
		facts:      facts,
		uptime:     uptime,
		outbound:   outbound,
		toxicCache: newToxicCache(time.Hour),
		spam:       newSpamTracker(30 * time.Second),
		games:      newGameState(),
		cooldowns:  newCooldownTracker(),
	}
}

// evalCtx carries the mutable state threaded through one event's pipeline
// run: the tenant's config (fetched once), the inbound event, and a
// terminal flag any stage can set to halt the chain.
type evalCtx struct {
	tenantID string
	evt      models.ChatEvent
	cfg      models.BotConfig
	terminal bool
}

// Process runs the eight ordered stages against evt for tenantID. It never
// returns an error for per-message failures (those are logged and
// swallowed, per the ambient error-handling design's "recovers from panics
// at its own boundary"); it returns an error only for a config lookup
// failure, which means the tenant has no usable pipeline at all.
func (e *Engine) Process(ctx context.Context, tenantID string, evt models.ChatEvent) error {
	defer func() {
		if r := recover(); r != nil {
			if e.log != nil {
				e.log.WithField("tenant_id", tenantID).Errorf("pipeline: recovered from panic: %v", r)
			}
		}
	}()

	cfg, err := e.store.GetBotConfig(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("pipeline: load bot config: %w", err)
	}

	ec := &evalCtx{tenantID: tenantID, evt: evt, cfg: cfg}

	e.stageChatActivity(ctx, ec)
	e.stageCurrencyAccrual(ctx, ec)

	if e.stageBannedWords(ctx, ec) {
		return nil
	}
	if e.stageModerationChain(ctx, ec) {
		return nil
	}
	if e.stageTriviaAnswer(ctx, ec) {
		return nil
	}
	if e.stageCommandDispatch(ctx, ec) {
		return nil
	}
	e.stageGiveawayEntry(ctx, ec)
	e.stageKeywordTrigger(ctx, ec)

	return nil
}

func (e *Engine) dispatch(ctx context.Context, action models.ChatAction) {
	if e.outbound == nil {
		return
	}
	e.outbound.Dispatch(ctx, action)
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Debugf(format, args...)
	}
}

// cooldownTracker is a generic (key -> last-fired-at) map guarding
// per-user-game and per-tenant-command cooldowns, both expressed in the
// spec as "minutes" / "seconds" windows rather than token buckets.
type cooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{last: make(map[string]time.Time)}
}

// Ready reports whether key's cooldown window has elapsed, and if so marks
// it used now. Call sites rely on this single-check-and-set to avoid a
// race between checking and marking.
func (c *cooldownTracker) Ready(key string, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < window {
		return false
	}
	c.last[key] = now
	return true
}

// templateVars builds the cmdtemplate rendering context for ec's triggering
// user and the command's post-increment usage count.
func (e *Engine) templateVars(ctx context.Context, ec *evalCtx, count int) cmdtemplate.Vars {
	v := cmdtemplate.Vars{
		User:    ec.evt.Username,
		Channel: ec.evt.Channel,
		Count:   count,
		Time:    time.Now().Format("03:04 PM"),
		Uptime:  "Stream offline",
	}
	if e.uptime != nil {
		if d, active := e.uptime.Uptime(ctx, ec.tenantID, ec.evt.Platform); active {
			v.Uptime = formatUptime(d)
		}
	}
	return v
}

func formatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
