// Package worker implements the Bot Worker from spec §4.2: one instance
// per tenant, owning that tenant's platform connections, running the
// policy pipeline over inbound chat, and driving scheduled content.
//
// Grounded on the teacher's internal/websocket hub/client split (a
// connection-owning struct with a lifecycle state machine, per-connection
// read/write goroutines, and a stop grace period) generalized from one
// websocket connection to N platform sessions per tenant, plus the
// teacher's internal/engine/profile_summarizer.go ticker-loop shape for
// the scheduled tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/config"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/eventbus"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/pipeline"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/platform"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/quota"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/queue"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/scheduler"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// State is one of the Bot Worker lifecycle states from spec §4.2.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

// outboundDrainInterval is how often a platform's outbound drainer claims
// from the message queue. Not named by the spec; chosen so a queued
// message's observable latency stays sub-second without busy-polling.
const outboundDrainInterval = 500 * time.Millisecond

// farewellTimeout bounds the best-effort goodbye message sent while
// draining, so a slow/broken connection can't extend shutdown.
const farewellTimeout = 3 * time.Second

// StatsPort is the subset of internal/stats.Aggregator the worker needs:
// session lifecycle plus the uptime lookup pipeline.Engine depends on.
type StatsPort interface {
	pipeline.SessionUptime
	CreateSession(ctx context.Context, tenantID string, platform models.Platform) (models.StreamSession, error)
	EndSession(ctx context.Context, tenantID string, platform models.Platform, sessionID string) error
	TrackViewerCount(ctx context.Context, sessionID string, viewerCount int) error
}

// Deps are a Worker's collaborators, all owned and constructed once at
// process startup and shared across every tenant's Worker.
type Deps struct {
	Store    store.Port
	Breaker  Breaker
	Quota    Quota
	Tokens   TokenRefresher
	Queue    *queue.Queue
	Bus      *eventbus.Bus
	Stats    StatsPort
	Facts    pipeline.FactGenerator
	Toxic    pipeline.ToxicClassifier
	Adapters map[models.Platform]platform.Adapter
	Config   *config.AppConfig
	Log      *logrus.Entry
}

// Breaker is the circuit breaker surface the worker's direct-moderation
// path needs (internal/breaker.Breaker satisfies this).
type Breaker interface {
	CanMakeRequest(platform models.Platform) bool
	RecordSuccess(platform models.Platform, responseTime time.Duration)
	RecordFailure(platform models.Platform)
	RecordThrottle(platform models.Platform, retryAfter time.Duration)
}

// Quota is the quota-check surface the worker's direct-moderation path
// needs (internal/quota.Tracker satisfies this).
type Quota interface {
	CheckQuota(ctx context.Context, platform models.Platform, cost int64) (quota.Status, error)
}

// TokenRefresher resolves a usable bearer token for a tenant's platform
// connection (internal/tokenmanager.Manager satisfies this).
type TokenRefresher interface {
	EnsureFreshToken(ctx context.Context, tenantID string, platform models.Platform) (string, error)
}

// outboundMeta is the JSON payload stashed in a MessageQueueItem's
// Metadata column so a later drain pass knows which channel to send to.
type outboundMeta struct {
	Channel string `json:"channel"`
}

// Worker owns one tenant's platform connections and policy pipeline.
type Worker struct {
	tenantID string
	deps     Deps
	log      *logrus.Entry

	mu              sync.Mutex
	state           State
	cfg             models.BotConfig
	rootCtx         context.Context
	cancel          context.CancelFunc
	postTimerCancel context.CancelFunc
	lastHeartbeat   time.Time

	sessions        map[models.Platform]platform.Session
	channels        map[models.Platform]string
	streamSessions  map[models.Platform]string
	platformCancels map[models.Platform]context.CancelFunc

	engine    *pipeline.Engine
	postTimer *scheduler.PostTimer

	inbound chan models.ChatEvent
	dropped atomic.Int64

	wg sync.WaitGroup
}

func New(tenantID string, deps Deps, log *logrus.Entry) *Worker {
	return &Worker{
		tenantID: tenantID,
		deps:     deps,
		log:      log,
		state:    StateStopped,
	}
}

func (w *Worker) TenantID() string { return w.tenantID }

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Dropped returns how many inbound messages were discarded for inbound
// channel backpressure since the worker started.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// SweepCaches evicts expired entries from the worker's policy pipeline
// caches. A no-op before the worker's first Start, since the engine isn't
// built until then.
func (w *Worker) SweepCaches(now time.Time) {
	w.mu.Lock()
	engine := w.engine
	w.mu.Unlock()
	if engine != nil {
		engine.SweepCaches(now)
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start brings the worker from stopped to running: stopped->starting on
// entry, starting->stopped on any failure, starting->running on success.
// Idempotent: calling Start on an already-starting/running worker is a
// no-op, matching Supervisor.start's idempotency contract (spec §4.1).
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateRunning || w.state == StateStarting {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStarting
	w.mu.Unlock()

	cfg, err := w.deps.Store.GetBotConfig(ctx, w.tenantID)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("worker: load bot config: %w", err)
	}
	if !cfg.Valid() {
		w.setState(StateStopped)
		return fmt.Errorf("worker: tenant %s has an invalid bot config", w.tenantID)
	}

	rootCtx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.cfg = cfg
	w.rootCtx = rootCtx
	w.cancel = cancel
	w.sessions = make(map[models.Platform]platform.Session)
	w.channels = make(map[models.Platform]string)
	w.streamSessions = make(map[models.Platform]string)
	w.platformCancels = make(map[models.Platform]context.CancelFunc)
	bufSize := w.deps.Config.InboundChannelBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	w.inbound = make(chan models.ChatEvent, bufSize)
	w.mu.Unlock()

	w.engine = pipeline.New(w.deps.Store, w.log, w.deps.Toxic, w.deps.Facts, w.deps.Stats, w)
	w.postTimer = scheduler.New(w.log)

	connected := 0
	for _, p := range cfg.ActivePlatforms {
		if err := w.connectPlatform(ctx, p); err != nil {
			if w.log != nil {
				w.log.WithField("tenant_id", w.tenantID).WithField("platform", p).WithError(err).Warn("worker: platform connect failed")
			}
			continue
		}
		connected++
	}
	if len(cfg.ActivePlatforms) > 0 && connected == 0 {
		cancel()
		w.setState(StateStopped)
		return fmt.Errorf("worker: failed to connect any of %d configured platforms", len(cfg.ActivePlatforms))
	}

	w.startBackgroundTasks(rootCtx, cfg)

	w.setState(StateRunning)
	w.publish(models.EventStatusChanged, "", map[string]any{"status": string(StateRunning)})
	return nil
}

func (w *Worker) startBackgroundTasks(rootCtx context.Context, cfg models.BotConfig) {
	w.wg.Add(1)
	go func() { defer w.wg.Done(); w.runPipelineExecutor(rootCtx) }()

	postCtx, postCancel := context.WithCancel(rootCtx)
	w.mu.Lock()
	w.postTimerCancel = postCancel
	w.mu.Unlock()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.postTimer.Run(postCtx, cfg.IntervalMode, cfg.FixedIntervalMinutes, cfg.RandomMinMinutes, cfg.RandomMaxMinutes, w.firePost)
	}()

	w.wg.Add(1)
	go func() { defer w.wg.Done(); scheduler.RunEvery(rootCtx, w.deps.Config.HeartbeatInterval, w.beat) }()

	w.wg.Add(1)
	go func() { defer w.wg.Done(); scheduler.RunEvery(rootCtx, w.deps.Config.ViewerSnapshotEvery, w.snapshotViewers) }()
}

// Stop drains the worker: running->draining, cancels timers, best-effort
// farewell, closes sessions, draining->stopped. Idempotent.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return nil
	}
	w.state = StateDraining
	cancel := w.cancel
	sessions := w.sessions
	channels := w.channels
	streamSessions := w.streamSessions
	w.mu.Unlock()
	w.publish(models.EventStatusChanged, "", map[string]any{"status": string(StateDraining)})

	for p, sess := range sessions {
		farewellCtx, fc := context.WithTimeout(context.Background(), farewellTimeout)
		sess.Send(farewellCtx, channels[p], "Bot going offline, see you next stream!")
		fc()
	}

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { w.wg.Wait(); close(done) }()
	grace := w.deps.Config.WorkerStopGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		if w.log != nil {
			w.log.WithField("tenant_id", w.tenantID).Warn("worker: stop grace period elapsed, abandoning stragglers")
		}
	}

	for p, sess := range sessions {
		sess.Close()
		if sid, ok := streamSessions[p]; ok {
			w.deps.Stats.EndSession(context.Background(), w.tenantID, p, sid)
		}
	}

	w.setState(StateStopped)
	w.publish(models.EventStatusChanged, "", map[string]any{"status": string(StateStopped)})
	return nil
}

// Reload re-reads the tenant's config while running: reconnects/
// disconnects platforms to match the new active set, and restarts the
// scheduled-post timer if its cadence changed (spec §4.1's reload op).
func (w *Worker) Reload(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return fmt.Errorf("worker: reload requires a running worker")
	}
	old := w.cfg
	rootCtx := w.rootCtx
	w.mu.Unlock()

	cfg, err := w.deps.Store.GetBotConfig(ctx, w.tenantID)
	if err != nil {
		return fmt.Errorf("worker: reload: load bot config: %w", err)
	}
	if !cfg.Valid() {
		return fmt.Errorf("worker: reload: invalid bot config")
	}

	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()

	oldSet, newSet := platformSet(old.ActivePlatforms), platformSet(cfg.ActivePlatforms)
	for p := range oldSet {
		if _, stillActive := newSet[p]; !stillActive {
			w.disconnectPlatform(p)
		}
	}
	for p := range newSet {
		if _, wasActive := oldSet[p]; !wasActive {
			if err := w.connectPlatform(ctx, p); err != nil && w.log != nil {
				w.log.WithField("platform", p).WithError(err).Warn("worker: reload connect failed")
			}
		}
	}

	cadenceChanged := old.IntervalMode != cfg.IntervalMode ||
		old.FixedIntervalMinutes != cfg.FixedIntervalMinutes ||
		old.RandomMinMinutes != cfg.RandomMinMinutes ||
		old.RandomMaxMinutes != cfg.RandomMaxMinutes
	if cadenceChanged {
		w.mu.Lock()
		if w.postTimerCancel != nil {
			w.postTimerCancel()
		}
		postCtx, postCancel := context.WithCancel(rootCtx)
		w.postTimerCancel = postCancel
		w.mu.Unlock()

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.postTimer.Run(postCtx, cfg.IntervalMode, cfg.FixedIntervalMinutes, cfg.RandomMinMinutes, cfg.RandomMaxMinutes, w.firePost)
		}()
	}
	return nil
}

func platformSet(ps []models.Platform) map[models.Platform]struct{} {
	out := make(map[models.Platform]struct{}, len(ps))
	for _, p := range ps {
		out[p] = struct{}{}
	}
	return out
}

func (w *Worker) connectPlatform(ctx context.Context, p models.Platform) error {
	adapter, ok := w.deps.Adapters[p]
	if !ok {
		return fmt.Errorf("no adapter registered for platform %s", p)
	}
	conn, err := w.deps.Store.GetPlatformConnection(ctx, w.tenantID, p)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}
	token, err := w.deps.Tokens.EnsureFreshToken(ctx, w.tenantID, p)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	conn.ConnectionData = token

	sess, err := adapter.Connect(ctx, conn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	platformCtx, platformCancel := context.WithCancel(w.rootCtx)

	w.mu.Lock()
	w.sessions[p] = sess
	w.channels[p] = conn.PlatformUsername
	w.platformCancels[p] = platformCancel
	w.mu.Unlock()

	if streamSess, err := w.deps.Stats.CreateSession(ctx, w.tenantID, p); err == nil {
		w.mu.Lock()
		w.streamSessions[p] = streamSess.ID
		w.mu.Unlock()
	} else if w.log != nil {
		w.log.WithField("platform", p).WithError(err).Warn("worker: create stream session failed")
	}

	w.wg.Add(1)
	go func() { defer w.wg.Done(); w.runIngestion(platformCtx, p, sess) }()
	w.wg.Add(1)
	go func() { defer w.wg.Done(); w.runOutboundDrainer(platformCtx, p) }()

	_ = w.deps.Store.SetConnectionStatus(ctx, w.tenantID, p, true)
	return nil
}

func (w *Worker) disconnectPlatform(p models.Platform) {
	w.mu.Lock()
	sess, ok := w.sessions[p]
	sid, hasSession := w.streamSessions[p]
	if cancel, ok2 := w.platformCancels[p]; ok2 {
		cancel()
	}
	delete(w.sessions, p)
	delete(w.channels, p)
	delete(w.streamSessions, p)
	delete(w.platformCancels, p)
	w.mu.Unlock()

	if !ok {
		return
	}
	sess.Close()
	if hasSession {
		w.deps.Stats.EndSession(context.Background(), w.tenantID, p, sid)
	}
	_ = w.deps.Store.SetConnectionStatus(context.Background(), w.tenantID, p, false)
}

func (w *Worker) sessionFor(p models.Platform) (platform.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sess, ok := w.sessions[p]
	return sess, ok
}

func (w *Worker) channelFor(p models.Platform) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channels[p]
}

// runIngestion forwards one platform session's normalized events into the
// worker's bounded inbound channel until the session closes or its
// context is cancelled.
func (w *Worker) runIngestion(ctx context.Context, p models.Platform, sess platform.Session) {
	events := sess.Events()
	raids := sess.RaidEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			w.enqueueInbound(evt)
		case raid, ok := <-raids:
			if !ok {
				continue
			}
			if w.log != nil {
				w.log.WithField("tenant_id", w.tenantID).WithField("platform", p).
					WithField("from", raid.Username).WithField("viewers", raid.Viewers).Info("worker: incoming raid")
			}
			w.publish(models.EventNewMessage, p, map[string]any{"raidFrom": raid.Username, "viewers": raid.Viewers})
		}
	}
}

// enqueueInbound implements spec §5's backpressure policy: a full channel
// evicts its oldest non-command message to make room; if the oldest
// message is itself a command (so dropping it would silently eat a user
// action), the new message is dropped instead. Either way the dropped
// counter is incremented.
func (w *Worker) enqueueInbound(evt models.ChatEvent) {
	select {
	case w.inbound <- evt:
		return
	default:
	}

	select {
	case oldest := <-w.inbound:
		if isCommand(oldest.Text) {
			select {
			case w.inbound <- oldest:
			default:
			}
			w.dropped.Add(1)
			return
		}
		w.dropped.Add(1)
		select {
		case w.inbound <- evt:
		default:
			w.dropped.Add(1)
		}
	default:
		select {
		case w.inbound <- evt:
		default:
			w.dropped.Add(1)
		}
	}
}

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "!")
}

// runPipelineExecutor is the single serial drainer of the inbound channel,
// guaranteeing per-tenant FIFO ordering across however many platforms feed
// it. It must never suspend on anything but DB I/O: dispatch(action) only
// ever appends to the durable outbound queue (spec §5).
func (w *Worker) runPipelineExecutor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.inbound:
			if !ok {
				return
			}
			if err := w.engine.Process(ctx, w.tenantID, evt); err != nil && w.log != nil {
				w.log.WithField("tenant_id", w.tenantID).WithError(err).Warn("worker: pipeline process failed")
			}
		}
	}
}

// Dispatch implements pipeline.Outbound, the hand-off point for spec
// §4.2.2's outbound path. Plain sends are appended to the durable message
// queue (a DB write, so this never blocks on network I/O); moderation
// actions (timeout/ban) are time-sensitive and are instead fired from a
// detached goroutine that runs the same quota->breaker->send->record
// sequence directly against the platform adapter.
func (w *Worker) Dispatch(ctx context.Context, action models.ChatAction) {
	if action.Priority == 0 {
		action.Priority = 5
	}

	switch action.Kind {
	case models.ActionTimeoutUser, models.ActionBanUser:
		go w.performModerationAction(action)
		return
	default:
		meta, _ := json.Marshal(outboundMeta{Channel: action.Channel})
		if _, err := w.deps.Queue.Enqueue(ctx, w.tenantID, action.Platform, "chat", action.Text, string(meta), action.Priority, action.ScheduledFor); err != nil && w.log != nil {
			w.log.WithField("tenant_id", w.tenantID).WithError(err).Warn("worker: enqueue outbound failed")
		}
	}
}

func (w *Worker) performModerationAction(action models.ChatAction) {
	w.mu.Lock()
	root := w.rootCtx
	w.mu.Unlock()
	if root == nil {
		root = context.Background()
	}
	timeout := w.deps.Config.ExternalCallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(root, timeout)
	defer cancel()

	if w.deps.Quota != nil {
		if status, err := w.deps.Quota.CheckQuota(ctx, action.Platform, 1); err == nil && !status.Allowed {
			return
		}
	}
	if w.deps.Breaker != nil && !w.deps.Breaker.CanMakeRequest(action.Platform) {
		return
	}
	sess, ok := w.sessionFor(action.Platform)
	if !ok {
		return
	}

	start := time.Now()
	var res platform.Result
	if action.Kind == models.ActionBanUser {
		res = sess.Ban(ctx, action.Channel, action.Username, action.Reason)
	} else {
		res = sess.Timeout(ctx, action.Channel, action.Username, action.TimeoutSeconds, action.Reason)
	}

	if w.deps.Breaker != nil {
		switch res.Kind {
		case platform.ResultSuccess:
			w.deps.Breaker.RecordSuccess(action.Platform, time.Since(start))
		case platform.ResultThrottled:
			w.deps.Breaker.RecordThrottle(action.Platform, time.Duration(res.RetryAfter)*time.Second)
		default:
			w.deps.Breaker.RecordFailure(action.Platform)
		}
	}

	w.publish(models.EventModerationAction, action.Platform, map[string]any{
		"username": action.Username, "kind": string(action.Kind), "reason": action.Reason,
	})
}

// runOutboundDrainer periodically redrives platform's durable message
// queue backlog, realizing the quota/breaker recheck + send + record +
// retry steps of spec §4.2.2 for every plain-send action.
func (w *Worker) runOutboundDrainer(ctx context.Context, p models.Platform) {
	ticker := time.NewTicker(outboundDrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess, ok := w.sessionFor(p)
			if !ok {
				continue
			}
			sender := sessionSender{sess: sess}
			if err := w.deps.Queue.Drain(ctx, p, sender, channelFromMetadata); err != nil && w.log != nil {
				w.log.WithField("tenant_id", w.tenantID).WithField("platform", p).WithError(err).Warn("worker: queue drain failed")
			}
		}
	}
}

func channelFromMetadata(item models.MessageQueueItem) string {
	var meta outboundMeta
	_ = json.Unmarshal([]byte(item.Metadata), &meta)
	return meta.Channel
}

// sessionSender adapts a platform.Session to queue.Sender so the durable
// queue's drainer can redrive without importing internal/platform itself.
type sessionSender struct {
	sess platform.Session
}

func (s sessionSender) Send(ctx context.Context, channel, text string) queue.SendResult {
	res := s.sess.Send(ctx, channel, text)
	switch res.Kind {
	case platform.ResultSuccess:
		return queue.SendResult{Success: true}
	case platform.ResultThrottled:
		return queue.SendResult{Throttled: true, RetryAfter: time.Duration(res.RetryAfter) * time.Second}
	default:
		return queue.SendResult{Success: false, Err: res.Err}
	}
}

// firePost is the scheduled-post timer's fire callback: generate one AI
// fact and post it to every currently connected platform.
func (w *Worker) firePost(ctx context.Context) {
	w.mu.Lock()
	cfg := w.cfg
	platforms := make([]models.Platform, 0, len(w.sessions))
	for p := range w.sessions {
		platforms = append(platforms, p)
	}
	w.mu.Unlock()
	if len(platforms) == 0 || w.deps.Facts == nil {
		return
	}

	fact, err := w.deps.Facts.GenerateFact(ctx, w.tenantID, cfg.AIPromptTemplate, cfg.AIModel, cfg.AITemperature)
	if err != nil || strings.TrimSpace(fact) == "" {
		if w.log != nil && err != nil {
			w.log.WithField("tenant_id", w.tenantID).WithError(err).Warn("worker: scheduled fact generation failed")
		}
		return
	}

	now := time.Now()
	for _, p := range platforms {
		w.Dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: p, Channel: w.channelFor(p), Text: fact, ScheduledFor: now,
		})
	}

	cfg.LastPostedAt = &now
	if err := w.deps.Store.SaveBotConfig(ctx, cfg); err != nil && w.log != nil {
		w.log.WithField("tenant_id", w.tenantID).WithError(err).Warn("worker: save last-posted-at failed")
	}
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

// PostManual implements spec §4.2's postManual(platforms, fact?) operation:
// dispatch fact (or a freshly generated one when fact is empty) to every
// named platform's channel immediately, independent of the scheduled-post
// timer's cadence.
func (w *Worker) PostManual(ctx context.Context, platforms []models.Platform, fact string) error {
	if fact == "" {
		w.mu.Lock()
		cfg := w.cfg
		w.mu.Unlock()
		generated, err := w.deps.Facts.GenerateFact(ctx, w.tenantID, cfg.AIPromptTemplate, cfg.AIModel, cfg.AITemperature)
		if err != nil {
			return fmt.Errorf("worker: generate fact: %w", err)
		}
		fact = generated
	}
	for _, p := range platforms {
		if _, ok := w.sessionFor(p); !ok {
			continue
		}
		w.Dispatch(ctx, models.ChatAction{
			Kind: models.ActionSend, Platform: p, Channel: w.channelFor(p), Text: fact, ScheduledFor: time.Now(),
		})
	}
	return nil
}

// beat is the heartbeat task: spec §4.2.3 explicitly calls for no side
// effects beyond refreshing liveness.
func (w *Worker) beat(context.Context) {
	w.mu.Lock()
	w.lastHeartbeat = time.Now()
	w.mu.Unlock()
}

// snapshotViewers appends a ViewerSnapshot for every active platform whose
// Session exposes public stream metadata.
func (w *Worker) snapshotViewers(ctx context.Context) {
	w.mu.Lock()
	type target struct {
		platform  models.Platform
		sess      platform.Session
		channel   string
		sessionID string
	}
	targets := make([]target, 0, len(w.sessions))
	for p, sess := range w.sessions {
		targets = append(targets, target{platform: p, sess: sess, channel: w.channels[p], sessionID: w.streamSessions[p]})
	}
	w.mu.Unlock()

	for _, t := range targets {
		vc, ok := t.sess.(platform.ViewerCounter)
		if !ok || t.sessionID == "" {
			continue
		}
		count, err := vc.ViewerCount(ctx, t.channel)
		if err != nil {
			continue
		}
		if err := w.deps.Stats.TrackViewerCount(ctx, t.sessionID, count); err != nil && w.log != nil {
			w.log.WithField("platform", t.platform).WithError(err).Warn("worker: track viewer count failed")
		}
	}
}

func (w *Worker) publish(kind models.EventKind, p models.Platform, data map[string]any) {
	if w.deps.Bus == nil {
		return
	}
	w.deps.Bus.Publish(w.tenantID, models.Event{
		Kind: kind, TenantID: w.tenantID, Platform: p, Data: data, Timestamp: time.Now(),
	})
}
