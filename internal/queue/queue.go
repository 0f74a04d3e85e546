// Package queue is the Message Queue component from spec §4.5: a thin
// orchestration layer over the Persistence Port's durable backlog that adds
// the guard recheck + redrive loop described in spec §5 ("a background loop
// claims, rechecks guards, and redrives").
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/breaker"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/quota"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

// SendResult is the minimal outcome shape the drainer needs back from a
// platform session's send call, decoupled from internal/platform to avoid
// an import cycle (platform adapters depend on breaker/quota, not queue).
type SendResult struct {
	Success    bool
	Throttled  bool
	RetryAfter time.Duration
	Err        error
}

// Sender is the minimal platform adapter surface the drainer needs to
// redrive a claimed message; internal/platform.Session's Send is adapted
// to this shape by the worker that wires the two together.
type Sender interface {
	Send(ctx context.Context, channel, text string) SendResult
}

// Queue wraps the Persistence Port's message_queue table with the
// enqueue/claim/complete operations from spec §4.5 plus a drainer.
type Queue struct {
	store   store.Port
	breaker *breaker.Breaker
	quota   *quota.Tracker
	log     *logrus.Entry
	batch   int
}

func New(st store.Port, b *breaker.Breaker, q *quota.Tracker, log *logrus.Entry, batchSize int) *Queue {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Queue{store: st, breaker: b, quota: q, log: log, batch: batchSize}
}

// Enqueue defaults priority=5, scheduledFor=now per spec §4.5.
func (q *Queue) Enqueue(ctx context.Context, tenantID string, platform models.Platform, messageType, content, metadata string, priority int, scheduledFor time.Time) (models.MessageQueueItem, error) {
	item := models.MessageQueueItem{
		TenantID: tenantID, Platform: platform, MessageType: messageType,
		Content: content, Metadata: metadata, Priority: priority, ScheduledFor: scheduledFor,
	}
	out, err := q.store.EnqueueMessage(ctx, item)
	if err != nil {
		return models.MessageQueueItem{}, fmt.Errorf("queue: enqueue: %w", err)
	}
	return out, nil
}

// channelResolver extracts the outbound channel encoded in an item's
// metadata; the worker supplies one (channelFromMetadata) that reads the
// channel its Dispatch stored there.
type channelResolver func(item models.MessageQueueItem) string

// Drain claims up to the configured batch size for platform, rechecks the
// breaker/quota guards (they may have changed since the item was claimed),
// and redrives each item through sender, reporting completion back to the
// store. It never blocks the caller beyond the batch it claims.
func (q *Queue) Drain(ctx context.Context, platform models.Platform, sender Sender, channelOf channelResolver) error {
	items, err := q.store.ClaimMessages(ctx, platform, q.batch)
	if err != nil {
		return fmt.Errorf("queue: claim: %w", err)
	}
	for _, item := range items {
		// A skipped item is reported back as a failed attempt: CompleteMessage
		// resets its status and scheduled_for so a later drain pass reclaims it.
		if !q.breaker.CanMakeRequest(platform) {
			_ = q.store.CompleteMessage(ctx, item.ID, false, "circuit breaker open")
			continue
		}
		if q.quota != nil {
			status, err := q.quota.CheckQuota(ctx, platform, 1)
			if err == nil && !status.Allowed {
				_ = q.store.CompleteMessage(ctx, item.ID, false, "quota exhausted")
				continue
			}
		}
		start := time.Now()
		res := sender.Send(ctx, channelOf(item), item.Content)
		if res.Throttled {
			q.breaker.RecordThrottle(platform, res.RetryAfter)
			_ = q.store.CompleteMessage(ctx, item.ID, false, "throttled")
			continue
		}
		if !res.Success {
			q.breaker.RecordFailure(platform)
			errMsg := ""
			if res.Err != nil {
				errMsg = res.Err.Error()
			}
			if err := q.store.CompleteMessage(ctx, item.ID, false, errMsg); err != nil && q.log != nil {
				q.log.WithError(err).Warn("queue: complete(failure) write failed")
			}
			continue
		}
		q.breaker.RecordSuccess(platform, time.Since(start))
		if err := q.store.CompleteMessage(ctx, item.ID, true, ""); err != nil && q.log != nil {
			q.log.WithError(err).Warn("queue: complete(success) write failed")
		}
	}
	return nil
}
