// Package scheduler implements the timed-trigger component from spec
// §4.2.3 and the system overview's "Scheduler" row: the scheduled-post
// timer (fixed/random/manual), plus the plain fixed-interval ticker shared
// by the Bot Worker's heartbeat and viewer-snapshot tasks.
//
// Grounded on the teacher's internal/engine/profile_summarizer.go
// ProfileSummarizer.Start: a ticker-driven background loop selecting on
// ctx.Done() and ticker.C, logging start/stop. Generalized here from one
// fixed 5-minute cadence to the three interval modes a tenant can choose.
// The fixed mode's cadence is computed by `robfig/cron/v3`'s
// `ParseStandard("@every ...")`, the library's own documented idiom for
// "run every N units" (grounded on `EternisAI-enchanted-proxy`'s direct
// dependency on the same library), rather than hand-rolled interval math.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// PostTimer drives a tenant's scheduled-post trigger.
type PostTimer struct {
	log  *logrus.Entry
	rand *rand.Rand
}

func New(log *logrus.Entry) *PostTimer {
	return &PostTimer{
		log:  log,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled, invoking fire per the interval mode:
//   - manual: never fires.
//   - fixed: every fixedMinutes, via a cron `@every` schedule.
//   - random: samples U∈[minMinutes, maxMinutes], sleeps, fires, resamples.
func (p *PostTimer) Run(ctx context.Context, mode models.IntervalMode, fixedMinutes, minMinutes, maxMinutes int, fire func(context.Context)) {
	switch mode {
	case models.IntervalFixed:
		p.runFixed(ctx, fixedMinutes, fire)
	case models.IntervalRandom:
		p.runRandom(ctx, minMinutes, maxMinutes, fire)
	default: // IntervalManual and anything unrecognized: no timer.
		<-ctx.Done()
	}
}

func (p *PostTimer) runFixed(ctx context.Context, fixedMinutes int, fire func(context.Context)) {
	if fixedMinutes <= 0 {
		fixedMinutes = 30
	}

	schedule, err := cron.ParseStandard(fmt.Sprintf("@every %dm", fixedMinutes))
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Error("scheduler: failed to parse fixed-interval cron spec")
		}
		return
	}

	next := schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fire(ctx)
			next = schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

func (p *PostTimer) runRandom(ctx context.Context, minMinutes, maxMinutes int, fire func(context.Context)) {
	for {
		wait := p.sample(minMinutes, maxMinutes)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			fire(ctx)
		}
	}
}

func (p *PostTimer) sample(minMinutes, maxMinutes int) time.Duration {
	if maxMinutes < minMinutes {
		minMinutes, maxMinutes = maxMinutes, minMinutes
	}
	if minMinutes <= 0 {
		minMinutes = 1
	}
	if maxMinutes <= 0 {
		maxMinutes = minMinutes
	}
	span := maxMinutes - minMinutes
	minutes := minMinutes
	if span > 0 {
		minutes += p.rand.Intn(span + 1)
	}
	return time.Duration(minutes) * time.Minute
}

// RunEvery is the plain fixed-cadence ticker shared by the heartbeat and
// viewer-snapshot tasks: no wall-clock alignment, no resampling, just fire
// every interval until ctx is cancelled.
func RunEvery(ctx context.Context, interval time.Duration, fire func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}
