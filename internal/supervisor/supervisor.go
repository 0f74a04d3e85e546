// Package supervisor implements the process-wide worker registry from spec
// §4.1: the sole creator/destroyer of internal/worker.Worker instances, and
// the fan-out point between a tenant's worker and its event subscribers.
//
// Grounded on the teacher's internal/websocket/hub.go Hub: a single
// mutex-protected map keyed by identity (there, user ID; here, tenant ID)
// guarding lifecycle operations, generalized from register/unregister/cancel
// channels to direct synchronous calls into the owned Worker, since a
// Supervisor operation must return the caller an error rather than fire
// into a channel and forget.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/eventbus"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/worker"
)

// Status is the snapshot returned by Supervisor.Status.
type Status struct {
	TenantID string       `json:"tenantId"`
	State    worker.State `json:"status"`
	Since    time.Time    `json:"since"`
	Dropped  int64        `json:"droppedMessages"`
	LastErr  string       `json:"lastError,omitempty"`
}

// entry is one tenant's supervised worker plus bookkeeping not owned by the
// Worker itself (crash record, state-transition timestamp).
type entry struct {
	w       *worker.Worker
	since   time.Time
	lastErr string
}

// WorkerFactory builds the Deps a new Worker needs for a tenant. Supplied by
// cmd/server/main.go, which owns every shared singleton (store, breaker,
// quota, tokens, queue, adapters, ...); the Supervisor never constructs
// those itself.
type WorkerFactory func(tenantID string) worker.Deps

// Supervisor owns every tenant's Bot Worker.
type Supervisor struct {
	mu      sync.Mutex
	workers map[string]*entry
	factory WorkerFactory
	bus     *eventbus.Bus
	log     *logrus.Entry
}

func New(factory WorkerFactory, bus *eventbus.Bus, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		workers: make(map[string]*entry),
		factory: factory,
		bus:     bus,
		log:     log,
	}
}

// Start is idempotent: a tenant already starting/running is left alone.
// Spec §4.1: "loads config; returns {status=running, since}".
func (s *Supervisor) Start(ctx context.Context, tenantID string) (Status, error) {
	s.mu.Lock()
	e, ok := s.workers[tenantID]
	if !ok {
		e = &entry{w: worker.New(tenantID, s.factory(tenantID), s.log)}
		s.workers[tenantID] = e
	}
	s.mu.Unlock()

	if err := e.w.Start(ctx); err != nil {
		s.recordFailure(tenantID, err)
		return Status{}, err
	}

	s.mu.Lock()
	e.since = time.Now()
	e.lastErr = ""
	s.mu.Unlock()

	return s.Status(tenantID), nil
}

// Stop gracefully drains tenantID's worker. Idempotent: a tenant with no
// worker, or one already stopped, is a no-op.
func (s *Supervisor) Stop(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	e, ok := s.workers[tenantID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.w.Stop(ctx); err != nil {
		s.recordFailure(tenantID, err)
		return err
	}
	return nil
}

// Restart stops then starts tenantID's worker. The registry lock is taken
// only to look up the entry; it is not held across the stop and the start,
// so a concurrent Status call can observe the worker draining or stopped in
// between, and a concurrent Start or Stop can interleave with the restart.
func (s *Supervisor) Restart(ctx context.Context, tenantID string) (Status, error) {
	s.mu.Lock()
	e, ok := s.workers[tenantID]
	s.mu.Unlock()
	if ok {
		if err := e.w.Stop(ctx); err != nil {
			s.recordFailure(tenantID, err)
			return Status{}, err
		}
	}
	return s.Start(ctx, tenantID)
}

// Reload delegates to the running worker's config re-read (spec §4.1:
// "applies to scheduler cadence, keywords, active platforms").
func (s *Supervisor) Reload(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	e, ok := s.workers[tenantID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: tenant %s has no running worker", tenantID)
	}
	if err := e.w.Reload(ctx); err != nil {
		s.recordFailure(tenantID, err)
		return err
	}
	return nil
}

// Status reports tenantID's current lifecycle state. A tenant never started
// reports StateStopped with a zero Since.
func (s *Supervisor) Status(tenantID string) Status {
	s.mu.Lock()
	e, ok := s.workers[tenantID]
	s.mu.Unlock()
	if !ok {
		return Status{TenantID: tenantID, State: worker.StateStopped}
	}
	return Status{
		TenantID: tenantID,
		State:    e.w.State(),
		Since:    e.since,
		Dropped:  e.w.Dropped(),
		LastErr:  e.lastErr,
	}
}

// Worker returns the live worker for tenantID, for callers (e.g. the HTTP
// control plane's postManual/announce endpoints) that need to reach
// operations Supervisor itself doesn't proxy.
func (s *Supervisor) Worker(tenantID string) (*worker.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.workers[tenantID]
	if !ok {
		return nil, false
	}
	return e.w, true
}

// Subscribe fans tenantID's events out to consumer until the returned
// unsubscribe func is called, replaying durable/history backlog first
// (spec §4.1's subscribe(tenantId, consumer) -> unsubscribe handle).
func (s *Supervisor) Subscribe(tenantID string, consumer func(models.Event)) func() {
	topic := s.bus.Topic(tenantID)
	ch, replay := topic.Subscribe()

	for _, evt := range replay {
		consumer(evt)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					close(done)
					return
				}
				consumer(evt)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			topic.Unsubscribe(ch)
		})
	}
}

// RecordCrash is how a caller observing a worker's goroutine panic/die
// outside a normal Stop call reports it: records the error, emits an
// {type=error} event, and leaves the worker in whatever state it already
// fell back to. Spec §4.1: "does not auto-restart (restart is the
// operator's explicit action)".
func (s *Supervisor) RecordCrash(tenantID string, cause error) {
	s.recordFailure(tenantID, cause)
	s.bus.Publish(tenantID, models.Event{
		Kind:      models.EventError,
		TenantID:  tenantID,
		Data:      map[string]any{"error": cause.Error()},
		Timestamp: time.Now(),
	})
}

func (s *Supervisor) recordFailure(tenantID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.workers[tenantID]; ok {
		e.lastErr = err.Error()
	}
	if s.log != nil {
		s.log.WithField("tenant_id", tenantID).WithError(err).Warn("supervisor: operation failed")
	}
}

// Tenants lists every tenant the Supervisor currently tracks (started at
// least once this process lifetime), for an operator-facing listing
// endpoint.
func (s *Supervisor) Tenants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workers))
	for id := range s.workers {
		out = append(out, id)
	}
	return out
}
