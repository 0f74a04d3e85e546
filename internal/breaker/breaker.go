// Package breaker implements the per-platform Circuit Breaker: a 3-state
// machine (closed/open/half-open) plus an orthogonal throttle timer, guarded
// by a single-owner mutex per platform (spec §5's "PlatformHealth is a
// per-platform critical section" requirement).
//
// Grounded on other_examples' twitch-client.go CircuitBreaker: mutex-guarded
// state struct with Allow/RecordSuccess/RecordFailure, generalized here to
// the explicit 3-state FSM and EWMA response-time tracking the spec calls
// for.
package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// Tuning holds one platform's failure/success thresholds and open timeout.
type Tuning struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultTuning returns the spec §4.4 tuning table.
func DefaultTuning() map[models.Platform]Tuning {
	return map[models.Platform]Tuning{
		models.PlatformTwitch:  {FailureThreshold: 5, SuccessThreshold: 3, Timeout: 30 * time.Second},
		models.PlatformYouTube: {FailureThreshold: 3, SuccessThreshold: 3, Timeout: 60 * time.Second},
		models.PlatformKick:    {FailureThreshold: 5, SuccessThreshold: 3, Timeout: 45 * time.Second},
		// Kick's threshold is a plausible default, not drawn from observed
		// docs (spec §9 open question); Spotify below is likewise provisional.
		models.PlatformSpotify: {FailureThreshold: 3, SuccessThreshold: 3, Timeout: 30 * time.Second},
	}
}

type platformState struct {
	mu sync.Mutex

	state        models.CircuitState
	failureCount int
	successCount int
	openedAt     time.Time

	isThrottled    bool
	throttledUntil time.Time

	avgResponseMs float64
	requestsToday int64
	errorsToday   int64
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// Breaker tracks PlatformHealth for every platform it is asked about.
type Breaker struct {
	tuning map[models.Platform]Tuning
	log    *logrus.Entry

	mu    sync.RWMutex
	state map[models.Platform]*platformState
}

func New(log *logrus.Entry, tuning map[models.Platform]Tuning) *Breaker {
	if tuning == nil {
		tuning = DefaultTuning()
	}
	return &Breaker{
		tuning: tuning,
		log:    log,
		state:  make(map[models.Platform]*platformState),
	}
}

func (b *Breaker) stateFor(platform models.Platform) *platformState {
	b.mu.RLock()
	s, ok := b.state[platform]
	b.mu.RUnlock()
	if ok {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.state[platform]; ok {
		return s
	}
	s = &platformState{state: models.CircuitClosed}
	b.state[platform] = s
	return s
}

func (b *Breaker) tuningFor(platform models.Platform) Tuning {
	if t, ok := b.tuning[platform]; ok {
		return t
	}
	return Tuning{FailureThreshold: 5, SuccessThreshold: 3, Timeout: 30 * time.Second}
}

// CanMakeRequest implements spec §4.4's canMakeRequest: false when the
// circuit is open (unless its timeout has elapsed, in which case it moves
// to half-open as a side effect) OR while throttled.
func (b *Breaker) CanMakeRequest(platform models.Platform) bool {
	s := b.stateFor(platform)
	tuning := b.tuningFor(platform)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isThrottled {
		if time.Now().After(s.throttledUntil) {
			s.isThrottled = false
		} else {
			return false
		}
	}

	switch s.state {
	case models.CircuitOpen:
		if time.Since(s.openedAt) >= tuning.Timeout {
			s.state = models.CircuitHalfOpen
			s.successCount = 0
			if b.log != nil {
				b.log.WithField("platform", platform).Info("breaker: open -> half-open")
			}
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess transitions closed->closed (counts up) or half-open->closed
// once successThreshold is reached, per the state table in §4.4.
func (b *Breaker) RecordSuccess(platform models.Platform, responseTime time.Duration) {
	s := b.stateFor(platform)
	tuning := b.tuningFor(platform)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestsToday++
	s.lastSuccessAt = time.Now()
	s.updateEWMA(responseTime)

	if s.isThrottled && time.Now().After(s.throttledUntil) {
		s.isThrottled = false
	}

	switch s.state {
	case models.CircuitHalfOpen:
		s.successCount++
		if s.successCount >= tuning.SuccessThreshold {
			s.state = models.CircuitClosed
			s.failureCount = 0
			s.successCount = 0
			if b.log != nil {
				b.log.WithField("platform", platform).Info("breaker: half-open -> closed")
			}
		}
	case models.CircuitClosed:
		s.successCount++
	}
}

// RecordFailure increments the failure count and trips the breaker open
// once the threshold is reached; any half-open failure reopens immediately.
func (b *Breaker) RecordFailure(platform models.Platform) {
	s := b.stateFor(platform)
	tuning := b.tuningFor(platform)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestsToday++
	s.errorsToday++
	s.lastFailureAt = time.Now()

	switch s.state {
	case models.CircuitHalfOpen:
		s.state = models.CircuitOpen
		s.openedAt = time.Now()
		s.failureCount = 0
		s.successCount = 0
		if b.log != nil {
			b.log.WithField("platform", platform).Warn("breaker: half-open -> open")
		}
	case models.CircuitClosed:
		s.failureCount++
		if s.failureCount >= tuning.FailureThreshold {
			s.state = models.CircuitOpen
			s.openedAt = time.Now()
			if b.log != nil {
				b.log.WithField("platform", platform).Warn("breaker: closed -> open")
			}
		}
	}
}

// RecordThrottle sets the orthogonal throttle flag for retryAfter, called
// from the Token Manager's 429 path via a plain function value (the cyclic
// dependency break in the design notes).
func (b *Breaker) RecordThrottle(platform models.Platform, retryAfter time.Duration) {
	s := b.stateFor(platform)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isThrottled = true
	s.throttledUntil = time.Now().Add(retryAfter)
}

func (s *platformState) updateEWMA(sample time.Duration) {
	ms := float64(sample.Milliseconds())
	if s.avgResponseMs == 0 {
		s.avgResponseMs = ms
		return
	}
	s.avgResponseMs = 0.9*s.avgResponseMs + 0.1*ms
}

// Health returns a snapshot suitable for the PlatformHealth contract.
func (b *Breaker) Health(platform models.Platform) models.PlatformHealth {
	s := b.stateFor(platform)
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.PlatformHealth{
		Platform:          platform,
		CircuitState:      s.state,
		FailureCount:      s.failureCount,
		SuccessCount:      s.successCount,
		IsThrottled:       s.isThrottled,
		ThrottledUntil:    s.throttledUntil,
		AvgResponseTimeMs: s.avgResponseMs,
		RequestsToday:     s.requestsToday,
		ErrorsToday:       s.errorsToday,
		LastSuccessAt:     s.lastSuccessAt,
		LastFailureAt:     s.lastFailureAt,
	}
}

// RecordFns is the function-value bundle the design notes require to break
// the Token Manager <-> Circuit Breaker cycle: Token Manager only ever
// receives these three closures, never a *Breaker.
type RecordFns struct {
	RecordSuccess func(models.Platform, time.Duration)
	RecordFailure func(models.Platform)
	RecordThrottle func(models.Platform, time.Duration)
}

// Fns builds the RecordFns bundle bound to this breaker instance.
func (b *Breaker) Fns() RecordFns {
	return RecordFns{
		RecordSuccess:  b.RecordSuccess,
		RecordFailure:  b.RecordFailure,
		RecordThrottle: b.RecordThrottle,
	}
}
