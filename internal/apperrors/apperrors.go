// Package apperrors defines the error kind table from the error handling
// design: sentinel errors wrapped with %w, mapped to HTTP status by the
// control plane and to local-recovery behavior by the pipeline/worker.
package apperrors

import "errors"

var (
	// ErrConfigInvalid is fatal at startup; no local recovery.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrAuthExpired comes from a platform API 401; the Token Manager
	// tries exactly one refresh before surfacing refresh_failed.
	ErrAuthExpired = errors.New("auth expired")

	// ErrThrottled comes from a platform API 429; recorded in the breaker
	// and re-queued, not user-visible unless persistent.
	ErrThrottled = errors.New("throttled")

	// ErrBreakerOpen means canMakeRequest denied the call; re-queue
	// outbound, count, error event after N consecutive.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrValidationFailed is a 400 with a reason string.
	ErrValidationFailed = errors.New("validation failed")

	// ErrReplayDetected is an OAuth state reused; refuse consume, log at
	// ERROR, 400 to caller.
	ErrReplayDetected = errors.New("oauth replay detected")

	// ErrOAuthStateNotFound covers an unknown or expired OAuth state,
	// distinct from replay (used, not-found) for logging purposes.
	ErrOAuthStateNotFound = errors.New("oauth state not found or expired")

	// ErrTransient is a network-level failure eligible for exponential
	// backoff up to 3 attempts.
	ErrTransient = errors.New("transient error")

	// ErrPolicyDenied marks a moderation short-circuit; no recovery
	// needed, only a moderation_action event.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrQuotaExceeded is returned by the Quota Tracker when percentage
	// has crossed the breaker threshold.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNotRunning/ErrAlreadyRunning name the worker-state conflicts. No
	// package returns them: Supervisor.Start is idempotent, and the HTTP
	// control plane writes its 409 reply directly.
	ErrNotRunning     = errors.New("worker not running")
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNotFound is a generic Persistence Port miss.
	ErrNotFound = errors.New("not found")
)
