package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// S4 — twitch fails 5 times in a row -> open; canMakeRequest false; after
// the timeout elapses the next call transitions to half-open; 3
// consecutive successes -> closed, counts reset.
func TestBreakerTripSequence(t *testing.T) {
	tuning := map[models.Platform]Tuning{
		models.PlatformTwitch: {FailureThreshold: 5, SuccessThreshold: 3, Timeout: 20 * time.Millisecond},
	}
	b := New(nil, tuning)

	for i := 0; i < 5; i++ {
		b.RecordFailure(models.PlatformTwitch)
	}
	assert.False(t, b.CanMakeRequest(models.PlatformTwitch))
	assert.Equal(t, models.CircuitOpen, b.Health(models.PlatformTwitch).CircuitState)

	time.Sleep(25 * time.Millisecond)
	require.True(t, b.CanMakeRequest(models.PlatformTwitch))
	assert.Equal(t, models.CircuitHalfOpen, b.Health(models.PlatformTwitch).CircuitState)

	b.RecordSuccess(models.PlatformTwitch, time.Millisecond)
	b.RecordSuccess(models.PlatformTwitch, time.Millisecond)
	assert.Equal(t, models.CircuitHalfOpen, b.Health(models.PlatformTwitch).CircuitState)
	b.RecordSuccess(models.PlatformTwitch, time.Millisecond)

	health := b.Health(models.PlatformTwitch)
	assert.Equal(t, models.CircuitClosed, health.CircuitState)
	assert.Equal(t, 0, health.FailureCount)
	assert.Equal(t, 0, health.SuccessCount)
}

func TestBreakerThrottleOrthogonalToState(t *testing.T) {
	b := New(nil, nil)
	b.RecordThrottle(models.PlatformKick, 10*time.Millisecond)
	assert.False(t, b.CanMakeRequest(models.PlatformKick))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.CanMakeRequest(models.PlatformKick))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	tuning := map[models.Platform]Tuning{
		models.PlatformYouTube: {FailureThreshold: 3, SuccessThreshold: 3, Timeout: 10 * time.Millisecond},
	}
	b := New(nil, tuning)
	for i := 0; i < 3; i++ {
		b.RecordFailure(models.PlatformYouTube)
	}
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.CanMakeRequest(models.PlatformYouTube))
	b.RecordFailure(models.PlatformYouTube)
	assert.Equal(t, models.CircuitOpen, b.Health(models.PlatformYouTube).CircuitState)
}
