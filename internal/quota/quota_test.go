package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func TestTrackApiCallAdmitsUnderBreakerThreshold(t *testing.T) {
	limits := map[models.Platform]Limit{
		models.PlatformTwitch: {Max: 10, Window: time.Minute},
	}
	tr := New(NewMemoryStore(), limits, nil)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		status, err := tr.TrackApiCall(ctx, models.PlatformTwitch, 1)
		require.NoError(t, err)
		assert.True(t, status.Allowed, "call %d should be admitted", i)
	}
}

func TestTrackApiCallDeniesAtBreakerThreshold(t *testing.T) {
	limits := map[models.Platform]Limit{
		models.PlatformTwitch: {Max: 10, Window: time.Minute},
	}
	tr := New(NewMemoryStore(), limits, nil)
	ctx := context.Background()

	var last Status
	var err error
	for i := 0; i < 10; i++ {
		last, err = tr.TrackApiCall(ctx, models.PlatformTwitch, 1)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, last.Percentage, 0.95)
	assert.False(t, last.Allowed)
}

func TestCheckQuotaDoesNotIncrement(t *testing.T) {
	limits := map[models.Platform]Limit{
		models.PlatformKick: {Max: 10, Window: time.Minute},
	}
	tr := New(NewMemoryStore(), limits, nil)
	ctx := context.Background()

	_, err := tr.CheckQuota(ctx, models.PlatformKick, 1)
	require.NoError(t, err)
	_, err = tr.CheckQuota(ctx, models.PlatformKick, 1)
	require.NoError(t, err)

	status, err := tr.TrackApiCall(ctx, models.PlatformKick, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, status.Percentage, 0.001)
}
