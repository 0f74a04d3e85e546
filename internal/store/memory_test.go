package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// Invariant 3: at most one GiveawayEntry per (giveaway, username, platform).
func TestGiveawayEntryUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	entry := models.GiveawayEntry{GiveawayID: "g1", Username: "alice", Platform: models.PlatformTwitch}

	first, err := m.InsertGiveawayEntry(ctx, entry)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := m.InsertGiveawayEntry(ctx, entry)
	require.NoError(t, err)
	assert.False(t, second)

	n, err := m.CountGiveawayEntries(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Invariant 4: balance == sum of transaction deltas.
func TestCurrencyLedgerInvariant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	deltas := []int64{10, -3, 25, -1}
	var want int64
	for _, d := range deltas {
		want += d
		_, err := m.ApplyCurrencyDelta(ctx, "t1", "bob", models.PlatformTwitch, d, "test", models.TxAdjust)
		require.NoError(t, err)
	}

	bal, err := m.GetUserBalance(ctx, "t1", "bob", models.PlatformTwitch)
	require.NoError(t, err)
	assert.Equal(t, want, bal.Balance)
}

// S3 — OAuth replay: two concurrent callbacks with the same state; exactly
// one succeeds, the other observes ReplayDetected.
func TestOAuthSessionConsumeIsSingleUse(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateOAuthSession(ctx, models.OAuthSession{
		State: "st-1", TenantID: "t1", Platform: models.PlatformTwitch,
		CodeVerifier: "verifier", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.ConsumeOAuthSession(ctx, "st-1")
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes, replays := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case err == apperrors.ErrReplayDetected:
			replays++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, replays)
}

func TestOAuthSessionExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateOAuthSession(ctx, models.OAuthSession{
		State: "st-2", TenantID: "t1", Platform: models.PlatformTwitch,
		CodeVerifier: "verifier", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	_, err := m.ConsumeOAuthSession(ctx, "st-2")
	assert.ErrorIs(t, err, apperrors.ErrOAuthStateNotFound)
}

// S6 — queue backoff: item fails 3 times with gaps 2s/4s/8s, 4th failure
// is terminal.
func TestMessageQueueBackoffAndTerminalFailure(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	item, err := m.EnqueueMessage(ctx, models.MessageQueueItem{
		TenantID: "t1", Platform: models.PlatformTwitch, MessageType: "chat", Content: "hi",
	})
	require.NoError(t, err)

	wantGaps := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantGaps {
		before := time.Now()
		require.NoError(t, m.CompleteMessage(ctx, item.ID, false, "boom"))
		got := m.queue[item.ID]
		assert.Equal(t, models.QueuePending, got.Status, "attempt %d", i+1)
		assert.Equal(t, i+1, got.RetryCount)
		assert.WithinDuration(t, before.Add(want), got.ScheduledFor, 50*time.Millisecond)
	}

	require.NoError(t, m.CompleteMessage(ctx, item.ID, false, "boom again"))
	final := m.queue[item.ID]
	assert.Equal(t, models.QueueFailed, final.Status)
	assert.Equal(t, final.MaxRetries+1, final.RetryCount)
}

func TestMessageQueueNeverRedeliversCompleted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	item, err := m.EnqueueMessage(ctx, models.MessageQueueItem{
		TenantID: "t1", Platform: models.PlatformKick, MessageType: "chat", Content: "hi",
	})
	require.NoError(t, err)
	require.NoError(t, m.CompleteMessage(ctx, item.ID, true, ""))

	claimed, err := m.ClaimMessages(ctx, models.PlatformKick, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

// Invariant 2: at most one open StreamSession per (tenant, platform).
func TestOpenStreamSessionClosesDangling(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, err := m.OpenStreamSession(ctx, "t1", models.PlatformTwitch)
	require.NoError(t, err)

	second, err := m.OpenStreamSession(ctx, "t1", models.PlatformTwitch)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	closedFirst := m.sessions[first.ID]
	assert.NotNil(t, closedFirst.EndedAt)
	openSecond := m.sessions[second.ID]
	assert.Nil(t, openSecond.EndedAt)
}
