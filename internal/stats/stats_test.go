package stats

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/store"
)

func TestCreateSessionThenTrackAndUptime(t *testing.T) {
	mem := store.NewMemory()
	agg := New(mem, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	sess, err := agg.CreateSession(ctx, "t1", models.PlatformTwitch)
	require.NoError(t, err)

	require.NoError(t, agg.TrackChatMessage(ctx, sess.ID, "viewer1"))
	require.NoError(t, agg.TrackChatMessage(ctx, sess.ID, "viewer1"))
	require.NoError(t, agg.TrackChatMessage(ctx, sess.ID, "viewer2"))
	require.NoError(t, agg.TrackViewerCount(ctx, sess.ID, 42))

	_, active := agg.Uptime(ctx, "t1", models.PlatformTwitch)
	assert.True(t, active)

	require.NoError(t, agg.EndSession(ctx, "t1", models.PlatformTwitch, sess.ID))
	_, active = agg.Uptime(ctx, "t1", models.PlatformTwitch)
	assert.False(t, active)
}

func TestCreateSessionClosesDanglingSession(t *testing.T) {
	mem := store.NewMemory()
	agg := New(mem, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	first, err := agg.CreateSession(ctx, "t1", models.PlatformKick)
	require.NoError(t, err)

	_, err = agg.CreateSession(ctx, "t1", models.PlatformKick)
	require.NoError(t, err)

	open, err := mem.GetOpenStreamSession(ctx, "t1", models.PlatformKick)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, open.ID)

	err = mem.EndStreamSession(ctx, first.ID)
	require.NoError(t, err)
}
